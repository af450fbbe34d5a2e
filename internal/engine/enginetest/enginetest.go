// Package enginetest provides a scriptable in-memory engine for tests of code
// built on package engine.
package enginetest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"segment-timeline/internal/engine"
)

// Stream is one elementary stream announced by a demuxer.
type Stream struct {
	Kind string // "video" or "audio"
}

// Media scripts how a graph reading one file behaves.
type Media struct {
	Streams []Stream

	// Caps are the decoded caps of the first video stream. Caps filters in
	// the graph override the fields they name.
	Caps *engine.Caps

	Duration   time.Duration
	NoDuration bool

	FailPause bool
	FailPlay  bool

	// PlayError is posted on the bus when the playing transition fails.
	PlayError string

	// SpuriousPads repeats the first pad-added notification this many times.
	SpuriousPads int
}

// Video returns a single-stream media of the given geometry.
func Video(format string, width, height, fpsNum, fpsDen int, d time.Duration) Media {
	return Media{
		Streams: []Stream{{Kind: "video"}},
		Caps: engine.NewCaps(engine.MediaTypeRawVideo).
			Set("format", format).
			Set("width", width).
			Set("height", height).
			Set("framerate", engine.Fraction{Num: fpsNum, Den: fpsDen}),
		Duration: d,
	}
}

func knownKind(kind string) bool {
	switch kind {
	case "filesrc", "matroskademux", "h264parse", "avdec_h264", "videoconvert",
		"videoscale", "videorate", engine.KindCapsFilter, "appsink", "fakesink", "identity":
		return true
	}
	return false
}

// Engine is an engine.Engine whose graphs follow scripted Media.
type Engine struct {
	mu          sync.Mutex
	media       map[string]Media
	initCalls   int
	refs        int
	graphs      []*Graph
	playing     int
	maxPlaying  int
	descs       []string
	releasedHot int
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine without scripted media.
func New() *Engine {
	return &Engine{media: make(map[string]Media)}
}

// Add scripts the media read from path.
func (e *Engine) Add(path string, m Media) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.media[path] = m
}

// Init implements engine.Engine.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initCalls++
	return nil
}

// InitCalls reports how often Init ran.
func (e *Engine) InitCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initCalls
}

// Outstanding reports stage and graph references not yet released.
func (e *Engine) Outstanding() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// MaxPlaying reports the largest number of graphs that were playing at once.
func (e *Engine) MaxPlaying() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxPlaying
}

// Playing reports how many graphs are playing now.
func (e *Engine) Playing() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// ReleasedWhileActive counts graphs released while not in StateNull.
func (e *Engine) ReleasedWhileActive() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releasedHot
}

// Descriptions returns every description parsed so far.
func (e *Engine) Descriptions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.descs...)
}

// Graphs returns every graph created so far.
func (e *Engine) Graphs() []*Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Graph(nil), e.graphs...)
}

// ParseGraph implements engine.Engine.
func (e *Engine) ParseGraph(desc string) (engine.Graph, error) {
	specs, err := engine.ParseDescription(desc)
	if err != nil {
		return nil, err
	}
	for _, s := range specs {
		if !knownKind(s.Kind) {
			return nil, &engine.ParseError{Description: desc, Msg: fmt.Sprintf("no element %q", s.Kind)}
		}
	}

	g := &Graph{eng: e, bus: engine.NewQueueBus(), state: engine.StateNull, last: engine.StateChangeSuccess, refs: 1}
	for _, s := range specs {
		st := &stage{graph: g, spec: s}
		st.sink = &pad{stage: st, name: "sink", dir: engine.PadSink}
		st.src = &pad{stage: st, name: "src", dir: engine.PadSrc}
		g.stages = append(g.stages, st)
	}
	for i := 0; i+1 < len(g.stages); i++ {
		if isDemuxer(g.stages[i].spec.Kind) {
			continue
		}
		g.stages[i].src.peer = g.stages[i+1].sink
		g.stages[i+1].sink.peer = g.stages[i].src
	}

	e.mu.Lock()
	e.refs++
	e.graphs = append(e.graphs, g)
	e.descs = append(e.descs, desc)
	e.mu.Unlock()
	return g, nil
}

func isDemuxer(kind string) bool {
	return strings.HasSuffix(kind, "demux")
}

// Graph is a scripted engine.Graph.
type Graph struct {
	eng    *Engine
	stages []*stage
	bus    *engine.QueueBus

	mu        sync.Mutex
	state     engine.State
	last      engine.StateChange
	refs      int
	announced bool
	links     int
	dynPads   []*pad
}

var _ engine.Graph = (*Graph)(nil)

// Links reports how many dynamic links were made.
func (g *Graph) Links() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.links
}

// CurrentState reports the state without blocking.
func (g *Graph) CurrentState() engine.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Location returns the filesrc location of the graph.
func (g *Graph) Location() string {
	for _, s := range g.stages {
		if s.spec.Kind == "filesrc" {
			loc, _ := s.spec.Prop("location")
			return loc
		}
	}
	return ""
}

// Stage implements engine.Graph.
func (g *Graph) Stage(name string) (engine.Stage, bool) {
	for _, s := range g.stages {
		if s.spec.Name == name {
			g.eng.mu.Lock()
			g.eng.refs++
			g.eng.mu.Unlock()
			return s, true
		}
	}
	return nil, false
}

// SetState implements engine.Graph.
func (g *Graph) SetState(target engine.State) engine.StateChange {
	g.mu.Lock()
	defer g.mu.Unlock()

	res := g.transitionLocked(target)
	g.last = res
	return res
}

func (g *Graph) transitionLocked(target engine.State) engine.StateChange {
	if target <= engine.StateReady {
		g.setPlayingLocked(false)
		g.state = target
		for _, s := range g.stages {
			s.sink.caps = nil
			s.src.caps = nil
		}
		return engine.StateChangeSuccess
	}

	loc := g.Location()
	g.eng.mu.Lock()
	m, ok := g.eng.media[loc]
	g.eng.mu.Unlock()
	if !ok {
		g.bus.Post(&engine.Message{Kind: engine.MessageError, Source: "filesrc0", Text: "Resource not found: " + loc})
		return engine.StateChangeFailure
	}

	if g.state < engine.StatePaused {
		if m.FailPause {
			g.bus.Post(&engine.Message{Kind: engine.MessageError, Source: "demuxer", Text: "could not demultiplex stream"})
			return engine.StateChangeFailure
		}
		g.announceLocked(m)
		g.negotiateLocked(m)
		g.state = engine.StatePaused
	}

	if target == engine.StatePlaying {
		if m.FailPlay {
			if m.PlayError != "" {
				g.bus.Post(&engine.Message{Kind: engine.MessageError, Source: "decoder", Text: m.PlayError})
			}
			return engine.StateChangeFailure
		}
		g.setPlayingLocked(true)
		g.state = engine.StatePlaying
	} else if g.state == engine.StatePlaying {
		g.setPlayingLocked(false)
		g.state = engine.StatePaused
	}
	return engine.StateChangeSuccess
}

func (g *Graph) setPlayingLocked(on bool) {
	wasPlaying := g.state == engine.StatePlaying
	g.eng.mu.Lock()
	defer g.eng.mu.Unlock()
	switch {
	case on && !wasPlaying:
		g.eng.playing++
	case on && wasPlaying:
		return
	case !on && wasPlaying:
		g.eng.playing--
	}
	if g.eng.playing > g.eng.maxPlaying {
		g.eng.maxPlaying = g.eng.playing
	}
}

func (g *Graph) announceLocked(m Media) {
	if g.announced {
		return
	}
	g.announced = true
	var demux *stage
	for _, s := range g.stages {
		if isDemuxer(s.spec.Kind) {
			demux = s
			break
		}
	}
	if demux == nil {
		return
	}
	counts := map[string]int{}
	for _, st := range m.Streams {
		p := &pad{stage: demux, name: fmt.Sprintf("%s_%d", st.Kind, counts[st.Kind]), dir: engine.PadSrc, kind: st.Kind}
		counts[st.Kind]++
		g.dynPads = append(g.dynPads, p)
	}
	// Callbacks run without the graph lock so they can link pads.
	g.mu.Unlock()
	defer g.mu.Lock()
	for _, p := range g.dynPads {
		demux.fire(p)
	}
	if len(g.dynPads) > 0 {
		for i := 0; i < m.SpuriousPads; i++ {
			demux.fire(g.dynPads[0])
		}
	}
}

func (g *Graph) negotiateLocked(m Media) {
	var sinkPad *pad
	linked := false
	for i, s := range g.stages {
		if i == len(g.stages)-1 {
			sinkPad = s.sink
		}
		if isDemuxer(s.spec.Kind) && i+1 < len(g.stages) {
			peer := g.stages[i+1].sink.peer
			linked = peer != nil && peer.kind == "video"
		}
	}
	if !linked || m.Caps == nil || sinkPad == nil {
		return
	}
	caps := m.Caps.Clone()
	for _, s := range g.stages {
		if s.spec.Kind != engine.KindCapsFilter {
			continue
		}
		f := s.spec.Caps
		for _, name := range f.Fields() {
			if v, ok := f.String(name); ok {
				caps.Set(name, v)
			} else if v, ok := f.Int(name); ok {
				caps.Set(name, v)
			} else if v, ok := f.Fraction(name); ok {
				caps.Set(name, v)
			}
		}
	}
	sinkPad.caps = caps
}

// State implements engine.Graph.
func (g *Graph) State() (engine.StateChange, engine.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.state
}

// QueryDuration implements engine.Graph.
func (g *Graph) QueryDuration() (time.Duration, bool) {
	g.mu.Lock()
	state := g.state
	g.mu.Unlock()
	if state < engine.StatePaused {
		return 0, false
	}
	g.eng.mu.Lock()
	m := g.eng.media[g.Location()]
	g.eng.mu.Unlock()
	if m.NoDuration {
		return 0, false
	}
	return m.Duration, true
}

// Bus implements engine.Graph.
func (g *Graph) Bus() engine.Bus { return g.bus }

// Release implements engine.Graph.
func (g *Graph) Release() {
	g.mu.Lock()
	g.refs--
	hot := g.refs == 0 && g.state != engine.StateNull
	g.mu.Unlock()

	g.eng.mu.Lock()
	g.eng.refs--
	if hot {
		g.eng.releasedHot++
	}
	g.eng.mu.Unlock()
}

type stage struct {
	graph     *Graph
	spec      engine.Spec
	sink, src *pad
	callbacks []func(engine.Stage, engine.Pad)
}

var _ engine.Sink = (*stage)(nil)

func (s *stage) Name() string { return s.spec.Name }
func (s *stage) Kind() string { return s.spec.Kind }

func (s *stage) StaticPad(name string) (engine.Pad, bool) {
	switch name {
	case "sink":
		return s.sink, true
	case "src":
		if isDemuxer(s.spec.Kind) {
			return nil, false
		}
		return s.src, true
	}
	return nil, false
}

func (s *stage) OnPadAdded(fn func(engine.Stage, engine.Pad)) {
	s.callbacks = append(s.callbacks, fn)
}

func (s *stage) fire(p *pad) {
	for _, fn := range s.callbacks {
		fn(s, p)
	}
}

func (s *stage) TryPull(time.Duration) (*engine.Sample, bool) {
	return nil, false
}

func (s *stage) Release() {
	s.graph.eng.mu.Lock()
	s.graph.eng.refs--
	s.graph.eng.mu.Unlock()
}

type pad struct {
	stage *stage
	name  string
	dir   engine.PadDirection
	kind  string
	peer  *pad
	caps  *engine.Caps
}

func (p *pad) Name() string                      { return p.name }
func (p *pad) Direction() engine.PadDirection    { return p.dir }
func (p *pad) IsLinked() bool                    { return p.peer != nil }
func (p *pad) CurrentCaps() (*engine.Caps, bool) { return p.caps.Clone(), p.caps != nil }

func (p *pad) Link(peer engine.Pad) error {
	other, ok := peer.(*pad)
	if !ok {
		return fmt.Errorf("link %s: foreign pad %T", p.name, peer)
	}
	if p.dir != engine.PadSrc || other.dir != engine.PadSink {
		return fmt.Errorf("link %s -> %s: wrong direction", p.name, other.name)
	}
	if p.peer != nil || other.peer != nil {
		return fmt.Errorf("link %s -> %s: already linked", p.name, other.name)
	}
	if p.kind != "" && p.kind != "video" {
		return fmt.Errorf("link %s -> %s: incompatible caps", p.name, other.name)
	}
	p.peer, other.peer = other, p
	g := p.stage.graph
	g.mu.Lock()
	g.links++
	g.mu.Unlock()
	return nil
}
