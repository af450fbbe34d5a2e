package ffengine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"segment-timeline/internal/engine"
	"segment-timeline/internal/mkv"
)

const codecAVC = "V_MPEG4/ISO/AVC"

type graph struct {
	eng    *Engine
	desc   string
	stages []*stage
	bus    *engine.QueueBus

	// padMu guards pad links and pad caps. Pad-added callbacks run with mu
	// held, so they may link pads but must not change graph state.
	padMu sync.Mutex

	mu          sync.Mutex
	state       engine.State
	last        engine.StateChange
	refs        int
	header      *mkv.Header
	announced   bool
	linked      *pad
	videoIndex  int
	duration    time.Duration
	hasDuration bool
	dec         *decoder
}

var _ engine.Graph = (*graph)(nil)

type stage struct {
	g    *graph
	spec engine.Spec
	info kindInfo

	sinkPad *pad
	srcPad  *pad
	dynamic []*pad

	callbacks []func(engine.Stage, engine.Pad)

	queue    *sampleQueue
	tsOffset time.Duration
}

var _ engine.Sink = (*stage)(nil)

type pad struct {
	stage *stage
	name  string
	dir   engine.PadDirection
	track *mkv.Track
	index int // position among tracks of the same type

	peer *pad
	caps *engine.Caps
}

// Stage implements engine.Graph.
func (g *graph) Stage(name string) (engine.Stage, bool) {
	for _, st := range g.stages {
		if st.spec.Name == name {
			g.eng.refs.Add(1)
			return st, true
		}
	}
	return nil, false
}

// Bus implements engine.Graph.
func (g *graph) Bus() engine.Bus { return g.bus }

// State implements engine.Graph. Transitions complete synchronously, so it
// never blocks.
func (g *graph) State() (engine.StateChange, engine.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.state
}

// QueryDuration implements engine.Graph.
func (g *graph) QueryDuration() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state < engine.StatePaused || !g.hasDuration {
		return 0, false
	}
	return g.duration, true
}

// Release implements engine.Graph.
func (g *graph) Release() {
	g.mu.Lock()
	g.refs--
	if g.refs == 0 && g.state > engine.StateNull {
		g.eng.log.Warn("graph released while active",
			slog.String("state", g.state.String()),
			slog.String("graph", g.desc))
		g.stopLocked(engine.StateNull)
	}
	g.mu.Unlock()
	g.eng.refs.Add(-1)
}

// SetState implements engine.Graph.
func (g *graph) SetState(target engine.State) engine.StateChange {
	g.mu.Lock()
	defer g.mu.Unlock()

	from := g.state
	var err error
	switch target {
	case engine.StateNull, engine.StateReady:
		g.stopLocked(target)
	case engine.StatePaused:
		err = g.pauseLocked()
	case engine.StatePlaying:
		err = g.playLocked()
	default:
		err = fmt.Errorf("invalid target state %s", target)
	}

	if err != nil {
		g.last = engine.StateChangeFailure
		var msg *engine.Message
		if !errors.As(err, &msg) {
			msg = &engine.Message{Kind: engine.MessageError, Text: err.Error()}
		}
		g.bus.Post(msg)
		g.eng.log.Debug("state change failed",
			slog.String("from", from.String()),
			slog.String("to", target.String()),
			slog.String("error", msg.Error()))
		return g.last
	}

	g.last = engine.StateChangeSuccess
	if g.state != from {
		g.bus.Post(&engine.Message{
			Kind: engine.MessageStateChanged,
			Text: from.String() + " -> " + g.state.String(),
		})
	}
	return g.last
}

func stageError(st *stage, format string, args ...any) *engine.Message {
	return &engine.Message{
		Kind:   engine.MessageError,
		Source: st.spec.Name,
		Text:   fmt.Sprintf(format, args...),
	}
}

func (g *graph) stage(r role) (*stage, int) {
	for i, st := range g.stages {
		if st.info.role == r {
			return st, i
		}
	}
	return nil, -1
}

func (g *graph) location() string {
	loc, _ := g.stages[0].spec.Prop("location")
	return loc
}

func (g *graph) pauseLocked() error {
	switch g.state {
	case engine.StatePaused:
		return nil
	case engine.StatePlaying:
		if g.dec != nil && !g.dec.finished() {
			if err := suspendGroup(g.dec.cmd); err != nil {
				return fmt.Errorf("pause decoder: %w", err)
			}
			g.dec.suspended = true
		}
		g.state = engine.StatePaused
		return nil
	}
	if err := g.prerollLocked(); err != nil {
		return err
	}
	g.state = engine.StatePaused
	return nil
}

// prerollLocked reads the container, announces its streams and negotiates
// caps up to the sink. A graph whose demuxer output stays unlinked still
// prerolls, but without caps.
func (g *graph) prerollLocked() error {
	src := g.stages[0]
	loc := g.location()
	if loc == "" {
		return stageError(src, "No file name specified for reading.")
	}
	if _, err := os.Stat(loc); err != nil {
		return stageError(src, "Could not open file %q for reading: %v", loc, err)
	}

	demux, demuxAt := g.stage(roleDemux)
	if demux == nil {
		return stageError(src, "graph has no demuxer")
	}
	if g.header == nil {
		h, err := mkv.ReadHeader(loc)
		if err != nil {
			return stageError(demux, "Could not demultiplex stream: %v", err)
		}
		g.header = h
	}
	g.announceLocked(demux)

	g.duration, g.hasDuration = g.header.Duration()
	g.linked = nil

	g.padMu.Lock()
	var linked *pad
	for _, p := range demux.dynamic {
		if p.peer != nil {
			linked = p
			break
		}
	}
	g.padMu.Unlock()

	if linked == nil || linked.track.Type != mkv.TrackVideo {
		g.bus.Post(&engine.Message{
			Kind:   engine.MessageWarning,
			Source: demux.spec.Name,
			Text:   "no video stream linked downstream",
		})
		return nil
	}

	if parser := linked.peer.stage; parser.info.role == roleParse && linked.track.CodecID != codecAVC {
		return stageError(parser, "not-negotiated: cannot parse %s", linked.track.CodecID)
	}

	info, err := probeVideo(g.eng.cfg.FFprobePath, loc, linked.index)
	if err != nil {
		return stageError(demux, "%v", err)
	}
	caps, err := negotiate(g.stages[demuxAt+1:], info)
	if err != nil {
		return stageError(g.stages[len(g.stages)-1], "not-negotiated: %v", err)
	}

	sink := g.stages[len(g.stages)-1]
	g.padMu.Lock()
	sink.sinkPad.caps = caps
	g.padMu.Unlock()

	if !g.hasDuration && info.Duration > 0 {
		g.duration, g.hasDuration = info.Duration, true
	}
	g.linked = linked
	g.videoIndex = linked.index
	return nil
}

// announceLocked creates the demuxer's stream pads once and reports each to
// the registered callbacks.
func (g *graph) announceLocked(demux *stage) {
	if g.announced {
		return
	}
	g.announced = true

	counts := make(map[mkv.TrackType]int)
	for i := range g.header.Tracks {
		t := &g.header.Tracks[i]
		switch t.Type {
		case mkv.TrackVideo, mkv.TrackAudio, mkv.TrackSubtitle:
		default:
			continue
		}
		p := &pad{
			stage: demux,
			name:  fmt.Sprintf("%s_%d", t.Type, counts[t.Type]),
			dir:   engine.PadSrc,
			track: t,
			index: counts[t.Type],
		}
		counts[t.Type]++
		g.padMu.Lock()
		demux.dynamic = append(demux.dynamic, p)
		callbacks := append([]func(engine.Stage, engine.Pad){}, demux.callbacks...)
		g.padMu.Unlock()
		for _, fn := range callbacks {
			fn(demux, p)
		}
	}
}

// negotiate derives the sink caps from the decoded stream and the caps
// filters downstream of the demuxer. A filter may only change a property if
// a stage able to change it sits before the filter.
func negotiate(chain []*stage, info *streamInfo) (*engine.Caps, error) {
	caps := engine.NewCaps(engine.MediaTypeRawVideo)
	if f, ok := capsFormat(info.PixFmt); ok {
		caps.Set("format", f)
	}
	if info.Width > 0 && info.Height > 0 {
		caps.Set("width", info.Width)
		caps.Set("height", info.Height)
	}
	if info.FrameRate.Den > 0 {
		caps.Set("framerate", info.FrameRate)
	}

	var decoded, canFormat, canScale, canRate bool
	for _, st := range chain {
		switch st.info.role {
		case roleDecode:
			decoded = true
		case roleConvert:
			canFormat = true
		case roleScale:
			canScale = true
		case roleRate:
			canRate = true
		case roleFilter:
			if !decoded {
				return nil, fmt.Errorf("%s: filter before decoder", st.spec.Name)
			}
			if err := applyFilter(caps, st.spec.Caps, canFormat, canScale, canRate); err != nil {
				return nil, fmt.Errorf("%s: %w", st.spec.Name, err)
			}
		}
	}
	if !decoded {
		return nil, errors.New("no decoder in graph")
	}
	if _, ok := caps.String("format"); !ok {
		return nil, fmt.Errorf("decoder output %q has no raw equivalent", info.PixFmt)
	}
	return caps, nil
}

func applyFilter(caps, filter *engine.Caps, canFormat, canScale, canRate bool) error {
	if filter == nil {
		return nil
	}
	if filter.MediaType != engine.MediaTypeRawVideo {
		return fmt.Errorf("cannot produce %s", filter.MediaType)
	}
	for _, name := range filter.Fields() {
		switch name {
		case "format":
			want, ok := filter.String(name)
			if !ok {
				return errors.New("format must be a string")
			}
			if _, ok := ffmpegFormat(want); !ok {
				return fmt.Errorf("unsupported format %s", want)
			}
			if have, ok := caps.String(name); ok && have != want && !canFormat {
				return fmt.Errorf("format %s cannot become %s without a converter", have, want)
			}
			caps.Set(name, want)
		case "width", "height":
			want, ok := filter.Int(name)
			if !ok || want <= 0 {
				return fmt.Errorf("%s must be a positive int", name)
			}
			if have, ok := caps.Int(name); ok && have != want && !canScale {
				return fmt.Errorf("%s %d cannot become %d without a scaler", name, have, want)
			}
			caps.Set(name, want)
		case "framerate":
			want, ok := filter.Fraction(name)
			if !ok || want.Num <= 0 || want.Den <= 0 {
				return errors.New("framerate must be a positive fraction")
			}
			if have, ok := caps.Fraction(name); ok && have.Num*want.Den != want.Num*have.Den && !canRate {
				return fmt.Errorf("framerate %s cannot become %s without a rate converter", have, want)
			}
			caps.Set(name, want)
		default:
			if s, ok := filter.String(name); ok {
				caps.Set(name, s)
			} else if n, ok := filter.Int(name); ok {
				caps.Set(name, n)
			} else if f, ok := filter.Fraction(name); ok {
				caps.Set(name, f)
			}
		}
	}
	return nil
}

func (g *graph) playLocked() error {
	if g.state == engine.StatePlaying {
		return nil
	}
	if g.state < engine.StatePaused {
		if err := g.prerollLocked(); err != nil {
			return err
		}
		g.state = engine.StatePaused
	}
	if g.dec != nil {
		if g.dec.suspended {
			if err := resumeGroup(g.dec.cmd); err != nil {
				return fmt.Errorf("resume decoder: %w", err)
			}
			g.dec.suspended = false
		}
		g.state = engine.StatePlaying
		return nil
	}

	demux, _ := g.stage(roleDemux)
	if g.linked == nil {
		return stageError(demux, "Internal data stream error: not-linked")
	}

	sink := g.stages[len(g.stages)-1]
	g.padMu.Lock()
	caps := sink.sinkPad.caps
	g.padMu.Unlock()

	size, err := frameSize(caps)
	if err != nil {
		return stageError(sink, "not-negotiated: %v", err)
	}
	var frameDur time.Duration
	if fr, ok := caps.Fraction("framerate"); ok && fr.Num > 0 {
		frameDur = time.Duration(int64(time.Second) * int64(fr.Den) / int64(fr.Num))
	}

	queue := sink.queue
	if queue == nil {
		queue = newSampleQueue(1, true)
	}
	queue.reopen()

	dec, err := startDecoder(decoderConfig{
		ffmpeg:    g.eng.cfg.FFmpegPath,
		args:      decodeArgs(g.location(), g.videoIndex, caps),
		frameSize: size,
		frameDur:  frameDur,
		offset:    sink.tsOffset,
		caps:      caps,
		queue:     queue,
		bus:       g.bus,
		source:    demux.spec.Name,
	})
	if err != nil {
		return stageError(demux, "could not start decoder: %v", err)
	}

	select {
	case <-dec.prerolled:
	case <-dec.done:
		if dec.frames.Load() == 0 {
			tail := dec.stderr.String()
			g.dec = dec
			g.stopLocked(engine.StatePaused)
			msg := stageError(demux, "Internal data stream error: decoder produced no frames")
			msg.Debug = tail
			return msg
		}
	}

	g.dec = dec
	g.state = engine.StatePlaying
	g.eng.log.Debug("decoder running",
		slog.String("location", g.location()),
		slog.String("caps", caps.Format()))
	return nil
}

// stopLocked tears down any decoder and drops negotiated state. Target is
// StateNull or StateReady, or StatePaused when unwinding a failed start.
func (g *graph) stopLocked(target engine.State) {
	if g.dec != nil {
		g.dec.stop(g.eng.cfg.StopGrace)
		g.dec = nil
	}
	if target == engine.StatePaused {
		return
	}

	sink := g.stages[len(g.stages)-1]
	if sink.queue != nil {
		sink.queue.close()
	}
	g.padMu.Lock()
	sink.sinkPad.caps = nil
	g.padMu.Unlock()

	g.linked = nil
	g.hasDuration = false
	g.state = target
}

// Name implements engine.Stage.
func (s *stage) Name() string { return s.spec.Name }

// Kind implements engine.Stage.
func (s *stage) Kind() string { return s.spec.Kind }

// StaticPad implements engine.Stage.
func (s *stage) StaticPad(name string) (engine.Pad, bool) {
	switch {
	case name == "sink" && s.sinkPad != nil:
		return s.sinkPad, true
	case name == "src" && s.srcPad != nil:
		return s.srcPad, true
	}
	return nil, false
}

// OnPadAdded implements engine.Stage.
func (s *stage) OnPadAdded(fn func(engine.Stage, engine.Pad)) {
	s.g.padMu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.g.padMu.Unlock()
}

// Release implements engine.Stage.
func (s *stage) Release() { s.g.eng.refs.Add(-1) }

// TryPull implements engine.Sink. Stages without a queue never yield samples.
func (s *stage) TryPull(timeout time.Duration) (*engine.Sample, bool) {
	if s.queue == nil {
		return nil, false
	}
	return s.queue.pull(timeout)
}

// Name implements engine.Pad.
func (p *pad) Name() string { return p.name }

// Direction implements engine.Pad.
func (p *pad) Direction() engine.PadDirection { return p.dir }

// IsLinked implements engine.Pad.
func (p *pad) IsLinked() bool {
	p.stage.g.padMu.Lock()
	defer p.stage.g.padMu.Unlock()
	return p.peer != nil
}

// Link implements engine.Pad.
func (p *pad) Link(peer engine.Pad) error {
	other, ok := peer.(*pad)
	if !ok || other.stage.g != p.stage.g {
		return errors.New("link: pads belong to different graphs")
	}
	if p.dir != engine.PadSrc || other.dir != engine.PadSink {
		return errors.New("link: wrong pad direction")
	}
	if p.track != nil && p.track.Type != mkv.TrackVideo {
		return fmt.Errorf("link: %s stream cannot feed %s", p.track.Type, other.stage.spec.Kind)
	}
	g := p.stage.g
	g.padMu.Lock()
	defer g.padMu.Unlock()
	if p.peer != nil || other.peer != nil {
		return errors.New("link: pad already linked")
	}
	p.peer, other.peer = other, p
	return nil
}

// CurrentCaps implements engine.Pad.
func (p *pad) CurrentCaps() (*engine.Caps, bool) {
	p.stage.g.padMu.Lock()
	defer p.stage.g.padMu.Unlock()
	if p.caps == nil {
		return nil, false
	}
	return p.caps.Clone(), true
}
