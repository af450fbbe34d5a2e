// Package ffengine implements package engine on top of the ffprobe and ffmpeg
// command line tools, with a native Matroska demuxer front end.
//
// Graphs are linear: filesrc ! matroskademux ! parser ! decoder ! converters
// and caps filters ! sink. Pausing a graph reads the container header,
// announces its streams and negotiates the sink caps; playing it spawns an
// ffmpeg process that decodes into the sink's bounded queue.
package ffengine

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"segment-timeline/internal/engine"
)

// DefaultStopGrace is how long a decoder may take to exit after SIGTERM.
const DefaultStopGrace = 2 * time.Second

// Config configures an Engine.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	StopGrace   time.Duration
	Logger      *slog.Logger
}

// Engine is an engine.Engine backed by ffmpeg.
type Engine struct {
	cfg Config
	log *slog.Logger

	initOnce sync.Once
	initErr  error

	refs atomic.Int64
}

var _ engine.Engine = (*Engine)(nil)

// New returns an Engine. Binary paths default to "ffmpeg" and "ffprobe".
func New(cfg Config) *Engine {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{cfg: cfg, log: log}
}

// Init resolves the ffmpeg and ffprobe binaries. Only the first call does
// any work.
func (e *Engine) Init() error {
	e.initOnce.Do(func() {
		for _, bin := range []*string{&e.cfg.FFmpegPath, &e.cfg.FFprobePath} {
			resolved, err := exec.LookPath(*bin)
			if err != nil {
				e.initErr = fmt.Errorf("ffengine: %w", err)
				return
			}
			*bin = resolved
		}
		e.log.Debug("engine initialised",
			slog.String("ffmpeg", e.cfg.FFmpegPath),
			slog.String("ffprobe", e.cfg.FFprobePath))
	})
	return e.initErr
}

// Outstanding reports graph and stage references that were not released.
func (e *Engine) Outstanding() int {
	return int(e.refs.Load())
}

type role int

const (
	roleSource role = iota + 1
	roleDemux
	roleParse
	roleDecode
	roleConvert
	roleScale
	roleRate
	roleFilter
	roleSink
)

type kindInfo struct {
	role  role
	props []string
}

func lookupKind(kind string) (kindInfo, bool) {
	switch kind {
	case "filesrc":
		return kindInfo{role: roleSource, props: []string{"location"}}, true
	case "matroskademux":
		return kindInfo{role: roleDemux}, true
	case "h264parse":
		return kindInfo{role: roleParse, props: []string{"config-interval"}}, true
	case "avdec_h264":
		return kindInfo{role: roleDecode, props: []string{"max-threads"}}, true
	case "videoconvert":
		return kindInfo{role: roleConvert}, true
	case "videoscale":
		return kindInfo{role: roleScale}, true
	case "videorate":
		return kindInfo{role: roleRate}, true
	case engine.KindCapsFilter:
		return kindInfo{role: roleFilter}, true
	case "appsink":
		return kindInfo{role: roleSink, props: []string{"max-buffers", "drop", "sync", "emit-signals", "ts-offset"}}, true
	case "fakesink":
		return kindInfo{role: roleSink, props: []string{"sync"}}, true
	}
	return kindInfo{}, false
}

// ParseGraph implements engine.Engine.
func (e *Engine) ParseGraph(desc string) (engine.Graph, error) {
	specs, err := engine.ParseDescription(desc)
	if err != nil {
		return nil, err
	}
	fail := func(format string, args ...any) (engine.Graph, error) {
		return nil, &engine.ParseError{Description: desc, Msg: fmt.Sprintf(format, args...)}
	}

	g := &graph{eng: e, desc: desc, bus: engine.NewQueueBus(), state: engine.StateNull, last: engine.StateChangeSuccess, refs: 1}
	for i, spec := range specs {
		info, ok := lookupKind(spec.Kind)
		if !ok {
			return fail("no element %q", spec.Kind)
		}
		st := &stage{g: g, spec: spec, info: info}
		for _, p := range spec.Props {
			if !contains(info.props, p.Key) {
				return fail("no property %q in element %q", p.Key, spec.Name)
			}
		}
		if err := st.configure(); err != nil {
			return fail("%s: %v", spec.Name, err)
		}
		switch {
		case i == 0 && info.role != roleSource:
			return fail("graph must start with a source, got %q", spec.Kind)
		case i > 0 && info.role == roleSource:
			return fail("source %q must be the first stage", spec.Name)
		case i == len(specs)-1 && info.role != roleSink:
			return fail("graph must end with a sink, got %q", spec.Kind)
		case i < len(specs)-1 && info.role == roleSink:
			return fail("sink %q must be the last stage", spec.Name)
		}
		if info.role != roleSource {
			st.sinkPad = &pad{stage: st, name: "sink", dir: engine.PadSink}
		}
		if info.role != roleSink && info.role != roleDemux {
			st.srcPad = &pad{stage: st, name: "src", dir: engine.PadSrc}
		}
		g.stages = append(g.stages, st)
	}

	// Demuxer outputs appear at runtime; every other neighbour pair is linked now.
	for i := 0; i+1 < len(g.stages); i++ {
		up, down := g.stages[i], g.stages[i+1]
		if up.srcPad == nil {
			continue
		}
		up.srcPad.peer, down.sinkPad.peer = down.sinkPad, up.srcPad
	}

	e.refs.Add(1)
	return g, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (s *stage) configure() error {
	if s.info.role != roleSink {
		return nil
	}
	limit, drop := 0, false
	if v, ok := s.spec.Prop("max-buffers"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid max-buffers %q", v)
		}
		limit = n
	}
	if v, ok := s.spec.Prop("drop"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid drop %q", v)
		}
		drop = b
	}
	if v, ok := s.spec.Prop("ts-offset"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ts-offset %q", v)
		}
		s.tsOffset = time.Duration(n)
	}
	for _, key := range []string{"sync", "emit-signals"} {
		if v, ok := s.spec.Prop(key); ok {
			if _, err := strconv.ParseBool(v); err != nil {
				return fmt.Errorf("invalid %s %q", key, v)
			}
		}
	}
	s.queue = newSampleQueue(limit, drop)
	return nil
}
