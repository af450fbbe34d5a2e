package timeline

import (
	"fmt"
	"log/slog"
	"time"

	"segment-timeline/internal/engine"
)

// DefaultSinkBuffers bounds the samples a segment sink queues.
const DefaultSinkBuffers = 5

// Verdict is the outcome of building one segment.
type Verdict int

const (
	// VerdictError is a hard construction failure that aborts the build.
	VerdictError Verdict = -1
	// VerdictReject means the recording is unusable and is skipped.
	VerdictReject Verdict = 0
	// VerdictAdmit means the segment is valid and may join the timeline.
	VerdictAdmit Verdict = 1
)

func (v Verdict) String() string {
	switch v {
	case VerdictError:
		return "error"
	case VerdictReject:
		return "rejected"
	case VerdictAdmit:
		return "admitted"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Rejection reasons, also used as metric labels.
const (
	ReasonOrigin   = "origin"
	ReasonPlayback = "playback"
	ReasonDuration = "duration"
	ReasonInterval = "interval"
)

// Result is what Factory.Build decided for one path.
type Result struct {
	Verdict Verdict
	Segment *Segment // set when admitted
	Reason  string   // set when rejected
	Detail  string
}

// FactoryConfig tunes segment graphs.
type FactoryConfig struct {
	// Origin derives begin timestamps; nil means ZeroOrigin.
	Origin OriginFunc
	// SinkBuffers bounds the sink queue; zero means DefaultSinkBuffers.
	SinkBuffers int
}

// Factory builds and validates one segment graph at a time.
type Factory struct {
	eng    engine.Engine
	origin OriginFunc
	bufs   int
	log    *slog.Logger
}

// NewFactory returns a Factory building its graphs with eng.
func NewFactory(eng engine.Engine, cfg FactoryConfig, log *slog.Logger) *Factory {
	f := &Factory{eng: eng, origin: cfg.Origin, bufs: cfg.SinkBuffers, log: log}
	if f.origin == nil {
		f.origin = ZeroOrigin
	}
	if f.bufs <= 0 {
		f.bufs = DefaultSinkBuffers
	}
	return f
}

func segmentDescription(path string, target Descriptor, begin time.Duration, buffers int) string {
	return engine.Chain(
		engine.Element("filesrc", "", engine.Prop("location", path)),
		engine.Element("matroskademux", stageDemuxer),
		engine.Element("h264parse", stageParser),
		engine.Element("avdec_h264", stageDecoder),
		engine.Element("videoconvert", ""),
		engine.Element("videoscale", ""),
		engine.Element("videorate", ""),
		engine.Filter(target.Caps()),
		engine.Element("appsink", stageSink,
			engine.Prop("max-buffers", buffers),
			engine.Prop("drop", true),
			engine.Prop("sync", false),
			engine.Prop("emit-signals", true),
			engine.Prop("ts-offset", begin)),
	)
}

// Build constructs the graph for path constrained to target, runs it once to
// prove it decodes, and measures its interval. The graph of an admitted
// segment is returned stopped.
func (f *Factory) Build(path string, target Descriptor) (Result, error) {
	begin, err := f.origin(path)
	if err != nil {
		return f.reject(path, ReasonOrigin, err.Error()), nil
	}

	g, err := parseGraph(f.eng, segmentDescription(path, target, begin, f.bufs))
	if err != nil {
		return Result{Verdict: VerdictError}, err
	}

	var rel releaser
	defer rel.run()
	admitted := false
	rel.add(func() {
		if !admitted {
			g.SetState(engine.StateNull)
			g.Release()
		}
	})

	stages, err := acquireStages(g, &rel, stageDemuxer, stageParser, stageDecoder, stageSink)
	if err != nil {
		return Result{Verdict: VerdictError}, err
	}
	if err := linkOnDiscovery(stages[stageDemuxer], stages[stageParser]); err != nil {
		return Result{Verdict: VerdictError}, err
	}

	if !settle(g, engine.StatePlaying) {
		return f.reject(path, ReasonPlayback, lastError(g).Error()), nil
	}
	d, ok := g.QueryDuration()
	if !ok {
		return f.reject(path, ReasonDuration, "duration unavailable"), nil
	}
	end := begin + d
	if end <= begin {
		return f.reject(path, ReasonInterval, fmt.Sprintf("end %v not after begin %v", end, begin)), nil
	}

	g.SetState(engine.StateNull)

	// The segment keeps its own sink reference; the lookups above are released.
	sink, _ := g.Stage(stageSink)
	admitted = true
	return Result{
		Verdict: VerdictAdmit,
		Segment: &Segment{Path: path, Begin: begin, End: end, graph: g, sink: sink},
	}, nil
}

func (f *Factory) reject(path, reason, detail string) Result {
	f.log.Info("segment rejected",
		slog.String("path", path),
		slog.String("reason", reason),
		slog.String("detail", detail))
	return Result{Verdict: VerdictReject, Reason: reason, Detail: detail}
}
