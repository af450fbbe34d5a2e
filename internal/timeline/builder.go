package timeline

import (
	"fmt"
	"log/slog"
	"time"

	"segment-timeline/internal/engine"
	"segment-timeline/internal/platform/metrics"

	"github.com/google/uuid"
)

// BuilderConfig tunes a Builder.
type BuilderConfig struct {
	// Origin derives begin timestamps; nil means ZeroOrigin.
	Origin OriginFunc
	// Rebase moves the earliest admitted segment of each build to zero.
	Rebase bool
	// SinkBuffers bounds each segment sink; zero means DefaultSinkBuffers.
	SinkBuffers int
}

// Builder turns a set of recordings into a running timeline.
type Builder struct {
	eng        engine.Engine
	cfg        BuilderConfig
	probe      *Probe
	controller *Controller
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewBuilder returns a Builder using eng. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewBuilder(eng engine.Engine, cfg BuilderConfig, log *slog.Logger, m *metrics.Metrics) *Builder {
	return &Builder{
		eng:        eng,
		cfg:        cfg,
		probe:      NewProbe(eng, log),
		controller: NewController(log),
		log:        log,
		metrics:    m,
	}
}

// Controller returns the controller that started the built timelines.
func (b *Builder) Controller() *Controller { return b.controller }

// Build probes reference for the output capabilities named outputName, then
// builds every path against them. Unusable recordings are skipped; any other
// failure aborts the build and no timeline is returned.
func (b *Builder) Build(reference, outputName string, paths []string) (*Timeline, error) {
	if err := b.eng.Init(); err != nil {
		return nil, b.fail(fmt.Errorf("engine init: %w", err))
	}
	id := uuid.NewString()
	log := b.log.With(slog.String("build_id", id))

	desc, err := b.probe.Probe(reference, outputName)
	if err != nil {
		if b.metrics != nil {
			b.metrics.IncProbeFailures()
		}
		log.Error("reference probe failed", slog.String("path", reference), slog.String("error", err.Error()))
		return nil, b.fail(err)
	}
	log.Info("output capabilities derived",
		slog.String("output", outputName),
		slog.String("reference", reference),
		slog.String("caps", desc.String()))

	return b.assemble(id, log, desc, paths)
}

// BuildWithDescriptor builds paths against known capabilities without probing.
func (b *Builder) BuildWithDescriptor(desc Descriptor, paths []string) (*Timeline, error) {
	if err := desc.Validate(); err != nil {
		return nil, b.fail(err)
	}
	if err := b.eng.Init(); err != nil {
		return nil, b.fail(fmt.Errorf("engine init: %w", err))
	}
	id := uuid.NewString()
	return b.assemble(id, b.log.With(slog.String("build_id", id)), desc, paths)
}

func (b *Builder) assemble(id string, log *slog.Logger, desc Descriptor, paths []string) (*Timeline, error) {
	origin := b.cfg.Origin
	if origin == nil {
		origin = ZeroOrigin
	}
	var rb *rebaser
	if b.cfg.Rebase {
		rb, paths = newRebaser(origin, paths)
		origin = rb.origin
	}
	factory := NewFactory(b.eng, FactoryConfig{Origin: origin, SinkBuffers: b.cfg.SinkBuffers}, log)

	tl := New(id, desc)
	for _, path := range paths {
		start := time.Now()
		res, err := factory.Build(path, desc)
		if b.metrics != nil {
			b.metrics.ObserveValidation(time.Since(start))
		}
		if err != nil {
			tl.Close()
			log.Error("segment build failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil, b.fail(fmt.Errorf("segment %s: %w", path, err))
		}
		switch res.Verdict {
		case VerdictReject:
			if b.metrics != nil {
				b.metrics.IncSegmentsRejected(res.Reason)
			}
		case VerdictAdmit:
			tl.Insert(res.Segment)
			if rb != nil {
				rb.admit()
			}
			if b.metrics != nil {
				b.metrics.IncSegmentsAdmitted()
			}
			log.Debug("segment admitted",
				slog.String("path", path),
				slog.Duration("begin", res.Segment.Begin),
				slog.Duration("end", res.Segment.End))
		}
	}

	if err := b.controller.Start(tl); err != nil {
		tl.Close()
		log.Error("playback start failed", slog.String("error", err.Error()))
		return nil, b.fail(err)
	}

	if b.metrics != nil {
		b.metrics.IncBuilds("ok")
		begin, end, _ := tl.Span()
		b.metrics.SetTimeline(tl.Len(), end-begin)
	}
	log.Info("timeline built",
		slog.Int("segments", tl.Len()),
		slog.Int("rejected", len(paths)-tl.Len()))
	return tl, nil
}

func (b *Builder) fail(err error) error {
	if b.metrics != nil {
		b.metrics.IncBuilds("error")
	}
	return err
}
