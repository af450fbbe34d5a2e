package timeline

import (
	"fmt"
	"log/slog"

	"segment-timeline/internal/engine"
)

// Probe derives the capability descriptor of a timeline from one reference
// segment.
type Probe struct {
	eng engine.Engine
	log *slog.Logger
}

// NewProbe returns a Probe that builds its graphs with eng.
func NewProbe(eng engine.Engine, log *slog.Logger) *Probe {
	return &Probe{eng: eng, log: log}
}

func probeDescription(path string) string {
	return engine.Chain(
		engine.Element("filesrc", "", engine.Prop("location", path)),
		engine.Element("matroskademux", stageDemuxer),
		engine.Element("h264parse", stageParser),
		engine.Element("avdec_h264", stageDecoder),
		engine.Element("videoconvert", ""),
		engine.Filter(engine.NewCaps(engine.MediaTypeRawVideo).Set("format", CanonicalFormat)),
		engine.Element("appsink", stageSink,
			engine.Prop("max-buffers", 1),
			engine.Prop("sync", false),
			engine.Prop("emit-signals", true)),
	)
}

// Probe pauses a decode graph for path, reads the caps negotiated on its sink
// and tears the graph down again. The descriptor is named outputName.
func (p *Probe) Probe(path, outputName string) (Descriptor, error) {
	g, err := parseGraph(p.eng, probeDescription(path))
	if err != nil {
		return Descriptor{}, err
	}

	var rel releaser
	defer rel.run()
	rel.add(g.Release)
	rel.add(func() { g.SetState(engine.StateNull) })

	stages, err := acquireStages(g, &rel, stageDemuxer, stageParser, stageDecoder, stageSink)
	if err != nil {
		return Descriptor{}, err
	}
	if err := linkOnDiscovery(stages[stageDemuxer], stages[stageParser]); err != nil {
		return Descriptor{}, err
	}

	if !settle(g, engine.StatePaused) {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", ErrProbeTransition, path, lastError(g))
	}

	pad, ok := stages[stageSink].StaticPad("sink")
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q has no sink pad", ErrMissingStage, stageSink)
	}
	caps, _ := pad.CurrentCaps()
	desc, err := descriptorFromCaps(outputName, caps)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s", err, path)
	}

	p.log.Debug("reference segment probed",
		slog.String("path", path),
		slog.String("caps", desc.String()))
	return desc, nil
}
