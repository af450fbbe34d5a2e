package timeline

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"segment-timeline/internal/engine"
	"segment-timeline/internal/engine/enginetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hd(d time.Duration) enginetest.Media {
	return enginetest.Video("I420", 1920, 1080, 30000, 1001, d)
}

func hdDescriptor(name string) Descriptor {
	return Descriptor{
		Name:        name,
		MediaType:   engine.MediaTypeRawVideo,
		PixelFormat: "I420",
		Width:       1920,
		Height:      1080,
		FPSNum:      30000,
		FPSDen:      1001,
	}
}

// originTable places each path at a fixed begin timestamp.
func originTable(begins map[string]time.Duration) OriginFunc {
	return func(path string) (time.Duration, error) {
		ts, ok := begins[path]
		if !ok {
			return 0, fmt.Errorf("no begin for %s", path)
		}
		return ts, nil
	}
}

// hookEngine wraps the scripted engine to inject parse failures or to
// decorate the graphs it returns.
type hookEngine struct {
	*enginetest.Engine
	parse func(desc string) error
	wrap  func(engine.Graph) engine.Graph
}

func (h *hookEngine) ParseGraph(desc string) (engine.Graph, error) {
	if h.parse != nil {
		if err := h.parse(desc); err != nil {
			return nil, err
		}
	}
	g, err := h.Engine.ParseGraph(desc)
	if err != nil || h.wrap == nil {
		return g, err
	}
	return h.wrap(g), nil
}

// hidingGraph pretends one stage does not exist.
type hidingGraph struct {
	engine.Graph
	hide string
}

func (g hidingGraph) Stage(name string) (engine.Stage, bool) {
	if name == g.hide {
		return nil, false
	}
	return g.Graph.Stage(name)
}

// replayFails lets the first Playing transition through and fails the rest,
// as a device lost between validation and playback would.
type replayFails struct {
	engine.Graph
	plays  int
	failed bool
}

func (g *replayFails) SetState(target engine.State) engine.StateChange {
	g.failed = false
	if target == engine.StatePlaying {
		g.plays++
		if g.plays > 1 {
			g.failed = true
			g.Graph.Bus().(*engine.QueueBus).Post(&engine.Message{
				Kind:   engine.MessageError,
				Source: "decoder",
				Text:   "device lost",
			})
			return engine.StateChangeFailure
		}
	}
	return g.Graph.SetState(target)
}

func (g *replayFails) State() (engine.StateChange, engine.State) {
	ret, st := g.Graph.State()
	if g.failed {
		ret = engine.StateChangeFailure
	}
	return ret, st
}
