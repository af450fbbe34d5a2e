package timeline

import (
	"errors"
	"fmt"

	"segment-timeline/internal/engine"
)

// Stage names shared by every generated description.
const (
	stageDemuxer = "demuxer"
	stageParser  = "parser"
	stageDecoder = "decoder"
	stageSink    = "sink"
)

// releaser collects cleanups while resources are acquired and runs them in
// reverse order on every exit path.
type releaser []func()

func (r *releaser) add(fn func()) { *r = append(*r, fn) }

func (r *releaser) run() {
	for i := len(*r) - 1; i >= 0; i-- {
		(*r)[i]()
	}
	*r = nil
}

// parseGraph asks eng for a graph and tags description errors with ErrParse.
func parseGraph(eng engine.Engine, desc string) (engine.Graph, error) {
	g, err := eng.ParseGraph(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return g, nil
}

// acquireStages looks up every named stage. Each reference obtained is
// registered with rel so that it is released whatever happens next.
func acquireStages(g engine.Graph, rel *releaser, names ...string) (map[string]engine.Stage, error) {
	stages := make(map[string]engine.Stage, len(names))
	for _, name := range names {
		st, ok := g.Stage(name)
		if !ok {
			return nil, fmt.Errorf("%w: can not get %q from graph", ErrMissingStage, name)
		}
		rel.add(st.Release)
		stages[name] = st
	}
	return stages, nil
}

// linkOnDiscovery links the first stream the demuxer announces to the
// parser's sink pad. Later announcements are ignored once the pad is linked;
// a stream the parser cannot take is skipped.
func linkOnDiscovery(demuxer, parser engine.Stage) error {
	sinkPad, ok := parser.StaticPad("sink")
	if !ok {
		return fmt.Errorf("%w: %q has no sink pad", ErrMissingStage, parser.Name())
	}
	demuxer.OnPadAdded(func(_ engine.Stage, pad engine.Pad) {
		if sinkPad.IsLinked() {
			return
		}
		_ = pad.Link(sinkPad)
	})
	return nil
}

// settle blocks until the graph's pending transition resolves.
func settle(g engine.Graph, target engine.State) bool {
	if g.SetState(target) == engine.StateChangeFailure {
		return false
	}
	ret, _ := g.State()
	return ret != engine.StateChangeFailure
}

// lastError returns the engine's most recent error without waiting.
func lastError(g engine.Graph) error {
	msg, ok := g.Bus().Poll(engine.MessageError, 0)
	if !ok {
		return errors.New("unknown error")
	}
	return msg
}
