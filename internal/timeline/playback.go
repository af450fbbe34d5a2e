package timeline

import (
	"fmt"
	"log/slog"

	"segment-timeline/internal/engine"
)

// Controller starts playback of a timeline. It only ever starts the earliest
// segment; continuing into later segments is left to the playback driver.
type Controller struct {
	log *slog.Logger
}

// NewController returns a Controller.
func NewController(log *slog.Logger) *Controller {
	return &Controller{log: log}
}

// Start runs the earliest segment of t. An empty timeline is left idle.
func (c *Controller) Start(t *Timeline) error {
	front, ok := t.Front()
	if !ok {
		return nil
	}
	if t.current != nil && t.current != front {
		t.current.graph.SetState(engine.StateNull)
	}
	t.current = front

	if !settle(front.graph, engine.StatePlaying) {
		cause := lastError(front.graph)
		t.current = nil
		t.state = StateIdle
		front.graph.SetState(engine.StateNull)
		return fmt.Errorf("%w: %s: pipeline error: %v", ErrPlaybackTransition, front.Path, cause)
	}

	t.state = StateRunning
	c.log.Info("playback started",
		slog.String("path", front.Path),
		slog.Duration("begin", front.Begin),
		slog.Duration("end", front.End))
	return nil
}

// Stop halts the current segment and leaves the timeline idle.
func (c *Controller) Stop(t *Timeline) {
	if t.current == nil {
		return
	}
	t.current.graph.SetState(engine.StateNull)
	c.log.Info("playback stopped", slog.String("path", t.current.Path))
	t.current = nil
	if t.state == StateRunning {
		t.state = StateIdle
	}
}
