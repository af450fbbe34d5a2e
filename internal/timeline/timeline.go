// Package timeline assembles independently recorded video segments into one
// ordered, validated playback timeline.
package timeline

import (
	"iter"
	"slices"
	"time"

	"segment-timeline/internal/engine"
)

// Segment is one admitted recording: its validated graph and its position on
// the timeline. Once inserted, the graph is owned by the Timeline.
type Segment struct {
	Path  string
	Begin time.Duration
	End   time.Duration

	graph engine.Graph
	sink  engine.Stage
}

// Duration is End - Begin, always positive for an admitted segment.
func (s *Segment) Duration() time.Duration { return s.End - s.Begin }

// Graph returns the segment's decode graph.
func (s *Segment) Graph() engine.Graph { return s.graph }

// Sink returns the segment's buffering sink stage.
func (s *Segment) Sink() engine.Stage { return s.sink }

// release stops the graph and drops every reference the segment holds.
func (s *Segment) release() {
	if s.graph == nil {
		return
	}
	s.graph.SetState(engine.StateNull)
	if s.sink != nil {
		s.sink.Release()
		s.sink = nil
	}
	s.graph.Release()
	s.graph = nil
}

// PlaybackState is the state of a timeline's output.
type PlaybackState string

const (
	StateIdle    PlaybackState = "idle"
	StateRunning PlaybackState = "running"
	StateClosed  PlaybackState = "closed"
)

// Timeline is an ordered collection of segments sharing one descriptor,
// sorted by begin timestamp with ties kept in insertion order. It is driven
// by a single goroutine; concurrent readers go through Snapshot.
type Timeline struct {
	buildID  string
	output   Descriptor
	segments []*Segment
	current  *Segment
	state    PlaybackState
}

// New returns an empty timeline for output.
func New(buildID string, output Descriptor) *Timeline {
	return &Timeline{buildID: buildID, output: output, state: StateIdle}
}

// BuildID identifies the build that produced the timeline.
func (t *Timeline) BuildID() string { return t.buildID }

// Descriptor returns the capabilities every segment matches.
func (t *Timeline) Descriptor() Descriptor { return t.output }

// State returns the playback state.
func (t *Timeline) State() PlaybackState { return t.state }

// Len returns the number of segments.
func (t *Timeline) Len() int { return len(t.segments) }

// Insert adds seg after every segment that does not begin later than it.
func (t *Timeline) Insert(seg *Segment) {
	n := len(t.segments)
	if n == 0 || seg.Begin >= t.segments[n-1].Begin {
		t.segments = append(t.segments, seg)
		return
	}
	for i, s := range t.segments {
		if seg.Begin < s.Begin {
			t.segments = append(t.segments, nil)
			copy(t.segments[i+1:], t.segments[i:])
			t.segments[i] = seg
			return
		}
	}
}

// Front returns the earliest segment.
func (t *Timeline) Front() (*Segment, bool) {
	if len(t.segments) == 0 {
		return nil, false
	}
	return t.segments[0], true
}

// Current returns the running segment, if playback started.
func (t *Timeline) Current() (*Segment, bool) {
	return t.current, t.current != nil
}

// All iterates the segments in begin order.
func (t *Timeline) All() iter.Seq2[int, *Segment] {
	return func(yield func(int, *Segment) bool) {
		for i, s := range t.segments {
			if !yield(i, s) {
				return
			}
		}
	}
}

// Span returns the earliest begin and the latest end over all segments.
func (t *Timeline) Span() (begin, end time.Duration, ok bool) {
	if len(t.segments) == 0 {
		return 0, 0, false
	}
	begin, end = t.segments[0].Begin, t.segments[0].End
	for _, s := range t.segments[1:] {
		end = max(end, s.End)
	}
	return begin, end, true
}

// Evict removes the first segment read from path and tears its graph down.
// Evicting the current segment leaves the timeline idle.
func (t *Timeline) Evict(path string) bool {
	for i, s := range t.segments {
		if s.Path != path {
			continue
		}
		if s == t.current {
			t.current = nil
			if t.state == StateRunning {
				t.state = StateIdle
			}
		}
		t.segments = slices.Delete(t.segments, i, i+1)
		s.release()
		return true
	}
	return false
}

// Close tears down every segment graph. The timeline stays readable but
// holds no segments afterwards.
func (t *Timeline) Close() {
	if t.state == StateClosed {
		return
	}
	for _, s := range t.segments {
		s.release()
	}
	t.segments = nil
	t.current = nil
	t.state = StateClosed
}
