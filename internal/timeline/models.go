package timeline

import "time"

// SegmentInfo is the read-only view of one segment.
type SegmentInfo struct {
	Path    string        `json:"path"`
	Begin   time.Duration `json:"begin_ns"`
	End     time.Duration `json:"end_ns"`
	Current bool          `json:"current,omitempty"`
}

// Duration is End - Begin.
func (s SegmentInfo) Duration() time.Duration { return s.End - s.Begin }

// Snapshot is an immutable copy of a timeline's state, safe to share between
// goroutines.
type Snapshot struct {
	BuildID  string        `json:"build_id"`
	Output   Descriptor    `json:"output"`
	State    PlaybackState `json:"state"`
	Segments []SegmentInfo `json:"segments"`

	// Metadata managed by the repository.
	PublishedAt time.Time `json:"published_at"`
}

// Snapshot copies the timeline's current state.
func (t *Timeline) Snapshot() Snapshot {
	snap := Snapshot{
		BuildID:  t.buildID,
		Output:   t.output,
		State:    t.state,
		Segments: make([]SegmentInfo, 0, len(t.segments)),
	}
	for _, s := range t.segments {
		snap.Segments = append(snap.Segments, SegmentInfo{
			Path:    s.Path,
			Begin:   s.Begin,
			End:     s.End,
			Current: s == t.current,
		})
	}
	return snap
}
