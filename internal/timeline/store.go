package timeline

// Store is the persistence abstraction for published snapshots, keyed by
// output name. The Repository uses Store for all reads and writes.
type Store interface {
	GetSnapshot(output string) (*Snapshot, bool)
	SetSnapshot(output string, s *Snapshot)
	ListOutputs() []string
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	snapshots map[string]*Snapshot
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[string]*Snapshot),
	}
}

// GetSnapshot implements Store.GetSnapshot.
func (s *InMemoryStore) GetSnapshot(output string) (*Snapshot, bool) {
	snap, ok := s.snapshots[output]
	return snap, ok
}

// SetSnapshot implements Store.SetSnapshot.
func (s *InMemoryStore) SetSnapshot(output string, snap *Snapshot) {
	s.snapshots[output] = snap
}

// ListOutputs implements Store.ListOutputs.
func (s *InMemoryStore) ListOutputs() []string {
	names := make([]string, 0, len(s.snapshots))
	for name := range s.snapshots {
		names = append(names, name)
	}
	return names
}
