package timeline

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Repository defines the concurrency-safe contract for publishing and reading
// timeline snapshots.
type Repository interface {
	// Publish stores snap as the latest state of its output. A snapshot from
	// another build replaces the previous one; once an output is closed,
	// snapshots still running are refused.
	Publish(snap Snapshot) error

	// Get returns the latest snapshot of output with a private copy of its
	// segment list.
	Get(output string) (Snapshot, bool)

	// Outputs lists the published output names in sorted order.
	Outputs() []string

	// ActiveOutputCount returns the number of outputs that are running.
	// Used for metrics.
	ActiveOutputCount() int
}

var (
	// ErrUnnamedOutput is returned when publishing a snapshot without an output name.
	ErrUnnamedOutput = errors.New("output has no name")

	// ErrOutputClosed is returned when publishing a live snapshot of the same
	// build after its output was closed.
	ErrOutputClosed = errors.New("output has been closed")
)

// InMemoryRepository is a concurrency-safe in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a new repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Publish implements Repository.Publish.
func (r *InMemoryRepository) Publish(snap Snapshot) error {
	name := snap.Output.Name
	if name == "" {
		return ErrUnnamedOutput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.store.GetSnapshot(name); ok &&
		prev.BuildID == snap.BuildID && prev.State == StateClosed && snap.State != StateClosed {
		return ErrOutputClosed
	}

	snap.Segments = append([]SegmentInfo(nil), snap.Segments...)
	snap.PublishedAt = time.Now().UTC()
	r.store.SetSnapshot(name, &snap)
	return nil
}

// Get implements Repository.Get.
func (r *InMemoryRepository) Get(output string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.store.GetSnapshot(output)
	if !ok {
		return Snapshot{}, false
	}
	out := *snap
	out.Segments = append([]SegmentInfo(nil), snap.Segments...)
	return out, true
}

// Outputs implements Repository.Outputs.
func (r *InMemoryRepository) Outputs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.store.ListOutputs()
	sort.Strings(names)
	return names
}

// ActiveOutputCount implements Repository.ActiveOutputCount.
func (r *InMemoryRepository) ActiveOutputCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, name := range r.store.ListOutputs() {
		if snap, ok := r.store.GetSnapshot(name); ok && snap.State == StateRunning {
			n++
		}
	}
	return n
}
