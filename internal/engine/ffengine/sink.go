package ffengine

import (
	"sync"
	"time"

	"segment-timeline/internal/engine"
)

// sampleQueue is the bounded buffer behind an appsink.
type sampleQueue struct {
	mu      sync.Mutex
	items   []*engine.Sample
	limit   int
	drop    bool
	closed  bool
	dropped uint64
	changed chan struct{}
}

func newSampleQueue(limit int, drop bool) *sampleQueue {
	return &sampleQueue{limit: limit, drop: drop, changed: make(chan struct{})}
}

func (q *sampleQueue) signalLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// push queues s. When the queue is full it either drops the oldest sample or
// waits for room; it returns false once the queue is closed.
func (q *sampleQueue) push(s *engine.Sample) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return false
		}
		if q.limit <= 0 || len(q.items) < q.limit {
			q.items = append(q.items, s)
			q.signalLocked()
			return true
		}
		if q.drop {
			q.items = append(q.items[1:], s)
			q.dropped++
			q.signalLocked()
			return true
		}
		wait := q.changed
		q.mu.Unlock()
		<-wait
		q.mu.Lock()
	}
}

func (q *sampleQueue) pull(timeout time.Duration) (*engine.Sample, bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			s := q.items[0]
			q.items = q.items[1:]
			q.signalLocked()
			q.mu.Unlock()
			return s, true
		}
		if q.closed || timeout <= 0 {
			q.mu.Unlock()
			return nil, false
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-wait:
		case <-deadline:
			return nil, false
		}
	}
}

// close wakes blocked producers and discards queued samples.
func (q *sampleQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.signalLocked()
}

// reopen makes a closed queue usable again.
func (q *sampleQueue) reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
	q.items = nil
}

func (q *sampleQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
