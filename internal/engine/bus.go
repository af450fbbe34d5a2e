package engine

import (
	"sync"
	"time"
)

// QueueBus is an in-memory Bus that engines post messages to.
type QueueBus struct {
	mu     sync.Mutex
	queue  []*Message
	notify chan struct{}
}

// NewQueueBus returns an empty bus.
func NewQueueBus() *QueueBus {
	return &QueueBus{notify: make(chan struct{})}
}

// Post appends msg and wakes pollers.
func (b *QueueBus) Post(msg *Message) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	close(b.notify)
	b.notify = make(chan struct{})
	b.mu.Unlock()
}

// Poll implements Bus.Poll. Messages of other kinds stay queued.
func (b *QueueBus) Poll(kind MessageKind, timeout time.Duration) (*Message, bool) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		b.mu.Lock()
		for i, m := range b.queue {
			if m.Kind&kind != 0 {
				b.queue = append(b.queue[:i], b.queue[i+1:]...)
				b.mu.Unlock()
				return m, true
			}
		}
		wait := b.notify
		b.mu.Unlock()

		if timeout <= 0 {
			return nil, false
		}
		select {
		case <-wait:
		case <-deadline:
			return nil, false
		}
	}
}

// Flush drops every queued message.
func (b *QueueBus) Flush() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()
}
