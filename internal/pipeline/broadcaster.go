package pipeline

import (
	"sync"

	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
)

const subscriberBuffer = 64

// Broadcaster fans progress events out to any number of subscribers.
// Publish never blocks: a subscriber that falls behind loses events.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan model.ProgressEvent]struct{}
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan model.ProgressEvent]struct{})}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() <-chan model.ProgressEvent {
	ch := make(chan model.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the listener and closes its channel.
func (b *Broadcaster) Unsubscribe(sub <-chan model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		if ch == sub {
			delete(b.subs, ch)
			close(ch)
			return
		}
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *Broadcaster) Publish(ev model.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			logger.Named("events").Debugw("Dropping progress event for slow subscriber",
				"run_id", ev.RunID, "stage", ev.Stage, "status", ev.Status)
		}
	}
}

// Subscribers returns the number of active listeners.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}
