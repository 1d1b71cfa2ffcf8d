package bus

import (
	"context"
	"sync"
	"time"
)

// EventBus carries inference stream events to the orchestrator and fans
// notifications out to UI subscribers. Stream delivery is lossless;
// notifications are best-effort and may be dropped under backpressure.
type EventBus struct {
	Stream chan StreamEvent
	notify chan Notification

	mu          sync.RWMutex
	subscribers map[string]func(Notification)
}

func New(bufSize int) *EventBus {
	return &EventBus{
		Stream:      make(chan StreamEvent, bufSize),
		notify:      make(chan Notification, bufSize),
		subscribers: make(map[string]func(Notification)),
	}
}

// PublishStream emits an inference event. Blocks when the buffer is full:
// the producer is a dedicated stream-reader goroutine, and every chunk,
// done, and error event must be applied. A dropped chunk would corrupt the
// transcript and a dropped done or error would wedge the active stream.
func (b *EventBus) PublishStream(ev StreamEvent) {
	b.Stream <- ev
}

// Notify emits a UI notification, stamping it with the current time.
func (b *EventBus) Notify(n Notification) {
	n.Timestamp = time.Now()
	select {
	case b.notify <- n:
	default:
	}
}

// Subscribe registers a named notification callback. Re-subscribing under
// the same name replaces the previous callback.
func (b *EventBus) Subscribe(name string, fn func(Notification)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = fn
}

// Unsubscribe removes a named callback.
func (b *EventBus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, name)
}

// DispatchNotifications delivers notifications to subscribers until ctx is
// cancelled. Run on its own goroutine.
func (b *EventBus) DispatchNotifications(ctx context.Context) {
	for {
		select {
		case n := <-b.notify:
			b.mu.RLock()
			fns := make([]func(Notification), 0, len(b.subscribers))
			for _, fn := range b.subscribers {
				fns = append(fns, fn)
			}
			b.mu.RUnlock()
			for _, fn := range fns {
				fn(n)
			}
		case <-ctx.Done():
			return
		}
	}
}
