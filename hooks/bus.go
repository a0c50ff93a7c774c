package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus fans events out to registered subscribers. Publish, Register and
	// subscription Close are safe to call concurrently.
	Bus interface {
		// Publish delivers the event to every currently registered subscriber
		// in registration order, stopping at the first subscriber error.
		Publish(ctx context.Context, event Event) error

		// Register adds a subscriber and returns a Subscription whose Close
		// unregisters it. Returns an error when sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to published events. HandleEvent should return an
	// error only when processing failed in a way that should halt the run;
	// non-critical failures should be logged and swallowed so other
	// subscribers still see the event.
	Subscriber interface {
		HandleEvent(ctx context.Context, event Event) error
	}

	// SubscriberFunc adapts a plain function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event Event) error

	// Subscription is an active registration. Close is idempotent and always
	// returns nil.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// HandleEvent invokes the function.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NewBus constructs an in-memory event bus. Delivery is synchronous in the
// publisher's goroutine; the subscriber snapshot is taken before iteration so
// registrations during Publish do not affect the current delivery.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish delivers the event to every registered subscriber.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a subscriber to the bus.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close removes the subscriber from the bus.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}
