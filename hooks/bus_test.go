package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	b := NewBus()
	var got []EventType
	sub, err := b.Register(SubscriberFunc(func(_ context.Context, e Event) error {
		got = append(got, e.Type)
		return nil
	}))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(context.Background(), Event{Type: EventThinking}))
	require.NoError(t, b.Publish(context.Background(), Event{Type: EventMessage, Message: "done"}))
	require.Equal(t, []EventType{EventThinking, EventMessage}, got)
}

func TestBusStopsAtFirstError(t *testing.T) {
	b := NewBus()
	boom := errors.New("boom")
	_, err := b.Register(SubscriberFunc(func(context.Context, Event) error { return boom }))
	require.NoError(t, err)

	err = b.Publish(context.Background(), Event{Type: EventToolCall})
	require.ErrorIs(t, err, boom)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b := NewBus()
	calls := 0
	sub, err := b.Register(SubscriberFunc(func(context.Context, Event) error {
		calls++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, b.Publish(context.Background(), Event{Type: EventThinking}))
	require.Zero(t, calls)
}

func TestRegisterNil(t *testing.T) {
	b := NewBus()
	_, err := b.Register(nil)
	require.Error(t, err)
}
