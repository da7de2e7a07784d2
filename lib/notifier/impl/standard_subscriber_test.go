package impl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/desain-gratis/congestion/lib/notifier"
)

func TestStandardSubscriber_Publish(t *testing.T) {
	subs := NewStandardSubscriber(2)(context.Background(), "s1")
	ctx := context.Background()

	require.Equal(t, "s1", subs.ID())
	require.NoError(t, subs.Publish(ctx, notifier.Event{Name: "a"}))
	require.NoError(t, subs.Publish(ctx, notifier.Event{Name: "b"}))
	require.ErrorIs(t, subs.Publish(ctx, notifier.Event{Name: "c"}), ErrQueueFull)

	require.Equal(t, "a", (<-subs.Listen()).Name)
	require.Equal(t, "b", (<-subs.Listen()).Name)
}

func TestStandardSubscriber_Close(t *testing.T) {
	subs := NewStandardSubscriber(2)(context.Background(), "s1").(*standardSubscriber)
	require.NoError(t, subs.Err())

	cause := errors.New("client gone")
	subs.Close(cause)
	subs.Close(errors.New("second close is ignored"))

	require.ErrorIs(t, subs.Err(), cause)
	require.ErrorIs(t, subs.Publish(context.Background(), notifier.Event{Name: "a"}), ErrClosed)

	_, ok := <-subs.Listen()
	require.False(t, ok)
}

func TestStandardSubscriber_ClosedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	subs := NewStandardSubscriber(0)(ctx, "s1")

	cancel()
	<-subs.Done()

	require.ErrorIs(t, subs.Publish(context.Background(), notifier.Event{Name: "a"}), ErrClosed)
}
