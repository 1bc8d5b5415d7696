package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct{ name string }

func (e testEvent) Name() string { return e.name }

func TestBus_PublishCallsAllSubscribers(t *testing.T) {
	bus := New(zap.NewNop())
	var calls int32

	for i := 0; i < 3; i++ {
		bus.Subscribe("order.created", func(ctx context.Context, e Event) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}
	bus.Subscribe("other", func(ctx context.Context, e Event) error {
		t.Error("слушатель другого события не должен вызываться")
		return nil
	})

	bus.Publish(context.Background(), testEvent{name: "order.created"})
	require.NoError(t, bus.Wait(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBus_ListenerFailureDoesNotAffectOthers(t *testing.T) {
	bus := New(zap.NewNop())
	var ok int32

	bus.Subscribe("e", func(ctx context.Context, e Event) error { return errors.New("boom") })
	bus.Subscribe("e", func(ctx context.Context, e Event) error { panic("oops") })
	bus.Subscribe("e", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&ok, 1)
		return nil
	})

	bus.Publish(context.Background(), testEvent{name: "e"})
	require.NoError(t, bus.Wait(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok))
}

func TestBus_CancelledPublisherContextDoesNotCancelListener(t *testing.T) {
	bus := New(zap.NewNop())
	errCh := make(chan error, 1)
	bus.Subscribe("e", func(ctx context.Context, e Event) error {
		errCh <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, testEvent{name: "e"})

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("слушатель не вызван")
	}
}

func TestBus_WaitRespectsContext(t *testing.T) {
	bus := New(zap.NewNop())
	release := make(chan struct{})
	bus.Subscribe("slow", func(ctx context.Context, e Event) error {
		<-release
		return nil
	})
	bus.Publish(context.Background(), testEvent{name: "slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Wait(ctx), context.DeadlineExceeded)
	close(release)
	require.NoError(t, bus.Wait(context.Background()))
}
