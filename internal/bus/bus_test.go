package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100, nil)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "test.topic", []byte("hello")))

		select {
		case msg := <-got:
			assert.Equal(t, "hello", string(msg.Payload))
			assert.Equal(t, "test.topic", msg.Topic)
			assert.NotEmpty(t, msg.ID)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var other atomic.Int32
		_, err := bus.Subscribe(ctx, "other.topic", func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})
		require.NoError(t, err)

		got := make(chan struct{}, 1)
		_, err = bus.Subscribe(ctx, "isolated.topic", func(ctx context.Context, msg *domain.Message) error {
			got <- struct{}{}
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "isolated.topic", []byte("x")))

		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
		assert.Zero(t, other.Load())
	})

	t.Run("FanOut", func(t *testing.T) {
		got := make(chan struct{}, 2)
		for i := 0; i < 2; i++ {
			_, err := bus.Subscribe(ctx, "fanout.topic", func(ctx context.Context, msg *domain.Message) error {
				got <- struct{}{}
				return nil
			})
			require.NoError(t, err)
		}

		require.NoError(t, bus.Publish(ctx, "fanout.topic", nil))

		for i := 0; i < 2; i++ {
			select {
			case <-got:
			case <-time.After(time.Second):
				t.Fatalf("subscriber %d did not receive", i)
			}
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "unsub.topic", sub.Topic())

		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, bus.Publish(ctx, "unsub.topic", []byte("ignored")))

		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, count.Load())
	})

	t.Run("PublishWithoutSubscribers", func(t *testing.T) {
		assert.NoError(t, bus.Publish(ctx, "nobody.listens", []byte("x")))
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, bus.Ping(ctx))
	})
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1, nil)
	defer bus.Close()
	ctx := context.Background()

	release := make(chan struct{})
	var handled atomic.Int32
	_, err := bus.Subscribe(ctx, "slow", func(ctx context.Context, msg *domain.Message) error {
		<-release
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)

	// One message in the handler, one in the buffer, the rest dropped.
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, "slow", []byte("m")))
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	assert.Eventually(t, func() bool { return handled.Load() == 2 }, time.Second, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), handled.Load())
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10, nil)
	ctx := context.Background()

	_, err := bus.Subscribe(ctx, "t", func(ctx context.Context, msg *domain.Message) error { return nil })
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "close is idempotent")

	assert.ErrorIs(t, bus.Publish(ctx, "t", nil), ErrClosed)
	_, err = bus.Subscribe(ctx, "t", func(ctx context.Context, msg *domain.Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, bus.Ping(ctx), ErrClosed)
}

func TestNew(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10}, nil)
		require.NoError(t, err)
		defer b.Close()
		_, ok := b.(*ChannelBus)
		assert.True(t, ok)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{Type: "kafka"}, nil)
		assert.Error(t, err)
	})
}
