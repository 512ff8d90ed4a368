package bus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b := New(zerolog.Nop())
	t.Cleanup(b.Close)
	return b
}

func receive(t *testing.T, ch <-chan interface{}) interface{} {
	t.Helper()
	select {
	case payload, ok := <-ch:
		require.True(t, ok, "channel closed before delivery")
		return payload
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	first, cancelFirst := b.Subscribe("updates")
	defer cancelFirst()
	second, cancelSecond := b.Subscribe("updates")
	defer cancelSecond()

	b.Publish("updates", "hello")

	assert.Equal(t, "hello", receive(t, first))
	assert.Equal(t, "hello", receive(t, second))
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	updates, cancel := b.Subscribe("updates")
	defer cancel()

	b.Publish("other", "noise")
	b.Publish("updates", "signal")

	assert.Equal(t, "signal", receive(t, updates))
	select {
	case payload := <-updates:
		t.Fatalf("unexpected extra event: %v", payload)
	default:
	}
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	b.Publish("updates", "missed")

	late, cancel := b.Subscribe("updates")
	defer cancel()

	select {
	case payload := <-late:
		t.Fatalf("late subscriber received replayed event: %v", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_CancelUnsubscribesAndClosesChannel(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	events, cancel := b.Subscribe("updates")
	require.Equal(t, 1, b.SubscriberCount("updates"))

	cancel()
	assert.Equal(t, 0, b.SubscriberCount("updates"))

	_, ok := <-events
	assert.False(t, ok, "expected channel to be closed")

	// Cancel is idempotent.
	cancel()
}

func TestBus_FullSubscriberDoesNotBlockPublish(t *testing.T) {
	t.Parallel()
	b := newTestBus(t)

	// Never drained: fills up after subscriberBuffer events.
	_, cancelStuck := b.Subscribe("updates")
	defer cancelStuck()

	healthy, cancelHealthy := b.Subscribe("updates")
	defer cancelHealthy()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish("updates", i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stuck subscriber")
	}

	// The healthy subscriber still received the buffered window.
	assert.Equal(t, 0, receive(t, healthy))
}

func TestBus_CloseEndsSubscriptions(t *testing.T) {
	t.Parallel()
	b := New(zerolog.Nop())

	events, cancel := b.Subscribe("updates")
	defer cancel()

	b.Close()

	_, ok := <-events
	assert.False(t, ok)

	// Publishing after close is a no-op, not a panic.
	b.Publish("updates", "ignored")

	// Subscribing after close yields a closed channel.
	late, _ := b.Subscribe("updates")
	_, ok = <-late
	assert.False(t, ok)
}
