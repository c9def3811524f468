package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishDeliversInOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("task:a")
	defer sub.Close()

	for i := 0; i < 3; i++ {
		bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a"})
	}

	for want := uint64(1); want <= 3; want++ {
		select {
		case evt := <-sub.C:
			assert.Equal(t, want, evt.Seq)
			assert.NotEmpty(t, evt.ID)
			assert.False(t, evt.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBus_ChannelsAreIsolated(t *testing.T) {
	bus := NewBus()
	subA := bus.Subscribe("task:a")
	defer subA.Close()
	subB := bus.Subscribe("task:b")
	defer subB.Close()

	bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a"})

	select {
	case <-subA.C:
	case <-time.After(time.Second):
		t.Fatal("subscriber on task:a received nothing")
	}
	select {
	case evt := <-subB.C:
		t.Fatalf("subscriber on task:b received %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 2
	sub := bus.Subscribe("task:a")
	defer sub.Close()

	// Nothing draining: the third publish evicts the first event.
	for i := 1; i <= 3; i++ {
		bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a"})
	}

	first := <-sub.C
	assert.Equal(t, uint64(2), first.Seq)
	assert.Equal(t, uint64(3), (<-sub.C).Seq)
	assert.Equal(t, uint64(1), sub.Dropped())
}

func TestBus_SinceReturnsMissedEvents(t *testing.T) {
	bus := NewBus()
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a"})
	}

	missed, overflow := bus.Since("task:a", 2)
	require.Len(t, missed, 3)
	assert.False(t, overflow)
	assert.Equal(t, uint64(3), missed[0].Seq)
	assert.Equal(t, uint64(5), missed[2].Seq)

	missed, overflow = bus.Since("task:a", 5)
	assert.Empty(t, missed)
	assert.False(t, overflow)

	missed, overflow = bus.Since("missing", 0)
	assert.Empty(t, missed)
	assert.False(t, overflow)
}

func TestBus_SinceReportsOverflow(t *testing.T) {
	bus := NewBus()
	bus.historyLimit = 3
	for i := 0; i < 10; i++ {
		bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a"})
	}

	missed, overflow := bus.Since("task:a", 0)
	require.Len(t, missed, 3)
	assert.True(t, overflow)
	assert.Equal(t, uint64(8), missed[0].Seq)
}

func TestBus_TransientEventsSkipHistory(t *testing.T) {
	bus := NewBus()
	bus.Publish(Event{Type: EventTypeAgentProgress, Channel: "task:a"})
	bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a"})

	missed, _ := bus.Since("task:a", 0)
	require.Len(t, missed, 1)
	assert.Equal(t, EventTypeTaskState, missed[0].Type)

	// Transient events still reach live subscribers.
	sub := bus.Subscribe("task:a")
	defer sub.Close()
	bus.Publish(Event{Type: EventTypeAgentProgress, Channel: "task:a"})
	select {
	case evt := <-sub.C:
		assert.Equal(t, EventTypeAgentProgress, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("transient event not delivered")
	}
}

func TestBus_CloseDetachesSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe("task:a")
	require.Equal(t, 1, bus.SubscriberCount("task:a"))

	sub.Close()
	assert.Equal(t, 0, bus.SubscriberCount("task:a"))

	// Idempotent.
	sub.Close()

	// Publishing after close must not panic.
	bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a"})

	_, open := <-sub.C
	assert.False(t, open)
}

func TestBus_ConcurrentPublishers(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 256
	sub := bus.Subscribe("task:a")
	defer sub.Close()

	const n = 100
	done := make(chan struct{})
	for w := 0; w < 4; w++ {
		go func(w int) {
			for i := 0; i < n/4; i++ {
				bus.Publish(Event{Type: EventTypeTaskState, Channel: "task:a", ID: fmt.Sprintf("%d-%d", w, i)})
			}
			done <- struct{}{}
		}(w)
	}
	for w := 0; w < 4; w++ {
		<-done
	}

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		select {
		case evt := <-sub.C:
			assert.False(t, seen[evt.Seq], "duplicate seq %d", evt.Seq)
			seen[evt.Seq] = true
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d events", i, n)
		}
	}
}
