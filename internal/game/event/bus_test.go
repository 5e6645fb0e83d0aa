package event

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBus_PublishReachesSubscribers(t *testing.T) {
	b := NewBus(zap.NewNop())
	s1 := b.Subscribe("ROOM1", "c1", 4)
	s2 := b.Subscribe("ROOM1", "c2", 4)

	b.Publish("ROOM1", Event{Type: TypeRoomState, Data: "x"})

	ev := <-s1.C()
	assert.Equal(t, TypeRoomState, ev.Type)
	ev = <-s2.C()
	assert.Equal(t, "x", ev.Data)
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	b := NewBus(zap.NewNop())
	s1 := b.Subscribe("ROOM1", "c1", 4)
	s2 := b.Subscribe("ROOM2", "c2", 4)

	b.Publish("ROOM1", Event{Type: TypeChat})

	ev := <-s1.C()
	assert.Equal(t, TypeChat, ev.Type)

	select {
	case ev := <-s2.C():
		t.Fatalf("unexpected event on other topic: %v", ev)
	default:
	}
}

func TestBus_PublishExceptSkipsSender(t *testing.T) {
	b := NewBus(zap.NewNop())
	sender := b.Subscribe("ROOM1", "sender", 4)
	other := b.Subscribe("ROOM1", "other", 4)

	b.PublishExcept("ROOM1", "sender", Event{Type: TypeMove})

	ev := <-other.C()
	assert.Equal(t, TypeMove, ev.Type)

	select {
	case <-sender.C():
		t.Fatal("sender must not receive its own relayed event")
	default:
	}
}

func TestBus_FullQueueDropsWithoutBlocking(t *testing.T) {
	b := NewBus(zap.NewNop())
	s := b.Subscribe("ROOM1", "c1", 1)

	b.Publish("ROOM1", Event{Type: TypeChat, Data: 1})
	// Queue is full; this publish must return without blocking.
	b.Publish("ROOM1", Event{Type: TypeChat, Data: 2})

	ev := <-s.C()
	assert.Equal(t, 1, ev.Data)
	select {
	case ev := <-s.C():
		t.Fatalf("dropped event was delivered: %v", ev)
	default:
	}
}

func TestBus_CloseTopicClosesChannels(t *testing.T) {
	b := NewBus(zap.NewNop())
	s := b.Subscribe("ROOM1", "c1", 4)

	b.CloseTopic("ROOM1")

	_, open := <-s.C()
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount("ROOM1"))

	// Publishing to a closed topic is a no-op.
	b.Publish("ROOM1", Event{Type: TypeChat})
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	b := NewBus(zap.NewNop())
	s := b.Subscribe("ROOM1", "c1", 4)

	b.Unsubscribe("ROOM1", "c1")
	b.Unsubscribe("ROOM1", "c1")

	_, open := <-s.C()
	assert.False(t, open)
}

func TestBus_ResubscribeReplacesOld(t *testing.T) {
	b := NewBus(zap.NewNop())
	old := b.Subscribe("ROOM1", "c1", 4)
	fresh := b.Subscribe("ROOM1", "c1", 4)

	_, open := <-old.C()
	require.False(t, open, "old subscription must be closed on replace")

	b.Publish("ROOM1", Event{Type: TypeChat})
	ev := <-fresh.C()
	assert.Equal(t, TypeChat, ev.Type)
	assert.Equal(t, 1, b.SubscriberCount("ROOM1"))
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewBus(zap.NewNop())
	const n = 50

	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			sub := b.Subscribe("ROOM1", fmt.Sprintf("c%d", i), 64)
			// Drain whatever arrives so publishers never contend on a
			// full queue.
			go func() {
				for range sub.C() {
				}
			}()
		}(i)
		go func() {
			defer wg.Done()
			b.Publish("ROOM1", Event{Type: TypeMove})
		}()
	}
	wg.Wait()

	b.Stop()
	assert.Equal(t, 0, b.SubscriberCount("ROOM1"))
}
