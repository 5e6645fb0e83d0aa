package event

import (
	"sync"

	"go.uber.org/zap"
)

// Subscription is one subscriber's view of a room topic. Events arrive on C;
// C is closed when the topic closes or the subscription is removed.
type Subscription struct {
	// RoomID is the topic this subscription belongs to.
	RoomID string
	// SubscriberID identifies the subscriber within the topic (the
	// connection ID, for the transport adapter).
	SubscriberID string

	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// C returns the read-only event channel.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// push enqueues ev without blocking. Reports false when the subscriber's
// queue is full or the subscription is closed; the event is dropped for
// this subscriber only.
func (s *Subscription) push(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus is an in-process publish/subscribe hub with one topic per room.
// All methods are safe for concurrent use. Publishing never blocks: a slow
// subscriber loses events rather than stalling room mutation.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscription // roomID → subscriberID → sub
	logger *zap.Logger
}

// NewBus creates an empty Bus.
//
// Precondition: logger must be non-nil.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		topics: make(map[string]map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe attaches subscriberID to the room topic with the given queue
// size. A previous subscription under the same id is closed and replaced.
//
// Precondition: roomID and subscriberID must be non-empty; queueSize > 0.
// Postcondition: Returns an open Subscription registered on the topic.
func (b *Bus) Subscribe(roomID, subscriberID string, queueSize int) *Subscription {
	if queueSize <= 0 {
		queueSize = 64
	}
	sub := &Subscription{
		RoomID:       roomID,
		SubscriberID: subscriberID,
		ch:           make(chan Event, queueSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[roomID] == nil {
		b.topics[roomID] = make(map[string]*Subscription)
	}
	if old, ok := b.topics[roomID][subscriberID]; ok {
		old.close()
	}
	b.topics[roomID][subscriberID] = sub
	return sub
}

// Unsubscribe detaches subscriberID from the room topic and closes its
// channel. A no-op when the subscription does not exist.
func (b *Bus) Unsubscribe(roomID, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[roomID]
	if !ok {
		return
	}
	if sub, ok := subs[subscriberID]; ok {
		sub.close()
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(b.topics, roomID)
	}
}

// Publish delivers ev to every subscriber of the room topic.
func (b *Bus) Publish(roomID string, ev Event) {
	b.publish(roomID, "", ev)
}

// PublishExcept delivers ev to every subscriber of the room topic other
// than exceptID. Used by the relay so senders do not echo to themselves.
func (b *Bus) PublishExcept(roomID, exceptID string, ev Event) {
	b.publish(roomID, exceptID, ev)
}

func (b *Bus) publish(roomID, exceptID string, ev Event) {
	b.mu.RLock()
	subs := b.topics[roomID]
	targets := make([]*Subscription, 0, len(subs))
	for id, sub := range subs {
		if id == exceptID {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if !sub.push(ev) {
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("room_id", roomID),
				zap.String("subscriber_id", sub.SubscriberID),
				zap.String("event_type", ev.Type),
			)
		}
	}
}

// CloseTopic closes every subscription on the room topic and removes it.
// Called when a room is destroyed; subscribers observe the channel close
// and detach.
func (b *Bus) CloseTopic(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.topics[roomID] {
		sub.close()
	}
	delete(b.topics, roomID)
}

// SubscriberCount returns the number of subscribers on the room topic.
func (b *Bus) SubscriberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[roomID])
}

// Stop closes every topic. Called at shutdown.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for roomID, subs := range b.topics {
		for _, sub := range subs {
			sub.close()
		}
		delete(b.topics, roomID)
	}
}
