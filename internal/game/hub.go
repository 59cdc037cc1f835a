package game

import (
	"context"
	"errors"
	"sync"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

const defaultSubscriberBuffer = 64

// Hub fans messages out to every subscription. Publishing never blocks: each subscription
// owns a bounded queue and the oldest entry is discarded when a reader falls behind.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a reader. owner tags the subscription for PublishTo; it may be empty.
func (h *Hub) Subscribe(owner string) *Subscription {
	s := &Subscription{
		hub:    h,
		owner:  owner,
		limit:  h.buffer,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.shut()
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

func (h *Hub) Publish(msg Message) {
	h.deliver("", msg)
}

// PublishTo delivers msg only to subscriptions owned by owner.
func (h *Hub) PublishTo(owner string, msg Message) {
	if owner == "" {
		return
	}
	h.deliver(owner, msg)
}

// deliver holds the hub lock for the whole fan-out so concurrent publishers cannot
// interleave differently on different subscriptions.
func (h *Hub) deliver(owner string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if owner != "" && s.owner != owner {
			continue
		}
		s.push(msg)
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Readers still drain what was queued before.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.shut()
	}
	clear(h.subs)
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

type Subscription struct {
	hub    *Hub
	owner  string
	limit  int
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	queue   []Message
	closed  bool
	dropped uint64
}

func (s *Subscription) Owner() string { return s.owner }

// Done is closed once the subscription is closed by either side.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped counts messages discarded because the reader was too slow.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Offer queues msg for this subscription alone.
func (s *Subscription) Offer(msg Message) {
	s.push(msg)
}

func (s *Subscription) push(msg Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.queue) >= s.limit {
		s.queue[0] = Message{}
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a message is available, the subscription is closed or ctx ends.
// Queued messages are still returned after close.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue[0] = Message{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Message{}, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
	s.shut()
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
