package changefeed

import (
	"errors"
	"sync"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidEntity  = errors.New("invalid_entity")
)

// Hub fans committed mutations out to subscribers. Sends never block a
// publisher: a slow subscriber loses events rather than stalling commits,
// and catches up from the replay buffer on resubscribe.
type Hub struct {
	mu               sync.RWMutex
	streams          map[EntityType]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

// Subscription is a single subscriber's handle on a stream.
type Subscription struct {
	hub    *Hub
	entity EntityType
	id     uint64
	ch     chan Event
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[EntityType]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish appends the event to the stream's replay buffer and offers it to
// every current subscriber.
func (h *Hub) Publish(event Event) {
	if h == nil || !ValidEntity(event.Entity) {
		return
	}

	s := h.ensureStream(event.Entity)

	s.mu.Lock()
	s.buffer = append(s.buffer, event)
	if len(s.buffer) > h.bufferSize {
		s.buffer = s.buffer[len(s.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a subscriber on the entity stream and returns the
// replay backlog accumulated so far.
func (h *Hub) Subscribe(entity EntityType) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	if !ValidEntity(entity) {
		return nil, nil, ErrInvalidEntity
	}

	s := h.ensureStream(entity)
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]chan Event)
	}
	id := s.nextID
	s.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	s.subs[id] = ch
	backlog := append([]Event(nil), s.buffer...)
	s.mu.Unlock()

	return &Subscription{
		hub:    h,
		entity: entity,
		id:     id,
		ch:     ch,
	}, backlog, nil
}

func (h *Hub) ensureStream(entity EntityType) *stream {
	h.mu.RLock()
	current := h.streams[entity]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[entity]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[entity] = current
	}
	return current
}

func (h *Hub) unsubscribe(entity EntityType, id uint64) {
	if h == nil {
		return
	}

	h.mu.RLock()
	s := h.streams[entity]
	h.mu.RUnlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

// Events returns the subscriber channel.
func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close stops further delivery. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.entity, s.id)
	})
}
