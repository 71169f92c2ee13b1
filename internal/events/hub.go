// Package events fans file notifications out to connected subscribers.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"file_manager/internal/random"
	"file_manager/internal/registry"

	"github.com/rs/zerolog/log"
)

const defaultQueueSize = 16

var (
	ErrHubClosed     = errors.New("event hub closed")
	ErrDuplicateID   = errors.New("subscriber id already registered")
	ErrNilSubscriber = errors.New("nil subscriber")
)

type Subscriber interface {
	ID() string
	Send(msg []byte) error
	Close() error
}

type subscription struct {
	sub   Subscriber
	queue chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *subscription) offer(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- msg:
		return true
	default:
		return false
	}
}

func (s *subscription) shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.queue)
	return true
}

// Hub owns the set of live subscribers. It is created at startup and closed
// at shutdown; nothing registers itself implicitly.
type Hub struct {
	subscribers registry.Registry[string, *subscription]
	ids         random.Random
	queueSize   int

	// lifecycle orders Subscribe against Close so no subscriber registers
	// after Close has taken its snapshot.
	lifecycle sync.Mutex
	closed    atomic.Bool
	writers   sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		subscribers: registry.NewRegistry[string, *subscription](),
		ids:         random.New(),
		queueSize:   defaultQueueSize,
	}
}

func (h *Hub) NewID(prefix string) (string, error) {
	return h.ids.ID(prefix)
}

func (h *Hub) Subscribe(sub Subscriber) error {
	if sub == nil {
		return ErrNilSubscriber
	}

	h.lifecycle.Lock()
	if h.closed.Load() {
		h.lifecycle.Unlock()
		return ErrHubClosed
	}

	s := &subscription{sub: sub, queue: make(chan []byte, h.queueSize)}
	if !h.subscribers.Register(sub.ID(), s) {
		h.lifecycle.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, sub.ID())
	}

	h.writers.Add(1)
	h.lifecycle.Unlock()
	go h.pump(s)

	log.Debug().Str("subscriber", sub.ID()).Int("subscribers", h.subscribers.Len()).Msg("subscriber connected")
	return nil
}

func (h *Hub) pump(s *subscription) {
	defer h.writers.Done()
	for msg := range s.queue {
		if err := s.sub.Send(msg); err != nil {
			log.Debug().Err(err).Str("subscriber", s.sub.ID()).Msg("send failed, dropping subscriber")
			h.Unsubscribe(s.sub.ID())
			return
		}
	}
}

func (h *Hub) Unsubscribe(id string) {
	s, err := h.subscribers.Get(id)
	if err != nil {
		return
	}
	h.subscribers.Remove(id)

	if !s.shutdown() {
		return
	}
	if err = s.sub.Close(); err != nil {
		log.Debug().Err(err).Str("subscriber", id).Msg("close subscriber")
	}
	log.Debug().Str("subscriber", id).Msg("subscriber disconnected")
}

// Publish encodes ev once and queues it for every subscriber. It never blocks:
// a subscriber whose queue is full misses the event.
func (h *Hub) Publish(ev Event) {
	if h.closed.Load() {
		return
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Name)).Msg("encode event")
		return
	}

	h.subscribers.Range(func(id string, s *subscription) bool {
		if !s.offer(msg) {
			log.Warn().Str("subscriber", id).Str("event", string(ev.Name)).Msg("subscriber queue full, event dropped")
		}
		return true
	})
}

func (h *Hub) Len() int {
	return h.subscribers.Len()
}

// Close disconnects every subscriber and waits for their writers to exit.
func (h *Hub) Close() error {
	h.lifecycle.Lock()
	if !h.closed.CompareAndSwap(false, true) {
		h.lifecycle.Unlock()
		return nil
	}
	subs := h.subscribers.Values()
	h.lifecycle.Unlock()

	for _, s := range subs {
		h.Unsubscribe(s.sub.ID())
	}
	h.writers.Wait()
	return nil
}
