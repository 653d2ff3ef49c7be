package operations

import (
	"sync"

	"github.com/ashureev/strategic-discovery/internal/domain"
)

// UpdateFunc receives operation snapshots in mutation order.
type UpdateFunc func(op domain.Operation)

// Hub fans operation snapshots out to subscribers. Each subscriber has its
// own mailbox and delivery goroutine, so a slow callback never blocks a
// writer or another subscriber.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[uint64]*subscriber
	next uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]*subscriber)}
}

type subscriber struct {
	onUpdate UpdateFunc

	mu      sync.Mutex
	pending []domain.Operation
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *subscriber) push(op domain.Operation) {
	s.mu.Lock()
	s.pending = append(s.pending, op)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscriber) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscriber) run() {
	last := 0
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, op := range batch {
			if s.stopped() {
				return
			}
			// Stale or duplicate snapshot.
			if op.Version <= last {
				continue
			}
			last = op.Version
			s.onUpdate(op)
		}
	}
}

// subscribe registers fn for operationID and returns the subscriber and an
// idempotent cancel func.
func (h *Hub) subscribe(operationID string, fn UpdateFunc) (*subscriber, func()) {
	s := &subscriber{
		onUpdate: fn,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[operationID] == nil {
		h.subs[operationID] = make(map[uint64]*subscriber)
	}
	h.subs[operationID][id] = s
	h.mu.Unlock()

	go s.run()

	cancel := func() {
		s.stop()
		h.mu.Lock()
		defer h.mu.Unlock()
		if m := h.subs[operationID]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(h.subs, operationID)
			}
		}
	}
	return s, cancel
}

// Publish queues op for every subscriber of op.ID.
func (h *Hub) Publish(op domain.Operation) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs[op.ID]))
	for _, s := range h.subs[op.ID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.push(op)
	}
}

// Subscribers returns the number of active subscriptions across all operations.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.subs {
		n += len(m)
	}
	return n
}
