package remote

import (
	"context"
	"sync"
)

const subscriberQueueLen = 16

type subscriber struct {
	onSnapshot func(Doc)
	onError    func(error)
	queue      chan Doc
	done       chan struct{}
}

// run drains the subscriber's queue on a single goroutine, so one
// subscription always sees writes in the order they were made.
func (s *subscriber) run() {
	for {
		select {
		case doc := <-s.queue:
			s.onSnapshot(doc)
		case <-s.done:
			return
		}
	}
}

// deliver enqueues a snapshot without ever blocking a writer. Snapshots carry
// the full document, so when the queue is full the oldest entry is superseded
// and dropped.
func (s *subscriber) deliver(doc Doc) {
	for {
		select {
		case s.queue <- doc:
			return
		default:
			select {
			case <-s.queue:
			default:
			}
		}
	}
}

// Hub implements DocStore by delegating persistence to a Backend and fanning
// every successful write out to the session's subscribers. The writer's own
// subscription receives its write back, exactly like a round-trip through a
// hosted realtime store; the sync engine's suppression window exists to
// absorb that echo.
type Hub struct {
	backend Backend

	mu   sync.Mutex
	subs map[string]map[int]*subscriber
	next int
}

func NewHub(backend Backend) *Hub {
	return &Hub{backend: backend, subs: map[string]map[int]*subscriber{}}
}

func (h *Hub) Write(ctx context.Context, sessionID string, doc Doc) error {
	if err := h.backend.Write(ctx, sessionID, doc); err != nil {
		return err
	}
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs[sessionID]))
	for _, s := range h.subs[sessionID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()
	for _, s := range targets {
		// Each subscriber drains its own queue: callbacks take session locks
		// and must not stall the writer, and a cloned doc keeps them from
		// mutating the stored state.
		s.deliver(doc.Clone())
	}
	return nil
}

func (h *Hub) Load(ctx context.Context, sessionID string) (Doc, bool, error) {
	return h.backend.Load(ctx, sessionID)
}

func (h *Hub) Subscribe(sessionID string, onSnapshot func(Doc), onError func(error)) (func(), error) {
	s := &subscriber{
		onSnapshot: onSnapshot,
		onError:    onError,
		queue:      make(chan Doc, subscriberQueueLen),
		done:       make(chan struct{}),
	}
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[int]*subscriber{}
	}
	id := h.next
	h.next++
	h.subs[sessionID][id] = s
	h.mu.Unlock()
	go s.run()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sessionID][id]; ok {
			delete(h.subs[sessionID], id)
			close(s.done)
		}
	}, nil
}
