package notify

import (
	"sort"
	"sync"
)

// Hub fans snapshots out to subscribers. Snapshots carry a sequence number
// from the publishing component; one older than the last delivered is
// dropped, so subscribers only ever move forward.
//
// Subscribers run synchronously on the publisher's goroutine and must not
// publish back into the same hub.
type Hub[T any] struct {
	mu   sync.Mutex
	subs map[int]func(T)
	next int

	deliver sync.Mutex
	last    uint64
}

func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Hub[T]) Publish(seq uint64, v T) {
	h.deliver.Lock()
	defer h.deliver.Unlock()
	if seq <= h.last {
		return
	}
	h.last = seq

	h.mu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	fns := make([]func(T), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
