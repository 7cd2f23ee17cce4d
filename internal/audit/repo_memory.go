package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in process memory. With a limit it is a ring that
// drops the oldest event once full; without one it grows unbounded, which is
// only suitable for tests.
type MemoryRepo struct {
	mu     sync.Mutex
	limit  int
	events []Event
	next   int // ring write position once len(events) == limit
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

// NewBoundedMemoryRepo retains at most limit events.
func NewBoundedMemoryRepo(limit int) *MemoryRepo {
	if limit <= 0 {
		return NewMemoryRepo()
	}
	return &MemoryRepo{limit: limit, events: make([]Event, 0, limit)}
}

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit == 0 || len(r.events) < r.limit {
		r.events = append(r.events, e)
		return nil
	}
	r.events[r.next] = e
	r.next = (r.next + 1) % r.limit
	return nil
}

// Events returns the retained events, oldest first.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// OfType returns the retained events of type t, oldest first.
func (r *MemoryRepo) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
