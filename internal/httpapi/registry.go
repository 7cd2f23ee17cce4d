package httpapi

import (
	"context"
	"sync"
	"time"

	"club-dashboard/internal/apiclient"
	"club-dashboard/internal/session"
	"club-dashboard/pkg/logger"
)

// ClientFactory builds the API client for one browser session.
type ClientFactory func(sessionID string, store session.Store) (*apiclient.Client, error)

// forgetter is implemented by backends that hold session state in process.
type forgetter interface {
	Forget(sessionID string)
}

// Registry keeps one apiclient.Client per browser session, so each session
// has its own refresh queue. Entries idle for longer than the TTL are evicted.
type Registry struct {
	backend session.Backend
	factory ClientFactory
	idle    time.Duration
	clock   func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	client   *apiclient.Client
	lastSeen time.Time
}

func NewRegistry(backend session.Backend, factory ClientFactory, idle time.Duration) *Registry {
	return &Registry{
		backend: backend,
		factory: factory,
		idle:    idle,
		clock:   time.Now,
		entries: make(map[string]*entry),
	}
}

// Get returns the client for sessionID, building it on first use.
func (r *Registry) Get(sessionID string) (*apiclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if e, ok := r.entries[sessionID]; ok {
		e.lastSeen = now
		return e.client, nil
	}

	store, err := r.backend.Open(sessionID)
	if err != nil {
		return nil, err
	}
	c, err := r.factory(sessionID, store)
	if err != nil {
		return nil, err
	}
	r.entries[sessionID] = &entry{client: c, lastSeen: now}
	return c, nil
}

// Drop forgets sessionID, e.g. after logout.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if f, ok := r.backend.(forgetter); ok {
		f.Forget(sessionID)
	}
}

// Evict drops every entry idle since before now minus the TTL and returns
// how many were dropped. Entries with a refresh in flight are kept.
func (r *Registry) Evict(now time.Time) int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := now.Add(-r.idle)

	r.mu.Lock()
	var stale []string
	for sid, e := range r.entries {
		// Sessions with a refresh in flight wait for the next pass.
		if e.lastSeen.Before(cutoff) && !e.client.Transport().Refreshing() {
			stale = append(stale, sid)
			delete(r.entries, sid)
		}
	}
	r.mu.Unlock()

	if f, ok := r.backend.(forgetter); ok {
		for _, sid := range stale {
			f.Forget(sid)
		}
	}
	return len(stale)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run evicts idle entries every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := r.Evict(now); n > 0 {
				logger.From(ctx).Debug("evicted idle sessions", "count", n)
			}
		}
	}
}
