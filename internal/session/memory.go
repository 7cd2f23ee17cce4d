package session

import (
	"context"
	"sync"
)

// MemoryStore keeps session state in process memory.
// Useful for tests and single-process local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	creds       Credentials
	user        *Identity
	workspaceID string
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Credentials(ctx context.Context) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

func (s *MemoryStore) SetTokens(ctx context.Context, c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	return nil
}

func (s *MemoryStore) User(ctx context.Context) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, nil
	}
	u := cloneIdentity(*s.user)
	return &u, nil
}

func (s *MemoryStore) SetUser(ctx context.Context, u Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneIdentity(u)
	s.user = &c
	return nil
}

func (s *MemoryStore) WorkspaceID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspaceID, nil
}

func (s *MemoryStore) SetWorkspaceID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaceID = id
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.user = nil
	s.workspaceID = ""
	return nil
}

func cloneIdentity(u Identity) Identity {
	out := u
	if u.Workspaces != nil {
		out.Workspaces = make([]Membership, len(u.Workspaces))
		copy(out.Workspaces, u.Workspaces)
	}
	return out
}

// MemoryBackend hands out one MemoryStore per session id.
type MemoryBackend struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{stores: make(map[string]*MemoryStore)}
}

func (b *MemoryBackend) Open(sessionID string) (Store, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.stores[sessionID]
	if !ok {
		s = NewMemoryStore()
		b.stores[sessionID] = s
	}
	return s, nil
}

// Forget drops the store for sessionID. Stores outlive their clients in
// memory unless the owner forgets them.
func (b *MemoryBackend) Forget(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.stores, sessionID)
}
