package session

import "context"

// Store is the persisted session state shared by the session manager and
// the workspace resolver: tokens, the identity snapshot, and the active
// workspace selection.
//
// Reads of absent values are not errors: Credentials returns the zero
// value, User returns nil, WorkspaceID returns "".
type Store interface {
	Credentials(ctx context.Context) (Credentials, error)
	SetTokens(ctx context.Context, c Credentials) error

	User(ctx context.Context) (*Identity, error)
	SetUser(ctx context.Context, u Identity) error

	WorkspaceID(ctx context.Context) (string, error)
	SetWorkspaceID(ctx context.Context, id string) error

	// Clear removes tokens, user and workspace selection atomically.
	Clear(ctx context.Context) error
}

// Backend hands out the Store for one browser session.
type Backend interface {
	Open(sessionID string) (Store, error)
}
