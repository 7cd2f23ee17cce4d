package session

import "errors"

// Credentials is the token pair issued by the upstream API.
// Invariant: both tokens are written together and cleared together.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Valid reports whether requests made with these credentials are authenticated.
func (c Credentials) Valid() bool { return c.AccessToken != "" }

// Identity is the cached snapshot of the authenticated principal.
// Consumers may read the cached copy but must tolerate staleness until
// the next identity fetch.
type Identity struct {
	ID         string       `json:"id"`
	Name       string       `json:"name,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Role       string       `json:"role,omitempty"`
	Workspaces []Membership `json:"workspaces"`
}

// Membership is the principal's role inside one workspace (tenant).
type Membership struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
}

// Membership returns the membership for workspaceID, if any.
func (i Identity) Membership(workspaceID string) (Membership, bool) {
	if workspaceID == "" {
		return Membership{}, false
	}
	for _, m := range i.Workspaces {
		if m.ID == workspaceID {
			return m, true
		}
	}
	return Membership{}, false
}

var (
	ErrNotFound       = errors.New("session: not found")
	ErrInvalidSession = errors.New("session: invalid session id")
)
