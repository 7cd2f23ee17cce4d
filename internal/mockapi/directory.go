package mockapi

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"club-dashboard/internal/session"
)

var (
	ErrInvalidCredentials = errors.New("mockapi: invalid credentials")
	ErrInvalidCode        = errors.New("mockapi: invalid or expired code")
	ErrUserNotFound       = errors.New("mockapi: user not found")
)

const otpTTL = 5 * time.Minute

type pendingOTP struct {
	code      string
	expiresAt time.Time
}

// Directory is the mock API's in-memory user and workspace store.
type Directory struct {
	mu         sync.RWMutex
	otpCode    string
	users      map[string]SeedUser // by id
	byPhone    map[string]string   // phone -> id
	workspaces map[string]SeedWorkspace
	otps       map[string]pendingOTP // phone -> code
	revoked    map[string]time.Time  // refresh jti -> expiry
}

func NewDirectory(seed Seed) *Directory {
	d := &Directory{
		otpCode:    seed.OTPCode,
		users:      make(map[string]SeedUser, len(seed.Users)),
		byPhone:    make(map[string]string, len(seed.Users)),
		workspaces: make(map[string]SeedWorkspace, len(seed.Workspaces)),
		otps:       make(map[string]pendingOTP),
		revoked:    make(map[string]time.Time),
	}
	for _, w := range seed.Workspaces {
		d.workspaces[w.ID] = w
	}
	for _, u := range seed.Users {
		d.users[u.ID] = u
		d.byPhone[u.Phone] = u.ID
	}
	return d
}

// Authenticate checks phone and password and returns the user id.
func (d *Directory) Authenticate(phone, password string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byPhone[phone]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(d.users[id].Password), []byte(password)) != 1 {
		return "", ErrInvalidCredentials
	}
	return id, nil
}

// RequestOTP arms a one-time code for phone. Unknown phones are accepted
// silently so the endpoint does not reveal which numbers exist.
func (d *Directory) RequestOTP(phone string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byPhone[phone]; !ok || d.otpCode == "" {
		return
	}
	d.otps[phone] = pendingOTP{code: d.otpCode, expiresAt: now.Add(otpTTL)}
}

// VerifyOTP consumes the pending code for phone and returns the user id.
func (d *Directory) VerifyOTP(phone, code string, now time.Time) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.otps[phone]
	if !ok || now.After(p.expiresAt) || subtle.ConstantTimeCompare([]byte(p.code), []byte(code)) != 1 {
		return "", ErrInvalidCode
	}
	delete(d.otps, phone)
	return d.byPhone[phone], nil
}

// Identity returns the identity snapshot served by /auth/me.
func (d *Directory) Identity(userID string) (session.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return session.Identity{}, ErrUserNotFound
	}
	id := session.Identity{
		ID:         u.ID,
		Name:       u.Name,
		Phone:      u.Phone,
		Role:       u.Role,
		Workspaces: make([]session.Membership, 0, len(u.Memberships)),
	}
	for _, m := range u.Memberships {
		id.Workspaces = append(id.Workspaces, session.Membership{
			ID:   m.Workspace,
			Name: d.workspaces[m.Workspace].Name,
			Role: m.Role,
		})
	}
	return id, nil
}

// MembershipRole implements rbac.Memberships.
func (d *Directory) MembershipRole(userID, workspaceID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.users[userID].Memberships {
		if m.Workspace == workspaceID {
			return m.Role, true
		}
	}
	return "", false
}

func (d *Directory) Workspace(id string) (SeedWorkspace, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, ok := d.workspaces[id]
	return w, ok
}

// Revoke marks a refresh token id unusable until it would have expired anyway.
func (d *Directory) Revoke(jti string, until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[jti] = until
}

func (d *Directory) Revoked(jti string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.revoked[jti]
	if ok && now.After(until) {
		delete(d.revoked, jti)
		return false
	}
	return ok
}
