package rbac

import "strings"

// Workspace membership roles issued by the upstream API. Keep these stable;
// they are part of the auth contract.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// RoleSet is a case-insensitive set of role names.
type RoleSet map[string]struct{}

func NewRoleSet(roles ...string) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		r = normalize(r)
		if r != "" {
			s[r] = struct{}{}
		}
	}
	return s
}

// DefaultAdminRoles is the admin vocabulary when none is configured.
func DefaultAdminRoles() RoleSet { return NewRoleSet(RoleAdmin, RoleOwner) }

func (s RoleSet) Contains(role string) bool {
	_, ok := s[normalize(role)]
	return ok
}

// IsAdmin reports whether role is an admin role in the default vocabulary.
func IsAdmin(role string) bool { return DefaultAdminRoles().Contains(role) }

func normalize(role string) string { return strings.ToLower(strings.TrimSpace(role)) }
