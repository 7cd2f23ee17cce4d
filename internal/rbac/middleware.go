package rbac

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"club-dashboard/internal/auth"
)

// HeaderWorkspaceID selects the workspace a request acts in.
const HeaderWorkspaceID = "x-workspace-id"

// Memberships resolves a user's role inside a workspace.
type Memberships interface {
	MembershipRole(userID, workspaceID string) (string, bool)
}

// RequireWorkspace enforces the multi-tenant invariant: the request names a
// workspace and the authenticated user is a member of it. The membership
// role is placed in the request context for RequireAnyRole.
// Chain it after auth.RequireAccessToken.
func RequireWorkspace(m Memberships) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user required"})
			return
		}
		wid := strings.TrimSpace(c.GetHeader(HeaderWorkspaceID))
		if wid == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "x-workspace-id required"})
			return
		}
		role, ok := m.MembershipRole(uid, wid)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this workspace"})
			return
		}

		c.Request = c.Request.WithContext(auth.WithWorkspace(c.Request.Context(), wid, role))
		c.Set("workspace_id", wid)
		c.Set("role", role)
		c.Next()
	}
}

// RequireAnyRole allows access if the caller's membership role is one of
// allowed. Matching is case-insensitive.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := NewRoleSet(allowed...)

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !allowedSet.Contains(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
