// Package workspace decides where a user lands after authentication.
package workspace

import (
	"context"
	"log/slog"

	"club-dashboard/internal/audit"
	"club-dashboard/internal/nav"
	"club-dashboard/internal/obs"
	"club-dashboard/internal/rbac"
	"club-dashboard/internal/session"
	"club-dashboard/pkg/logger"
)

// IdentityFetcher queries the identity endpoint. Implementations must not
// answer from a cache.
type IdentityFetcher interface {
	Me(ctx context.Context) (*session.Identity, error)
}

type Options struct {
	// AdminRoles decides admin vs user landing; defaults to admin and owner.
	AdminRoles rbac.RoleSet
	SessionID  string
	Metrics    *obs.Metrics
	Audit      *audit.Service
	Logger     *slog.Logger
}

// Resolver picks the post-login destination from the session, a fresh
// identity and the stored workspace selection.
type Resolver struct {
	store   session.Store
	fetcher IdentityFetcher
	admin   rbac.RoleSet
	sid     string
	metrics *obs.Metrics
	audit   *audit.Service
	log     *slog.Logger
}

func NewResolver(store session.Store, fetcher IdentityFetcher, opts Options) *Resolver {
	admin := opts.AdminRoles
	if len(admin) == 0 {
		admin = rbac.DefaultAdminRoles()
	}
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		admin:   admin,
		sid:     opts.SessionID,
		metrics: opts.Metrics,
		audit:   opts.Audit,
		log:     opts.Logger,
	}
}

// Resolve returns the destination for the current session.
//
// The only error it returns is ctx's own, when the identity fetch was
// aborted; the caller should then discard the result rather than navigate.
// Every other failure resolves to nav.Login.
func (r *Resolver) Resolve(ctx context.Context) (nav.Destination, error) {
	dest, err := r.resolve(ctx)
	if err != nil {
		return "", err
	}
	r.metrics.Landing(string(dest))
	return dest, nil
}

func (r *Resolver) resolve(ctx context.Context) (nav.Destination, error) {
	creds, err := r.store.Credentials(ctx)
	if err != nil {
		r.logger(ctx).Warn("session read failed", "error", err)
	}
	if !creds.Valid() {
		return nav.Login, nil
	}

	id, err := r.fetcher.Me(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger(ctx).Warn("identity fetch failed", "error", err)
		if err := r.store.Clear(context.WithoutCancel(ctx)); err != nil {
			r.logger(ctx).Error("session clear failed", "error", err)
		}
		return nav.Login, nil
	}

	switch len(id.Workspaces) {
	case 0:
		return nav.NoWorkspace, nil
	case 1:
		m := id.Workspaces[0]
		stored, err := r.store.WorkspaceID(ctx)
		if err != nil {
			r.logger(ctx).Warn("workspace read failed", "error", err)
		}
		if stored == m.ID {
			return r.landing(m.Role), nil
		}
		if err := r.store.SetWorkspaceID(ctx, m.ID); err != nil {
			r.logger(ctx).Warn("persist workspace failed", "workspace", m.ID, "error", err)
			return r.landing(m.Role), nil
		}
		r.audit.RecordWorkspaceSelected(ctx, r.sid, id.ID, m.ID)
		return r.landing(m.Role), nil
	}

	stored, err := r.store.WorkspaceID(ctx)
	if err != nil {
		r.logger(ctx).Warn("workspace read failed", "error", err)
	}
	if m, ok := id.Membership(stored); ok {
		return r.landing(m.Role), nil
	}
	return nav.SelectWorkspace, nil
}

func (r *Resolver) landing(role string) nav.Destination {
	if r.admin.Contains(role) {
		return nav.AdminLanding
	}
	return nav.UserLanding
}

func (r *Resolver) logger(ctx context.Context) *slog.Logger {
	l := logger.From(ctx)
	if l == slog.Default() && r.log != nil {
		return r.log
	}
	return l
}
