package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-dashboard/internal/audit"
	"club-dashboard/internal/nav"
	"club-dashboard/internal/obs"
	"club-dashboard/internal/rbac"
	"club-dashboard/internal/session"
)

type stubFetcher struct {
	identity *session.Identity
	err      error
	calls    int
	// block, when set, waits for ctx to end and returns its error.
	block bool
}

func (f *stubFetcher) Me(ctx context.Context) (*session.Identity, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.identity, f.err
}

func signedIn(t *testing.T) *session.MemoryStore {
	t.Helper()
	s := session.NewMemoryStore()
	require.NoError(t, s.SetTokens(context.Background(), session.Credentials{AccessToken: "a", RefreshToken: "r"}))
	return s
}

func identity(ms ...session.Membership) *session.Identity {
	if ms == nil {
		ms = []session.Membership{}
	}
	return &session.Identity{ID: "u1", Workspaces: ms}
}

func TestResolve_NoSessionGoesToLoginWithoutFetching(t *testing.T) {
	f := &stubFetcher{identity: identity()}
	r := NewResolver(session.NewMemoryStore(), f, Options{})

	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.Login, d)
	assert.Zero(t, f.calls)
}

func TestResolve_SingleOwnerWorkspaceIsAutoSelected(t *testing.T) {
	store := signedIn(t)
	repo := audit.NewMemoryRepo()
	r := NewResolver(store, &stubFetcher{identity: identity(session.Membership{ID: "w1", Role: "owner"})}, Options{
		SessionID: "sid",
		Audit:     audit.NewService(repo),
	})

	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.AdminLanding, d)

	wid, _ := store.WorkspaceID(context.Background())
	assert.Equal(t, "w1", wid)
	assert.Len(t, repo.OfType(audit.EventTypeWorkspaceSelected), 1)
}

func TestResolve_RepeatedLandingsRecordOneSelection(t *testing.T) {
	store := signedIn(t)
	repo := audit.NewMemoryRepo()
	r := NewResolver(store, &stubFetcher{identity: identity(session.Membership{ID: "w1", Role: "owner"})}, Options{
		SessionID: "sid",
		Audit:     audit.NewService(repo),
	})

	for i := 0; i < 50; i++ {
		d, err := r.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, nav.AdminLanding, d)
	}
	assert.Len(t, repo.OfType(audit.EventTypeWorkspaceSelected), 1)
	assert.Equal(t, 1, repo.Len())

	// A membership change re-selects and records again.
	r.fetcher = &stubFetcher{identity: identity(session.Membership{ID: "w2", Role: "member"})}
	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.UserLanding, d)
	assert.Len(t, repo.OfType(audit.EventTypeWorkspaceSelected), 2)
}

func TestResolve_SingleMemberWorkspaceGoesToUserLanding(t *testing.T) {
	store := signedIn(t)
	r := NewResolver(store, &stubFetcher{identity: identity(session.Membership{ID: "w1", Role: "member"})}, Options{})

	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.UserLanding, d)

	wid, _ := store.WorkspaceID(context.Background())
	assert.Equal(t, "w1", wid)
}

func TestResolve_StaleSelectionForcesReselection(t *testing.T) {
	store := signedIn(t)
	require.NoError(t, store.SetWorkspaceID(context.Background(), "w3"))
	r := NewResolver(store, &stubFetcher{identity: identity(
		session.Membership{ID: "w1", Role: "owner"},
		session.Membership{ID: "w2", Role: "member"},
	)}, Options{})

	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.SelectWorkspace, d)

	wid, _ := store.WorkspaceID(context.Background())
	assert.Equal(t, "w3", wid, "selection is left for the picker to replace")
}

func TestResolve_ValidSelectionRoutesByItsRole(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   nav.Destination
	}{
		{"admin membership", "w1", nav.AdminLanding},
		{"member membership", "w2", nav.UserLanding},
		{"no selection", "", nav.SelectWorkspace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := signedIn(t)
			require.NoError(t, store.SetWorkspaceID(context.Background(), tt.stored))
			r := NewResolver(store, &stubFetcher{identity: identity(
				session.Membership{ID: "w1", Role: "Admin"},
				session.Membership{ID: "w2", Role: "member"},
			)}, Options{})

			d, err := r.Resolve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestResolve_EmptyMembershipsIgnoreStoredSelection(t *testing.T) {
	store := signedIn(t)
	require.NoError(t, store.SetWorkspaceID(context.Background(), "w1"))
	r := NewResolver(store, &stubFetcher{identity: identity()}, Options{})

	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.NoWorkspace, d)
}

func TestResolve_FetchFailureClearsSessionAndGoesToLogin(t *testing.T) {
	store := signedIn(t)
	require.NoError(t, store.SetWorkspaceID(context.Background(), "w1"))
	r := NewResolver(store, &stubFetcher{err: errors.New("502 bad gateway")}, Options{})

	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.Login, d)

	creds, _ := store.Credentials(context.Background())
	assert.False(t, creds.Valid())
	wid, _ := store.WorkspaceID(context.Background())
	assert.Empty(t, wid)
}

func TestResolve_CancelledFetchIsDiscarded(t *testing.T) {
	store := signedIn(t)
	r := NewResolver(store, &stubFetcher{block: true}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, err := r.Resolve(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d)
	creds, _ := store.Credentials(context.Background())
	assert.True(t, creds.Valid(), "an aborted fetch must not log the user out")
}

func TestResolve_ConfiguredAdminVocabulary(t *testing.T) {
	store := signedIn(t)
	r := NewResolver(store, &stubFetcher{identity: identity(session.Membership{ID: "w1", Role: "manager"})}, Options{
		AdminRoles: rbac.NewRoleSet("manager"),
	})

	d, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nav.AdminLanding, d)
}

func TestResolve_CountsLandings(t *testing.T) {
	m := obs.NewMetrics(prometheus.NewRegistry())
	r := NewResolver(session.NewMemoryStore(), &stubFetcher{}, Options{Metrics: m})

	_, err := r.Resolve(context.Background())
	require.NoError(t, err)

	body := scrape(t, m)
	assert.Contains(t, body, `dashboard_landings_total{destination="login"} 1`)
}
