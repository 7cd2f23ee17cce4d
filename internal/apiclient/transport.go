package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"club-dashboard/internal/audit"
	"club-dashboard/internal/nav"
	"club-dashboard/internal/obs"
	"club-dashboard/internal/session"
	"club-dashboard/pkg/logger"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderWorkspaceID   = "x-workspace-id"

	RefreshPath = "/auth/refresh"

	defaultRefreshTimeout = 10 * time.Second
)

// Forced logout reasons, as reported in logs, metrics and audit.
const (
	ReasonRetried401      = "retried_401"
	ReasonRefreshRejected = "refresh_call_401"
	ReasonNoRefreshToken  = "no_refresh_token"
	ReasonRefreshFailed   = "refresh_failed"
)

// Refresher exchanges a refresh token for new credentials without going
// through the Transport.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (session.Credentials, error)
}

// Transport is the session manager for one browser session. It decorates
// every outgoing request with the stored credentials and workspace, and
// recovers from an expired access token with a single coordinated refresh.
//
// Decision on each response:
//
//	403                                  notify, return unchanged
//	401, request already retried         forced logout, return 401
//	401 on the refresh call              forced logout, return 401
//	401, token superseded by a refresh   replay with the current token
//	401, refresh in progress             wait, then replay or fail with ErrSessionExpired
//	401, refresh token stored            lead the refresh, then replay
//	401, no refresh token                forced logout, return 401
//	anything else                        return unchanged
type Transport struct {
	Base      http.RoundTripper
	Store     session.Store
	Refresher Refresher

	SessionID      string
	RefreshTimeout time.Duration
	Limiter        *rate.Limiter

	Navigator nav.Navigator
	Notifier  nav.Notifier
	Metrics   *obs.Metrics
	Audit     *audit.Service
	Logger    *slog.Logger

	flight refreshFlight
}

var (
	errRefreshAborted = errors.New("apiclient: refresh aborted")
	errNoRefresher    = errors.New("apiclient: no refresher configured")
	errEmptyRefresh   = errors.New("apiclient: refresh returned no access token")
)

type retriedKey struct{}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

// IsRetried reports whether ctx belongs to a request replayed after a refresh.
func IsRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.roundTrip(req, "")
}

func (t *Transport) roundTrip(req *http.Request, token string) (*http.Response, error) {
	ctx := req.Context()
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	out := req.Clone(ctx)
	sent := t.decorate(ctx, out, token)

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusForbidden:
		t.Metrics.AccessRestricted()
		t.notifier().Notify(ctx, nav.NoticeAccessRestricted, req)
		return resp, nil
	case http.StatusUnauthorized:
		return t.recover(req, resp, sent)
	default:
		return resp, nil
	}
}

// decorate attaches the bearer token and workspace header. It never fails:
// a store read error is logged and treated as an absent value.
// It returns the access token that was attached.
func (t *Transport) decorate(ctx context.Context, r *http.Request, token string) string {
	if token == "" && t.Store != nil {
		creds, err := t.Store.Credentials(ctx)
		if err != nil {
			t.log(ctx).Warn("session read failed", "error", err)
		}
		token = creds.AccessToken
	}
	if token != "" {
		r.Header.Set(HeaderAuthorization, "Bearer "+token)
	}

	if t.Store != nil {
		wid, err := t.Store.WorkspaceID(ctx)
		if err != nil {
			t.log(ctx).Warn("workspace read failed", "error", err)
		}
		if wid != "" {
			r.Header.Set(HeaderWorkspaceID, wid)
		}
	}
	return token
}

func (t *Transport) recover(req *http.Request, resp *http.Response, sent string) (*http.Response, error) {
	ctx := req.Context()

	if IsRetried(ctx) {
		t.forceLogout(ctx, ReasonRetried401)
		return resp, nil
	}
	if isRefreshCall(req) {
		t.forceLogout(ctx, ReasonRefreshRejected)
		return resp, nil
	}

	tk := t.flight.join(sent)
	switch {
	case tk.current != "":
		drain(resp)
		return t.replay(req, tk.current)

	case tk.wait != nil:
		drain(resp)
		select {
		case out := <-tk.wait:
			if out.err != nil {
				return nil, fmt.Errorf("%w: %w", ErrSessionExpired, out.err)
			}
			return t.replay(req, out.token)
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	default:
		token, err := t.lead(ctx, sent)
		if errors.Is(err, ErrNoRefreshToken) {
			return resp, nil
		}
		drain(resp)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		return t.replay(req, token)
	}
}

// lead performs the refresh for the whole session and settles the queue.
// It runs detached from the caller's cancellation so queued requests are
// never stranded; the queue is settled even if the refresh panics.
func (t *Transport) lead(ctx context.Context, sent string) (string, error) {
	settled := false
	waiters := 0
	defer func() {
		if !settled {
			t.flight.settle(sent, refreshOutcome{err: errRefreshAborted})
		}
	}()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.refreshTimeout())
	defer cancel()

	fail := func(reason string, err error) (string, error) {
		t.clear(rctx)
		waiters = t.flight.settle(sent, refreshOutcome{err: err})
		settled = true
		if reason == ReasonRefreshFailed {
			t.Metrics.ObserveRefresh(obs.RefreshFailed, waiters)
			t.Audit.Record(rctx, audit.Event{SessionID: t.SessionID, Type: audit.EventTypeRefreshFailed, Message: err.Error()})
		}
		t.navigateLogin(ctx, reason)
		return "", err
	}

	creds, err := t.Store.Credentials(rctx)
	if err != nil {
		t.log(ctx).Warn("session read failed", "error", err)
	}
	if creds.RefreshToken == "" {
		return fail(ReasonNoRefreshToken, ErrNoRefreshToken)
	}
	if t.Refresher == nil {
		return fail(ReasonRefreshFailed, errNoRefresher)
	}

	next, err := t.Refresher.Refresh(rctx, creds.RefreshToken)
	if err == nil && next.AccessToken == "" {
		err = errEmptyRefresh
	}
	if err != nil {
		return fail(ReasonRefreshFailed, err)
	}
	if next.RefreshToken == "" {
		next.RefreshToken = creds.RefreshToken
	}
	if err := t.Store.SetTokens(rctx, next); err != nil {
		return fail(ReasonRefreshFailed, fmt.Errorf("apiclient: persist refreshed tokens: %w", err))
	}

	waiters = t.flight.settle(sent, refreshOutcome{token: next.AccessToken})
	settled = true

	t.Metrics.ObserveRefresh(obs.RefreshSucceeded, waiters)
	t.Audit.Record(rctx, audit.Event{SessionID: t.SessionID, Type: audit.EventTypeRefresh})
	t.log(ctx).Info("access token refreshed", "waiters", waiters, "rotated", next.RefreshToken != creds.RefreshToken)
	return next.AccessToken, nil
}

// replay re-sends req marked as retried, carrying token.
func (t *Transport) replay(req *http.Request, token string) (*http.Response, error) {
	r := req.Clone(withRetried(req.Context()))
	if req.Body != nil && req.Body != http.NoBody {
		if req.GetBody == nil {
			return nil, ErrNotReplayable
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotReplayable, err)
		}
		r.Body = body
	}
	return t.roundTrip(r, token)
}

func (t *Transport) forceLogout(ctx context.Context, reason string) {
	t.clear(context.WithoutCancel(ctx))
	t.navigateLogin(ctx, reason)
}

func (t *Transport) clear(ctx context.Context) {
	if t.Store == nil {
		return
	}
	if err := t.Store.Clear(ctx); err != nil {
		t.log(ctx).Error("session clear failed", "error", err)
	}
}

func (t *Transport) navigateLogin(ctx context.Context, reason string) {
	t.Metrics.ForcedLogout(reason)
	t.Audit.RecordForcedLogout(context.WithoutCancel(ctx), t.SessionID, reason)
	t.log(ctx).Warn("forced logout", "reason", reason)
	t.navigator().Navigate(ctx, nav.Login)
}

// Refreshing reports whether a token refresh is in flight for this session.
func (t *Transport) Refreshing() bool { return t.flight.active() }

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) navigator() nav.Navigator {
	if t.Navigator != nil {
		return t.Navigator
	}
	return nav.LogNavigator{}
}

func (t *Transport) notifier() nav.Notifier {
	if t.Notifier != nil {
		return t.Notifier
	}
	return nav.LogNotifier{}
}

func (t *Transport) refreshTimeout() time.Duration {
	if t.RefreshTimeout > 0 {
		return t.RefreshTimeout
	}
	return defaultRefreshTimeout
}

func (t *Transport) log(ctx context.Context) *slog.Logger {
	l := logger.From(ctx)
	if l == slog.Default() && t.Logger != nil {
		l = t.Logger
	}
	if t.SessionID != "" {
		l = l.With("session", shortID(t.SessionID))
	}
	return l
}

func isRefreshCall(req *http.Request) bool {
	return strings.HasSuffix(strings.TrimRight(req.URL.Path, "/"), RefreshPath)
}

// drain discards the rest of a response that will not be returned, so the
// connection can be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
