// Package nav names the landing destinations of the dashboard and the
// collaborators that act on them: a Navigator that moves the user and a
// Notifier that surfaces informational notices.
package nav

import (
	"context"
	"net/http"
	"sync"

	"club-dashboard/pkg/logger"
)

// Destination is one of the places a user can be routed to.
type Destination string

const (
	Login           Destination = "login"
	NoWorkspace     Destination = "no-workspace"
	SelectWorkspace Destination = "select-workspace"
	AdminLanding    Destination = "admin-landing"
	UserLanding     Destination = "user-landing"
)

// Paths maps destinations to router paths. Landing paths are configurable.
type Paths struct {
	AdminLanding string
	UserLanding  string
}

func DefaultPaths() Paths {
	return Paths{AdminLanding: "/admin/dashboard", UserLanding: "/dashboard"}
}

// Path returns the router path for d.
func (p Paths) Path(d Destination) string {
	switch d {
	case NoWorkspace:
		return "/no-workspace"
	case SelectWorkspace:
		return "/select-workspace"
	case AdminLanding:
		if p.AdminLanding != "" {
			return p.AdminLanding
		}
		return DefaultPaths().AdminLanding
	case UserLanding:
		if p.UserLanding != "" {
			return p.UserLanding
		}
		return DefaultPaths().UserLanding
	default:
		return "/login"
	}
}

// Navigator moves the user to a destination.
type Navigator interface {
	Navigate(ctx context.Context, d Destination)
}

// Notice is an informational, user-facing message.
type Notice string

const NoticeAccessRestricted Notice = "access-restricted"

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notice, req *http.Request)
}

// LogNavigator logs navigations; used when no UI is attached.
type LogNavigator struct{}

func (LogNavigator) Navigate(ctx context.Context, d Destination) {
	logger.From(ctx).Info("navigate", "destination", string(d))
}

// LogNotifier logs notices; used when no UI is attached.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, n Notice, req *http.Request) {
	attrs := []any{"notice", string(n)}
	if req != nil {
		attrs = append(attrs, "method", req.Method, "path", req.URL.Path)
	}
	logger.From(ctx).Warn("notice", attrs...)
}

// Recorder captures the navigation and notices raised while serving one
// request, so an HTTP handler can turn them into response headers.
type Recorder struct {
	mu          sync.Mutex
	destination Destination
	notices     []Notice
}

func (r *Recorder) Destination() (Destination, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destination, r.destination != ""
}

func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

type recorderKey struct{}

// WithRecorder attaches a fresh Recorder to ctx.
func WithRecorder(ctx context.Context) (context.Context, *Recorder) {
	r := &Recorder{}
	return context.WithValue(ctx, recorderKey{}, r), r
}

func recorderFrom(ctx context.Context) *Recorder {
	if r, ok := ctx.Value(recorderKey{}).(*Recorder); ok {
		return r
	}
	return nil
}

// ContextNavigator records into the request's Recorder, falling back to
// logging when the context carries none.
type ContextNavigator struct{}

func (ContextNavigator) Navigate(ctx context.Context, d Destination) {
	if r := recorderFrom(ctx); r != nil {
		r.mu.Lock()
		r.destination = d
		r.mu.Unlock()
		return
	}
	LogNavigator{}.Navigate(ctx, d)
}

func (ContextNavigator) Notify(ctx context.Context, n Notice, req *http.Request) {
	if r := recorderFrom(ctx); r != nil {
		r.mu.Lock()
		r.notices = append(r.notices, n)
		r.mu.Unlock()
		return
	}
	LogNotifier{}.Notify(ctx, n, req)
}

// Compile-time checks.
var (
	_ Navigator = LogNavigator{}
	_ Notifier  = LogNotifier{}
	_ Navigator = ContextNavigator{}
	_ Notifier  = ContextNavigator{}
)
