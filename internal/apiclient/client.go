package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"club-dashboard/internal/audit"
	"club-dashboard/internal/nav"
	"club-dashboard/internal/obs"
	"club-dashboard/internal/session"
)

// Options configures a Client for one browser session.
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	RefreshTimeout time.Duration
	// NetworkRetries bounds retries of connection-level failures. HTTP
	// statuses are never retried and the refresh call is never retried.
	NetworkRetries int
	// RateLimitRPS caps outgoing requests; 0 means unlimited.
	RateLimitRPS float64

	Store     session.Store
	SessionID string

	Navigator nav.Navigator
	Notifier  nav.Notifier
	Metrics   *obs.Metrics
	Audit     *audit.Service
	Logger    *slog.Logger

	// Base replaces the network transport, mainly for tests.
	Base http.RoundTripper
}

// Client talks to the upstream REST API on behalf of one session.
// Every call except login, OTP and refresh goes through the session Transport.
type Client struct {
	api       *resty.Client
	bare      *resty.Client
	transport *Transport
	store     session.Store
	sessionID string
	audit     *audit.Service
	navigator nav.Navigator
	log       *slog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("apiclient: base url is required")
	}
	if opts.Store == nil {
		return nil, errors.New("apiclient: session store is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	plain, retrying := baseTransports(opts, log)

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		burst := int(opts.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	c := &Client{
		store:     opts.Store,
		sessionID: opts.SessionID,
		audit:     opts.Audit,
		navigator: opts.Navigator,
		log:       log,
	}
	if c.navigator == nil {
		c.navigator = nav.LogNavigator{}
	}

	c.bare = resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetTransport(plain)

	c.transport = &Transport{
		Base:           retrying,
		Store:          opts.Store,
		Refresher:      c,
		SessionID:      opts.SessionID,
		RefreshTimeout: opts.RefreshTimeout,
		Limiter:        limiter,
		Navigator:      c.navigator,
		Notifier:       opts.Notifier,
		Metrics:        opts.Metrics,
		Audit:          opts.Audit,
		Logger:         log,
	}
	c.api = resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(0).
		SetTransport(c.transport)

	return c, nil
}

// baseTransports returns the plain transport used for un-intercepted calls
// and the retrying transport the session Transport sends through.
func baseTransports(opts Options, log *slog.Logger) (http.RoundTripper, http.RoundTripper) {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.NetworkRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.CheckRetry = networkOnlyRetry
	rc.Logger = log
	if opts.Base != nil {
		rc.HTTPClient = &http.Client{Transport: opts.Base}
	}
	return rc.HTTPClient.Transport, &retryablehttp.RoundTripper{Client: rc}
}

// networkOnlyRetry retries connection failures while the caller is still
// waiting. Any HTTP response, whatever its status, is final.
func networkOnlyRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Transport exposes the session manager, e.g. to wrap another http.Client.
func (c *Client) Transport() *Transport { return c.transport }

func (c *Client) Store() session.Store { return c.store }

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	User         *session.Identity `json:"user,omitempty"`
}

// Login authenticates with phone and password and stores the issued tokens.
func (c *Client) Login(ctx context.Context, phone, password string) (*session.Identity, error) {
	var out tokenResponse
	if err := c.call(ctx, c.bare, http.MethodPost, "/auth/login", loginRequest{Phone: phone, Password: password}, &out); err != nil {
		return nil, err
	}
	return c.establish(ctx, out)
}

// RequestOTP asks the API to send a one-time code to phone.
func (c *Client) RequestOTP(ctx context.Context, phone string) error {
	return c.call(ctx, c.bare, http.MethodPost, "/auth/otp/request", otpRequest{Phone: phone}, nil)
}

// VerifyOTP exchanges a one-time code for tokens and stores them.
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*session.Identity, error) {
	var out tokenResponse
	if err := c.call(ctx, c.bare, http.MethodPost, "/auth/otp/verify", otpRequest{Phone: phone, Code: code}, &out); err != nil {
		return nil, err
	}
	return c.establish(ctx, out)
}

func (c *Client) establish(ctx context.Context, out tokenResponse) (*session.Identity, error) {
	creds := session.Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
	if !creds.Valid() {
		return nil, errors.New("apiclient: login returned no access token")
	}
	// A new login starts a new session: drop any previous user and workspace.
	if err := c.store.Clear(ctx); err != nil {
		return nil, err
	}
	if err := c.store.SetTokens(ctx, creds); err != nil {
		return nil, err
	}
	var userID string
	if out.User != nil {
		userID = out.User.ID
		if err := c.store.SetUser(ctx, *out.User); err != nil {
			return nil, err
		}
	}
	c.audit.Record(ctx, audit.Event{SessionID: c.sessionID, Type: audit.EventTypeLogin, UserID: userID})
	return out.User, nil
}

// Me fetches the identity fresh from the API and caches it.
func (c *Client) Me(ctx context.Context) (*session.Identity, error) {
	var u session.Identity
	if err := c.call(ctx, c.api, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	if u.Workspaces == nil {
		u.Workspaces = []session.Membership{}
	}
	if err := c.store.SetUser(ctx, u); err != nil {
		c.log.Warn("cache identity failed", "error", err)
	}
	return &u, nil
}

// Refresh exchanges refreshToken for new credentials. It bypasses the
// session Transport, so a 401 here is reported to the caller, never recovered.
// The returned RefreshToken is empty unless the API rotated it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.Credentials, error) {
	var out tokenResponse
	if err := c.call(ctx, c.bare, http.MethodPost, RefreshPath, refreshRequest{RefreshToken: refreshToken}, &out); err != nil {
		return session.Credentials{}, err
	}
	return session.Credentials{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

// Logout ends the session. The upstream call is best-effort; the local
// session is always cleared and the user sent to login.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.store.Credentials(ctx)
	if err != nil {
		c.log.Warn("session read failed", "error", err)
	}
	if creds.Valid() {
		r := c.bare.R().
			SetContext(ctx).
			SetAuthToken(creds.AccessToken).
			SetBody(refreshRequest{RefreshToken: creds.RefreshToken})
		if resp, err := r.Post("/auth/logout"); err != nil {
			c.log.Debug("upstream logout failed", "error", err)
		} else if resp.IsError() {
			c.log.Debug("upstream logout rejected", "status", resp.StatusCode())
		}
	}

	clearErr := c.store.Clear(context.WithoutCancel(ctx))
	c.audit.Record(ctx, audit.Event{SessionID: c.sessionID, Type: audit.EventTypeLogout})
	c.navigator.Navigate(ctx, nav.Login)
	return clearErr
}

// SwitchWorkspace makes id the active workspace if the user is a member.
func (c *Client) SwitchWorkspace(ctx context.Context, id string) (session.Membership, error) {
	u, err := c.store.User(ctx)
	if err != nil {
		return session.Membership{}, err
	}
	if u == nil {
		if u, err = c.Me(ctx); err != nil {
			return session.Membership{}, err
		}
	}
	m, ok := u.Membership(id)
	if !ok {
		return session.Membership{}, ErrUnknownWorkspace
	}
	if err := c.store.SetWorkspaceID(ctx, id); err != nil {
		return session.Membership{}, err
	}
	c.audit.RecordWorkspaceSelected(ctx, c.sessionID, u.ID, id)
	return m, nil
}

// Do sends a JSON request through the session Transport and decodes a 2xx
// body into out. Non-2xx responses are returned as *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	return c.call(ctx, c.api, method, path, body, out)
}

// ProxyRequest is an inbound request to relay upstream unchanged.
type ProxyRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

type ProxyResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

var forwardedHeaders = []string{"Content-Type", "Accept", "Accept-Language"}

// Forward relays pr through the session Transport. Upstream statuses are
// returned as-is; only transport failures and session expiry are errors.
func (c *Client) Forward(ctx context.Context, pr ProxyRequest) (*ProxyResponse, error) {
	r := c.api.R().SetContext(ctx)
	for _, h := range forwardedHeaders {
		if v := pr.Header.Get(h); v != "" {
			r.SetHeader(h, v)
		}
	}
	if pr.RawQuery != "" {
		r.SetQueryString(pr.RawQuery)
	}
	if len(pr.Body) > 0 {
		r.SetBody(pr.Body)
	}
	resp, err := r.Execute(pr.Method, pr.Path)
	if err != nil {
		return nil, err
	}
	return &ProxyResponse{Status: resp.StatusCode(), Header: resp.Header(), Body: resp.Body()}, nil
}

func (c *Client) call(ctx context.Context, rc *resty.Client, method, path string, body, out any) error {
	r := rc.R().SetContext(ctx)
	if body != nil {
		r.SetBody(body)
	}
	if out != nil {
		r.SetResult(out)
	}
	resp, err := r.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode(), Body: resp.Body()}
	}
	return nil
}
