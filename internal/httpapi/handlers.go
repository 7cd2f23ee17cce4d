package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"club-dashboard/internal/apiclient"
	"club-dashboard/internal/audit"
	"club-dashboard/internal/nav"
	"club-dashboard/internal/obs"
	"club-dashboard/internal/rbac"
	"club-dashboard/internal/session"
	"club-dashboard/internal/workspace"
	"club-dashboard/pkg/logger"
)

const (
	HeaderRedirect = "X-Dashboard-Redirect"
	HeaderNotice   = "X-Dashboard-Notice"

	maxProxyBody = 4 << 20
)

// Cookie describes the session cookie.
type Cookie struct {
	Name   string
	Secure bool
	MaxAge int // seconds
}

// Handlers groups the dashboard's HTTP handlers.
// Keep these thin: resolve the session, call the API client or resolver, return JSON.
type Handlers struct {
	Registry   *Registry
	Cookie     Cookie
	Paths      nav.Paths
	AdminRoles rbac.RoleSet
	Metrics    *obs.Metrics
	Audit      *audit.Service

	// MaxBodyBytes caps proxied request bodies; 0 means 4 MiB.
	MaxBodyBytes int64
}

// Register wires the dashboard routes onto r.
func (h Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)

	a := r.Group("/auth")
	{
		a.POST("/login", h.Login)
		a.POST("/otp/request", h.RequestOTP)
		a.POST("/otp/verify", h.VerifyOTP)
		a.POST("/logout", h.Logout)
	}

	s := r.Group("/api/session")
	{
		s.GET("/landing", h.Landing)
		s.GET("/me", h.Me)
		s.POST("/workspace", h.SwitchWorkspace)
	}

	r.Any("/api/v1/*path", h.Proxy)
}

// session returns the caller's session id and client, minting a new
// session cookie when the request carries none.
func (h Handlers) session(c *gin.Context) (string, *apiclient.Client, bool) {
	sid, err := c.Cookie(h.cookieName())
	if err != nil || uuid.Validate(sid) != nil {
		sid = uuid.NewString()
		h.setCookie(c, sid, h.Cookie.MaxAge)
	}
	client, err := h.Registry.Get(sid)
	if err != nil {
		logger.FromGin(c).Error("session open failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return "", nil, false
	}
	return sid, client, true
}

func (h Handlers) maxBody() int64 {
	if h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return maxProxyBody
}

func (h Handlers) cookieName() string {
	if h.Cookie.Name != "" {
		return h.Cookie.Name
	}
	return "dash_sid"
}

func (h Handlers) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName(), value, maxAge, "/", "", h.Cookie.Secure, true)
}

func (h Handlers) resolver(sid string, client *apiclient.Client, c *gin.Context) *workspace.Resolver {
	return workspace.NewResolver(client.Store(), client, workspace.Options{
		AdminRoles: h.AdminRoles,
		SessionID:  sid,
		Metrics:    h.Metrics,
		Audit:      h.Audit,
		Logger:     logger.FromGin(c),
	})
}

// --- Auth ---

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone and password required"})
		return
	}
	sid, client, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := client.Login(c.Request.Context(), req.Phone, req.Password); err != nil {
		h.authFailed(c, err, "invalid credentials")
		return
	}
	h.land(c, sid, client)
}

func (h Handlers) RequestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}
	_, client, ok := h.session(c)
	if !ok {
		return
	}
	if err := client.RequestOTP(c.Request.Context(), req.Phone); err != nil {
		upstreamFailed(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (h Handlers) VerifyOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" || req.Code == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone and code required"})
		return
	}
	sid, client, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := client.VerifyOTP(c.Request.Context(), req.Phone, req.Code); err != nil {
		h.authFailed(c, err, "invalid code")
		return
	}
	h.land(c, sid, client)
}

// Logout always succeeds from the browser's point of view.
func (h Handlers) Logout(c *gin.Context) {
	sid, client, ok := h.session(c)
	if !ok {
		return
	}
	if err := client.Logout(c.Request.Context()); err != nil {
		logger.FromGin(c).Warn("session clear failed", "error", err)
	}
	h.Registry.Drop(sid)
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"path": h.Paths.Path(nav.Login)})
}

// --- Landing ---

func (h Handlers) Root(c *gin.Context) {
	sid, client, ok := h.session(c)
	if !ok {
		return
	}
	dest, err := h.resolver(sid, client, c).Resolve(c.Request.Context())
	if err != nil {
		// The browser went away; nothing to send.
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, h.Paths.Path(dest))
}

func (h Handlers) Landing(c *gin.Context) {
	sid, client, ok := h.session(c)
	if !ok {
		return
	}
	h.land(c, sid, client)
}

func (h Handlers) land(c *gin.Context, sid string, client *apiclient.Client) {
	dest, err := h.resolver(sid, client, c).Resolve(c.Request.Context())
	if err != nil {
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, gin.H{"destination": dest, "path": h.Paths.Path(dest)})
}

// --- Session ---

func (h Handlers) Me(c *gin.Context) {
	_, client, ok := h.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	u, err := client.Store().User(ctx)
	if err != nil {
		logger.FromGin(c).Error("session read failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
		return
	}
	if u == nil {
		h.redirectToLogin(c)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	wid, err := client.Store().WorkspaceID(ctx)
	if err != nil {
		logger.FromGin(c).Warn("workspace read failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "workspaceId": wid})
}

type switchRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

func (h Handlers) SwitchWorkspace(c *gin.Context) {
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.WorkspaceID) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "workspaceId required"})
		return
	}
	_, client, ok := h.session(c)
	if !ok {
		return
	}
	ctx, rec := nav.WithRecorder(c.Request.Context())
	m, err := client.SwitchWorkspace(ctx, req.WorkspaceID)
	h.relayNavigation(c, rec)
	switch {
	case err == nil:
	case errors.Is(err, apiclient.ErrUnknownWorkspace):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "not a member of this workspace"})
		return
	case errors.Is(err, apiclient.ErrSessionExpired), errors.Is(err, apiclient.ErrUnauthorized):
		h.redirectToLogin(c)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	default:
		upstreamFailed(c, err)
		return
	}

	admin := h.AdminRoles
	if len(admin) == 0 {
		admin = rbac.DefaultAdminRoles()
	}
	dest := nav.UserLanding
	if admin.Contains(m.Role) {
		dest = nav.AdminLanding
	}
	c.JSON(http.StatusOK, gin.H{"workspace": m, "destination": dest, "path": h.Paths.Path(dest)})
}

// --- Proxy ---

var relayedHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified"}

// Proxy forwards /api/v1/* upstream through the session manager and relays
// the upstream status and body. Navigation decided by the session manager
// is surfaced as response headers for the browser to act on.
func (h Handlers) Proxy(c *gin.Context) {
	_, client, ok := h.session(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ctx, rec := nav.WithRecorder(c.Request.Context())
	resp, err := client.Forward(ctx, apiclient.ProxyRequest{
		Method:   c.Request.Method,
		Path:     c.Param("path"),
		RawQuery: c.Request.URL.RawQuery,
		Header:   c.Request.Header,
		Body:     body,
	})
	h.relayNavigation(c, rec)
	if err != nil {
		switch {
		case errors.Is(err, apiclient.ErrSessionExpired):
			h.redirectToLogin(c)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		case errors.Is(err, context.Canceled):
			c.Abort()
		default:
			upstreamFailed(c, err)
		}
		return
	}

	for _, k := range relayedHeaders {
		if v := resp.Header.Get(k); v != "" {
			c.Header(k, v)
		}
	}
	c.Data(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
}

func (h Handlers) relayNavigation(c *gin.Context, rec *nav.Recorder) {
	if d, ok := rec.Destination(); ok {
		c.Header(HeaderRedirect, h.Paths.Path(d))
	}
	for _, n := range rec.Notices() {
		c.Writer.Header().Add(HeaderNotice, string(n))
	}
}

func (h Handlers) redirectToLogin(c *gin.Context) {
	c.Header(HeaderRedirect, h.Paths.Path(nav.Login))
}

// authFailed maps a failed login or OTP exchange. A rejection from the
// upstream is the user's mistake, not a session event.
func (h Handlers) authFailed(c *gin.Context, err error, msg string) {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusBadRequest) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": msg})
		return
	}
	upstreamFailed(c, err)
}

func upstreamFailed(c *gin.Context, err error) {
	logger.FromGin(c).Error("upstream call failed", "error", err)
	c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
}

// NewClientFactory returns the factory the dashboard uses in production:
// each client records navigation into the request context.
func NewClientFactory(base apiclient.Options) ClientFactory {
	return func(sessionID string, store session.Store) (*apiclient.Client, error) {
		opts := base
		opts.Store = store
		opts.SessionID = sessionID
		opts.Navigator = nav.ContextNavigator{}
		opts.Notifier = nav.ContextNavigator{}
		return apiclient.New(opts)
	}
}
