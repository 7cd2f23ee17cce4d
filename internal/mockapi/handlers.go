package mockapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"club-dashboard/internal/auth"
	"club-dashboard/internal/rbac"
	"club-dashboard/internal/session"
	"club-dashboard/pkg/logger"
)

// Server is the mock upstream API. Handlers are thin: parse input, call the
// directory or token manager, return JSON in the shapes the dashboard consumes.
type Server struct {
	Dir    *Directory
	Tokens *auth.Manager

	// RotateRefresh makes /auth/refresh return a new refresh token and revoke the old one.
	RotateRefresh bool
	Clock         func() time.Time

	// Identities overrides Dir.Identity for /auth/me.
	Identities func(userID string) (session.Identity, error)
}

func (s *Server) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// Register wires the mock API routes onto r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	a := r.Group("/auth")
	{
		a.POST("/login", s.Login)
		a.POST("/otp/request", s.RequestOTP)
		a.POST("/otp/verify", s.VerifyOTP)
		a.POST("/refresh", s.Refresh)
		a.POST("/logout", s.Logout)
		a.GET("/me", auth.RequireAccessToken(s.Tokens, s.now), s.Me)
	}

	scoped := r.Group("")
	scoped.Use(auth.RequireAccessToken(s.Tokens, s.now), rbac.RequireWorkspace(s.Dir))
	{
		scoped.GET("/games", s.ListGames)
		scoped.GET("/transactions", rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin), s.ListTransactions)
	}
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone and password required"})
		return
	}
	uid, err := s.Dir.Authenticate(req.Phone, req.Password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	s.issue(c, uid)
}

func (s *Server) RequestOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone required"})
		return
	}
	s.Dir.RequestOTP(req.Phone, s.now())
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (s *Server) VerifyOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" || req.Code == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "phone and code required"})
		return
	}
	uid, err := s.Dir.VerifyOTP(req.Phone, req.Code, s.now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	s.issue(c, uid)
}

func (s *Server) issue(c *gin.Context, uid string) {
	pair, err := s.Tokens.IssuePair(s.now(), uid)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	id, err := s.Dir.Identity(uid)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"user":         id,
	})
}

// Refresh exchanges a refresh token for a new access token. Any problem
// with the refresh token is a 401.
func (s *Server) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refreshToken required"})
		return
	}
	now := s.now()
	claims, err := s.Tokens.Verify(req.RefreshToken, auth.TokenTypeRefresh, now)
	if err != nil || s.Dir.Revoked(claims.ID, now) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if _, err := s.Dir.Identity(claims.UserID); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	if s.RotateRefresh {
		pair, err := s.Tokens.IssuePair(now, claims.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
			return
		}
		s.Dir.Revoke(claims.ID, expiry(claims.ExpiresAt.Time, now))
		c.JSON(http.StatusOK, gin.H{"accessToken": pair.AccessToken, "refreshToken": pair.RefreshToken})
		return
	}

	access, err := s.Tokens.IssueAccess(now, claims.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access})
}

// Logout revokes the presented refresh token. It always succeeds so
// clients can treat it as fire-and-forget.
func (s *Server) Logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken != "" {
		now := s.now()
		if claims, err := s.Tokens.Verify(req.RefreshToken, auth.TokenTypeRefresh, now); err == nil {
			s.Dir.Revoke(claims.ID, expiry(claims.ExpiresAt.Time, now))
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) Me(c *gin.Context) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user required"})
		return
	}
	lookup := s.Dir.Identity
	if s.Identities != nil {
		lookup = s.Identities
	}
	id, err := lookup(uid)
	if errors.Is(err, ErrUserNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("identity lookup failed", "user_id", uid, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	c.JSON(http.StatusOK, id)
}

func (s *Server) ListGames(c *gin.Context) {
	w, ok := s.workspace(c)
	if !ok {
		return
	}
	games := w.Games
	if games == nil {
		games = []Game{}
	}
	c.JSON(http.StatusOK, gin.H{"workspaceId": w.ID, "games": games})
}

func (s *Server) ListTransactions(c *gin.Context) {
	w, ok := s.workspace(c)
	if !ok {
		return
	}
	txs := w.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"workspaceId": w.ID, "transactions": txs})
}

func (s *Server) workspace(c *gin.Context) (SeedWorkspace, bool) {
	wid, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "x-workspace-id required"})
		return SeedWorkspace{}, false
	}
	w, ok := s.Dir.Workspace(wid)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "workspace not found"})
		return SeedWorkspace{}, false
	}
	return w, true
}

func expiry(exp, now time.Time) time.Time {
	if exp.IsZero() {
		return now.Add(24 * time.Hour)
	}
	return exp
}
