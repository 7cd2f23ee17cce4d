package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"club-dashboard/internal/apiclient"
	"club-dashboard/internal/audit"
	"club-dashboard/internal/config"
	"club-dashboard/internal/httpapi"
	"club-dashboard/internal/nav"
	"club-dashboard/internal/obs"
	"club-dashboard/internal/rbac"
	"club-dashboard/internal/session"
	"club-dashboard/pkg/logger"
	"club-dashboard/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	backend, auditRepo, closeStores, err := openStores(rootCtx, cfg)
	if err != nil {
		log.Error("session store init failed", "err", err, "backend", cfg.Session.Backend)
		os.Exit(1)
	}
	defer closeStores()

	auditSvc := audit.NewService(auditRepo)
	registry := httpapi.NewRegistry(backend, httpapi.NewClientFactory(apiclient.Options{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		RefreshTimeout: cfg.API.RefreshTimeout,
		NetworkRetries: cfg.API.NetworkRetries,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		Metrics:        metrics,
		Audit:          auditSvc,
		Logger:         log,
	}), cfg.Session.TTL)
	go registry.Run(rootCtx, time.Minute)

	if sweeper, ok := backend.(*session.PostgresBackend); ok {
		go sweep(rootCtx, sweeper, cfg.Session.TTL)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(metrics.GinMiddleware())
	if len(cfg.App.CORSOrigins) > 0 {
		r.Use(httpapi.CORS(cfg.App.CORSOrigins))
	}

	registerRoutes(r, httpapi.Handlers{
		Registry: registry,
		Cookie: httpapi.Cookie{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			MaxAge: int(cfg.Session.TTL / time.Second),
		},
		Paths:      nav.Paths{AdminLanding: cfg.Landing.AdminPath, UserLanding: cfg.Landing.UserPath},
		AdminRoles: rbac.NewRoleSet(cfg.Landing.AdminRoles...),
		Metrics:    metrics,
		Audit:      auditSvc,
	}, metrics)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Upstream timeout plus one refresh, with headroom.
		WriteTimeout: cfg.API.Timeout*2 + cfg.API.RefreshTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("dashboard listening", "addr", srv.Addr, "env", cfg.App.Env, "upstream", cfg.API.BaseURL, "session_backend", cfg.Session.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// auditRetention caps the events kept in process when no database is configured.
const auditRetention = 10_000

// openStores builds the session backend and the audit repository for the
// configured backend. The returned func releases their connections.
func openStores(ctx context.Context, cfg config.Config) (session.Backend, audit.Repository, func(), error) {
	switch cfg.Session.Backend {
	case "redis":
		rdb, err := utils.OpenRedis(ctx, cfg.RedisAddr(), utils.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB))
		if err != nil {
			return nil, nil, nil, err
		}
		return session.NewRedisBackend(rdb, cfg.Session.RedisPrefix, cfg.Session.TTL),
			audit.NewBoundedMemoryRepo(auditRetention),
			func() { _ = rdb.Close() },
			nil

	case "postgres":
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		closeDB := func() { _ = db.Close() }
		backend := session.NewPostgresBackend(db)
		repo := audit.NewPostgresRepo(db)
		if err := ensureSchemas(ctx, backend, repo); err != nil {
			closeDB()
			return nil, nil, nil, err
		}
		return backend, repo, closeDB, nil

	default:
		return session.NewMemoryBackend(), audit.NewBoundedMemoryRepo(auditRetention), func() {}, nil
	}
}

func ensureSchemas(ctx context.Context, backend *session.PostgresBackend, repo *audit.PostgresRepo) error {
	if err := backend.EnsureSchema(ctx); err != nil {
		return err
	}
	return repo.EnsureSchema(ctx)
}

// sweep deletes postgres sessions idle for longer than ttl, hourly.
func sweep(ctx context.Context, b *session.PostgresBackend, ttl time.Duration) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := b.Sweep(ctx, now.Add(-ttl))
			if err != nil {
				logger.From(ctx).Warn("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.From(ctx).Info("swept idle sessions", "count", n)
			}
		}
	}
}
