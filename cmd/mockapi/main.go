package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"club-dashboard/internal/auth"
	"club-dashboard/internal/config"
	"club-dashboard/internal/mockapi"
	"club-dashboard/pkg/logger"
)

// main serves a stand-in for the upstream REST API so the dashboard can
// be run and exercised locally.
func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadMock()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	seed := mockapi.DefaultSeed()
	if cfg.SeedFile != "" {
		if seed, err = mockapi.LoadSeed(cfg.SeedFile); err != nil {
			log.Error("seed load failed", "err", err, "file", cfg.SeedFile)
			os.Exit(1)
		}
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	srv := &mockapi.Server{
		Dir:           mockapi.NewDirectory(seed),
		Tokens:        tokens,
		RotateRefresh: cfg.Auth.RotateRefresh,
	}
	srv.Register(r)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("mock api listening", "addr", httpSrv.Addr, "users", len(seed.Users), "rotate_refresh", cfg.Auth.RotateRefresh)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
