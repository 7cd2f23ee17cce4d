package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"club-dashboard/internal/httpapi"
	"club-dashboard/internal/obs"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, metrics *obs.Metrics) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// session-scoped: login, landing, workspace, proxy
	h.Register(r)
}
