package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"club-dashboard/pkg/logger"
)

// CORS allows a browser app served from origins to call the dashboard with
// its session cookie and read the navigation headers.
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders:     []string{"Content-Type", "Accept", "Accept-Language", "Origin", logger.HeaderRequestID},
		ExposeHeaders:    []string{HeaderRedirect, HeaderNotice, logger.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
