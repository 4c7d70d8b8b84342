package servehttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	corsAllowMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	corsAllowHeaders = []string{"Authorization", "Content-Type", "Accept", "Origin", "X-Requested-With"}
	corsMaxAge       = 10 * time.Minute
)

// CORS allows cross-origin requests with credentials from origins, "*"
// allows every origin. Allowed origins are echoed back, never answered with
// a wildcard, so that credentials stay usable.
func CORS(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := map[string]struct{}{}
	for _, o := range origins {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			_, found := allowed[origin]
			return allowAll || found
		},
		AllowMethods:     corsAllowMethods,
		AllowHeaders:     corsAllowHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}
