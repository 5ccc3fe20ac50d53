package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders  = "Content-Type, Content-Length, Accept, Origin, Cache-Control, X-Requested-With, " + RequestIDHeader
	corsAllowMethods  = "GET, POST, OPTIONS"
	corsExposeHeaders = "Content-Length, Content-Disposition, " + RequestIDHeader
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing.
// With no allowed origins configured every origin is echoed back, which keeps
// browser front ends on another port working in development.
func CORS(config CORSConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()

		switch {
		case config.AllowAllOrigins:
			// credentials may not be combined with a wildcard origin
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Credentials", "false")
		case len(config.AllowedOrigins) == 0 || IsOriginAllowed(origin, config):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		default:
			c.Next()
			return
		}

		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// IsOriginAllowed reports whether origin may call the API.
func IsOriginAllowed(origin string, config CORSConfig) bool {
	if config.AllowAllOrigins {
		return true
	}
	for _, allowed := range config.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}
