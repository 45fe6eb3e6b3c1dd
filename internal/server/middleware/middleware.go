package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/pkg/config"
)

type Middleware struct {
	security config.SecurityConfig
	logger   zerolog.Logger
}

func NewMiddleware(security config.SecurityConfig, logger zerolog.Logger) *Middleware {
	return &Middleware{
		security: security,
		logger:   logger,
	}
}

func (m *Middleware) SetupMiddleware(router *gin.Engine) {
	logger := m.logger
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.Info().
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status", param.StatusCode).
			Dur("latency", param.Latency).
			Str("client_ip", param.ClientIP).
			Msg("HTTP Request")
		return ""
	}))

	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	})
}

// APIKeyAuth guards the operator API with the static key from config.
// Requests without a matching X-API-Key header are rejected.
func (m *Middleware) APIKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.security.APIKey == "" {
			c.Next()
			return
		}
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.security.APIKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}
