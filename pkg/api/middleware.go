package api

import (
	"crypto/subtle"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docmail/docmail/pkg/apiresponses"
	"github.com/docmail/docmail/pkg/metrics"
	"github.com/docmail/docmail/pkg/system"
)

const (
	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-ID"
	// longer client-supplied request IDs are replaced
	maxRequestIDLength = 128
)

// requestContext assigns the request ID, echoes it and stores the
// request-scoped logger.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(system.RequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Set(system.ReqLoggerKey, system.EnrichReqLogger(c, s.log))
		c.Next()
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// apiKeyAuth compares X-API-Key with the configured key. Without a configured
// key every request passes.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	expected := []byte(s.config.Server.APIKey)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}
		got := c.GetHeader(apiKeyHeader)
		if got == "" {
			apiresponses.RespondUnauthorized(c, "missing API key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			system.GetReqLogger(c, s.log).Warnw("Rejected request with invalid API key")
			apiresponses.RespondForbidden(c, "invalid API key")
			return
		}
		c.Set(system.APIKeyAuthenticatedKey, true)
		c.Set(system.ReqLoggerKey, system.EnrichReqLogger(c, s.log))
		c.Next()
	}
}
