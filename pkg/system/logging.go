// SPDX-FileCopyrightText: 2026 docmail authors
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ReqLoggerKey is the gin context key holding the request-scoped logger.
	ReqLoggerKey = "reqLogger"
	// RequestIDKey is the gin context key holding the request ID.
	RequestIDKey = "requestId"
	// APIKeyAuthenticatedKey is set by the API key middleware when a key matched.
	APIKeyAuthenticatedKey = "apiKeyAuthenticated"
)

// GetReqLogger returns the request-scoped sugared logger from gin.Context if present,
// otherwise the fallback.
func GetReqLogger(c *gin.Context, fallback *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.SugaredLogger); ok2 {
			return l
		}
	}
	return fallback
}

// EnrichReqLogger attaches the request ID, client IP and authentication state
// found in the gin context to reqLogger.
func EnrichReqLogger(c *gin.Context, reqLogger *zap.SugaredLogger) *zap.SugaredLogger {
	if c == nil || reqLogger == nil {
		return reqLogger
	}
	if v, ok := c.Get(RequestIDKey); ok {
		if id, ok2 := v.(string); ok2 && id != "" {
			reqLogger = reqLogger.With("requestId", id)
		}
	}
	if c.Request != nil {
		reqLogger = reqLogger.With("clientIP", c.ClientIP())
	}
	if c.GetBool(APIKeyAuthenticatedKey) {
		reqLogger = reqLogger.With("apiKey", true)
	}
	return reqLogger
}

// MessageFields returns key/value pairs identifying a mailbox message for
// SugaredLogger.With or the *w logging calls. The subject is only included
// when known.
func MessageFields(id, subject string) []interface{} {
	if subject == "" {
		return []interface{}{"messageId", id}
	}
	return []interface{}{"messageId", id, "subject", subject}
}
