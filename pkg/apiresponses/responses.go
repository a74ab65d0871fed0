/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apiresponses

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// APIError is the body of every non-2xx docmail response.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes carried in APIError.Code.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeValidation      = "VALIDATION_FAILED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeTooManyRequests = "RATE_LIMITED"
	CodeInternal        = "INTERNAL_ERROR"
	CodeBadGateway      = "BAD_GATEWAY"
)

func respond(c *gin.Context, status int, body APIError) {
	c.AbortWithStatusJSON(status, body)
}

// RespondBadRequest sends a 400 for malformed input such as unparsable JSON.
func RespondBadRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, APIError{Error: message, Code: CodeBadRequest})
}

// RespondBadRequestWithDetails sends a 400 with the underlying parse error attached.
func RespondBadRequestWithDetails(c *gin.Context, message, details string) {
	respond(c, http.StatusBadRequest, APIError{Error: message, Code: CodeBadRequest, Details: details})
}

// RespondValidationFailed sends a 400 naming the rejected request field.
func RespondValidationFailed(c *gin.Context, field, message string) {
	respond(c, http.StatusBadRequest, APIError{Error: message, Code: CodeValidation, Details: field})
}

// RespondUnauthorized sends a 401. An empty message falls back to a generic one.
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "missing API key"
	}
	respond(c, http.StatusUnauthorized, APIError{Error: message, Code: CodeUnauthorized})
}

// RespondForbidden sends a 403.
func RespondForbidden(c *gin.Context, reason string) {
	if reason == "" {
		reason = "access denied"
	}
	respond(c, http.StatusForbidden, APIError{Error: reason, Code: CodeForbidden})
}

// RespondNotFound sends a 404 for an unknown resource.
func RespondNotFound(c *gin.Context, resourceType, resourceName string) {
	respond(c, http.StatusNotFound, APIError{
		Error: fmt.Sprintf("%s not found: %s", resourceType, resourceName),
		Code:  CodeNotFound,
	})
}

// RespondTooManyRequests sends a 429.
func RespondTooManyRequests(c *gin.Context) {
	respond(c, http.StatusTooManyRequests, APIError{
		Error: "rate limit exceeded, please try again later",
		Code:  CodeTooManyRequests,
	})
}

// RespondInternalError logs err and sends a 500. The error text goes into
// Details so callers can tell a credential failure from a mailbox outage.
func RespondInternalError(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Errorw(fmt.Sprintf("Failed to %s", operation), "error", err)
	}
	body := APIError{Error: fmt.Sprintf("failed to %s", operation), Code: CodeInternal}
	if err != nil {
		body.Details = err.Error()
	}
	respond(c, http.StatusInternalServerError, body)
}

// RespondBadGateway sends a 502 when the remote mail API answered with an
// error of its own.
func RespondBadGateway(c *gin.Context, operation string, err error, log *zap.SugaredLogger) {
	if log != nil {
		log.Warnw(fmt.Sprintf("Upstream rejected %s", operation), "error", err)
	}
	body := APIError{Error: fmt.Sprintf("mail API rejected %s", operation), Code: CodeBadGateway}
	if err != nil {
		body.Details = err.Error()
	}
	respond(c, http.StatusBadGateway, body)
}

// RespondOK sends a 200 with data as the JSON body.
func RespondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}
