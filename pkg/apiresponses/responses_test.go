package apiresponses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var resp APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestResponders(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	tests := []struct {
		name    string
		respond func(c *gin.Context)
		status  int
		want    APIError
	}{
		{
			name:    "bad request",
			respond: func(c *gin.Context) { RespondBadRequest(c, "invalid data") },
			status:  http.StatusBadRequest,
			want:    APIError{Error: "invalid data", Code: CodeBadRequest},
		},
		{
			name:    "bad request with details",
			respond: func(c *gin.Context) { RespondBadRequestWithDetails(c, "invalid JSON", "unexpected EOF") },
			status:  http.StatusBadRequest,
			want:    APIError{Error: "invalid JSON", Code: CodeBadRequest, Details: "unexpected EOF"},
		},
		{
			name:    "validation failed",
			respond: func(c *gin.Context) { RespondValidationFailed(c, "subject", "subject is required") },
			status:  http.StatusBadRequest,
			want:    APIError{Error: "subject is required", Code: CodeValidation, Details: "subject"},
		},
		{
			name:    "unauthorized default message",
			respond: func(c *gin.Context) { RespondUnauthorized(c, "") },
			status:  http.StatusUnauthorized,
			want:    APIError{Error: "missing API key", Code: CodeUnauthorized},
		},
		{
			name:    "forbidden",
			respond: func(c *gin.Context) { RespondForbidden(c, "invalid API key") },
			status:  http.StatusForbidden,
			want:    APIError{Error: "invalid API key", Code: CodeForbidden},
		},
		{
			name:    "forbidden default reason",
			respond: func(c *gin.Context) { RespondForbidden(c, "") },
			status:  http.StatusForbidden,
			want:    APIError{Error: "access denied", Code: CodeForbidden},
		},
		{
			name:    "not found",
			respond: func(c *gin.Context) { RespondNotFound(c, "message", "AAMk") },
			status:  http.StatusNotFound,
			want:    APIError{Error: "message not found: AAMk", Code: CodeNotFound},
		},
		{
			name:    "too many requests",
			respond: RespondTooManyRequests,
			status:  http.StatusTooManyRequests,
			want:    APIError{Error: "rate limit exceeded, please try again later", Code: CodeTooManyRequests},
		},
		{
			name:    "internal error",
			respond: func(c *gin.Context) { RespondInternalError(c, "send email", errors.New("token endpoint down"), log) },
			status:  http.StatusInternalServerError,
			want:    APIError{Error: "failed to send email", Code: CodeInternal, Details: "token endpoint down"},
		},
		{
			name:    "internal error without logger",
			respond: func(c *gin.Context) { RespondInternalError(c, "list documents", nil, nil) },
			status:  http.StatusInternalServerError,
			want:    APIError{Error: "failed to list documents", Code: CodeInternal},
		},
		{
			name:    "bad gateway",
			respond: func(c *gin.Context) { RespondBadGateway(c, "listAttachments", errors.New("status 404"), log) },
			status:  http.StatusBadGateway,
			want:    APIError{Error: "mail API rejected listAttachments", Code: CodeBadGateway, Details: "status 404"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			tt.respond(c)

			assert.Equal(t, tt.status, w.Code)
			assert.True(t, c.IsAborted())
			assert.Equal(t, tt.want, decode(t, w))
		})
	}
}

func TestRespondOK(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondOK(c, gin.H{"status": "running"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"running"}`, w.Body.String())
}
