package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNewClientCredentialsIssuer(t *testing.T) {
	tests := []struct {
		name        string
		cfg         ClientCredentialsConfig
		expectError string
		tokenURL    string
	}{
		{
			name:     "tenant derives authority",
			cfg:      ClientCredentialsConfig{ClientID: "id", ClientSecret: "secret", TenantID: "contoso"},
			tokenURL: "https://login.microsoftonline.com/contoso/oauth2/v2.0/token",
		},
		{
			name:     "explicit authority trailing slash",
			cfg:      ClientCredentialsConfig{ClientID: "id", ClientSecret: "secret", Authority: "https://idp.example.com/tenant/"},
			tokenURL: "https://idp.example.com/tenant/oauth2/v2.0/token",
		},
		{
			name:     "explicit token url",
			cfg:      ClientCredentialsConfig{ClientID: "id", ClientSecret: "secret", TenantID: "t", TokenURL: "https://example.com/token"},
			tokenURL: "https://example.com/token",
		},
		{
			name:        "missing secret",
			cfg:         ClientCredentialsConfig{ClientID: "id", TenantID: "t"},
			expectError: "client-id and client-secret are required",
		},
		{
			name:        "missing tenant",
			cfg:         ClientCredentialsConfig{ClientID: "id", ClientSecret: "secret"},
			expectError: "tenant-id or authority is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer, err := NewClientCredentialsIssuer(tt.cfg)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.tokenURL, issuer.tokenURL)
			assert.Equal(t, []string{DefaultScope}, issuer.cfg.Scopes)
		})
	}
}

func TestClientCredentialsIssuerIssue(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "/tenant/oauth2/v2.0/token", r.URL.Path)
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "test-client", r.PostForm.Get("client_id"))
			assert.Equal(t, "test-secret", r.PostForm.Get("client_secret"))
			assert.Equal(t, DefaultScope, r.PostForm.Get("scope"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "graph-token",
				"token_type":   "Bearer",
				"expires_in":   3599,
			})
		})

		issuer, err := NewClientCredentialsIssuer(ClientCredentialsConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			Authority:    server.URL + "/tenant",
			HTTPClient:   server.Client(),
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		token, err := issuer.Issue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "graph-token", token)
	})

	t.Run("error description is surfaced", func(t *testing.T) {
		server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_client",
				"error_description": "AADSTS7000215: Invalid client secret provided.",
			})
		})

		issuer, err := NewClientCredentialsIssuer(ClientCredentialsConfig{
			ClientID:     "test-client",
			ClientSecret: "wrong",
			TokenURL:     server.URL + "/token",
			TenantID:     "tenant",
		})
		require.NoError(t, err)

		_, err = issuer.Issue(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, "AADSTS7000215: Invalid client secret provided.", authErr.Description)
	})

	t.Run("discovery", func(t *testing.T) {
		var server *httptest.Server
		server = newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/tenant/v2.0/.well-known/openid-configuration":
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]string{
					"issuer":                 server.URL + "/tenant/v2.0",
					"token_endpoint":         server.URL + "/discovered/token",
					"authorization_endpoint": server.URL + "/auth",
				})
			case "/discovered/token":
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"access_token": "discovered-token",
					"token_type":   "Bearer",
					"expires_in":   3600,
				})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})

		issuer, err := NewClientCredentialsIssuer(ClientCredentialsConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			Authority:    server.URL + "/tenant",
			Discovery:    true,
			HTTPClient:   server.Client(),
		})
		require.NoError(t, err)
		assert.Empty(t, issuer.tokenURL)

		token, err := issuer.Issue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "discovered-token", token)
		assert.Equal(t, server.URL+"/discovered/token", issuer.tokenURL)
	})

	t.Run("discovery failure", func(t *testing.T) {
		server := newTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		issuer, err := NewClientCredentialsIssuer(ClientCredentialsConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
			Authority:    server.URL,
			Discovery:    true,
		})
		require.NoError(t, err)

		_, err = issuer.Issue(context.Background())
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.Description, "failed to discover OIDC provider")
	})
}
