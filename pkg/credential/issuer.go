package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultAuthorityHost is the Microsoft identity platform login host.
const DefaultAuthorityHost = "https://login.microsoftonline.com"

// DefaultScope requests the application permissions granted to the client on
// Microsoft Graph.
const DefaultScope = "https://graph.microsoft.com/.default"

// ClientCredentialsConfig describes the confidential client used to obtain
// mail API tokens.
type ClientCredentialsConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	// Authority defaults to DefaultAuthorityHost/TenantID.
	Authority string
	// TokenURL overrides the token endpoint derived from Authority.
	TokenURL string
	// Discovery resolves the token endpoint through OIDC discovery against
	// Issuer instead of deriving it.
	Discovery bool
	// Issuer defaults to Authority + "/v2.0".
	Issuer     string
	Scopes     []string
	HTTPClient *http.Client
}

// ClientCredentialsIssuer runs the OAuth2 client credentials grant.
type ClientCredentialsIssuer struct {
	cfg ClientCredentialsConfig

	mu       sync.Mutex
	tokenURL string
}

// NewClientCredentialsIssuer validates cfg and fills its defaults.
func NewClientCredentialsIssuer(cfg ClientCredentialsConfig) (*ClientCredentialsIssuer, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client-id and client-secret are required")
	}
	if cfg.Authority == "" {
		if cfg.TenantID == "" {
			return nil, errors.New("tenant-id or authority is required")
		}
		cfg.Authority = DefaultAuthorityHost + "/" + cfg.TenantID
	}
	cfg.Authority = strings.TrimRight(cfg.Authority, "/")
	if cfg.Issuer == "" {
		cfg.Issuer = cfg.Authority + "/v2.0"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{DefaultScope}
	}

	i := &ClientCredentialsIssuer{cfg: cfg}
	switch {
	case cfg.TokenURL != "":
		i.tokenURL = cfg.TokenURL
	case !cfg.Discovery:
		i.tokenURL = cfg.Authority + "/oauth2/v2.0/token"
	}
	return i, nil
}

// Issue exchanges the client id and secret for an access token.
func (i *ClientCredentialsIssuer) Issue(ctx context.Context) (string, error) {
	if i.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, i.cfg.HTTPClient)
	}
	tokenURL, err := i.endpoint(ctx)
	if err != nil {
		return "", &AuthError{Description: err.Error(), Err: err}
	}

	cc := &clientcredentials.Config{
		ClientID:     i.cfg.ClientID,
		ClientSecret: i.cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       i.cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	token, err := cc.Token(ctx)
	if err != nil {
		return "", &AuthError{Description: describe(err), Err: fmt.Errorf("client credentials token failed: %w", err)}
	}
	return token.AccessToken, nil
}

// endpoint returns the token URL, discovering it once when configured to.
func (i *ClientCredentialsIssuer) endpoint(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.tokenURL != "" {
		return i.tokenURL, nil
	}
	if i.cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, i.cfg.HTTPClient)
	}
	provider, err := oidc.NewProvider(ctx, i.cfg.Issuer)
	if err != nil {
		return "", fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	i.tokenURL = provider.Endpoint().TokenURL
	return i.tokenURL, nil
}
