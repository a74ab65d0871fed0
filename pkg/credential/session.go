package credential

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/docmail/docmail/pkg/metrics"
)

// DefaultWindow is how long an issued token is trusted locally. It is shorter
// than the lifetime the identity provider grants and is never derived from it.
const DefaultWindow = 5 * time.Minute

// Credential is an issued bearer token and the instant it stops being used.
// It is immutable; a refresh replaces the whole value.
type Credential struct {
	Token  string
	Expiry time.Time
}

// Valid reports whether the credential may still be used at now.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && now.Before(c.Expiry)
}

// Issuer performs one credential issuance exchange with the identity provider.
type Issuer interface {
	Issue(ctx context.Context) (string, error)
}

// TokenSource hands out a usable bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Session caches the credential for one mail account.
type Session struct {
	issuer Issuer
	window time.Duration
	now    func() time.Time
	log    *zap.SugaredLogger

	mu      sync.RWMutex
	current *Credential
	flight  singleflight.Group
}

// Option configures a Session.
type Option func(*Session)

// WithWindow overrides the local validity window.
func WithWindow(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithLogger sets the session logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// NewSession returns a session that issues credentials through issuer.
func NewSession(issuer Issuer, opts ...Option) *Session {
	s := &Session{
		issuer: issuer,
		window: DefaultWindow,
		now:    time.Now,
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a usable bearer token, running an issuance exchange only when
// no cached credential is valid. Concurrent callers that miss the cache share
// a single exchange. Failures are returned as *AuthError and are not retried.
func (s *Session) Token(ctx context.Context) (string, error) {
	if c := s.cached(); c != nil {
		metrics.CredentialCacheHits.Inc()
		return c.Token, nil
	}

	v, err, _ := s.flight.Do("token", func() (interface{}, error) {
		// Another flight may have refreshed while we were waiting.
		if c := s.cached(); c != nil {
			return c, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(*Credential).Token, nil
}

// Current returns the cached credential, valid or not, or nil.
func (s *Session) Current() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Session) cached() *Credential {
	s.mu.RLock()
	c := s.current
	s.mu.RUnlock()
	if c.Valid(s.now()) {
		return c
	}
	return nil
}

func (s *Session) refresh(ctx context.Context) (*Credential, error) {
	s.log.Debugw("Requesting new access token", "window", s.window.String())

	token, err := s.issuer.Issue(ctx)
	if err == nil && token == "" {
		err = &AuthError{Description: "identity provider returned no access token"}
	}
	if err != nil {
		metrics.CredentialRefreshes.WithLabelValues("failure").Inc()
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			authErr = &AuthError{Description: describe(err), Err: err}
		}
		s.log.Errorw("Failed to acquire access token", "error", authErr.Description)
		return nil, authErr
	}

	c := &Credential{Token: token, Expiry: s.now().Add(s.window)}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()

	metrics.CredentialRefreshes.WithLabelValues("success").Inc()
	s.log.Infow("Acquired new access token", "expiry", c.Expiry.UTC().Format(time.RFC3339))
	return c, nil
}
