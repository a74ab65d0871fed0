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

package invoker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/credential"
	"github.com/docmail/docmail/pkg/metrics"
)

// Config holds the retry policy.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt; each further
	// wait doubles it (1s, 2s, 4s, ...).
	BaseDelay time.Duration
	// AttemptTimeout bounds a single attempt. An attempt that times out is
	// treated like any other transport failure. A negative value disables
	// the bound.
	AttemptTimeout time.Duration
	// TransientStatuses are the response codes that are retried.
	TransientStatuses []int
}

// DefaultConfig returns the retry policy used against the mail API.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		AttemptTimeout:    30 * time.Second,
		TransientStatuses: []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
	}
}

// RequestBuilder creates the request for one attempt. It is called again for
// every retry so request bodies are never reused.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Invoker executes mail API calls with credentials and retries.
type Invoker struct {
	client *http.Client
	tokens credential.TokenSource
	cfg    Config
	sleep  Sleeper
	log    *zap.SugaredLogger
	tracer trace.Tracer
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithConfig replaces the retry policy. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(i *Invoker) {
		if cfg.MaxAttempts > 0 {
			i.cfg.MaxAttempts = cfg.MaxAttempts
		}
		if cfg.BaseDelay > 0 {
			i.cfg.BaseDelay = cfg.BaseDelay
		}
		if cfg.AttemptTimeout != 0 {
			i.cfg.AttemptTimeout = cfg.AttemptTimeout
		}
		if len(cfg.TransientStatuses) > 0 {
			i.cfg.TransientStatuses = cfg.TransientStatuses
		}
	}
}

// WithSleeper replaces the backoff wait, for tests.
func WithSleeper(s Sleeper) Option {
	return func(i *Invoker) {
		i.sleep = s
	}
}

// New returns an Invoker sending requests through client, authenticated with
// tokens from the given source.
func New(client *http.Client, tokens credential.TokenSource, log *zap.SugaredLogger, opts ...Option) *Invoker {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	i := &Invoker{
		client: client,
		tokens: tokens,
		cfg:    DefaultConfig(),
		sleep:  sleepContext,
		log:    log,
		tracer: otel.Tracer("github.com/docmail/docmail/pkg/invoker"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// buildError marks a failure to construct the request, which is never retried.
type buildError struct {
	err error
}

func (e *buildError) Error() string { return e.err.Error() }

// Do runs the call named op. The returned error is non-nil only when no
// credential could be obtained (*credential.AuthError) or the request could
// not be built; every remote outcome is reported through Result.
func (i *Invoker) Do(ctx context.Context, op string, build RequestBuilder) (Result, error) {
	ctx, span := i.tracer.Start(ctx, "mailapi."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RemoteCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var (
		last    *Response
		lastErr error
	)
	for attempt := 0; attempt < i.cfg.MaxAttempts; attempt++ {
		token, err := i.tokens.Token(ctx)
		if err != nil {
			metrics.RemoteCalls.WithLabelValues(op, "auth_failure").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "credential unavailable")
			return Result{}, err
		}

		resp, err := i.attempt(ctx, build, token)
		var reason string
		switch {
		case err != nil:
			var be *buildError
			if errors.As(err, &be) {
				span.RecordError(be.err)
				span.SetStatus(codes.Error, "request build failed")
				return Result{}, fmt.Errorf("building %s request: %w", op, be.err)
			}
			last, lastErr = nil, err
			reason = "transport"
		case i.transient(resp.StatusCode):
			last, lastErr = resp, nil
			reason = fmt.Sprintf("status_%d", resp.StatusCode)
		default:
			return i.finish(span, op, Result{Outcome: Success, Response: resp, Attempts: attempt + 1}), nil
		}

		if attempt == i.cfg.MaxAttempts-1 {
			break
		}

		delay := i.cfg.BaseDelay << attempt
		i.log.Warnw("Mail API call failed, retrying",
			"operation", op,
			"attempt", attempt+1,
			"maxAttempts", i.cfg.MaxAttempts,
			"reason", reason,
			"error", err,
			"retryIn", delay.String())
		metrics.RemoteRetries.WithLabelValues(op, reason).Inc()

		if err := i.sleep(ctx, delay); err != nil {
			return i.finish(span, op, Result{Outcome: FatalTransportError, Err: err, Attempts: attempt + 1}), nil
		}
	}

	if lastErr != nil {
		i.log.Errorw("Mail API call failed after all attempts",
			"operation", op, "attempts", i.cfg.MaxAttempts, "error", lastErr)
		return i.finish(span, op, Result{Outcome: FatalTransportError, Err: lastErr, Attempts: i.cfg.MaxAttempts}), nil
	}
	i.log.Warnw("Mail API still unavailable after all attempts",
		"operation", op, "attempts", i.cfg.MaxAttempts, "status", last.StatusCode)
	return i.finish(span, op, Result{Outcome: ExhaustedRetries, Response: last, Attempts: i.cfg.MaxAttempts}), nil
}

func (i *Invoker) finish(span trace.Span, op string, r Result) Result {
	metrics.RemoteCalls.WithLabelValues(op, r.Outcome.String()).Inc()
	span.SetAttributes(
		attribute.String("docmail.outcome", r.Outcome.String()),
		attribute.Int("docmail.attempts", r.Attempts),
	)
	if r.Response != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", r.Response.StatusCode))
	}
	if r.Outcome != Success {
		if r.Err != nil {
			span.RecordError(r.Err)
		}
		span.SetStatus(codes.Error, r.Outcome.String())
	}
	return r
}

// attempt performs one request and reads the whole body so the per-attempt
// timeout can be released before the caller looks at the response.
func (i *Invoker) attempt(ctx context.Context, build RequestBuilder, token string) (*Response, error) {
	if i.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.AttemptTimeout)
		defer cancel()
	}

	req, err := build(ctx)
	if err != nil {
		return nil, &buildError{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (i *Invoker) transient(status int) bool {
	return slices.Contains(i.cfg.TransientStatuses, status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
