// Package graph is the mailbox adapter for the Microsoft Graph mail API. Every
// call goes through an invoker so credentials and retries are handled in one
// place.
package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/invoker"
	"github.com/docmail/docmail/pkg/system"
	"github.com/docmail/docmail/pkg/version"
)

// DefaultBaseURL is the Microsoft Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// DefaultPageSize is how many unread messages one listing returns.
const DefaultPageSize = 50

// Operation names used for logs, metrics and spans.
const (
	OpListUnread      = "listUnread"
	OpSendMail        = "sendMail"
	OpMarkRead        = "markRead"
	OpListAttachments = "listAttachments"
)

// Caller executes one authenticated call against the mail API.
type Caller interface {
	Do(ctx context.Context, op string, build invoker.RequestBuilder) (invoker.Result, error)
}

// Client is bound to one mailbox on the Graph API.
type Client struct {
	baseURL  string
	user     string
	pageSize int
	calls    Caller
	log      *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Graph endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New returns a client for the mailbox of user.
func New(user string, calls Caller, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		user:     user,
		pageSize: DefaultPageSize,
		calls:    calls,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns the instrumented HTTP client used for Graph calls.
// Timeouts are applied per attempt by the invoker.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// User returns the mailbox address the client acts on.
func (c *Client) User() string { return c.user }

func (c *Client) userURL(parts ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/users/")
	b.WriteString(url.PathEscape(c.user))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(p)
	}
	return b.String()
}

func jsonRequest(ctx context.Context, method, target string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

// expect turns an invoker result into the response when its status is one of
// codes, or into a StatusError or TransportError otherwise.
func expect(op string, res invoker.Result, codes ...int) (*invoker.Response, error) {
	switch res.Outcome {
	case invoker.FatalTransportError:
		return nil, &TransportError{Operation: op, Err: res.Err}
	case invoker.ExhaustedRetries:
		return nil, &StatusError{Operation: op, StatusCode: res.Response.StatusCode, Body: truncate(res.Response.Body), Exhausted: true}
	}
	if !res.Response.Is(codes...) {
		return nil, &StatusError{Operation: op, StatusCode: res.Response.StatusCode, Body: truncate(res.Response.Body)}
	}
	return res.Response, nil
}

// ListUnread returns the newest unread messages, newest first.
func (c *Client) ListUnread(ctx context.Context) ([]document.Message, error) {
	q := url.Values{}
	q.Set("$filter", "isRead eq false")
	q.Set("$select", "id,subject,from,receivedDateTime,body")
	q.Set("$top", strconv.Itoa(c.pageSize))
	q.Set("$orderby", "receivedDateTime DESC")
	target := c.userURL("messages") + "?" + q.Encode()

	res, err := c.calls.Do(ctx, OpListUnread, func(ctx context.Context) (*http.Request, error) {
		return jsonRequest(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, err
	}
	resp, err := expect(OpListUnread, res, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var list messageList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", OpListUnread, err)
	}
	out := make([]document.Message, 0, len(list.Value))
	for _, m := range list.Value {
		msg := document.Message{
			ID:               m.ID,
			Subject:          m.Subject,
			ReceivedDateTime: m.ReceivedDateTime,
			Body:             m.Body.Content,
		}
		if m.From != nil {
			msg.From = m.From.EmailAddress.Address
		}
		out = append(out, msg)
	}
	c.log.Debugw("Listed unread messages", "user", c.user, "count", len(out))
	return out, nil
}

// SendMail sends msg from the bound mailbox. Only 202 Accepted is success.
func (c *Client) SendMail(ctx context.Context, msg document.OutgoingMessage) error {
	out := outgoingMessage{
		Subject:      msg.Subject,
		Body:         itemBody{ContentType: "HTML", Content: msg.HTMLBody},
		ToRecipients: recipients(msg.To),
		CcRecipients: recipients(msg.Cc),
	}
	for _, a := range msg.Attachments {
		ct := a.ContentType
		if ct == "" {
			ct = document.DefaultContentType
		}
		out.Attachments = append(out.Attachments, fileAttachment{
			ODataType:    fileAttachmentType,
			Name:         a.Filename,
			ContentType:  ct,
			ContentBytes: base64.StdEncoding.EncodeToString(a.Content),
		})
	}
	payload, err := json.Marshal(sendMailRequest{Message: out})
	if err != nil {
		return fmt.Errorf("%s: encoding request: %w", OpSendMail, err)
	}

	target := c.userURL("sendMail")
	res, err := c.calls.Do(ctx, OpSendMail, func(ctx context.Context) (*http.Request, error) {
		return jsonRequest(ctx, http.MethodPost, target, payload)
	})
	if err != nil {
		return err
	}
	if _, err := expect(OpSendMail, res, http.StatusAccepted); err != nil {
		return err
	}
	c.log.Infow("Mail accepted by Graph", "user", c.user, "to", msg.To, "cc", msg.Cc, "attachments", len(msg.Attachments))
	return nil
}

// MarkRead flags the message as read. A refusal by the API is reported as
// false and logged; only an unreachable API is an error.
func (c *Client) MarkRead(ctx context.Context, id string) (bool, error) {
	payload, err := json.Marshal(markReadRequest{IsRead: true})
	if err != nil {
		return false, err
	}
	target := c.userURL("messages", url.PathEscape(id))
	res, err := c.calls.Do(ctx, OpMarkRead, func(ctx context.Context) (*http.Request, error) {
		return jsonRequest(ctx, http.MethodPatch, target, payload)
	})
	if err != nil {
		return false, err
	}
	if _, err := expect(OpMarkRead, res, http.StatusOK, http.StatusNoContent); err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return false, err
		}
		c.log.Warnw("Mark as read failed", append(system.MessageFields(id, ""), "error", err)...)
		return false, nil
	}
	return true, nil
}

// ListAttachments returns attachment metadata for the message.
func (c *Client) ListAttachments(ctx context.Context, id string) ([]AttachmentInfo, error) {
	q := url.Values{}
	q.Set("$select", "id,name,contentType,size,isInline,lastModifiedDateTime")
	target := c.userURL("messages", url.PathEscape(id), "attachments") + "?" + q.Encode()

	res, err := c.calls.Do(ctx, OpListAttachments, func(ctx context.Context) (*http.Request, error) {
		return jsonRequest(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, err
	}
	resp, err := expect(OpListAttachments, res, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var list attachmentList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", OpListAttachments, err)
	}
	if list.Value == nil {
		list.Value = []AttachmentInfo{}
	}
	return list.Value, nil
}
