package mail

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/codec"
	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/metrics"
)

// SendRequest is an outgoing notice as submitted by a client.
type SendRequest struct {
	// MailTo holds one or more addresses separated by ',' or ';'.
	MailTo      string          `json:"mailTo"`
	Subject     string          `json:"subject"`
	Information document.Fields `json:"information"`
	// Cc is optional and uses the same separators as MailTo.
	Cc string `json:"cc,omitempty"`
}

// AttachmentSummary describes one sent attachment.
type AttachmentSummary struct {
	Filename    string `json:"filename"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
}

// SendDetails echoes what was sent.
type SendDetails struct {
	From                string              `json:"from"`
	To                  []string            `json:"to"`
	Subject             string              `json:"subject"`
	Cc                  []string            `json:"cc,omitempty"`
	Attachments         []AttachmentSummary `json:"attachments,omitempty"`
	TotalAttachmentSize string              `json:"total_attachment_size,omitempty"`
}

// SendResult is returned for a delivered notice.
type SendResult struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    SendDetails `json:"data"`
}

// ValidationError rejects a request before anything is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var addressSeparators = regexp.MustCompile(`[,;]`)

// SplitAddresses splits a ',' or ';' separated list, trimming entries and
// dropping empty ones.
func SplitAddresses(s string) []string {
	var out []string
	for _, part := range addressSeparators.Split(s, -1) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Service renders document notices and hands them to a Sender.
type Service struct {
	sender  Sender
	backend string
	from    string
	codec   *codec.Codec
	wrapper codec.WrapperParams
	logger  *zap.SugaredLogger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCodec replaces the default template codec.
func WithCodec(c *codec.Codec) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithFontSize sets the font size of the wrapping block.
func WithFontSize(px int) ServiceOption {
	return func(s *Service) {
		s.wrapper.FontSize = px
	}
}

// NewService returns a Service sending as from through sender. backend names
// the sender in logs and metrics.
func NewService(sender Sender, backend, from string, logger *zap.SugaredLogger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Service{
		sender:  sender,
		backend: backend,
		from:    from,
		codec:   codec.Default(),
		logger:  logger.Named("mail-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func reject(field, reason, format string, args ...any) *ValidationError {
	metrics.MailSendRejected.WithLabelValues(reason).Inc()
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Send validates req, encodes its information into the document template and
// sends it with the attachments. Validation failures are returned as
// *ValidationError and nothing is sent.
func (s *Service) Send(ctx context.Context, req SendRequest, attachments []document.Attachment) (SendResult, error) {
	if strings.TrimSpace(req.MailTo) == "" {
		return SendResult{}, reject("mailTo", "missing_recipient", "field 'mailTo' is required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return SendResult{}, reject("subject", "missing_subject", "field 'subject' is required")
	}
	if len(req.Information) == 0 {
		return SendResult{}, reject("information", "missing_information", "field 'information' is required")
	}
	to := SplitAddresses(req.MailTo)
	if len(to) == 0 {
		return SendResult{}, reject("mailTo", "missing_recipient", "please provide a valid recipient address")
	}
	cc := SplitAddresses(req.Cc)

	total := document.TotalSize(attachments)
	if total > document.MaxAttachmentBytes {
		return SendResult{}, reject("files", "attachments_too_large",
			"total attachment size exceeds the 25MB limit (current: %.2fMB)", float64(total)/1024/1024)
	}

	atts := make([]document.Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a.ContentType == "" {
			a.ContentType = document.DefaultContentType
		}
		atts = append(atts, a)
	}

	body, err := codec.WrapHTML(s.codec.Encode(req.Information), s.wrapper)
	if err != nil {
		return SendResult{}, fmt.Errorf("rendering mail body: %w", err)
	}

	msg := document.OutgoingMessage{
		Subject:     req.Subject,
		HTMLBody:    body,
		To:          to,
		Cc:          cc,
		Attachments: atts,
	}
	if err := s.sender.SendMail(ctx, msg); err != nil {
		metrics.MailSendFailure.WithLabelValues(s.backend).Inc()
		s.logger.Errorw("Failed to send document notice",
			"backend", s.backend, "to", to, "subject", req.Subject, "error", err)
		return SendResult{}, fmt.Errorf("sending mail: %w", err)
	}
	metrics.MailSendSuccess.WithLabelValues(s.backend).Inc()
	metrics.MailAttachmentBytes.Observe(float64(total))

	s.logger.Infow("Document notice sent",
		"backend", s.backend,
		"to", to,
		"cc", cc,
		"docNumber", req.Information[document.FieldDocNumber],
		"attachments", len(atts))

	return SendResult{
		Success: true,
		Message: successMessage(len(atts)),
		Data:    details(s.from, to, cc, req.Subject, atts, total),
	}, nil
}

func successMessage(n int) string {
	if n == 0 {
		return "Email sent successfully"
	}
	return fmt.Sprintf("Email sent successfully with %d attachment(s)", n)
}

func details(from string, to, cc []string, subject string, atts []document.Attachment, total int64) SendDetails {
	d := SendDetails{From: from, To: to, Subject: subject, Cc: cc}
	if len(atts) == 0 {
		return d
	}
	for _, a := range atts {
		d.Attachments = append(d.Attachments, AttachmentSummary{
			Filename:    a.Filename,
			Size:        len(a.Content),
			ContentType: a.ContentType,
		})
	}
	d.TotalAttachmentSize = fmt.Sprintf("%.2f KB", float64(total)/1024)
	return d
}
