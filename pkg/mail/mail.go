package mail

import (
	"context"
	"crypto/tls"
	"io"
	"math"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/docmail/docmail/pkg/config"
	"github.com/docmail/docmail/pkg/document"
)

// Sender delivers a rendered notice through one mail backend.
type Sender interface {
	SendMail(ctx context.Context, msg document.OutgoingMessage) error
}

// SMTPSender delivers mail over SMTP with its own retry loop.
type SMTPSender struct {
	dialer         *gomail.Dialer
	senderAddress  string
	senderName     string
	retryCount     int
	retryBackoffMs int
	log            *zap.SugaredLogger
}

func NewSMTPSender(cfg config.SMTP, log *zap.SugaredLogger) *SMTPSender {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("smtp")
	log.Infow("Initializing SMTP sender", "host", cfg.Host, "port", cfg.Port, "user", cfg.User)
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for SMTP TLS connection", "host", cfg.Host)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit opt-in
	}

	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = 3
	}
	retryBackoffMs := cfg.RetryBackoffMs
	if retryBackoffMs <= 0 {
		retryBackoffMs = 100
	}

	return &SMTPSender{
		dialer:         d,
		senderAddress:  cfg.SenderAddress,
		senderName:     cfg.SenderName,
		retryCount:     retryCount,
		retryBackoffMs: retryBackoffMs,
		log:            log,
	}
}

func (s *SMTPSender) buildMessage(msg document.OutgoingMessage) *gomail.Message {
	m := gomail.NewMessage()
	if s.senderName != "" {
		m.SetAddressHeader("From", s.senderAddress, s.senderName)
	} else {
		m.SetHeader("From", s.senderAddress)
	}
	m.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	for _, a := range msg.Attachments {
		content := a.Content
		ct := a.ContentType
		if ct == "" {
			ct = document.DefaultContentType
		}
		m.Attach(a.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {ct}}),
		)
	}
	return m
}

// SendMail dials the server and sends msg, retrying with exponential backoff.
func (s *SMTPSender) SendMail(ctx context.Context, msg document.OutgoingMessage) error {
	s.log.Debugw("Preparing to send mail", "to", len(msg.To), "cc", len(msg.Cc), "subject", msg.Subject)
	m := s.buildMessage(msg)

	var lastErr error
	backoffMs := s.retryBackoffMs

	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(m)
		if err == nil {
			s.log.Infow("Mail sent", "to", len(msg.To), "attempt", attempt+1)
			return nil
		}

		lastErr = err
		if attempt == s.retryCount {
			s.log.Errorw("Failed to send mail after all attempts", "attempts", s.retryCount+1, "error", err)
			break
		}
		s.log.Warnw("Send attempt failed, retrying", "attempt", attempt+1, "error", err, "retryInMs", backoffMs)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(backoffMs) * time.Millisecond):
		}
		backoffMs = int(math.Min(float64(backoffMs)*2, 32000)) // cap at ~32 seconds
	}
	return lastErr
}

func (s *SMTPSender) Host() string {
	return s.dialer.Host
}

func (s *SMTPSender) Port() int {
	return s.dialer.Port
}
