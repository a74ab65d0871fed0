package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/docmail/docmail/pkg/codec"
	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/metrics"
)

type fakeSender struct {
	sent []document.OutgoingMessage
	err  error
}

func (f *fakeSender) SendMail(ctx context.Context, msg document.OutgoingMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func information() document.Fields {
	return document.Fields{
		"docNumber": "123/CV", "docTime": "2024-01-15", "docSigner": "A",
		"docPageNumber": "5", "docPriority": "Khan", "docKeyword": "CV",
		"docSecurity": "Normal", "docId": "CV-123", "returnEmail": "r@x.com",
	}
}

func newTestService(t *testing.T, sender Sender, opts ...ServiceOption) *Service {
	t.Helper()
	return NewService(sender, "graph", "ops@example.com", zaptest.NewLogger(t).Sugar(), opts...)
}

func TestSplitAddresses(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "a@x.com", want: []string{"a@x.com"}},
		{in: "a@x.com, b@x.com;c@x.com", want: []string{"a@x.com", "b@x.com", "c@x.com"}},
		{in: " ; ,a@x.com,, ", want: []string{"a@x.com"}},
		{in: "", want: nil},
		{in: " ; ", want: nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitAddresses(tt.in), "input %q", tt.in)
	}
}

func TestServiceSend(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender)

	res, err := svc.Send(context.Background(), SendRequest{
		MailTo:      "a@example.com; b@example.com",
		Subject:     "Notice 123",
		Information: information(),
	}, nil)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "Email sent successfully", res.Message)
	assert.Equal(t, "ops@example.com", res.Data.From)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, res.Data.To)
	assert.Nil(t, res.Data.Cc)
	assert.Empty(t, res.Data.Attachments)
	assert.Empty(t, res.Data.TotalAttachmentSize)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "Notice 123", msg.Subject)
	assert.Nil(t, msg.Cc)

	doc, ok := codec.Decode(msg.HTMLBody)
	require.True(t, ok)
	assert.Equal(t, information(), doc.Fields())
	assert.Contains(t, msg.HTMLBody, "font-size: 14px")
}

func TestServiceSendWithAttachmentsAndCc(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, WithFontSize(18))

	res, err := svc.Send(context.Background(), SendRequest{
		MailTo:      "a@example.com",
		Subject:     "Notice",
		Information: information(),
		Cc:          "boss@example.com, ",
	}, []document.Attachment{
		{Filename: "notice.pdf", Content: bytes.Repeat([]byte("x"), 2048), ContentType: "application/pdf"},
		{Filename: "scan.bin", Content: []byte("abc")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Email sent successfully with 2 attachment(s)", res.Message)
	assert.Equal(t, []string{"boss@example.com"}, res.Data.Cc)
	require.Len(t, res.Data.Attachments, 2)
	assert.Equal(t, AttachmentSummary{Filename: "notice.pdf", Size: 2048, ContentType: "application/pdf"}, res.Data.Attachments[0])
	assert.Equal(t, document.DefaultContentType, res.Data.Attachments[1].ContentType)
	assert.Equal(t, "2.00 KB", res.Data.TotalAttachmentSize)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"boss@example.com"}, sender.sent[0].Cc)
	assert.Equal(t, document.DefaultContentType, sender.sent[0].Attachments[1].ContentType)
	assert.Contains(t, sender.sent[0].HTMLBody, "font-size: 18px")
}

func TestServiceSendValidation(t *testing.T) {
	tooLarge := []document.Attachment{
		{Filename: "a", Content: make([]byte, document.MaxAttachmentBytes/2+1)},
		{Filename: "b", Content: make([]byte, document.MaxAttachmentBytes/2+1)},
	}

	tests := []struct {
		name        string
		req         SendRequest
		atts        []document.Attachment
		field       string
		contains    string
		rejectLabel string
	}{
		{
			name:        "missing mailTo",
			req:         SendRequest{Subject: "s", Information: information()},
			field:       "mailTo",
			contains:    "mailTo",
			rejectLabel: "missing_recipient",
		},
		{
			name:        "only separators in mailTo",
			req:         SendRequest{MailTo: " ; , ", Subject: "s", Information: information()},
			field:       "mailTo",
			contains:    "valid recipient",
			rejectLabel: "missing_recipient",
		},
		{
			name:        "missing subject",
			req:         SendRequest{MailTo: "a@x.com", Subject: "  ", Information: information()},
			field:       "subject",
			contains:    "subject",
			rejectLabel: "missing_subject",
		},
		{
			name:        "missing information",
			req:         SendRequest{MailTo: "a@x.com", Subject: "s"},
			field:       "information",
			contains:    "information",
			rejectLabel: "missing_information",
		},
		{
			name:        "empty information",
			req:         SendRequest{MailTo: "a@x.com", Subject: "s", Information: document.Fields{}},
			field:       "information",
			contains:    "information",
			rejectLabel: "missing_information",
		},
		{
			name:        "attachments over limit",
			req:         SendRequest{MailTo: "a@x.com", Subject: "s", Information: information()},
			atts:        tooLarge,
			field:       "files",
			contains:    "25MB",
			rejectLabel: "attachments_too_large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			svc := newTestService(t, sender)
			before := testutil.ToFloat64(metrics.MailSendRejected.WithLabelValues(tt.rejectLabel))

			_, err := svc.Send(context.Background(), tt.req, tt.atts)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Contains(t, ve.Error(), tt.contains)
			assert.Empty(t, sender.sent, "nothing may be sent after a validation failure")
			assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailSendRejected.WithLabelValues(tt.rejectLabel)))
		})
	}
}

func TestServiceSendExactlyAtLimit(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender)

	_, err := svc.Send(context.Background(), SendRequest{MailTo: "a@x.com", Subject: "s", Information: information()},
		[]document.Attachment{{Filename: "max", Content: make([]byte, document.MaxAttachmentBytes)}})
	require.NoError(t, err)
	assert.Len(t, sender.sent, 1)
}

func TestServiceSendSenderFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("mail API returned status 500")}
	svc := newTestService(t, sender)
	before := testutil.ToFloat64(metrics.MailSendFailure.WithLabelValues("graph"))

	_, err := svc.Send(context.Background(), SendRequest{MailTo: "a@x.com", Subject: "s", Information: information()}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sending mail")
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailSendFailure.WithLabelValues("graph")))
}

func TestServiceSendCustomTemplate(t *testing.T) {
	sender := &fakeSender{}
	svc := newTestService(t, sender, WithCodec(codec.New("No. {docNumber}")))

	_, err := svc.Send(context.Background(), SendRequest{MailTo: "a@x.com", Subject: "s", Information: information()}, nil)
	require.NoError(t, err)
	assert.Contains(t, sender.sent[0].HTMLBody, "No. 123/CV")
}
