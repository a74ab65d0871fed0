// Package ingest turns unread mailbox messages into structured document
// records and marks the matched ones read.
package ingest

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/docmail/docmail/pkg/codec"
	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/metrics"
	"github.com/docmail/docmail/pkg/system"
)

// Mailbox is a source of unread messages.
type Mailbox interface {
	// ListUnread returns unread messages, newest first.
	ListUnread(ctx context.Context) ([]document.Message, error)
	// MarkRead flags one message as read. false means the backend refused.
	MarkRead(ctx context.Context, id string) (bool, error)
}

// Decoder extracts a document from a raw message body.
type Decoder interface {
	Decode(rawBody string) (document.Document, bool)
}

// Result is the outcome of one ingestion run.
type Result struct {
	Records    []document.IncomingRecord
	MarkedRead int
}

// Pipeline runs ingestion against one mailbox.
type Pipeline struct {
	mailbox Mailbox
	decoder Decoder
	log     *zap.SugaredLogger
	tracer  trace.Tracer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDecoder replaces the default codec.
func WithDecoder(d Decoder) Option {
	return func(p *Pipeline) {
		if d != nil {
			p.decoder = d
		}
	}
}

// NewPipeline returns a pipeline reading from mb.
func NewPipeline(mb Mailbox, log *zap.SugaredLogger, opts ...Option) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Pipeline{
		mailbox: mb,
		decoder: codec.Default(),
		log:     log,
		tracer:  otel.Tracer("github.com/docmail/docmail/pkg/ingest"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest lists unread messages, decodes each one in order and marks every
// decoded message read right after its record is taken. Messages that do not
// decode are left untouched. Only a failed listing is returned as an error;
// mark-read problems never drop a record or stop the run.
func (p *Pipeline) Ingest(ctx context.Context) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.run")
	defer span.End()

	msgs, err := p.mailbox.ListUnread(ctx)
	if err != nil {
		metrics.IngestRuns.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "list unread failed")
		return Result{}, fmt.Errorf("listing unread messages: %w", err)
	}

	res := Result{Records: make([]document.IncomingRecord, 0, len(msgs))}
	for _, m := range msgs {
		metrics.IngestMessagesScanned.Inc()

		doc, ok := p.decoder.Decode(m.Body)
		if !ok {
			metrics.IngestMessagesSkipped.Inc()
			p.log.Debugw("Skipping message without document", system.MessageFields(m.ID, m.Subject)...)
			continue
		}
		metrics.IngestDocumentsMatched.Inc()
		res.Records = append(res.Records, document.IncomingRecord{
			Subject:          m.Subject,
			SentFrom:         m.From,
			Document:         doc,
			MessageID:        m.ID,
			ReceivedDateTime: m.ReceivedDateTime,
		})

		if p.markRead(ctx, m) {
			res.MarkedRead++
		} else {
			metrics.IngestMarkReadFailures.Inc()
		}
	}

	metrics.IngestRuns.WithLabelValues("success").Inc()
	span.SetAttributes(
		attribute.Int("docmail.messages", len(msgs)),
		attribute.Int("docmail.records", len(res.Records)),
		attribute.Int("docmail.marked_read", res.MarkedRead),
	)
	p.log.Infow("Ingestion finished",
		"messages", len(msgs),
		"records", len(res.Records),
		"markedRead", res.MarkedRead)
	return res, nil
}

// markRead contains every failure of the backend call, panics included.
func (p *Pipeline) markRead(ctx context.Context, m document.Message) (ok bool) {
	fields := system.MessageFields(m.ID, m.Subject)
	if m.ID == "" {
		p.log.Warnw("Message has no id, not marking as read", fields...)
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("Mark as read panicked", append(fields, "panic", r)...)
			ok = false
		}
	}()

	ok, err := p.mailbox.MarkRead(ctx, m.ID)
	if err != nil {
		p.log.Warnw("Failed to mark message as read", append(fields, "error", err)...)
		return false
	}
	if !ok {
		p.log.Warnw("Message was not marked as read", fields...)
	}
	return ok
}
