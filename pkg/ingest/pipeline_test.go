package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmail/docmail/pkg/codec"
	"github.com/docmail/docmail/pkg/document"
	"github.com/docmail/docmail/pkg/metrics"
	"github.com/docmail/docmail/pkg/system"
)

type markOutcome struct {
	ok    bool
	err   error
	panic bool
}

type fakeMailbox struct {
	messages []document.Message
	listErr  error
	outcomes map[string]markOutcome
	marked   []string
}

func (f *fakeMailbox) ListUnread(ctx context.Context) ([]document.Message, error) {
	return f.messages, f.listErr
}

func (f *fakeMailbox) MarkRead(ctx context.Context, id string) (bool, error) {
	f.marked = append(f.marked, id)
	o, found := f.outcomes[id]
	if !found {
		return true, nil
	}
	if o.panic {
		panic("mailbox connection lost")
	}
	return o.ok, o.err
}

func fields(docNumber string) document.Fields {
	return document.Fields{
		"docNumber": docNumber, "docTime": "2024-01-15", "docSigner": "A",
		"docPageNumber": "5", "docPriority": "Khan", "docKeyword": "CV",
		"docSecurity": "Normal", "docId": "CV-" + docNumber, "returnEmail": "r@x.com",
	}
}

func encoded(t *testing.T, docNumber string) string {
	t.Helper()
	out, err := codec.WrapHTML(codec.Default().Encode(fields(docNumber)), codec.WrapperParams{})
	require.NoError(t, err)
	return out
}

var received = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func TestIngestMixedInbox(t *testing.T) {
	mb := &fakeMailbox{messages: []document.Message{
		{ID: "m1", Subject: "Doc 1", From: "a@example.com", ReceivedDateTime: received, Body: encoded(t, "1")},
		{ID: "m2", Subject: "Lunch?", From: "b@example.com", Body: "<p>noon?</p>"},
		{ID: "m3", Subject: "Doc 3", From: "c@example.com", Body: encoded(t, "3")},
	}}

	res, err := NewPipeline(mb, system.NewTestLogger()).Ingest(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, 2, res.MarkedRead)
	assert.Equal(t, []string{"m1", "m3"}, mb.marked)

	first := res.Records[0]
	assert.Equal(t, "m1", first.MessageID)
	assert.Equal(t, "Doc 1", first.Subject)
	assert.Equal(t, "a@example.com", first.SentFrom)
	assert.Equal(t, received, first.ReceivedDateTime)
	assert.Equal(t, document.FromFields(fields("1")), first.Document)
	assert.Equal(t, "3", res.Records[1].DocNumber)
}

func TestIngestMarkReadFailuresKeepRecords(t *testing.T) {
	mb := &fakeMailbox{
		messages: []document.Message{
			{ID: "m1", Body: encoded(t, "1")},
			{ID: "m2", Body: encoded(t, "2")},
			{ID: "m3", Body: encoded(t, "3")},
		},
		outcomes: map[string]markOutcome{
			"m2": {err: errors.New("connection reset")},
			"m3": {ok: false},
		},
	}

	before := testutil.ToFloat64(metrics.IngestMarkReadFailures)
	res, err := NewPipeline(mb, system.NewTestLogger()).Ingest(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Records, 3)
	assert.Equal(t, 1, res.MarkedRead)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.IngestMarkReadFailures))
}

func TestIngestMarkReadPanicIsContained(t *testing.T) {
	mb := &fakeMailbox{
		messages: []document.Message{
			{ID: "m1", Body: encoded(t, "1")},
			{ID: "m2", Body: "not a document"},
			{ID: "m3", Body: encoded(t, "3")},
		},
		outcomes: map[string]markOutcome{"m1": {panic: true}},
	}

	res, err := NewPipeline(mb, system.NewTestLogger()).Ingest(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Records, 2)
	assert.Equal(t, "m1", res.Records[0].MessageID)
	assert.Equal(t, "m3", res.Records[1].MessageID)
	assert.Equal(t, 1, res.MarkedRead)
	assert.Equal(t, []string{"m1", "m3"}, mb.marked)
}

func TestIngestPartialFailures(t *testing.T) {
	tests := []struct {
		name        string
		messages    []document.Message
		outcomes    map[string]markOutcome
		wantRecords []string
		wantMarked  int
		wantCalls   []string
	}{
		{
			name: "undecodable second and failed mark on third",
			messages: []document.Message{
				{ID: "m1", Body: encoded(t, "1")},
				{ID: "m2", Body: "<p>no document here</p>"},
				{ID: "m3", Body: encoded(t, "3")},
			},
			outcomes:    map[string]markOutcome{"m3": {err: errors.New("503 service unavailable")}},
			wantRecords: []string{"m1", "m3"},
			wantMarked:  1,
			wantCalls:   []string{"m1", "m3"},
		},
		{
			name: "message without id is kept but not marked",
			messages: []document.Message{
				{ID: "", Subject: "Doc 1", Body: encoded(t, "1")},
				{ID: "m2", Body: encoded(t, "2")},
			},
			wantRecords: []string{"", "m2"},
			wantMarked:  1,
			wantCalls:   []string{"m2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := &fakeMailbox{messages: tt.messages, outcomes: tt.outcomes}

			res, err := NewPipeline(mb, system.NewTestLogger()).Ingest(context.Background())
			require.NoError(t, err)

			ids := make([]string, 0, len(res.Records))
			for _, r := range res.Records {
				ids = append(ids, r.MessageID)
			}
			assert.Equal(t, tt.wantRecords, ids)
			assert.Equal(t, tt.wantMarked, res.MarkedRead)
			assert.Equal(t, tt.wantCalls, mb.marked)
		})
	}
}

func TestIngestEmptyInbox(t *testing.T) {
	res, err := NewPipeline(&fakeMailbox{}, nil).Ingest(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Zero(t, res.MarkedRead)
}

func TestIngestNoDocumentsMarksNothing(t *testing.T) {
	mb := &fakeMailbox{messages: []document.Message{
		{ID: "m1", Body: "hello"},
		{ID: "m2", Body: "&lt;DOC&gt;&lt;/DOC&gt;"},
	}}

	before := testutil.ToFloat64(metrics.IngestMessagesSkipped)
	res, err := NewPipeline(mb, nil).Ingest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, mb.marked)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.IngestMessagesSkipped))
}

func TestIngestListFailure(t *testing.T) {
	mb := &fakeMailbox{listErr: errors.New("mail API unreachable")}

	_, err := NewPipeline(mb, nil).Ingest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing unread messages")
	assert.Empty(t, mb.marked)
}

type upperDecoder struct{}

func (upperDecoder) Decode(raw string) (document.Document, bool) {
	if raw == "" {
		return document.Document{}, false
	}
	return document.Document{DocNumber: raw}, true
}

func TestIngestCustomDecoder(t *testing.T) {
	mb := &fakeMailbox{messages: []document.Message{{ID: "m1", Body: "X-1"}, {ID: "m2"}}}

	res, err := NewPipeline(mb, nil, WithDecoder(upperDecoder{})).Ingest(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "X-1", res.Records[0].DocNumber)
}
