package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Credential metrics
	CredentialRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_credential_refreshes_total",
		Help: "Total number of bearer credential issuance exchanges, by result",
	}, []string{"result"})
	CredentialCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docmail_credential_cache_hits_total",
		Help: "Total number of token requests served from the cached credential",
	})

	// Remote mail API metrics. Outcome is one of success, exhausted_retries,
	// fatal_transport_error or auth_failure.
	RemoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_remote_calls_total",
		Help: "Total number of outbound mail API calls, by operation and outcome",
	}, []string{"operation", "outcome"})
	RemoteRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_remote_retries_total",
		Help: "Total number of retried attempts against the mail API, by operation and reason",
	}, []string{"operation", "reason"})
	RemoteCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docmail_remote_call_duration_seconds",
		Help:    "Duration of outbound mail API calls including retries and backoff",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Ingestion metrics
	IngestRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_ingest_runs_total",
		Help: "Total number of inbox ingestion runs, by result",
	}, []string{"result"})
	IngestMessagesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docmail_ingest_messages_scanned_total",
		Help: "Total number of unread messages inspected during ingestion",
	})
	IngestDocumentsMatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docmail_ingest_documents_matched_total",
		Help: "Total number of unread messages that decoded to a structured document",
	})
	IngestMessagesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docmail_ingest_messages_skipped_total",
		Help: "Total number of unread messages that were not structured documents",
	})
	IngestMarkReadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "docmail_ingest_mark_read_failures_total",
		Help: "Total number of matched messages that could not be marked read",
	})

	// Mail metrics
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"backend"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"backend"})
	MailSendRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_mail_send_rejected_total",
		Help: "Total number of send requests rejected by validation before any remote call",
	}, []string{"reason"})
	MailAttachmentBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "docmail_mail_attachment_bytes",
		Help:    "Total attachment size per sent document notice",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})

	// API metrics
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docmail_api_requests_total",
		Help: "Total number of API requests, by endpoint and status code",
	}, []string{"endpoint", "code"})
)

func init() {
	prometheus.MustRegister(CredentialRefreshes)
	prometheus.MustRegister(CredentialCacheHits)
	prometheus.MustRegister(RemoteCalls)
	prometheus.MustRegister(RemoteRetries)
	prometheus.MustRegister(RemoteCallDuration)
	prometheus.MustRegister(IngestRuns)
	prometheus.MustRegister(IngestMessagesScanned)
	prometheus.MustRegister(IngestDocumentsMatched)
	prometheus.MustRegister(IngestMessagesSkipped)
	prometheus.MustRegister(IngestMarkReadFailures)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(MailSendRejected)
	prometheus.MustRegister(MailAttachmentBytes)
	prometheus.MustRegister(APIRequests)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
