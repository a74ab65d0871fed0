package mail

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/docmail/docmail/pkg/metrics"
)

func TestMailMetricsIncrement(t *testing.T) {
	backend := "test-mail"
	metrics.MailSendSuccess.WithLabelValues(backend).Inc()
	if v := testutil.ToFloat64(metrics.MailSendSuccess.WithLabelValues(backend)); v < 1 {
		t.Fatalf("expected MailSendSuccess >= 1, got %v", v)
	}
	metrics.MailSendFailure.WithLabelValues(backend).Inc()
	if v := testutil.ToFloat64(metrics.MailSendFailure.WithLabelValues(backend)); v < 1 {
		t.Fatalf("expected MailSendFailure >= 1, got %v", v)
	}
}
