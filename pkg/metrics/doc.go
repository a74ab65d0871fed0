// Package metrics defines Prometheus metrics for docmail, covering credential
// refreshes, remote mail API calls and retries, inbox ingestion, outgoing
// sends and the HTTP API.
package metrics
