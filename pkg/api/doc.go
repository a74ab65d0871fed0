// Package api implements the docmail HTTP API on Gin: the health check, the
// outgoing send endpoint, inbox ingestion, attachment listing and metrics,
// behind API-key and rate-limit middleware.
package api
