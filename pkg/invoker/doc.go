// Package invoker wraps single outbound calls to the remote mail API with a
// bearer credential, per-attempt timeouts and bounded exponential-backoff
// retries for transient failures.
//
// A call ends in one of three outcomes. Success carries any non-transient
// response, including error statuses the caller must inspect. ExhaustedRetries
// carries the last rate-limited or unavailable response. FatalTransportError
// carries the transport failure of the last attempt.
package invoker
