// Package ratelimit provides a per-client-IP token-bucket limiter with
// stale-entry cleanup and a Gin middleware in front of the docmail API.
package ratelimit
