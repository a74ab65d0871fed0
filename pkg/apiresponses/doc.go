// Package apiresponses holds the JSON error envelope and response helpers
// shared by the docmail HTTP handlers and middleware.
package apiresponses
