// Package credential obtains and caches the bearer credential used for the
// remote mail API. A Session owns at most one credential and refreshes it
// only once its local validity window has elapsed.
package credential
