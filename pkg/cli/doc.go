// Package cli implements the docmail command line: the serve, ingest, send,
// secret and version commands and the wiring from configuration to the mail
// services behind them.
package cli
