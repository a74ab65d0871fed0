// Package mail is the outgoing path for document notices: request validation,
// rendering through the template codec, and delivery through Microsoft Graph
// or SMTP.
package mail
