package graph

import (
	"fmt"
	"strings"
)

// StatusError is returned when the mail API answered with an unexpected
// status, including a transient status that persisted through every retry.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
	Exhausted  bool
}

func (e *StatusError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: mail API returned status %d", e.Operation, e.StatusCode)
	if e.Exhausted {
		b.WriteString(" after all retries")
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

// TransportError is returned when the mail API could not be reached.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: mail API unreachable: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// truncate limits remote bodies carried in errors and logs.
func truncate(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
