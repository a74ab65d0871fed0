package invoker

import (
	"fmt"
	"net/http"
	"slices"
)

// Outcome tags how an invocation ended.
type Outcome int

const (
	// Success means the remote returned a non-transient response.
	Success Outcome = iota
	// ExhaustedRetries means every attempt got a transient status.
	ExhaustedRetries
	// FatalTransportError means the last attempt failed below HTTP.
	FatalTransportError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ExhaustedRetries:
		return "exhausted_retries"
	case FatalTransportError:
		return "fatal_transport_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Response is a fully read remote response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Is reports whether the status code is one of codes.
func (r *Response) Is(codes ...int) bool {
	return r != nil && slices.Contains(codes, r.StatusCode)
}

// Result is the tagged outcome of one invocation.
type Result struct {
	Outcome Outcome
	// Response is set for Success and ExhaustedRetries.
	Response *Response
	// Err is set for FatalTransportError.
	Err      error
	Attempts int
}
