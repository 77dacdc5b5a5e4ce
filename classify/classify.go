// Package classify maps errors returned by an upstream fetch onto the small
// taxonomy the fetch controller acts on: ignore, retry, or surface.
//
// Rules are applied in priority order:
//
//	Superseded  context.Canceled or ErrSuperseded      ignore
//	Connection  transport failure or 408/429/5xx        retry
//	Timeout     ErrWatchdog or context.DeadlineExceeded retry
//	Domain      anything else                          surface immediately
//
// Message matching is only the last fallback of the Connection rule.
package classify

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// Kind is the classification of a failed fetch.
type Kind uint8

const (
	Domain Kind = iota
	Connection
	Timeout
	Superseded
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Timeout:
		return "timeout"
	case Superseded:
		return "superseded"
	default:
		return "domain"
	}
}

var (
	// ErrSuperseded marks a fetch abandoned because a newer generation began.
	ErrSuperseded = errors.New("resfetch: superseded by a newer fetch")
	// ErrWatchdog is synthesized when a fetch does not settle before its deadline.
	ErrWatchdog = errors.New("resfetch: watchdog deadline exceeded")
)

// StatusCoder is implemented by errors that carry an HTTP-like status.
type StatusCoder interface {
	StatusCode() int
}

// Error is a classified fetch failure.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// retryableStatus lists statuses treated as transport-level trouble.
var retryableStatus = map[int]struct{}{
	408: {}, 429: {}, 500: {}, 502: {}, 503: {}, 504: {},
}

// signatures are lowercase message fragments of transport failures.
var signatures = []string{
	"no such host",
	"connection refused",
	"connection reset",
	"network is unreachable",
	"network error",
	"failed to fetch",
	"broken pipe",
	"unexpected eof",
	"tls handshake timeout",
}

// Classify returns the classification of err, or nil when err is nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	msg := err.Error()
	switch {
	case errors.Is(err, ErrSuperseded) || errors.Is(err, context.Canceled):
		return &Error{Kind: Superseded, Message: msg, Err: err}
	case isConnection(err):
		return &Error{Kind: Connection, Message: msg, Retryable: true, Err: err}
	case errors.Is(err, ErrWatchdog) || errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Timeout, Message: msg, Retryable: true, Err: err}
	default:
		return &Error{Kind: Domain, Message: msg, Err: err}
	}
}

// Retryable reports whether err should be retried by the controller.
func Retryable(err error) bool {
	ce := Classify(err)
	return ce != nil && ce.Retryable
}

func isConnection(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		_, ok := retryableStatus[sc.StatusCode()]
		return ok
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// http.Client timeouts surface as net.Error with Timeout() set but do not
	// wrap DeadlineExceeded; treat them as transport trouble.
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() && !errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, s := range signatures {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
