package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrDecode marks a 2xx response whose payload could not be decoded. The
// controller treats it as a domain error: retrying returns the same payload.
var ErrDecode = errors.New("upstream: malformed payload")

// StatusError is a non-2xx response from the data service.
type StatusError struct {
	Status    int
	Body      []byte
	Header    http.Header
	RequestID string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "<nil>"
	}
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return fmt.Sprintf("upstream: status=%d body=%s", e.Status, string(body))
}

// StatusCode lets the classifier see the status.
func (e *StatusError) StatusCode() int { return e.Status }

// Retryable reports whether the status is transient.
func (e *StatusError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.Status == http.StatusTooManyRequests ||
		e.Status == http.StatusRequestTimeout ||
		(e.Status >= 500 && e.Status <= 599)
}
