package resfetch

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/resfetch/classify"
)

var (
	// ErrClosed is returned by Await when the controller is closed before settling.
	ErrClosed = errors.New("resfetch: controller closed")

	ErrSuperseded = classify.ErrSuperseded
	ErrWatchdog   = classify.ErrWatchdog
)

// OptionsError reports an invalid controller option.
type OptionsError struct {
	Key   string
	Field string
	Msg   string
}

func (e *OptionsError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("resfetch: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("resfetch: %q: %s: %s", e.Key, e.Field, e.Msg)
}

// StaleNotice formats the error shown next to cached data after a failed refresh.
func StaleNotice(msg string) string {
	return "showing cached data: " + msg
}
