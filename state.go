package resfetch

import "time"

// Phase is the controller's position in its state machine.
type Phase uint8

const (
	Idle Phase = iota
	Fetching
	RetryWait
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Fetching:
		return "fetching"
	case RetryWait:
		return "retry_wait"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Settled reports whether the phase ends a logical fetch.
func (p Phase) Settled() bool { return p == Succeeded || p == Failed }

// State is what consumers observe. Data is nil until a fetch succeeds, and
// again after a failure with no cached fallback. A failure that fell back to
// cached data settles in Failed with Stale set, Data holding the cached value
// and Error carrying the notice.
type State[T any] struct {
	Data         *T     `json:"data"`
	Loading      bool   `json:"loading"`
	Error        string `json:"error,omitempty"`
	IsRetrying   bool   `json:"isRetrying"`
	RetryAttempt int    `json:"retryAttempt"`

	Stale      bool      `json:"stale,omitempty"`
	Phase      Phase     `json:"-"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Status is the type-erased view of a controller's state, used by Registry.
type Status struct {
	Key          string    `json:"key"`
	Phase        string    `json:"phase"`
	Generation   uint64    `json:"generation"`
	HasData      bool      `json:"hasData"`
	Loading      bool      `json:"loading"`
	Error        string    `json:"error,omitempty"`
	IsRetrying   bool      `json:"isRetrying"`
	RetryAttempt int       `json:"retryAttempt"`
	Stale        bool      `json:"stale,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (s State[T]) status(key string) Status {
	return Status{
		Key:          key,
		Phase:        s.Phase.String(),
		Generation:   s.Generation,
		HasData:      s.Data != nil,
		Loading:      s.Loading,
		Error:        s.Error,
		IsRetrying:   s.IsRetrying,
		RetryAttempt: s.RetryAttempt,
		Stale:        s.Stale,
		UpdatedAt:    s.UpdatedAt,
	}
}
