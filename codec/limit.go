package codec

import (
	"errors"
	"fmt"
)

// ErrTooLarge is returned by Limit.Decode for payloads over MaxDecode.
var ErrTooLarge = errors.New("codec: payload too large")

// Limit caps the size of what Inner is asked to decode. Useful in front of a
// Redis cache other services can write to. MaxDecode <= 0 disables the cap.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

var _ Codec[struct{}] = Limit[struct{}]{}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
