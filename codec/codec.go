// Package codec converts cached resource payloads to and from bytes.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// ByName returns the codec configured by name: "json" (or ""), "cbor",
// "cbor-det" or "msgpack". Protobuf is not selectable by name; it needs a
// message constructor.
func ByName[V any](name string) (Codec[V], error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON[V]{}, nil
	case "cbor":
		return NewCBOR[V](false)
	case "cbor-det":
		return NewCBOR[V](true)
	case "msgpack":
		return Msgpack[V]{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
