package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// maxNesting bounds decode depth. Catalog rows are shallow; anything deeper
// is a foreign or corrupt entry in a shared cache.
const maxNesting = 16

// CBOR encodes with fxamacker/cbor, which honours json tags when a field has
// no cbor tag. Build it with NewCBOR or MustCBOR; the zero value panics.
//
// Deterministic mode uses RFC 8949 core deterministic encoding so replicas
// write identical bytes for identical payloads, and decoding then rejects
// duplicate map keys.
type CBOR[V any] struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec[struct{}] = CBOR[struct{}]{}

func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	eo := cbor.PreferredUnsortedEncOptions()
	do := cbor.DecOptions{MaxNestedLevels: maxNesting}
	if deterministic {
		eo = cbor.CoreDetEncOptions()
		do.DupMapKey = cbor.DupMapKeyEnforcedAPF
	}
	// upstream timestamps are RFC 3339 already; keep them readable
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	dm, err := do.DecMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em, dec: dm}, nil
}

// MustCBOR panics if the options are rejected.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Encode(v V) ([]byte, error) { return c.enc.Marshal(v) }

func (c CBOR[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.dec.Unmarshal(b, &v)
	return v, err
}
