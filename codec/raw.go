package codec

// Bytes stores a raw upstream body as is. Decode copies: in-process providers
// (Ristretto, memory) hand back the slice they hold, and a caller mutating the
// result must not change the cached entry.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }

func (Bytes) Decode(b []byte) ([]byte, error) {
	if b == nil {
		return nil, nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// String stores text resources (an HTML banner, a CSV export) without
// validating UTF-8.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
