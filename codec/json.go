package codec

import "encoding/json"

// JSON is the default codec. Upstream payloads arrive as JSON, so cached
// entries stay readable when inspected in redis-cli.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
