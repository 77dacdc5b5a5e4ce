package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores proto messages, used for catalog tables that have no Go
// type (structpb lists). ctor builds the empty message to decode into, e.g.
// func() *structpb.ListValue { return &structpb.ListValue{} }.
//
// Encoding is deterministic so a shared cache sees identical bytes for an
// unchanged table. Unknown fields are dropped on decode.
type Protobuf[T proto.Message] struct {
	new func() T
}

var (
	protoMarshal   = proto.MarshalOptions{Deterministic: true}
	protoUnmarshal = proto.UnmarshalOptions{DiscardUnknown: true}
)

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) { return protoMarshal.Marshal(v) }

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := protoUnmarshal.Unmarshal(b, m)
	return m, err
}
