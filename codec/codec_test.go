package codec

import (
	"errors"
	"reflect"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type product struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price,omitempty"`
}

func TestCodecsPreserveProductLists(t *testing.T) {
	in := []product{{ID: 1, Name: "Anel solitário", Price: 1299.9}, {ID: 2, Name: "Brinco", Price: 89}}
	codecs := map[string]Codec[[]product]{
		"json":    JSON[[]product]{},
		"cbor":    MustCBOR[[]product](true),
		"msgpack": Msgpack[[]product]{},
	}
	for name, c := range codecs {
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("%s: got %+v want %+v", name, out, in)
		}
	}
}

func TestLimitRejectsOversizedPayload(t *testing.T) {
	c := Limit[string]{Inner: String{}, MaxDecode: 4}
	if _, err := c.Decode([]byte("12345")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected size error, got %v", err)
	}
	if v, err := c.Decode([]byte("1234")); err != nil || v != "1234" {
		t.Fatalf("in-limit decode: v=%q err=%v", v, err)
	}
}

func TestProtobufCodec(t *testing.T) {
	c := NewProtobuf(func() *structpb.ListValue { return &structpb.ListValue{} })
	in, err := structpb.NewList([]any{"rings", "necklaces"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(in, out) {
		t.Fatalf("got %v want %v", out, in)
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "json", "CBOR", "cbor-det", "msgpack"} {
		c, err := ByName[[]product](name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		in := []product{{ID: 7, Name: "Colar", Price: 10}}
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%q encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil || !reflect.DeepEqual(in, out) {
			t.Fatalf("%q round trip = %v, %v", name, out, err)
		}
	}
	if _, err := ByName[int]("protobuf"); err == nil {
		t.Fatalf("unknown codec accepted")
	}
}

func TestMsgpackUsesJSONNames(t *testing.T) {
	b, err := Msgpack[product]{}.Encode(product{ID: 3, Name: "Pulseira"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := Msgpack[map[string]any]{}.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if m["name"] != "Pulseira" {
		t.Fatalf("decoded map = %v", m)
	}
	if _, ok := m["price"]; ok {
		t.Fatalf("omitempty ignored: %v", m)
	}
}

func TestBytesDecodeCopies(t *testing.T) {
	stored := []byte("payload")
	out, _ := Bytes{}.Decode(stored)
	out[0] = 'P'
	if string(stored) != "payload" {
		t.Fatalf("stored slice mutated: %q", stored)
	}
}
