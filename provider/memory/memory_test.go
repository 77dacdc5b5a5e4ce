package memory

import (
	"context"
	"testing"
	"time"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	p := NewWithClock(func() time.Time { return now })

	if ok, err := p.Set(ctx, "k", []byte("v"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if b, ok, _ := p.Get(ctx, "k"); !ok || string(b) != "v" {
		t.Fatalf("expected hit, got ok=%v b=%q", ok, b)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := p.Get(ctx, "k"); ok {
		t.Fatalf("expected expired miss")
	}
	if p.Len() != 0 {
		t.Fatalf("expired key should be removed on read")
	}
}

func TestMemorySetCopiesValue(t *testing.T) {
	ctx := context.Background()
	p := New()
	in := []byte("abc")
	_, _ = p.Set(ctx, "k", in, 1, 0)
	in[0] = 'X'
	if b, _, _ := p.Get(ctx, "k"); string(b) != "abc" {
		t.Fatalf("stored value mutated through caller slice: %q", b)
	}
}
