package bigcache

import (
	"context"
	"testing"
	"time"
)

func TestBigcacheGetSetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{LifeWindow: time.Minute, MaxEntriesInWindow: 64, MaxEntrySize: 256})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, ok, err := p.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("miss expected, ok=%v err=%v", ok, err)
	}
	if ok, err := p.Set(ctx, "entry:shop:brands", []byte("payload"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	b, ok, err := p.Get(ctx, "entry:shop:brands")
	if err != nil || !ok || string(b) != "payload" {
		t.Fatalf("Get: b=%q ok=%v err=%v", b, ok, err)
	}
	if err := p.Del(ctx, "entry:shop:brands"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if err := p.Del(ctx, "entry:shop:brands"); err != nil {
		t.Fatalf("second Del should be a no-op, got %v", err)
	}
}

func TestBigcacheDefaultsAndLen(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	for _, k := range []string{"entry:shop:products", "entry:shop:brands"} {
		if ok, err := p.Set(ctx, k, []byte(k), 0, 0); err != nil || !ok {
			t.Fatalf("Set %s: ok=%v err=%v", k, ok, err)
		}
	}
	if n := p.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2", n)
	}
}
