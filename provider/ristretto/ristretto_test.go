package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestRistrettoGetSetDel(t *testing.T) {
	ctx := context.Background()
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected invalid config error")
	}

	p, err := New(Config{MaxCost: 100, ExpectedEntries: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if ok, err := p.Set(ctx, "entry:shop:products", []byte("payload"), 1, time.Minute); err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	p.Wait()

	b, ok, err := p.Get(ctx, "entry:shop:products")
	if err != nil || !ok || string(b) != "payload" {
		t.Fatalf("Get: b=%q ok=%v err=%v", b, ok, err)
	}
	_ = p.Del(ctx, "entry:shop:products")
	if _, ok, _ := p.Get(ctx, "entry:shop:products"); ok {
		t.Fatalf("expected miss after Del")
	}
}
