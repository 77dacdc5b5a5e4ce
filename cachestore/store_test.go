package cachestore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/resfetch/codec"
	"github.com/unkn0wn-root/resfetch/internal/wire"
	"github.com/unkn0wn-root/resfetch/provider/memory"
)

type brand struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, ttl time.Duration) (*Store[[]brand], *memory.Provider, *clock) {
	t.Helper()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	mp := memory.NewWithClock(func() time.Time { return clk.t })
	s, err := New[[]brand](Options[[]brand]{
		Namespace: "shop",
		Provider:  mp,
		TTL:       ttl,
		Now:       clk.now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mp, clk
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New[int](Options[int]{Namespace: "x"}); err == nil {
		t.Fatalf("expected provider error")
	}
	if _, err := New[int](Options[int]{Provider: memory.New()}); err == nil {
		t.Fatalf("expected namespace error")
	}
	s, err := New[int](Options[int]{Namespace: "x", Provider: memory.New()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.TTL() != defaultTTL {
		t.Fatalf("default TTL = %v", s.TTL())
	}
}

func TestPutGetRecordsStoredAt(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t, time.Minute)

	if _, ok, err := s.Get(ctx, "brands"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}

	v := []brand{{1, "Vivara"}, {2, "Pandora"}}
	storedAt := clk.now()
	if err := s.Put(ctx, "brands", v); err != nil {
		t.Fatalf("Put: %v", err)
	}
	clk.advance(30 * time.Second)

	e, ok, err := s.Get(ctx, "brands")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(e.Value) != 2 || e.Value[1].Name != "Pandora" {
		t.Fatalf("unexpected value %+v", e.Value)
	}
	if !e.StoredAt.Equal(storedAt) {
		t.Fatalf("StoredAt = %v want %v", e.StoredAt, storedAt)
	}
	if e.Age(clk.now()) != 30*time.Second {
		t.Fatalf("Age = %v", e.Age(clk.now()))
	}
}

func TestEntryExpiresAtTTL(t *testing.T) {
	ctx := context.Background()
	s, _, clk := newTestStore(t, time.Minute)

	_ = s.Put(ctx, "brands", []brand{{1, "Vivara"}})
	clk.advance(time.Minute - time.Nanosecond)
	if _, ok, _ := s.Get(ctx, "brands"); !ok {
		t.Fatalf("entry younger than TTL should hit")
	}
	clk.advance(time.Nanosecond)
	if _, ok, _ := s.Get(ctx, "brands"); ok {
		t.Fatalf("entry aged exactly TTL should miss")
	}
}

// A provider without per-key TTL (BigCache) may still hold an old frame.
func TestStaleFrameInLongLivedProviderIsDropped(t *testing.T) {
	ctx := context.Background()
	s, mp, clk := newTestStore(t, time.Minute)

	payload, _ := codec.JSON[[]brand]{}.Encode([]brand{{1, "old"}})
	frame := wire.EncodeEntry(clk.now().Add(-time.Hour), payload)
	_, _ = mp.Set(ctx, s.storageKey("brands"), frame, 1, 0) // no provider TTL

	if _, ok, _ := s.Get(ctx, "brands"); ok {
		t.Fatalf("stale frame should read as absent")
	}
	if mp.Len() != 0 {
		t.Fatalf("stale frame should be deleted")
	}
}

func TestSelfHealOnCorrupt(t *testing.T) {
	ctx := context.Background()
	s, mp, _ := newTestStore(t, time.Minute)
	k := s.storageKey("brands")

	// Inject corrupt bytes directly into provider.
	_, _ = mp.Set(ctx, k, []byte("not-wire-format"), 1, time.Minute)
	if _, ok, err := s.Get(ctx, "brands"); err != nil || ok {
		t.Fatalf("Get on corrupt should miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, k); ok {
		t.Fatalf("corrupt entry was not deleted by self-heal")
	}

	// Valid frame, payload that does not decode as []brand.
	_, _ = mp.Set(ctx, k, wire.EncodeEntry(time.Unix(1_700_000_000, 0), []byte(`{"oops":`)), 1, time.Minute)
	if _, ok, err := s.Get(ctx, "brands"); err != nil || ok {
		t.Fatalf("Get on undecodable should miss, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := mp.Get(ctx, k); ok {
		t.Fatalf("undecodable entry was not deleted by self-heal")
	}
}

func TestNamespaceIsolationAndDelete(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	a, _ := New[string](Options[string]{Namespace: "shop-a", Provider: mp, Codec: codec.String{}})
	b, _ := New[string](Options[string]{Namespace: "shop-b", Provider: mp, Codec: codec.String{}})

	_ = a.Put(ctx, "brands", "a")
	if _, ok, _ := b.Get(ctx, "brands"); ok {
		t.Fatalf("namespace b sees namespace a entry")
	}
	if err := a.Delete(ctx, "brands"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := a.Get(ctx, "brands"); ok {
		t.Fatalf("entry present after Delete")
	}
}

func TestLongKeysAreHashed(t *testing.T) {
	ctx := context.Background()
	s, mp, _ := newTestStore(t, time.Minute)
	key := "products?" + strings.Repeat("category=aneis&", 20)
	_ = s.Put(ctx, key, []brand{{1, "x"}})
	if _, ok, _ := s.Get(ctx, key); !ok {
		t.Fatalf("long key round trip failed")
	}
	if _, ok, _ := mp.Get(ctx, "entry:shop:"+key); ok {
		t.Fatalf("long key stored verbatim")
	}
}

func TestDisabledStoreIsInert(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()
	s, _ := New[string](Options[string]{Namespace: "shop", Provider: mp, Codec: codec.String{}, Disabled: true})
	_ = s.Put(ctx, "brands", "x")
	if mp.Len() != 0 {
		t.Fatalf("disabled store wrote to provider")
	}
	if _, ok, _ := s.Get(ctx, "brands"); ok {
		t.Fatalf("disabled store returned a hit")
	}
}
