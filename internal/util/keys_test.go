package util

import (
	"strings"
	"testing"
	"time"
)

func TestStorageKeyShortVerbatim(t *testing.T) {
	if got := StorageKey("entry:shop", "products"); got != "entry:shop:products" {
		t.Fatalf("got %q", got)
	}
}

func TestStorageKeyLongHashedAndStable(t *testing.T) {
	long := "products?" + strings.Repeat("category=rings&", 20)
	a := StorageKey("entry:shop", long)
	b := StorageKey("entry:shop", long)
	if a != b {
		t.Fatalf("hash not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "entry:shop:h:") || len(a) != len("entry:shop:h:")+16 {
		t.Fatalf("unexpected hashed key %q", a)
	}
	if a == StorageKey("entry:shop", long+"x") {
		t.Fatalf("different keys collided")
	}
}

func TestCoalesce(t *testing.T) {
	if got := Coalesce(time.Duration(0), time.Second); got != time.Second {
		t.Fatalf("got %v", got)
	}
	if got := Coalesce(3, 5); got != 3 {
		t.Fatalf("got %d", got)
	}
}
