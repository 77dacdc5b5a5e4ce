package sloghooks

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/resfetch/classify"
)

func newBufHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestLogsEvents(t *testing.T) {
	h, buf := newBufHooks(Options{})
	h.RetryScheduled("products", 2, 2*time.Second, classify.Connection)
	h.FetchFailed("brands", classify.Domain, true)

	out := buf.String()
	for _, want := range []string{
		"msg=resfetch.retry_scheduled", "key=products", "attempt=2", "kind=connection",
		"msg=resfetch.fetch_failed_stale", "key=brands",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestSamplingAndRedaction(t *testing.T) {
	h, buf := newBufHooks(Options{SupersededEvery: 3, HashKeys: true})
	for i := 0; i < 6; i++ {
		h.Superseded("products?brand=acme", uint64(i))
	}
	out := buf.String()
	if n := strings.Count(out, "resfetch.superseded"); n != 2 {
		t.Fatalf("logged %d superseded events, want 2", n)
	}
	if strings.Contains(out, "acme") {
		t.Fatalf("key not redacted: %q", out)
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.WatchdogFired("products", 1)
	h.CacheWriteFailed("products", nil)
}
