package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/resfetch/classify"
)

type brand struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithAPIKey("anon-key"), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewValidatesBaseURL(t *testing.T) {
	for _, raw := range []string{"", "  ", "ftp://data.example", "://bad"} {
		if _, err := New(raw); err == nil {
			t.Errorf("New(%q) accepted", raw)
		}
	}
}

func TestRowsSendsQueryAndHeaders(t *testing.T) {
	var got *http.Request
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Acme"},{"id":2,"name":"Globex"}]`))
	})

	rows, err := Rows[brand](context.Background(), c, "brands", Query{
		Select: "id,name",
		Eq:     map[string]string{"is_active": "true"},
		Order:  "name.asc",
		Limit:  50,
	})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 || rows[1].Name != "Globex" {
		t.Fatalf("rows = %+v", rows)
	}

	if got.URL.Path != "/rest/v1/brands" {
		t.Fatalf("path = %q", got.URL.Path)
	}
	q := got.URL.Query()
	if q.Get("select") != "id,name" || q.Get("is_active") != "eq.true" || q.Get("order") != "name.asc" || q.Get("limit") != "50" {
		t.Fatalf("query = %v", q)
	}
	if got.Header.Get("apikey") != "anon-key" || got.Header.Get("Authorization") != "Bearer anon-key" {
		t.Fatalf("auth headers = %v", got.Header)
	}
	if _, err := uuid.Parse(got.Header.Get(requestIDHeader)); err != nil {
		t.Fatalf("request id %q: %v", got.Header.Get(requestIDHeader), err)
	}
}

func TestStatusErrorsClassify(t *testing.T) {
	cases := []struct {
		status int
		kind   classify.Kind
	}{
		{http.StatusServiceUnavailable, classify.Connection},
		{http.StatusTooManyRequests, classify.Connection},
		{http.StatusBadRequest, classify.Domain},
		{http.StatusNotFound, classify.Domain},
	}
	for _, tc := range cases {
		c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		})
		_, err := c.Table(context.Background(), "products", Query{})

		var se *StatusError
		if !errors.As(err, &se) || se.Status != tc.status {
			t.Fatalf("status %d: err = %v", tc.status, err)
		}
		if se.RequestID == "" || !strings.Contains(se.Error(), "nope") {
			t.Fatalf("status error = %+v", se)
		}
		if got := classify.Classify(err).Kind; got != tc.kind {
			t.Fatalf("status %d classified %v, want %v", tc.status, got, tc.kind)
		}
		if se.Retryable() != (tc.kind == classify.Connection) {
			t.Fatalf("status %d Retryable = %v", tc.status, se.Retryable())
		}
	}
}

func TestMalformedPayloadIsDomain(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":`))
	})
	_, err := Rows[brand](context.Background(), c, "brands", Query{})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if ce := classify.Classify(err); ce.Kind != classify.Domain || ce.Retryable {
		t.Fatalf("decode error classified %+v", ce)
	}
}

func TestUnreachableHostIsConnection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Get(context.Background(), "/rest/v1/products", nil)
	if err == nil {
		t.Fatalf("expected error from closed server")
	}
	if ce := classify.Classify(err); ce.Kind != classify.Connection {
		t.Fatalf("closed server classified %v: %v", ce.Kind, err)
	}
}

func TestCancelledRequestIsSuperseded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.Get(ctx, "/rest/v1/products", nil)
	if ce := classify.Classify(err); ce == nil || ce.Kind != classify.Superseded {
		t.Fatalf("cancelled request classified %+v", ce)
	}
}

func TestMaxBodyTruncates(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Acme"}]`))
	})
	WithMaxBody(5)(c)
	_, err := Rows[brand](context.Background(), c, "brands", Query{})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}
