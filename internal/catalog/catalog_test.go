package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/provider/memory"
	"github.com/unkn0wn-root/resfetch/upstream"
)

const (
	productsJSON   = `[{"id":"p1","name":"Anel","slug":"anel","price":120.5,"brand_id":"b1","is_active":true,"created_at":"2024-05-01T10:00:00Z"}]`
	brandsJSON     = `[{"id":"b1","name":"Acme","slug":"acme","is_active":true}]`
	categoriesJSON = `[{"id":"c2","name":"Rings","slug":"rings","position":2},{"id":"c1","name":"Necklaces","slug":"necklaces","position":1}]`
	bannersJSON    = `[{"id":1,"title":"Summer sale","active":true}]`
)

type fakeService struct {
	down atomic.Bool
	srv  *httptest.Server
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{}
	mux := http.NewServeMux()
	serve := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			if f.down.Load() {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}
	}
	mux.HandleFunc("/rest/v1/products", serve(productsJSON))
	mux.HandleFunc("/rest/v1/brands", serve(brandsJSON))
	mux.HandleFunc("/rest/v1/categories", serve(categoriesJSON))
	mux.HandleFunc("/rest/v1/banners", serve(bannersJSON))
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func newTestSource(t *testing.T, f *fakeService) *Source {
	t.Helper()
	api, err := upstream.New(f.srv.URL)
	if err != nil {
		t.Fatalf("upstream.New: %v", err)
	}
	return NewSource(api)
}

func TestFilterKey(t *testing.T) {
	cases := map[string]Filter{
		"products":                            {},
		"products?active=true":                {ActiveOnly: true},
		"products?active=true&category=rings": {CategoryID: "rings", ActiveOnly: true},
		"products?brand=b1&limit=20":          {BrandID: "b1", Limit: 20},
	}
	for want, f := range cases {
		if got := f.Key("products"); got != want {
			t.Errorf("Key(%+v) = %q, want %q", f, got, want)
		}
	}
}

func TestFetchersDecodeRows(t *testing.T) {
	src := newTestSource(t, newFakeService(t))
	ctx := context.Background()

	products, err := src.Products(Filter{ActiveOnly: true})(ctx)
	if err != nil || len(products) != 1 || products[0].Price != 120.5 || products[0].CreatedAt.IsZero() {
		t.Fatalf("products = %+v, %v", products, err)
	}
	cats, err := src.Categories(Filter{})(ctx)
	if err != nil || len(cats) != 2 || cats[0].ID != "c1" {
		t.Fatalf("categories not ordered by position: %+v, %v", cats, err)
	}
	banners, err := src.Table("banners", Filter{})(ctx)
	if err != nil || len(banners.GetValues()) != 1 {
		t.Fatalf("banners = %v, %v", banners, err)
	}
	title := banners.GetValues()[0].GetStructValue().GetFields()["title"].GetStringValue()
	if title != "Summer sale" {
		t.Fatalf("banner title = %q", title)
	}
}

func TestRegisterServesCachedDataWhenServiceIsDown(t *testing.T) {
	svc := newFakeService(t)
	src := newTestSource(t, svc)
	reg := resfetch.NewRegistry(nil)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	policy := resfetch.Policy{MaxRetries: resfetch.NoRetry, WatchdogTimeout: 5 * time.Second}
	err := Register(reg, src, []Resource{
		{Table: "products", Filter: Filter{ActiveOnly: true}, Policy: policy},
		{Table: "brands", Policy: policy},
		{Key: "nav", Table: "categories", Policy: policy},
		{Table: "banners", Policy: policy},
	}, Setup{Provider: memory.New(), Namespace: "shop:test", Codec: "msgpack"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	keys := reg.Keys()
	want := []string{"banners", "brands", "nav", "products?active=true"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	products, ok := Lookup[[]Product](reg, "products?active=true")
	if !ok {
		t.Fatalf("products controller not found")
	}
	banners, ok := Lookup[*structpb.ListValue](reg, "banners")
	if !ok {
		t.Fatalf("banners controller not found")
	}
	if s, err := products.Refresh(ctx); err != nil || s.Phase != resfetch.Succeeded {
		t.Fatalf("products refresh = %+v, %v", s, err)
	}
	if s, err := banners.Refresh(ctx); err != nil || s.Phase != resfetch.Succeeded {
		t.Fatalf("banners refresh = %+v, %v", s, err)
	}

	svc.down.Store(true)
	s, err := products.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !s.Stale || s.Data == nil || (*s.Data)[0].Name != "Anel" {
		t.Fatalf("products after outage = %+v", s)
	}
	bs, err := banners.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !bs.Stale || bs.Data == nil || len((*bs.Data).GetValues()) != 1 {
		t.Fatalf("banners after outage = %+v", bs)
	}

	if _, ok := Lookup[[]Brand](reg, "nav"); ok {
		t.Fatalf("Lookup matched the wrong type")
	}
}

func TestRegisterRejectsUnknownCodec(t *testing.T) {
	reg := resfetch.NewRegistry(nil)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	src := newTestSource(t, newFakeService(t))

	err := Register(reg, src, []Resource{{Table: "products"}}, Setup{Codec: "xml"})
	if err == nil {
		t.Fatalf("unknown codec accepted")
	}
}
