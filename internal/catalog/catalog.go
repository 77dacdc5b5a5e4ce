// Package catalog binds the storefront resources (products, brands,
// categories and free-form tables) to fetch controllers over the upstream
// data service.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/upstream"
)

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	Price      float64   `json:"price"`
	BrandID    string    `json:"brand_id,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

type Brand struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	LogoURL  string `json:"logo_url,omitempty"`
	IsActive bool   `json:"is_active"`
}

type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id,omitempty"`
	Position int    `json:"position"`
}

// Filter narrows a listing. The zero value lists everything.
type Filter struct {
	ActiveOnly bool
	CategoryID string
	BrandID    string
	Limit      int
}

// Key names the resource for base filtered by f, e.g.
// "products?active=true&category=rings". Equal filters give equal keys.
func (f Filter) Key(base string) string {
	v := url.Values{}
	if f.ActiveOnly {
		v.Set("active", "true")
	}
	if f.CategoryID != "" {
		v.Set("category", f.CategoryID)
	}
	if f.BrandID != "" {
		v.Set("brand", f.BrandID)
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(v) == 0 {
		return base
	}
	return base + "?" + v.Encode()
}

func (f Filter) query(order string) upstream.Query {
	q := upstream.Query{Order: order, Limit: f.Limit, Eq: map[string]string{}}
	if f.ActiveOnly {
		q.Eq["is_active"] = "true"
	}
	if f.CategoryID != "" {
		q.Eq["category_id"] = f.CategoryID
	}
	if f.BrandID != "" {
		q.Eq["brand_id"] = f.BrandID
	}
	return q
}

// Source builds fetch functions over one upstream client.
type Source struct {
	api *upstream.Client
}

func NewSource(api *upstream.Client) *Source { return &Source{api: api} }

func (s *Source) Products(f Filter) resfetch.FetchFunc[[]Product] {
	q := f.query("created_at.desc")
	return func(ctx context.Context) ([]Product, error) {
		return upstream.Rows[Product](ctx, s.api, "products", q)
	}
}

func (s *Source) Brands(f Filter) resfetch.FetchFunc[[]Brand] {
	f.CategoryID, f.BrandID = "", ""
	q := f.query("name.asc")
	return func(ctx context.Context) ([]Brand, error) {
		return upstream.Rows[Brand](ctx, s.api, "brands", q)
	}
}

// Categories are returned ordered by position, then name.
func (s *Source) Categories(f Filter) resfetch.FetchFunc[[]Category] {
	q := upstream.Query{Limit: f.Limit}
	return func(ctx context.Context) ([]Category, error) {
		rows, err := upstream.Rows[Category](ctx, s.api, "categories", q)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Position != rows[j].Position {
				return rows[i].Position < rows[j].Position
			}
			return rows[i].Name < rows[j].Name
		})
		return rows, nil
	}
}

// Table fetches rows of a table that has no Go type (banners, promotions)
// as a protobuf list, one struct value per row.
func (s *Source) Table(table string, f Filter) resfetch.FetchFunc[*structpb.ListValue] {
	q := f.query("")
	return func(ctx context.Context) (*structpb.ListValue, error) {
		rows, err := upstream.Rows[any](ctx, s.api, table, q)
		if err != nil {
			return nil, err
		}
		list, err := structpb.NewList(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", upstream.ErrDecode, table, err)
		}
		return list, nil
	}
}
