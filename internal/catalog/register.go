package catalog

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/unkn0wn-root/resfetch"
	"github.com/unkn0wn-root/resfetch/codec"
	pr "github.com/unkn0wn-root/resfetch/provider"
)

// Resource is one controller to register.
type Resource struct {
	Key    string // "" => Filter.Key(Table)
	Table  string
	Filter Filter
	Policy resfetch.Policy
}

// Setup is shared by every registered controller.
type Setup struct {
	Provider  pr.Provider // nil => no cached fallback
	Namespace string
	Codec     string // see codec.ByName; free-form tables always use protobuf
	Logger    resfetch.Logger
	Hooks     resfetch.Hooks
}

// Register adds a controller per resource to reg.
func Register(reg *resfetch.Registry, src *Source, resources []Resource, setup Setup) error {
	for _, r := range resources {
		if r.Table == "" {
			return fmt.Errorf("catalog: resource %q: table is required", r.Key)
		}
		key := r.Key
		if key == "" {
			key = r.Filter.Key(r.Table)
		}

		var err error
		switch strings.ToLower(r.Table) {
		case "products":
			err = add(reg, key, src.Products(r.Filter), r.Policy, setup)
		case "brands":
			err = add(reg, key, src.Brands(r.Filter), r.Policy, setup)
		case "categories":
			err = add(reg, key, src.Categories(r.Filter), r.Policy, setup)
		default:
			_, err = resfetch.Add(reg, resfetch.Options[*structpb.ListValue]{
				Key:            key,
				Fetch:          src.Table(r.Table, r.Filter),
				Policy:         r.Policy,
				CacheProvider:  setup.Provider,
				CacheNamespace: setup.Namespace,
				Codec:          codec.NewProtobuf(func() *structpb.ListValue { return &structpb.ListValue{} }),
				Logger:         setup.Logger,
				Hooks:          setup.Hooks,
			})
		}
		if err != nil {
			return fmt.Errorf("catalog: resource %q: %w", key, err)
		}
	}
	return nil
}

func add[T any](reg *resfetch.Registry, key string, fetch resfetch.FetchFunc[T], p resfetch.Policy, setup Setup) error {
	cd, err := codec.ByName[T](setup.Codec)
	if err != nil {
		return err
	}
	_, err = resfetch.Add(reg, resfetch.Options[T]{
		Key:            key,
		Fetch:          fetch,
		Policy:         p,
		CacheProvider:  setup.Provider,
		CacheNamespace: setup.Namespace,
		Codec:          cd,
		Logger:         setup.Logger,
		Hooks:          setup.Hooks,
	})
	return err
}

// Lookup returns the typed controller registered under key.
func Lookup[T any](reg *resfetch.Registry, key string) (*resfetch.Controller[T], bool) {
	res, ok := reg.Get(key)
	if !ok {
		return nil, false
	}
	c, ok := res.(*resfetch.Controller[T])
	return c, ok
}
