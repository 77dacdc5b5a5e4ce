package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/resfetch"
	pr "github.com/unkn0wn-root/resfetch/provider"
)

type fetchResult struct {
	Status resfetch.Status `json:"status"`
	State  any             `json:"state"`
}

func fetchCmd(g *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "fetch [resource...]",
		Short: "Fetch resources once and print their settled state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			results, err := a.fetch(ctx, args)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(results); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up waiting after this long")
	return cmd
}

// fetch refreshes keys (all when empty) and reports each settled state.
func (a *app) fetch(ctx context.Context, keys []string) ([]fetchResult, error) {
	var err error
	if len(keys) == 0 {
		keys = a.reg.Keys()
		_, err = a.reg.RefreshAll(ctx)
	} else {
		var errs []error
		for _, k := range keys {
			if _, rerr := a.reg.Refresh(ctx, k); rerr != nil {
				errs = append(errs, rerr)
			}
		}
		err = errors.Join(errs...)
	}

	out := make([]fetchResult, 0, len(keys))
	for _, k := range keys {
		if res, ok := a.reg.Get(k); ok {
			out = append(out, fetchResult{Status: res.Status(), State: res.Snapshot()})
		}
	}
	return out, err
}

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		addr     string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh every resource on an interval and serve state and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			if interval == 0 {
				interval = a.cfg.Watch.Interval
			}
			if addr == "" {
				addr = a.cfg.Watch.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, addr, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for /metrics and /resources (default from config)")
	return cmd
}

func (a *app) watch(ctx context.Context, addr string, interval time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.log.Info("watching resources", resfetch.Fields{
		"addr": addr, "interval": interval, "resources": len(a.reg.Keys()),
	})

	a.reg.TriggerAll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.reg.TriggerAll()
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

// handler serves /metrics, /resources (all statuses) and /resources/{key}.
// A resource never fetched is fetched on first request.
func (a *app) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /resources", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.reg.Statuses())
	})
	mux.HandleFunc("GET /resources/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")
		res, ok := a.reg.Get(key)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource " + key})
			return
		}
		if res.Status().Phase == resfetch.Idle.String() {
			if _, err := res.RefreshStatus(r.Context()); err != nil {
				writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, res.Snapshot())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the latest fetch generation of every resource",
		Long: `status prints the generation counters held by the generation store.
With cache.redis.shared_generations they include fetches begun by every
replica sharing the Redis instance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			return a.printGenerations(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *app) printGenerations(ctx context.Context, w io.Writer) error {
	if a.cache != nil {
		state := "ok"
		if err := pr.Ping(ctx, a.cache); err != nil {
			state = "unreachable: " + err.Error()
		}
		_, _ = fmt.Fprintf(w, "cache %s: %s\n", a.cfg.Cache.Provider, state)
	}

	gens := a.reg.Generations(ctx)
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RESOURCE\tGENERATION")
	for _, k := range a.reg.Keys() {
		_, _ = fmt.Fprintf(tw, "%s\t%d\n", k, gens[k])
	}
	return tw.Flush()
}
