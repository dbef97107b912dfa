package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/pkg/cell"
	"github.com/lattice-dev/lattice/pkg/instrument"
	"github.com/lattice-dev/lattice/pkg/live"
	"github.com/lattice-dev/lattice/pkg/persist"
	"github.com/lattice-dev/lattice/pkg/store"
)

// busyThreshold is the request count at which the demo state flips from
// quiet to busy.
const busyThreshold = 100

func serveCmd() *cobra.Command {
	var (
		addr       string
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the state server",
		Long: `Start the state server.

The server keeps its state in reactive cells and exposes:

  /live     WebSocket stream of store changes
  /state    Current state as JSON
  /metrics  Prometheus metrics
  /healthz  Liveness probe

With snapshot persistence configured, state survives restarts: the last
snapshot is restored on boot and a final one is written on shutdown.

Examples:
  lattice serve
  lattice serve --addr=:8080
  lattice serve --config=/etc/lattice/lattice.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, configPath, verbose)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from lattice.json)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to lattice.json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func runServe(addr, configPath string, verbose bool) error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	logger := slog.Default().With("component", "serve")

	// Load config
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return err
	}

	// Command-line overrides
	if addr != "" {
		cfg.Addr = addr
	}

	// Observability hooks feed Prometheus and OpenTelemetry from the same
	// graph events
	metricsHooks, _ := instrument.Prometheus(instrument.WithNamespace(cfg.MetricsNamespace))
	hooks := instrument.Merge(metricsHooks, instrument.OpenTelemetry())

	g := cell.NewGraph(cell.WithHooks(hooks))
	s := store.New()
	defer s.Dispose()

	// Demo state: a request counter fed by HTTP middleware, and an
	// activity level derived from it by an effect
	requests := cell.NewInt(g, 0)
	level := cell.New(g, "quiet")
	s.Register("requests", requests.Cell)
	s.Register("level", level)

	storeMetrics := instrument.CollectStore(s, instrument.WithNamespace(cfg.MetricsNamespace))
	defer storeMetrics.Close()

	// Restore persisted state before wiring reactions, so watchers diff
	// against the restored values rather than replaying history
	var saver *persist.Saver
	if cfg.Snapshot.Dir != "" {
		backend, err := persist.NewDiskStore(cfg.Snapshot.Dir)
		if err != nil {
			return err
		}
		saver = persist.NewSaver(s, backend, cfg.Snapshot.Name, snapshotPolicy(cfg.Snapshot))
		defer saver.Close()

		switch err := saver.Restore(context.Background()); {
		case err == nil:
			success("Restored snapshot %q from %s", cfg.Snapshot.Name, cfg.Snapshot.Dir)
		case errors.Is(err, persist.ErrNoSnapshot):
			info("No snapshot found, starting fresh")
		default:
			var rerr *persist.RestoreError
			if errors.As(err, &rerr) {
				warn("Snapshot restored partially: %s", rerr)
			} else {
				return err
			}
		}
	}

	activity := cell.NewEffect(g, func() {
		if requests.Get() >= busyThreshold {
			level.Set("busy")
		} else {
			level.Set("quiet")
		}
	})
	activity.Run()
	defer activity.Stop()

	levelWatch := cell.Watch(level, func(newValue, oldValue string) {
		logger.Info("activity level changed", "from", oldValue, "to", newValue)
	})
	defer levelWatch.Stop()

	// Live bridge
	var liveOpts []live.HandlerOption
	if cfg.ClientWrites {
		liveOpts = append(liveOpts, live.WithClientWrites())
	}
	if len(cfg.AllowedOrigins) > 0 {
		liveOpts = append(liveOpts, live.WithCheckOrigin(allowOrigins(cfg.AllowedOrigins)))
	}
	hub := live.NewHub(s)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(countRequests(requests))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/state", stateHandler(s))
	live.Mount(r, "/live", hub, liveOpts...)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	printBanner()
	success("Listening on %s", cfg.Addr)
	info("Live stream:  ws://%s/live", displayAddr(cfg.Addr))
	info("Metrics:      http://%s/metrics", displayAddr(cfg.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := srv.Shutdown(ctx)
	hub.Close()

	if saver != nil {
		if err := saver.Flush(ctx); err != nil {
			logger.Error("final snapshot failed", "error", err)
		} else {
			success("Saved snapshot %q", cfg.Snapshot.Name)
		}
	}

	return shutdownErr
}

// snapshotPolicy builds the save policy from config. Both arms disabled
// means manual saves only: the shutdown flush still runs.
func snapshotPolicy(sc config.SnapshotConfig) persist.Policy {
	var arms []persist.Policy
	if sc.EveryNChanges > 0 {
		arms = append(arms, persist.EveryNChanges(sc.EveryNChanges))
	}
	if sc.MinIntervalSeconds > 0 {
		arms = append(arms, persist.MinInterval(time.Duration(sc.MinIntervalSeconds)*time.Second))
	}
	switch len(arms) {
	case 0:
		return nil
	case 1:
		return arms[0]
	default:
		return persist.Any(arms...)
	}
}

// countRequests increments the request counter cell on every request.
func countRequests(requests *cell.IntCell) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// stateHandler serves the store's current values as one JSON object.
func stateHandler(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := persist.Take(s, "state")
		if err != nil {
			http.Error(w, fmt.Sprintf("snapshot failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snap.Values)
	}
}

// displayAddr makes a bare ":port" listen address printable as a URL host.
func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// allowOrigins admits same-origin requests plus an explicit origin list.
func allowOrigins(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if live.SameOriginCheck(r) {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if strings.EqualFold(origin, a) {
				return true
			}
		}
		return false
	}
}
