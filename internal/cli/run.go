package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/runnerr0/attic/internal/expire"
	"github.com/runnerr0/attic/internal/metrics"
	"github.com/runnerr0/attic/internal/notify"
)

// Execute implements the go-flags Commander interface for RunCommand.
// The daemon owns the stores exclusively while it runs: the scheduling
// loop is the only writer, satisfying the engine's single-writer model.
func (c *RunCommand) Execute(args []string) error {
	env, err := openStores(c.globals)
	if err != nil {
		return err
	}
	defer env.Close()

	log := c.buildLogger(env.Config.Logging.Level)
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	mset := metrics.New(reg)

	bus := notify.NewBus()
	sink := notify.Multi{bus, notify.LogSink{Log: log}}

	engine := env.newEngine(log, sink, mset)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Feed deletion notifications into the metric counters.
	details, cancelSub := bus.Subscribe(64)
	defer cancelSub()
	go func() {
		for d := range details {
			mset.URLsDeleted.WithLabelValues(fmt.Sprintf("%t", d.Archived)).Add(float64(len(d.Rows)))
			mset.FaviconsExpired.Add(float64(len(d.FaviconURLs)))
		}
	}()

	scheduler := expire.NewScheduler(expire.SchedulerOptions{
		Engine:    engine,
		Retention: env.Config.RetentionDuration(),
		FastDelay: env.Config.FastDelay(),
		SlowDelay: env.Config.SlowDelay(),
		BatchSize: env.Config.Archival.BatchSize,
		Log:       log,
		Metrics:   mset,
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	port := env.Config.Daemon.Port
	if c.Port != 0 {
		port = c.Port
	}
	addr := fmt.Sprintf("%s:%d", env.Config.Daemon.Host, port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info("daemon listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	}

	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildLogger builds the daemon logger, honoring --log-level over the
// configured level.
func (c *RunCommand) buildLogger(configured string) *slog.Logger {
	level := configured
	if c.LogLevel != "" {
		level = c.LogLevel
	}

	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
