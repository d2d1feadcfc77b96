package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/config"
	"github.com/pulsewatch/pulsewatch/internal/metric"
	"github.com/pulsewatch/pulsewatch/internal/notify"
	"github.com/pulsewatch/pulsewatch/internal/sampler"
	"github.com/pulsewatch/pulsewatch/internal/storage"
	"github.com/pulsewatch/pulsewatch/internal/threshold"
	"github.com/pulsewatch/pulsewatch/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; defaults apply when empty")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("pulsewatchd starting", "config", *configPath)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"sample_interval", cfg.Sampler.Interval,
		"source", cfg.Sampler.Source,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metric and alert persistence: Postgres when a DSN is configured,
	// in-memory otherwise.
	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Thresholds seeded from the config file, adjustable at runtime via
	// the API and re-seeded on hot reload.
	thresholds := threshold.NewStore()
	applyThresholds(thresholds, cfg)

	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				applyThresholds(thresholds, next)
			})
			if err != nil {
				slog.Warn("config hot-reload unavailable", "err", err)
			}
		}()
	}

	// Alert dispatch fan-out. The console sink is always on; webhook and
	// email join when their environment variables are set.
	dispatcher := notify.NewDispatcher(store, buildSinks()...)

	src, err := buildSource(cfg)
	if err != nil {
		slog.Error("failed to build metric source", "err", err)
		os.Exit(1)
	}

	samp := sampler.New(src, store, thresholds, dispatcher,
		cfg.Sampler.Interval, cfg.Sampler.Subject)
	go samp.Run(ctx)

	hub := ws.New(store, cfg.Server.StreamInterval)
	go hub.Run(ctx)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(store, thresholds))
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("pulsewatchd shutting down")
	// The cancelled ctx has already stopped the sampler, so no new alerts
	// arrive while in-flight deliveries drain.
	dispatcher.Close()
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}

// loadConfig reads the config file, or returns defaults when no path was
// given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// openStore selects the persistence backend from the environment.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if dsn := config.DatabaseURL(); dsn != "" {
		slog.Info("using postgres store")
		return storage.NewPostgres(ctx, dsn)
	}
	slog.Info("using in-memory store")
	return storage.NewMemoryWithRetention(cfg.Storage.MaxSamples, cfg.Storage.MaxAlerts), nil
}

// applyThresholds replaces the global thresholds with the config defaults.
// Subject overrides set through the API are left untouched.
func applyThresholds(th *threshold.Store, cfg *config.Config) {
	for kindName, limit := range cfg.Thresholds.Defaults {
		kind, err := metric.ParseKind(kindName)
		if err != nil {
			slog.Warn("skipping threshold for unknown kind", "kind", kindName)
			continue
		}
		th.Set(threshold.Threshold{Kind: kind, Limit: limit})
	}
	slog.Info("thresholds applied", "defaults", cfg.Thresholds.Defaults)
}

// buildSinks assembles the notification fan-out from the environment.
func buildSinks() []notify.Sink {
	sinks := []notify.Sink{notify.NewConsoleSink()}

	if url := config.WebhookURL(); url != "" {
		sinks = append(sinks, notify.NewWebhookSink(url,
			config.WebhookRetries(), config.WebhookBackoff()))
		slog.Info("webhook sink enabled", "retries", config.WebhookRetries())
	}
	if smtp, ok := config.SMTPConfig(); ok {
		sinks = append(sinks, notify.NewEmailSink(
			smtp.Host, smtp.Port, smtp.User, smtp.Pass, smtp.From, smtp.To))
		slog.Info("email sink enabled", "host", smtp.Host)
	}
	return sinks
}

// buildSource selects the metric source configured in the sampler section.
func buildSource(cfg *config.Config) (sampler.Source, error) {
	switch cfg.Sampler.Source {
	case "", "host":
		return sampler.NewHostSource(), nil
	case "exposition":
		families := make(map[metric.Kind]string, len(cfg.Sampler.Exposition.Families))
		for kindName, family := range cfg.Sampler.Exposition.Families {
			kind, err := metric.ParseKind(kindName)
			if err != nil {
				return nil, err
			}
			families[kind] = family
		}
		return sampler.NewExpositionSource(cfg.Sampler.Exposition.Endpoint, families), nil
	}
	return nil, fmt.Errorf("unsupported sampler source %q", cfg.Sampler.Source)
}
