package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentworkforce/dupeguard/internal/dupes"
	"github.com/agentworkforce/dupeguard/internal/httpapi"
	"github.com/agentworkforce/dupeguard/internal/intake"
	"github.com/agentworkforce/dupeguard/internal/settings"
	"github.com/agentworkforce/dupeguard/internal/shopify"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logger := newLogger(os.Getenv("DUPEGUARD_LOG_FORMAT"), os.Getenv("DUPEGUARD_LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, logger); err != nil {
		logger.Error("dupeguard stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	addr := os.Getenv("DUPEGUARD_ADDR")
	if addr == "" {
		addr = ":3000"
	}
	settingsDSN, queueDSN, err := storageDSNsFromEnv()
	if err != nil {
		return err
	}

	source, err := buildOrderSourceFromEnv(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize order source: %w", err)
	}

	backend, err := settings.BuildBackendFromDSN(settingsDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize settings backend: %w", err)
	}
	store, err := settings.Open(ctx, backend, settings.StoreOptions{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	defer store.Close()

	queue, err := intake.BuildQueueFromDSN(queueDSN, intEnv("DUPEGUARD_QUEUE_SIZE", 0))
	if err != nil {
		return fmt.Errorf("failed to initialize event queue: %w", err)
	}

	hub := httpapi.NewEventHub(logger, intEnv("DUPEGUARD_EVENT_BUFFER", 0))
	scanner := dupes.NewScanner(dupes.ScannerOptions{
		Directory:              source.directory,
		Mutator:                source.mutator,
		Logger:                 logger,
		Observer:               hub,
		RemediationConcurrency: intEnv("DUPEGUARD_REMEDIATION_CONCURRENCY", 1),
	})
	dispatcher := intake.NewDispatcher(intake.DispatcherOptions{
		Queue:        queue,
		Runner:       scanner,
		Settings:     store,
		Logger:       logger,
		Workers:      intEnv("DUPEGUARD_WORKERS", 0),
		DedupeWindow: durationEnv("DUPEGUARD_DEDUPE_WINDOW", 0),
		MaxAttempts:  intEnv("DUPEGUARD_MAX_EVENT_ATTEMPTS", 0),
		RetryDelay:   durationEnv("DUPEGUARD_EVENT_RETRY_DELAY", 0),
		OnReport: func(event intake.Event, report *dupes.Report) {
			logger.Info("incremental check finished",
				"event_id", event.ID,
				"order", event.Order.Name,
				"groups", report.GroupsFound,
				"skipped", report.Skipped,
				"failed", len(report.Failed))
		},
	})
	dispatcher.Start()
	defer dispatcher.Close()

	server := httpapi.NewServer(httpapi.Deps{
		Scanner:  scanner,
		Settings: store,
		Intake:   dispatcher,
		Shop:     source.probe,
		Events:   hub,
		Logger:   logger,
	}, httpapi.ServerConfig{
		AdminJWTSecret: os.Getenv("DUPEGUARD_ADMIN_JWT_SECRET"),
		WebhookSecret:  os.Getenv("SHOPIFY_WEBHOOK_SECRET"),
		RateLimitRPS:   floatEnv("DUPEGUARD_RATE_LIMIT_RPS", 0),
		RateLimitBurst: intEnv("DUPEGUARD_RATE_LIMIT_BURST", 0),
		MaxBodyBytes:   int64Env("DUPEGUARD_MAX_BODY_BYTES", 0),
		ScanTimeout:    durationEnv("DUPEGUARD_SCAN_TIMEOUT", 0),
	})
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("dupeguard listening", "addr", addr, "mode", source.mode,
		"settings_backend", redactDSN(settingsDSN), "queue", redactDSN(queueDSN))

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), durationEnv("DUPEGUARD_SHUTDOWN_TIMEOUT", 15*time.Second))
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type orderSource struct {
	directory dupes.OrderDirectory
	mutator   dupes.OrderMutator
	probe     httpapi.ShopProbe
	mode      string
}

// buildOrderSourceFromEnv falls back to the in-memory sample dataset when
// Shopify credentials are absent, so the dashboard can be tried locally.
func buildOrderSourceFromEnv(logger *slog.Logger) (orderSource, error) {
	shop := strings.TrimSpace(os.Getenv("SHOPIFY_SHOP"))
	token := strings.TrimSpace(os.Getenv("SHOPIFY_ACCESS_TOKEN"))
	mock := boolEnv("DUPEGUARD_MOCK", false)
	if mock || shop == "" || token == "" {
		if !mock {
			logger.Warn("SHOPIFY_SHOP or SHOPIFY_ACCESS_TOKEN not set, serving the sample order dataset")
		}
		orders := shopify.NewMemoryStore(nil, shopify.SampleOrders(time.Now())...)
		return orderSource{directory: orders, mutator: orders, mode: "mock"}, nil
	}
	client, err := shopify.NewClient(shopify.ClientOptions{
		Shop:              shop,
		AccessToken:       token,
		BaseURL:           os.Getenv("SHOPIFY_BASE_URL"),
		APIVersion:        os.Getenv("SHOPIFY_API_VERSION"),
		UserAgent:         "dupeguard",
		MaxRetries:        intEnv("SHOPIFY_MAX_RETRIES", 0),
		RequestsPerSecond: floatEnv("SHOPIFY_REQUESTS_PER_SECOND", 0),
		Logger:            logger,
	})
	if err != nil {
		return orderSource{}, err
	}
	return orderSource{directory: client, mutator: client, probe: client, mode: "shopify"}, nil
}

// storageDSNsFromEnv resolves explicit DSNs first, then the backend profile.
func storageDSNsFromEnv() (settingsDSN, queueDSN string, err error) {
	profileSettings, profileQueue, err := storageProfileDefaultsFromEnv()
	if err != nil {
		return "", "", err
	}
	settingsDSN = strings.TrimSpace(os.Getenv("DUPEGUARD_SETTINGS_DSN"))
	if settingsDSN == "" {
		settingsDSN = profileSettings
	}
	queueDSN = strings.TrimSpace(os.Getenv("DUPEGUARD_QUEUE_DSN"))
	if queueDSN == "" {
		queueDSN = profileQueue
	}
	return settingsDSN, queueDSN, nil
}

func storageProfileDefaultsFromEnv() (settingsDSN, queueDSN string, err error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("DUPEGUARD_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("DUPEGUARD_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".dupeguard"
	}
	switch profile {
	case "", "memory", "inmemory":
		return "memory://", "memory://", nil
	case "production", "prod":
		productionDSN := strings.TrimSpace(os.Getenv("DUPEGUARD_POSTGRES_DSN"))
		if productionDSN == "" {
			return "", "", fmt.Errorf("DUPEGUARD_POSTGRES_DSN is required when DUPEGUARD_BACKEND_PROFILE=%s", profile)
		}
		return productionDSN, productionDSN, nil
	case "durable-local", "local-durable":
		return "sqlite://" + filepath.Join(dataDir, "settings.db"),
			"file://" + filepath.Join(dataDir, "event-queue.json"),
			nil
	default:
		return "", "", fmt.Errorf("unsupported DUPEGUARD_BACKEND_PROFILE: %s", profile)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// redactDSN drops credentials before a DSN is logged.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid integer env value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func floatEnv(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid number env value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration env value, using fallback", "name", name, "value", raw, "fallback", fallback.String())
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean env value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}
