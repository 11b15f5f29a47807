package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIntEnvParsesValue(t *testing.T) {
	t.Setenv("DUPEGUARD_TEST_INT", "42")
	got := intEnv("DUPEGUARD_TEST_INT", 7)
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestIntEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("DUPEGUARD_TEST_INT_BAD", "not-a-number")
	got := intEnv("DUPEGUARD_TEST_INT_BAD", 7)
	if got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestDurationEnvParsesValue(t *testing.T) {
	t.Setenv("DUPEGUARD_TEST_DURATION", "150ms")
	got := durationEnv("DUPEGUARD_TEST_DURATION", time.Second)
	if got != 150*time.Millisecond {
		t.Fatalf("expected 150ms, got %s", got)
	}
}

func TestDurationEnvFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("DUPEGUARD_TEST_DURATION_BAD", "soon")
	got := durationEnv("DUPEGUARD_TEST_DURATION_BAD", 2*time.Second)
	if got != 2*time.Second {
		t.Fatalf("expected fallback 2s, got %s", got)
	}
}

func TestBoolAndFloatEnv(t *testing.T) {
	t.Setenv("DUPEGUARD_TEST_BOOL", "true")
	t.Setenv("DUPEGUARD_TEST_BOOL_BAD", "maybe")
	t.Setenv("DUPEGUARD_TEST_FLOAT", "2.5")
	if !boolEnv("DUPEGUARD_TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	if boolEnv("DUPEGUARD_TEST_BOOL_BAD", false) {
		t.Fatal("expected fallback false")
	}
	if got := floatEnv("DUPEGUARD_TEST_FLOAT", 1); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
}

func TestEnvHelpersUseFallbackWhenUnset(t *testing.T) {
	_ = os.Unsetenv("DUPEGUARD_TEST_INT_UNSET")
	_ = os.Unsetenv("DUPEGUARD_TEST_DURATION_UNSET")

	if got := intEnv("DUPEGUARD_TEST_INT_UNSET", 9); got != 9 {
		t.Fatalf("expected fallback 9, got %d", got)
	}
	if got := durationEnv("DUPEGUARD_TEST_DURATION_UNSET", 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected fallback 3s, got %s", got)
	}
	if got := int64Env("DUPEGUARD_TEST_INT_UNSET", 11); got != 11 {
		t.Fatalf("expected fallback 11, got %d", got)
	}
}

func TestStorageProfiles(t *testing.T) {
	t.Setenv("DUPEGUARD_BACKEND_PROFILE", "")
	t.Setenv("DUPEGUARD_SETTINGS_DSN", "")
	t.Setenv("DUPEGUARD_QUEUE_DSN", "")
	settingsDSN, queueDSN, err := storageDSNsFromEnv()
	if err != nil || settingsDSN != "memory://" || queueDSN != "memory://" {
		t.Fatalf("unexpected default profile: %q %q %v", settingsDSN, queueDSN, err)
	}

	dir := t.TempDir()
	t.Setenv("DUPEGUARD_BACKEND_PROFILE", "durable-local")
	t.Setenv("DUPEGUARD_DATA_DIR", dir)
	settingsDSN, queueDSN, err = storageDSNsFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if settingsDSN != "sqlite://"+filepath.Join(dir, "settings.db") {
		t.Fatalf("unexpected settings dsn %q", settingsDSN)
	}
	if queueDSN != "file://"+filepath.Join(dir, "event-queue.json") {
		t.Fatalf("unexpected queue dsn %q", queueDSN)
	}

	t.Setenv("DUPEGUARD_QUEUE_DSN", "redis://localhost:6379/0")
	_, queueDSN, _ = storageDSNsFromEnv()
	if queueDSN != "redis://localhost:6379/0" {
		t.Fatalf("explicit dsn should win, got %q", queueDSN)
	}

	t.Setenv("DUPEGUARD_BACKEND_PROFILE", "production")
	t.Setenv("DUPEGUARD_POSTGRES_DSN", "")
	if _, _, err := storageDSNsFromEnv(); err == nil {
		t.Fatal("expected error without postgres dsn")
	}

	t.Setenv("DUPEGUARD_BACKEND_PROFILE", "cloud")
	if _, _, err := storageDSNsFromEnv(); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestOrderSourceFallsBackToSampleData(t *testing.T) {
	t.Setenv("SHOPIFY_SHOP", "")
	t.Setenv("SHOPIFY_ACCESS_TOKEN", "")
	t.Setenv("DUPEGUARD_MOCK", "")
	source, err := buildOrderSourceFromEnv(slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if source.mode != "mock" || source.probe != nil || source.directory == nil {
		t.Fatalf("unexpected mock source: %+v", source)
	}

	t.Setenv("SHOPIFY_SHOP", "demo")
	t.Setenv("SHOPIFY_ACCESS_TOKEN", "shpat_test")
	source, err = buildOrderSourceFromEnv(slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if source.mode != "shopify" || source.probe == nil {
		t.Fatalf("unexpected shopify source: %+v", source)
	}

	t.Setenv("DUPEGUARD_MOCK", "1")
	source, _ = buildOrderSourceFromEnv(slog.Default())
	if source.mode != "mock" {
		t.Fatalf("DUPEGUARD_MOCK should force the sample dataset, got %s", source.mode)
	}
}

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pw@db:5432/app": "postgres://***@db:5432/app",
		"memory://":                      "memory://",
		"/var/lib/settings.json":         "/var/lib/settings.json",
	}
	for in, want := range cases {
		if got := redactDSN(in); got != want {
			t.Fatalf("redactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}
