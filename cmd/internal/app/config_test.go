package app

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"VROOM_HTTP_ADDR",
		"VROOM_LOG_LEVEL",
		"VROOM_LOG_FORMAT",
		"VROOM_DATABASE_URL",
		"VROOM_DB_SCHEMA",
		"VROOM_CORS_ALLOWED_ORIGINS",
		"VROOM_READINESS_REQUIRE_DB",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("http addr mismatch: %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("log defaults mismatch: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("database url should default empty, got %q", cfg.DatabaseURL)
	}
	if cfg.DBSchema != "vroom" {
		t.Fatalf("db schema mismatch: %q", cfg.DBSchema)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 0 {
		t.Fatalf("db conns mismatch: %d %d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("read header timeout mismatch: %v", cfg.ReadHeaderTimeout)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("cors origins should default nil, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.ReadinessRequireDB {
		t.Fatalf("readiness should not require db by default")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("VROOM_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("VROOM_LOG_LEVEL", "debug")
	t.Setenv("VROOM_LOG_FORMAT", "pretty")
	t.Setenv("VROOM_HTTP_WRITE_TIMEOUT", "30s")
	t.Setenv("VROOM_DB_SCHEMA", "chat_test")
	t.Setenv("VROOM_DB_MAX_CONNS", "25")
	t.Setenv("VROOM_CORS_ALLOWED_ORIGINS", "https://app.example.com, localhost:*")
	t.Setenv("VROOM_CORS_ALLOW_CREDENTIALS", "true")
	t.Setenv("VROOM_READINESS_REQUIRE_DB", "true")

	cfg := LoadConfig()

	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("http addr mismatch: %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "pretty" {
		t.Fatalf("log overrides mismatch: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.WriteTimeout != 30*time.Second {
		t.Fatalf("write timeout mismatch: %v", cfg.WriteTimeout)
	}
	if cfg.DBSchema != "chat_test" {
		t.Fatalf("db schema mismatch: %q", cfg.DBSchema)
	}
	if cfg.DBMaxConns != 25 {
		t.Fatalf("db max conns mismatch: %d", cfg.DBMaxConns)
	}
	want := []string{"https://app.example.com", "localhost:*"}
	if len(cfg.CORSAllowedOrigins) != len(want) {
		t.Fatalf("cors origins mismatch: %v", cfg.CORSAllowedOrigins)
	}
	for i := range want {
		if cfg.CORSAllowedOrigins[i] != want[i] {
			t.Fatalf("cors origin %d mismatch: %q", i, cfg.CORSAllowedOrigins[i])
		}
	}
	if !cfg.CORSAllowCredentials || !cfg.ReadinessRequireDB {
		t.Fatalf("bool overrides mismatch: %v %v", cfg.CORSAllowCredentials, cfg.ReadinessRequireDB)
	}
}

func TestEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("VROOM_TEST_INT", "not-a-number")
	if got := EnvInt("VROOM_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt fallback mismatch: %d", got)
	}

	t.Setenv("VROOM_TEST_INT", "-3")
	if got := EnvInt("VROOM_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt should reject non-positive values, got %d", got)
	}

	t.Setenv("VROOM_TEST_DURATION", "0s")
	if got := EnvDuration("VROOM_TEST_DURATION", time.Minute); got != time.Minute {
		t.Fatalf("EnvDuration should reject non-positive values, got %v", got)
	}

	t.Setenv("VROOM_TEST_BOOL", "maybe")
	if got := EnvBool("VROOM_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool fallback mismatch")
	}

	t.Setenv("VROOM_TEST_CSV", " , ,")
	if got := EnvCSV("VROOM_TEST_CSV", []string{"a"}); len(got) != 1 || got[0] != "a" {
		t.Fatalf("EnvCSV fallback mismatch: %v", got)
	}
}
