package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("setenv %s failed: %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		}
	})
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	unsetEnv(t, "MYSQL_DSN")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing MYSQL_DSN")
	}
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	setEnv(t, "MYSQL_DSN", "root:root@tcp(localhost:3306)/gateway?parseTime=true")
	setEnv(t, "APP_SERVICE_NAME", "gateway-test")
	setEnv(t, "HTTP_PORT", "8181")
	setEnv(t, "GRPC_PORT", "9191")
	setEnv(t, "MYSQL_MAX_OPEN_CONNS", "20")
	setEnv(t, "MYSQL_MAX_IDLE_CONNS", "8")
	setEnv(t, "MYSQL_CONN_MAX_LIFETIME_MINUTES", "40")
	setEnv(t, "GATEWAY_SIGNING_KEYS", "mpesa=k1, equity = k2,broken,=skip")
	setEnv(t, "GATEWAY_RATE_LIMIT_PER_SECOND", "2.5")
	setEnv(t, "REQUESTS_DUPLICATE_WINDOW_MINUTES", "7")
	setEnv(t, "MONITOR_LATENCY_THRESHOLD_MS", "1500")
	setEnv(t, "JOBS_BATCH_SIZE", "99")
	setEnv(t, "GATEWAY_TRUSTED_PROXY_CIDRS", " 10.0.0.0/8, ,192.168.1.10")
	unsetEnv(t, "REDIS_ADDR")
	unsetEnv(t, "LOG_FORMAT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.App.ServiceName != "gateway-test" {
		t.Fatalf("unexpected app service name: %s", cfg.App.ServiceName)
	}
	if cfg.HTTP.Port != "8181" || cfg.GRPC.Port != "9191" {
		t.Fatalf("unexpected ports: http=%s grpc=%s", cfg.HTTP.Port, cfg.GRPC.Port)
	}
	if cfg.MySQL.MaxOpenConns != 20 || cfg.MySQL.MaxIdleConns != 8 {
		t.Fatalf("unexpected mysql pool config: %+v", cfg.MySQL)
	}
	if cfg.MySQL.ConnMaxLifetime != 40*time.Minute {
		t.Fatalf("unexpected mysql lifetime: %v", cfg.MySQL.ConnMaxLifetime)
	}
	if len(cfg.Gateway.SigningKeys) != 2 || cfg.Gateway.SigningKeys["mpesa"] != "k1" || cfg.Gateway.SigningKeys["equity"] != "k2" {
		t.Fatalf("unexpected signing keys: %v", cfg.Gateway.SigningKeys)
	}
	if cfg.Gateway.RateLimitPerSecond != 2.5 {
		t.Fatalf("unexpected rate limit: %v", cfg.Gateway.RateLimitPerSecond)
	}
	if len(cfg.Gateway.TrustedProxies) != 2 || cfg.Gateway.TrustedProxies[0] != "10.0.0.0/8" || cfg.Gateway.TrustedProxies[1] != "192.168.1.10" {
		t.Fatalf("unexpected trusted proxies: %v", cfg.Gateway.TrustedProxies)
	}
	if cfg.Gateway.DefaultCurrency != "KES" {
		t.Fatalf("unexpected default currency: %s", cfg.Gateway.DefaultCurrency)
	}
	if cfg.Requests.DuplicateWindow != 7*time.Minute {
		t.Fatalf("unexpected duplicate window: %v", cfg.Requests.DuplicateWindow)
	}
	if cfg.Requests.CountryCode != "254" {
		t.Fatalf("unexpected country code: %s", cfg.Requests.CountryCode)
	}
	if cfg.Monitor.LatencyThreshold != 1500*time.Millisecond {
		t.Fatalf("unexpected latency threshold: %v", cfg.Monitor.LatencyThreshold)
	}
	if cfg.Monitor.Window != 24*time.Hour {
		t.Fatalf("unexpected monitor window: %v", cfg.Monitor.Window)
	}
	if cfg.Jobs.BatchSize != 99 {
		t.Fatalf("unexpected job batch size: %d", cfg.Jobs.BatchSize)
	}
	if cfg.Redis.Enabled() {
		t.Fatal("expected redis to be disabled without REDIS_ADDR")
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("unexpected log format: %s", cfg.Log.Format)
	}
}
