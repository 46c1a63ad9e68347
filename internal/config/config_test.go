package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "SECRET_ID",
		"MIN_CLIENT_VERSION", "SHOPIFY_STORE_DOMAIN", "SHOPIFY_STOREFRONT_TOKEN",
		"SHOPIFY_API_VERSION", "SHOPIFY_TIMEOUT", "SHOPIFY_RPS", "SHOPIFY_BURST",
		"SHOPIFY_CHROME_TLS", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "SESSION_TTL",
		"BASE_PRODUCT_IDS", "INSURANCE_PRODUCT_IDS", "ACCESSORIES_COLLECTION_ID",
		"MIN_DELIVERY_DATE", "SYNC_SETTLE_DELAY", "SYNC_MAX_ATTEMPTS", "SYNC_BASE_BACKOFF",
		"SYNC_MAX_BACKOFF", "SELECTION_REFRESHES", "PRODUCT_FETCH_ATTEMPTS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SHOPIFY_STORE_DOMAIN", "https://trees.example.com/")
	t.Setenv("SHOPIFY_STOREFRONT_TOKEN", "tok_123")
	t.Setenv("SHOPIFY_TIMEOUT", "15s")
	t.Setenv("SHOPIFY_RPS", "2.5")
	t.Setenv("SHOPIFY_BURST", "4")
	t.Setenv("SHOPIFY_CHROME_TLS", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("BASE_PRODUCT_IDS", "gid://a, gid://b ,")
	t.Setenv("MIN_DELIVERY_DATE", "2025-12-01")
	t.Setenv("SYNC_SETTLE_DELAY", "100ms")
	t.Setenv("SYNC_MAX_ATTEMPTS", "3")
	t.Setenv("MIN_CLIENT_VERSION", "1.2.0")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Store.StoreDomain != "trees.example.com" {
		t.Errorf("StoreDomain = %s, want trees.example.com", cfg.Store.StoreDomain)
	}
	if cfg.Store.Timeout.Std() != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", cfg.Store.Timeout.Std())
	}
	if cfg.Store.RequestsPerSecond != 2.5 || cfg.Store.Burst != 4 || !cfg.Store.ChromeTLS {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 3 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Redis.TTL.Std() != 10*24*time.Hour {
		t.Errorf("Redis.TTL = %v, want default", cfg.Redis.TTL.Std())
	}
	if got := cfg.Checkout.BaseProductIDs; len(got) != 2 || got[0] != "gid://a" || got[1] != "gid://b" {
		t.Errorf("BaseProductIDs = %v", got)
	}
	if cfg.Sync.SettleDelay.Std() != 100*time.Millisecond || cfg.Sync.MaxAttempts != 3 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if want := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC); !cfg.MinDeliveryDate().Equal(want) {
		t.Errorf("MinDeliveryDate() = %v, want %v", cfg.MinDeliveryDate(), want)
	}
	if cfg.UseFakeStore() {
		t.Error("UseFakeStore() = true with a token")
	}
}

func TestLoadDefaultsToFakeStore(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.UseFakeStore() {
		t.Error("UseFakeStore() = false without a token in development")
	}
	if cfg.Port != "8080" || cfg.Environment != "development" || cfg.LogLevel != "info" {
		t.Errorf("defaults = %s/%s/%s", cfg.Port, cfg.Environment, cfg.LogLevel)
	}
	if len(cfg.Checkout.BaseProductIDs) != len(defaultBaseProducts) {
		t.Errorf("BaseProductIDs = %v, want defaults", cfg.Checkout.BaseProductIDs)
	}
	if !cfg.MinDeliveryDate().IsZero() {
		t.Errorf("MinDeliveryDate() = %v, want zero", cfg.MinDeliveryDate())
	}
}

func TestLoadProductionRequiresProject(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load(context.Background())
	if err == nil {
		t.Fatal("Load() should error without GCP_PROJECT in production")
	}
	if !strings.Contains(err.Error(), "GCP_PROJECT") {
		t.Errorf("error should mention GCP_PROJECT: %v", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"token without domain", "SHOPIFY_STOREFRONT_TOKEN", "tok", "store_domain"},
		{"bad timeout", "SHOPIFY_TIMEOUT", "soon", "SHOPIFY_TIMEOUT"},
		{"bad burst", "SHOPIFY_BURST", "many", "SHOPIFY_BURST"},
		{"bad redis db", "REDIS_DB", "x", "REDIS_DB"},
		{"bad attempts", "SYNC_MAX_ATTEMPTS", "x", "SYNC_MAX_ATTEMPTS"},
		{"negative attempts", "SYNC_MAX_ATTEMPTS", "-1", "max_attempts"},
		{"bad client version", "MIN_CLIENT_VERSION", "one", "min_client_version"},
		{"bad delivery date", "MIN_DELIVERY_DATE", "12/01/2025", "min_delivery_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(context.Background())
			if err == nil {
				t.Fatal("Load() should return error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"port": "7070",
		"min_client_version": "v2.0.0",
		"store": {
			"store_domain": "trees.example.com",
			"storefront_token": "tok",
			"timeout": "5s"
		},
		"redis": {"addr": "cache:6379", "ttl": "48h"},
		"checkout": {
			"base_product_ids": ["gid://shopify/Product/1"],
			"accessories_collection": "gid://shopify/Collection/9"
		},
		"sync": {"base_backoff": "250ms", "selection_refreshes": 1}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Port = %s, want 7070", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development default", cfg.Environment)
	}
	if cfg.Store.Timeout.Std() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Store.Timeout.Std())
	}
	if cfg.Redis.TTL.Std() != 48*time.Hour {
		t.Errorf("Redis.TTL = %v, want 48h", cfg.Redis.TTL.Std())
	}
	if cfg.Sync.BaseBackoff.Std() != 250*time.Millisecond || cfg.Sync.SelectionRefreshes != 1 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Checkout.AccessoriesCollection != "gid://shopify/Collection/9" {
		t.Errorf("AccessoriesCollection = %s", cfg.Checkout.AccessoriesCollection)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid json", `{`, "parsing config file"},
		{"numeric duration", `{"store": {"timeout": 5}}`, "duration must be a string"},
		{"missing token in production", `{"environment": "production", "store": {"store_domain": "x.example"}}`, "storefront_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			t.Setenv("CONFIG_FILE", path)

			_, err := Load(context.Background())
			if err == nil {
				t.Fatal("Load() should return error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(dir, "nope.json"))
		if _, err := Load(context.Background()); err == nil || !strings.Contains(err.Error(), "reading config file") {
			t.Errorf("error = %v, want reading config file", err)
		}
	})
}

func TestDurationJSON(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1.5s"` {
		t.Errorf("Marshal = %s, want \"1.5s\"", b)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://shop.example.com", "shop.example.com"},
		{"http://shop.example.com", "shop.example.com"},
		{"https://shop.example.com/", "shop.example.com"},
		{"https://shop.example.com/path/to/store", "shop.example.com"},
		{"shop.example.com", "shop.example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := extractDomain(tt.input); got != tt.want {
				t.Errorf("extractDomain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " a ,b,, c ")
	got := envList("TEST_LIST")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("envList = %v, want [a b c]", got)
	}

	t.Setenv("TEST_LIST", "")
	if got := envList("TEST_LIST"); got != nil {
		t.Errorf("envList(empty) = %v, want nil", got)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_VAR_SET", "custom")
	if got := envOrDefault("TEST_VAR_SET", "default"); got != "custom" {
		t.Errorf("envOrDefault(set) = %s, want custom", got)
	}

	t.Setenv("TEST_VAR_UNSET", "")
	if got := envOrDefault("TEST_VAR_UNSET", "default"); got != "default" {
		t.Errorf("envOrDefault(unset) = %s, want default", got)
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("value", "default"); got != "value" {
		t.Errorf("withDefault(value) = %s, want value", got)
	}
	if got := withDefault("", "default"); got != "default" {
		t.Errorf("withDefault(empty) = %s, want default", got)
	}
}
