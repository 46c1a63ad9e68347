// Package config handles loading and validation of service configuration.
// Supports both development (env vars, optional .env file) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"golang.org/x/mod/semver"
)

// Storefront ids of the production catalog.
var (
	defaultBaseProducts = []string{
		"gid://shopify/Product/7119040610384",
		"gid://shopify/Product/7119041560656",
	}
)

// Config holds all service configuration.
// Environment determines whether the storefront settings load from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string `json:"port"`
	Environment string `json:"environment"` // "development" or "production"
	LogLevel    string `json:"log_level"`   // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string `json:"gcp_project"`
	// SecretID names the Secret Manager secret holding StoreConfig JSON.
	SecretID string `json:"secret_id"`

	// MinClientVersion is the oldest widget build served, as semver.
	MinClientVersion string `json:"min_client_version"`

	Store    StoreConfig    `json:"store"`
	Redis    RedisConfig    `json:"redis"`
	Checkout CheckoutConfig `json:"checkout"`
	Sync     SyncConfig     `json:"sync"`
}

// StoreConfig addresses the Storefront API.
// In production, this is loaded from Secret Manager as JSON.
// An empty token in development runs against the in-memory store.
type StoreConfig struct {
	StoreDomain       string   `json:"store_domain"`
	StorefrontToken   string   `json:"storefront_token"`
	APIVersion        string   `json:"api_version,omitempty"`
	Timeout           Duration `json:"timeout,omitempty"`
	RequestsPerSecond float64  `json:"requests_per_second,omitempty"`
	Burst             int      `json:"burst,omitempty"`
	ChromeTLS         bool     `json:"chrome_tls,omitempty"`
}

// RedisConfig enables Redis-backed session persistence when Addr is set.
type RedisConfig struct {
	Addr     string   `json:"addr"`
	Password string   `json:"password,omitempty"`
	DB       int      `json:"db,omitempty"`
	TTL      Duration `json:"ttl,omitempty"`
}

// CheckoutConfig holds the catalog ids the step sequence is built from.
type CheckoutConfig struct {
	BaseProductIDs        []string `json:"base_product_ids"`
	InsuranceProductIDs   []string `json:"insurance_product_ids,omitempty"`
	AccessoriesCollection string   `json:"accessories_collection,omitempty"`
	// MinDeliveryDate is YYYY-MM-DD; empty means today.
	MinDeliveryDate string `json:"min_delivery_date,omitempty"`
}

// SyncConfig tunes the cart write protocol and step product loading.
// Zero values take the package defaults.
type SyncConfig struct {
	SettleDelay          Duration `json:"settle_delay,omitempty"`
	MaxAttempts          int      `json:"max_attempts,omitempty"`
	BaseBackoff          Duration `json:"base_backoff,omitempty"`
	MaxBackoff           Duration `json:"max_backoff,omitempty"`
	SelectionRefreshes   int      `json:"selection_refreshes,omitempty"`
	ProductFetchAttempts int      `json:"product_fetch_attempts,omitempty"`
}

// Duration is a time.Duration written as "500ms" in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UseFakeStore reports whether the service runs against the in-memory store.
func (c *Config) UseFakeStore() bool {
	return c.Environment != "production" && c.Store.StorefrontToken == ""
}

// MinDeliveryDate parses Checkout.MinDeliveryDate; zero when unset.
func (c *Config) MinDeliveryDate() time.Time {
	t, _ := time.Parse("2006-01-02", c.Checkout.MinDeliveryDate)
	return t
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Outside production a .env file in the working directory is applied first.
func Load(ctx context.Context) (*Config, error) {
	if os.Getenv("ENVIRONMENT") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", "8080"),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		SecretID:         envOrDefault("SECRET_ID", "storefront"),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
	}

	if err := cfg.loadSessionFromEnv(); err != nil {
		return nil, err
	}

	var err error
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		err = cfg.loadStoreFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading storefront config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSecretManager fetches the storefront settings from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.GCPProject, c.SecretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadStoreFromEnv reads storefront settings from individual env vars.
func (c *Config) loadStoreFromEnv() error {
	c.Store = StoreConfig{
		StoreDomain:     os.Getenv("SHOPIFY_STORE_DOMAIN"),
		StorefrontToken: os.Getenv("SHOPIFY_STOREFRONT_TOKEN"),
		APIVersion:      os.Getenv("SHOPIFY_API_VERSION"),
	}

	var err error
	if c.Store.Timeout, err = envDuration("SHOPIFY_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("SHOPIFY_RPS"); v != "" {
		if c.Store.RequestsPerSecond, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("parsing SHOPIFY_RPS: %w", err)
		}
	}
	if c.Store.Burst, err = envInt("SHOPIFY_BURST"); err != nil {
		return err
	}
	if v := os.Getenv("SHOPIFY_CHROME_TLS"); v != "" {
		if c.Store.ChromeTLS, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("parsing SHOPIFY_CHROME_TLS: %w", err)
		}
	}
	return nil
}

// loadSessionFromEnv reads persistence, catalog and sync settings.
// These are not secret and load from env in every environment.
func (c *Config) loadSessionFromEnv() error {
	c.Redis.Addr = os.Getenv("REDIS_ADDR")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Checkout = CheckoutConfig{
		BaseProductIDs:        envList("BASE_PRODUCT_IDS"),
		InsuranceProductIDs:   envList("INSURANCE_PRODUCT_IDS"),
		AccessoriesCollection: os.Getenv("ACCESSORIES_COLLECTION_ID"),
		MinDeliveryDate:       os.Getenv("MIN_DELIVERY_DATE"),
	}

	var err error
	if c.Redis.DB, err = envInt("REDIS_DB"); err != nil {
		return err
	}
	if c.Redis.TTL, err = envDuration("SESSION_TTL"); err != nil {
		return err
	}
	if c.Sync.SettleDelay, err = envDuration("SYNC_SETTLE_DELAY"); err != nil {
		return err
	}
	if c.Sync.MaxAttempts, err = envInt("SYNC_MAX_ATTEMPTS"); err != nil {
		return err
	}
	if c.Sync.BaseBackoff, err = envDuration("SYNC_BASE_BACKOFF"); err != nil {
		return err
	}
	if c.Sync.MaxBackoff, err = envDuration("SYNC_MAX_BACKOFF"); err != nil {
		return err
	}
	if c.Sync.SelectionRefreshes, err = envInt("SELECTION_REFRESHES"); err != nil {
		return err
	}
	if c.Sync.ProductFetchAttempts, err = envInt("PRODUCT_FETCH_ATTEMPTS"); err != nil {
		return err
	}
	return nil
}

func (c *Config) applyDefaults() {
	c.Port = withDefault(c.Port, "8080")
	c.Environment = withDefault(c.Environment, "development")
	c.LogLevel = withDefault(c.LogLevel, "info")
	if len(c.Checkout.BaseProductIDs) == 0 {
		c.Checkout.BaseProductIDs = append([]string(nil), defaultBaseProducts...)
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = Duration(10 * 24 * time.Hour)
	}
	c.Store.StoreDomain = extractDomain(c.Store.StoreDomain)
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Environment == "production" || c.Store.StorefrontToken != "" {
		if c.Store.StoreDomain == "" {
			return fmt.Errorf("store_domain is required")
		}
		if c.Store.StorefrontToken == "" {
			return fmt.Errorf("storefront_token is required")
		}
	}
	if c.MinClientVersion != "" && !semver.IsValid(canonicalVersion(c.MinClientVersion)) {
		return fmt.Errorf("min_client_version %q is not a semantic version", c.MinClientVersion)
	}
	if c.Checkout.MinDeliveryDate != "" {
		if _, err := time.Parse("2006-01-02", c.Checkout.MinDeliveryDate); err != nil {
			return fmt.Errorf("min_delivery_date must be YYYY-MM-DD: %w", err)
		}
	}
	if c.Store.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	return nil
}

// canonicalVersion adds the "v" prefix semver expects.
func canonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// extractDomain strips scheme and path, so "https://shop.example/" and
// "shop.example" both give "shop.example".
func extractDomain(storeURL string) string {
	domain := strings.TrimPrefix(storeURL, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return strings.Split(domain, "/")[0]
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string) (Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return Duration(d), nil
}

// envList splits a comma-separated variable, dropping blanks.
func envList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
