package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"raffler/database"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string `env:"DATABASE_URL"`
	DatabaseName string `env:"DATABASE_NAME"`

	// Key-value store configuration. An empty address selects the in-memory store.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// NATS configuration
	NATSServers string `env:"NATS_SERVERS"` // comma-separated, empty disables publishing

	// HTTP API configuration
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	AdminToken    string `env:"ADMIN_TOKEN"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// Draw configuration
	OddsMode         string        `env:"ODDS_MODE" envDefault:"sqrt"`
	MaxWeightRatio   float64       `env:"MAX_WEIGHT_RATIO" envDefault:"5"`
	WinnerCount      int           `env:"WINNER_COUNT" envDefault:"3"`
	PayoutFraction   float64       `env:"PAYOUT_FRACTION" envDefault:"0.95"`
	MinClaimAmount   int64         `env:"MIN_CLAIM_AMOUNT" envDefault:"1000000"`
	MinHolderBalance int64         `env:"MIN_HOLDER_BALANCE" envDefault:"1"`
	SecondaryWallet  string        `env:"SECONDARY_WALLET"`
	DrawInterval     time.Duration `env:"DRAW_INTERVAL" envDefault:"20m"` // 0 disables the scheduled tick
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"120s"`
	PhaseTTL         time.Duration `env:"PHASE_TTL" envDefault:"300s"`
	PayoutKeyTTL     time.Duration `env:"PAYOUT_KEY_TTL" envDefault:"24h"`

	// Collaborator endpoints
	HolderSourceURL    string        `env:"HOLDER_SOURCE_URL"`
	TransferServiceURL string        `env:"TRANSFER_SERVICE_URL"`
	ClaimTrackerURL    string        `env:"CLAIM_TRACKER_URL"`
	ClaimPollInterval  time.Duration `env:"CLAIM_POLL_INTERVAL" envDefault:"1m"`
	HTTPClientTimeout  time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"15s"`

	// Discord announcements (optional)
	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`

	// Observability
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsEnabled  bool   `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsExporter string `env:"METRICS_EXPORTER" envDefault:"console"` // console, otlp, none
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName     string `env:"SERVICE_NAME" envDefault:"raffler"`

	// Environment
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// Load parses and validates a fresh configuration from the environment
func Load() (*Config, error) {
	return load()
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// IsDevelopment reports whether synthetic claim data may be used
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// NATSServerList splits the configured NATS servers
func (c *Config) NATSServerList() []string {
	var servers []string
	for _, s := range strings.Split(c.NATSServers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	return servers
}

// Validate checks draw parameters and required settings
func (c *Config) Validate() error {
	if c.OddsMode != "sqrt" && c.OddsMode != "log" {
		return fmt.Errorf("ODDS_MODE must be sqrt or log, got %q", c.OddsMode)
	}
	if c.MaxWeightRatio < 1 {
		return fmt.Errorf("MAX_WEIGHT_RATIO must be >= 1, got %v", c.MaxWeightRatio)
	}
	if c.WinnerCount < 1 {
		return fmt.Errorf("WINNER_COUNT must be >= 1, got %d", c.WinnerCount)
	}
	if c.PayoutFraction <= 0 || c.PayoutFraction > 1 {
		return fmt.Errorf("PAYOUT_FRACTION must be in (0, 1], got %v", c.PayoutFraction)
	}
	if c.MinClaimAmount < 0 {
		return fmt.Errorf("MIN_CLAIM_AMOUNT cannot be negative")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}

	if c.Environment != "test" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
			return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
	}
	if c.Environment == "production" {
		if c.AdminToken == "" {
			return fmt.Errorf("ADMIN_TOKEN is required in production")
		}
		if c.TransferServiceURL == "" || c.HolderSourceURL == "" {
			return fmt.Errorf("HOLDER_SOURCE_URL and TRANSFER_SERVICE_URL are required in production")
		}
	}
	return nil
}

// load loads configuration from environment variables
func load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:       "test",
		HTTPAddr:          ":0",
		OddsMode:          "sqrt",
		MaxWeightRatio:    5,
		WinnerCount:       3,
		PayoutFraction:    0.95,
		MinClaimAmount:    1_000_000,
		MinHolderBalance:  1,
		DrawInterval:      20 * time.Minute,
		LockTTL:           120 * time.Second,
		PhaseTTL:          300 * time.Second,
		PayoutKeyTTL:      24 * time.Hour,
		ClaimPollInterval: time.Minute,
		HTTPClientTimeout: 5 * time.Second,
		LogLevel:          "debug",
		MetricsExporter:   "none",
		ServiceName:       "raffler-test",
	}
}
