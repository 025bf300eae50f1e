// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	// Execution state
	ExecutionEnabledDefault bool   // Configured default for the execution gate
	OverrideStorePath       string // Path to the bbolt file holding the runtime override

	// Guardrails
	HomeExchange          string
	AllowedExchanges      []string
	AllowedSymbols        []string // Canonical EXCHANGE:TICKER form
	AllowedStrategies     []string
	MaxQuantity           int64
	MaxNotional           float64
	MaxTradesPerSymbolDay int

	// Reconciliation
	ReconcileInterval   time.Duration
	AutoCorrect         bool
	PriceDriftTolerance float64 // Fractional, e.g. 0.005 for 0.5%
	SessionExchange     string  // Exchange whose trading session gates scheduled runs

	// Brokers
	Brokers map[string]BrokerConfig
}

// BrokerConfig holds per-broker connection settings.
// Credentials are read at discovery time; clients are only built on first use.
type BrokerConfig struct {
	ID          string
	DisplayName string
	Enabled     bool
	BaseURL     string
	APIKey      string
	APISecret   string
	AccessToken string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("WARDEN_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("WARDEN_PORT", 8001),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),

		ExecutionEnabledDefault: getEnvAsBool("EXECUTION_ENABLED_DEFAULT", false),
		OverrideStorePath:       getEnv("OVERRIDE_STORE_PATH", filepath.Join(absDataDir, "override.db")),

		HomeExchange:          getEnv("HOME_EXCHANGE", "NSE"),
		AllowedExchanges:      getEnvAsList("ALLOWED_EXCHANGES", "NSE,BSE"),
		AllowedSymbols:        getEnvAsList("ALLOWED_SYMBOLS", ""),
		AllowedStrategies:     getEnvAsList("ALLOWED_STRATEGIES", ""),
		MaxQuantity:           int64(getEnvAsInt("MAX_QUANTITY", 100)),
		MaxNotional:           getEnvAsFloat("MAX_NOTIONAL", 100000),
		MaxTradesPerSymbolDay: getEnvAsInt("MAX_TRADES_PER_SYMBOL_DAY", 3),

		ReconcileInterval:   time.Duration(getEnvAsInt("RECONCILE_INTERVAL_MINUTES", 5)) * time.Minute,
		AutoCorrect:         getEnvAsBool("RECONCILE_AUTO_CORRECT", false),
		PriceDriftTolerance: getEnvAsFloat("PRICE_DRIFT_TOLERANCE", 0.005),
		SessionExchange:     getEnv("SESSION_EXCHANGE", "NSE"),

		Brokers: loadBrokerConfigs(),
	}

	if cfg.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("reconcile interval must be positive")
	}

	return cfg, nil
}

// loadBrokerConfigs reads per-broker settings from the environment.
// A broker is configured when its API key is present; ENABLED toggles
// whether the registry exposes it.
func loadBrokerConfigs() map[string]BrokerConfig {
	brokers := make(map[string]BrokerConfig)

	entries := []struct {
		id          string
		displayName string
		prefix      string
		baseURL     string
	}{
		{"zerodha", "Zerodha Kite", "ZERODHA", "https://api.kite.trade"},
		{"angelone", "Angel One SmartAPI", "ANGELONE", "https://apiconnect.angelone.in"},
		{"fyers", "Fyers", "FYERS", "https://api-t1.fyers.in/api/v3"},
	}

	for _, e := range entries {
		apiKey := getEnv(e.prefix+"_API_KEY", "")
		if apiKey == "" {
			continue
		}
		brokers[e.id] = BrokerConfig{
			ID:          e.id,
			DisplayName: e.displayName,
			Enabled:     getEnvAsBool(e.prefix+"_ENABLED", true),
			BaseURL:     getEnv(e.prefix+"_BASE_URL", e.baseURL),
			APIKey:      apiKey,
			APISecret:   getEnv(e.prefix+"_API_SECRET", ""),
			AccessToken: getEnv(e.prefix+"_ACCESS_TOKEN", ""),
		}
	}

	return brokers
}

// getEnv retrieves an environment variable or returns the fallback
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as int or returns the fallback
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAsFloat retrieves an environment variable as float64 or returns the fallback
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as bool or returns the fallback
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvAsList retrieves a comma-separated environment variable as a slice.
// Entries are trimmed and upper-cased; empty entries are dropped.
func getEnvAsList(key, fallback string) []string {
	value := getEnv(key, fallback)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
