// Package config handles configuration management with validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure for a gridmm process.
// A single process can run several isolated grid bots, one per entry in Bots.
type Config struct {
	App       AppConfig       `yaml:"app"`
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bots      []BotConfig     `yaml:"bots"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	EngineType  string `yaml:"engine_type" validate:"required,oneof=simple dbos"`
	DatabaseURL Secret `yaml:"database_url"` // required when engine_type is dbos
	AdminPort   int    `yaml:"admin_port"`   // status/admin HTTP surface; 0 disables it
}

// SystemConfig contains system-wide settings.
type SystemConfig struct {
	LogLevel     string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	CancelOnExit bool   `yaml:"cancel_on_exit"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// BotConfig describes one grid market-making bot for a single trading pair on
// a single DEX. The chain client, key store, and price feed it uses are
// external collaborators configured here only by reference (endpoint, key
// file path) — this process never holds signing keys.
type BotConfig struct {
	Name             string `yaml:"name" validate:"required"`
	BaseAsset        string `yaml:"base_asset" validate:"required"`
	QuoteAsset       string `yaml:"quote_asset" validate:"required"`
	PreferredAccount string `yaml:"preferred_account"` // signs batches; also the fill-subscription target

	// Grid geometry. MarketPrice is a literal decimal string, or "pool"/
	// "market" to be resolved by the price feed at bootstrap (out of
	// scope here: the registry resolves it before calling gridgen).
	MarketPrice         string  `yaml:"market_price" validate:"required"`
	MinPrice            string  `yaml:"min_price" validate:"required"` // literal or "Nx" multiplier of reference
	MaxPrice            string  `yaml:"max_price" validate:"required"`
	IncrementPercent    float64 `yaml:"increment_percent" validate:"required,min=0.0001,max=1"`
	TargetSpreadPercent float64 `yaml:"target_spread_percent"` // 0 defaults to 2*increment_percent
	BuyWindowSize       int     `yaml:"buy_window_size" validate:"required,min=1,max=200"`
	SellWindowSize      int     `yaml:"sell_window_size" validate:"required,min=1,max=200"`

	// Sizing
	WeightBuy        float64   `yaml:"weight_buy"`  // exponent shaping size distribution, -1..2
	WeightSell       float64   `yaml:"weight_sell"`
	FundsBuy         string    `yaml:"funds_buy" validate:"required"`  // literal quote amount, or "N%" of chain balance
	FundsSell        string    `yaml:"funds_sell" validate:"required"` // literal base amount, or "N%" of chain balance
	BaseOrderSize    float64   `yaml:"base_order_size" validate:"required,min=0.00000001"`
	MinOrderSize     float64   `yaml:"min_order_size" validate:"required,min=0"`
	SizeWeights      []float64 `yaml:"size_weights"` // optional; per-slot-from-anchor weight multipliers
	PriceDecimals    int       `yaml:"price_decimals" validate:"required,min=0,max=18"`
	QuantityDecimals int       `yaml:"quantity_decimals" validate:"required,min=0,max=18"`

	// Active order counts, per side. 0 defaults to the matching window size.
	ActiveOrdersBuy  int `yaml:"active_orders_buy" validate:"min=0,max=50"`
	ActiveOrdersSell int `yaml:"active_orders_sell" validate:"min=0,max=50"`

	// Reconciliation / divergence
	ReconcileIntervalSeconds   int     `yaml:"reconcile_interval_seconds" validate:"required,min=1,max=3600"`
	DivergenceHaltPercent      float64 `yaml:"divergence_halt_percent" validate:"required,min=0,max=100"`
	ReconcilePriceTolerancePct float64 `yaml:"reconcile_price_tolerance_percent" validate:"min=0,max=100"`

	// Chain / persistence
	ChainEndpoint   string `yaml:"chain_endpoint" validate:"required"`
	ChainAPIKeyFile string `yaml:"chain_api_key_file"`
	DryRun          bool   `yaml:"dry_run"`
	PersistencePath string `yaml:"persistence_path" validate:"required"`
	TriggerDir      string `yaml:"trigger_dir"`

	// Batch assembly
	MaxBatchOps int `yaml:"max_batch_ops" validate:"min=1,max=500"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateAppConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateBots(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.EngineType != "simple" && c.App.EngineType != "dbos" {
		return ValidationError{
			Field:   "app.engine_type",
			Value:   c.App.EngineType,
			Message: "must be one of: simple, dbos",
		}
	}
	if c.App.EngineType == "dbos" && c.App.DatabaseURL == "" {
		return ValidationError{
			Field:   "app.database_url",
			Message: "database_url is required when engine_type is 'dbos'",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateBots() error {
	if len(c.Bots) == 0 {
		return ValidationError{
			Field:   "bots",
			Message: "at least one bot must be configured",
		}
	}

	seen := make(map[string]bool, len(c.Bots))
	for i, bot := range c.Bots {
		field := fmt.Sprintf("bots[%d]", i)

		if bot.Name == "" {
			return ValidationError{Field: field + ".name", Message: "name is required"}
		}
		if seen[bot.Name] {
			return ValidationError{Field: field + ".name", Value: bot.Name, Message: "duplicate bot name"}
		}
		seen[bot.Name] = true

		if bot.BaseAsset == "" || bot.QuoteAsset == "" {
			return ValidationError{Field: field, Message: "base_asset and quote_asset are required"}
		}
		if bot.IncrementPercent <= 0 {
			return ValidationError{Field: field + ".increment_percent", Value: bot.IncrementPercent, Message: "must be positive"}
		}
		if bot.BuyWindowSize < 1 || bot.SellWindowSize < 1 {
			return ValidationError{Field: field, Message: "buy_window_size and sell_window_size must be >= 1"}
		}
		if bot.BaseOrderSize <= 0 {
			return ValidationError{Field: field + ".base_order_size", Value: bot.BaseOrderSize, Message: "must be positive"}
		}
		if bot.ChainEndpoint == "" {
			return ValidationError{Field: field + ".chain_endpoint", Message: "chain_endpoint is required"}
		}
		if bot.PersistencePath == "" {
			return ValidationError{Field: field + ".persistence_path", Message: "persistence_path is required"}
		}
		if len(bot.SizeWeights) > 0 && len(bot.SizeWeights) != bot.BuyWindowSize+bot.SellWindowSize {
			return ValidationError{
				Field:   field + ".size_weights",
				Value:   len(bot.SizeWeights),
				Message: "when set, must have exactly buy_window_size + sell_window_size entries",
			}
		}
	}

	return nil
}

// BotKey computes the stable primary key used for persistence, logging
// fields, and telemetry label values: sanitize(name) + "-" + index.
func (b BotConfig) BotKey(index int) string {
	name := strings.ToLower(b.Name)
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, name)
	return fmt.Sprintf("%s-%d", name, index)
}

// String returns a string representation of the configuration with secrets redacted.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

// isCriticalEnvVar checks if an environment variable is required for operation.
// expandEnvVars does not consult it: every unset var, critical or not, is
// substituted with an empty string.
func isCriticalEnvVar(key string) bool {
	criticalVars := []string{
		"CHAIN_API_KEY", "DBOS_DATABASE_URL",
		"SLACK_WEBHOOK_URL", "TELEGRAM_BOT_TOKEN",
	}
	return contains(criticalVars, key)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for tests.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{EngineType: "simple"},
		System: SystemConfig{
			LogLevel:     "INFO",
			CancelOnExit: true,
		},
		Telemetry: TelemetryConfig{MetricsPort: 9090, EnableMetrics: true},
		Bots: []BotConfig{
			{
				Name:                       "btc-usdc",
				BaseAsset:                  "BTC",
				QuoteAsset:                 "USDC",
				PreferredAccount:           "default",
				MarketPrice:                "pool",
				MinPrice:                   "2x",
				MaxPrice:                   "2x",
				IncrementPercent:           0.01,
				TargetSpreadPercent:        0.02,
				BuyWindowSize:              10,
				SellWindowSize:             10,
				FundsBuy:                   "1000",
				FundsSell:                  "1",
				BaseOrderSize:              0.01,
				MinOrderSize:               0.0001,
				PriceDecimals:              2,
				QuantityDecimals:           6,
				ActiveOrdersBuy:            5,
				ActiveOrdersSell:           5,
				ReconcileIntervalSeconds:   60,
				DivergenceHaltPercent:      5,
				ReconcilePriceTolerancePct: 0.5,
				ChainEndpoint:              "local://dryrun",
				DryRun:                     true,
				PersistencePath:            "./data/btc-usdc.db",
				MaxBatchOps:                50,
			},
		},
	}
}
