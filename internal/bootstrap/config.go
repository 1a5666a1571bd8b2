package bootstrap

import (
	"fmt"
	"gridmm/internal/config"
	"os"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Pre-flight Checks
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	// Check DatabaseURL if using DBOS
	if cfg.App.EngineType == "dbos" {
		if cfg.App.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when engine_type is 'dbos'")
		}
	}

	// Check chain API key file permissions (0600) for every configured bot.
	for i, bot := range cfg.Bots {
		if bot.ChainAPIKeyFile == "" {
			continue
		}
		info, err := os.Stat(bot.ChainAPIKeyFile)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("bots[%d].chain_api_key_file not found: %s", i, bot.ChainAPIKeyFile)
			}
			return err
		}
		// Allow 0600 (rw-------) or 0400 (r--------)
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			return fmt.Errorf("insecure permissions on bots[%d].chain_api_key_file %s: %04o (should be 0600)", i, bot.ChainAPIKeyFile, mode)
		}
	}

	return nil
}
