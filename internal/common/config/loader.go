// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like ZENDESK_API_TOKEN
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay (config.development, config.production)
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Load .env from multiple possible locations (running from different directories)
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Expand ${VAR} placeholders left in yaml values
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	// Zendesk
	if cfg.Helpdesk.Zendesk.Subdomain == "" {
		if val := os.Getenv("ZENDESK_SUBDOMAIN"); val != "" {
			cfg.Helpdesk.Zendesk.Subdomain = val
		}
	}
	if cfg.Helpdesk.Zendesk.Email == "" {
		if val := os.Getenv("ZENDESK_EMAIL"); val != "" {
			cfg.Helpdesk.Zendesk.Email = val
		}
	}
	if cfg.Helpdesk.Zendesk.APIToken == "" {
		if val := os.Getenv("ZENDESK_API_TOKEN"); val != "" {
			cfg.Helpdesk.Zendesk.APIToken = val
		}
	}

	// Inference runtime
	if cfg.Models.BaseURL == "" {
		if val := os.Getenv("OLLAMA_BASE_URL"); val != "" {
			cfg.Models.BaseURL = val
		}
	}

	// Database
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	// Model defaults
	if cfg.Models.BaseURL == "" {
		cfg.Models.BaseURL = "http://localhost:11434"
	}
	if len(cfg.Models.Candidates) == 0 {
		cfg.Models.Candidates = []ModelConfig{
			{Name: "llama3.2:3b", Timeout: 45000},
			{Name: "llama3.1:8b", Timeout: 60000},
		}
	}
	for i, m := range cfg.Models.Candidates {
		if m.Timeout == 0 {
			m.Timeout = 45000
		}
		cfg.Models.Candidates[i] = m
	}

	// Engine defaults
	if cfg.Engine.MaxConcurrent == 0 {
		cfg.Engine.MaxConcurrent = 4
	}
	if cfg.Engine.MaxTokens == 0 {
		cfg.Engine.MaxTokens = 200
	}

	// Retrieval defaults
	if cfg.Retrieval.Index == "" {
		cfg.Retrieval.Index = "helpdesk-kb"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = 5000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	// Connector defaults
	if cfg.Helpdesk.Zendesk.PollInterval == 0 {
		cfg.Helpdesk.Zendesk.PollInterval = 60
	}
	if cfg.Helpdesk.Zendesk.PageSize == 0 {
		cfg.Helpdesk.Zendesk.PageSize = 25
	}
	if cfg.Helpdesk.Zendesk.Timeout == 0 {
		cfg.Helpdesk.Zendesk.Timeout = 20000
	}

	// Events defaults
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = "triage-decisions"
	}

	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if len(cfg.Models.Candidates) == 0 {
		return fmt.Errorf("models.candidates must list at least one model")
	}
	for i, m := range cfg.Models.Candidates {
		if m.Name == "" {
			return fmt.Errorf("models.candidates[%d].name is required", i)
		}
	}

	if cfg.Helpdesk.Zendesk.Enabled {
		if cfg.Helpdesk.Zendesk.Subdomain == "" {
			return fmt.Errorf("helpdesk.zendesk.subdomain is required when the connector is enabled")
		}
		if cfg.Helpdesk.Zendesk.Email == "" || cfg.Helpdesk.Zendesk.APIToken == "" {
			return fmt.Errorf("helpdesk.zendesk.email and api_token are required when the connector is enabled")
		}
	}

	if cfg.Events.Enabled && len(cfg.Events.Brokers) == 0 {
		return fmt.Errorf("events.brokers is required when events are enabled")
	}

	return nil
}
