// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Models     ModelsConfig     `mapstructure:"models"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Helpdesk   HelpdeskConfig   `mapstructure:"helpdesk"`
	Events     EventsConfig     `mapstructure:"events"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ModelsConfig holds the inference backend address and the ordered model
// list. The list is explicit configuration passed to the orchestrator at
// construction time; there is no process-wide mutable model selection.
type ModelsConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Candidates []ModelConfig `mapstructure:"candidates"`
}

// ModelConfig is one entry of the ordered model list.
type ModelConfig struct {
	Name    string `mapstructure:"name"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// EngineConfig holds orchestrator settings.
type EngineConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	MaxTokens     int `mapstructure:"max_tokens"`
}

// FallbackConfig holds the deterministic keyword rules and response
// templates used when no model produces a valid decision. The rules are
// domain configuration, not engine logic.
type FallbackConfig struct {
	Rules     []FallbackRule    `mapstructure:"rules"`
	Responses map[string]string `mapstructure:"responses"`
}

// FallbackRule maps keyword hits to a category. Rules are evaluated in
// order; the first rule with a matching keyword wins.
type FallbackRule struct {
	Category string   `mapstructure:"category"`
	Keywords []string `mapstructure:"keywords"`
}

// RetrievalConfig holds settings for the Elasticsearch-backed context
// retriever.
type RetrievalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
	TopK    int    `mapstructure:"top_k"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HelpdeskConfig holds settings for the ticket-source connectors.
type HelpdeskConfig struct {
	Zendesk ZendeskConfig `mapstructure:"zendesk"`
}

type ZendeskConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Subdomain    string `mapstructure:"subdomain"`
	Email        string `mapstructure:"email"`
	APIToken     string `mapstructure:"api_token"`
	PollInterval int    `mapstructure:"poll_interval"` // seconds
	PageSize     int    `mapstructure:"page_size"`
	PublicReply  bool   `mapstructure:"public_reply"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds
}

// EventsConfig holds settings for the Kafka decision-event stream.
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// EscalationConfig holds settings for the escalation notifier.
type EscalationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled bool   `mapstructure:"enabled"`
		Phone   string `mapstructure:"phone"`
	} `mapstructure:"sms"`
}

// ServerConfig holds settings for the metrics/dashboard HTTP server.
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
