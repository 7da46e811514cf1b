package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant system
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Server      ServerConfig      `mapstructure:"server"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Negotiation NegotiationConfig `mapstructure:"negotiation"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type        string        `mapstructure:"type"` // openai, local, etc.
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LLMRoutingConfig defines which model to use for different tasks
type LLMRoutingConfig struct {
	Chat      string `mapstructure:"chat"`      // agent loop planning and replies
	Judge     string `mapstructure:"judge"`     // negotiation tone/price judgment
	Embedding string `mapstructure:"embedding"` // query and product embeddings
	Fallback  string `mapstructure:"fallback"`
}

// ChatModel resolves the model used for the agent loop.
func (l LLMRoutingConfig) ChatModel() string {
	if l.Chat != "" {
		return l.Chat
	}
	return l.Fallback
}

// JudgeModel resolves the model used for negotiation judgment.
func (l LLMRoutingConfig) JudgeModel() string {
	if l.Judge != "" {
		return l.Judge
	}
	return l.ChatModel()
}

// StorageConfig contains storage backends
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// RetrievalConfig tunes the product retrieval pipeline
type RetrievalConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	DefaultLimit        int     `mapstructure:"default_limit"`
	EmbeddingDimensions int     `mapstructure:"embedding_dimensions"`
}

// NegotiationConfig tunes the price negotiation engine
type NegotiationConfig struct {
	MaxDiscountFraction float64       `mapstructure:"max_discount_fraction"` // of listed price
	RudeCeilingFactor   float64       `mapstructure:"rude_ceiling_factor"`   // listed price multiplier
	SentimentThreshold  float64       `mapstructure:"sentiment_threshold"`
	CodeTTL             time.Duration `mapstructure:"code_ttl"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
}

// AgentConfig tunes the agent loop
type AgentConfig struct {
	MaxIterations int `mapstructure:"max_iterations"`
	HistoryWindow int `mapstructure:"history_window"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SOUK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match (SOUK_*)

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &config
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("llm.routing.embedding", "text-embedding-3-small")
	viper.SetDefault("retrieval.similarity_threshold", 0.6)
	viper.SetDefault("retrieval.default_limit", 5)
	viper.SetDefault("retrieval.embedding_dimensions", 1536)
	viper.SetDefault("negotiation.max_discount_fraction", 0.30)
	viper.SetDefault("negotiation.rude_ceiling_factor", 1.15)
	viper.SetDefault("negotiation.sentiment_threshold", 0.3)
	viper.SetDefault("negotiation.code_ttl", "24h")
	viper.SetDefault("negotiation.lock_ttl", "30s")
	viper.SetDefault("agent.max_iterations", 5)
	viper.SetDefault("agent.history_window", 20)
	viper.SetDefault("telemetry.enabled", true)
}
