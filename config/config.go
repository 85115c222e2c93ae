package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"` // empty disables auth
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
}

// LLMProvider represents a single LLM provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai, local, etc.
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model key handles each task
type LLMRoutingConfig struct {
	Analysis  string `mapstructure:"analysis"`  // query analysis and planning
	Retrieval string `mapstructure:"retrieval"` // per-agent extraction calls
	Synthesis string `mapstructure:"synthesis"` // answer synthesis
	Fallback  string `mapstructure:"fallback"`  // fallback model
}

// RetrievalConfig tunes the orchestration pipeline.
type RetrievalConfig struct {
	MaxParallelAgents   int           `mapstructure:"max_parallel_agents"`
	AgentTimeout        time.Duration `mapstructure:"agent_timeout"`
	PhaseTimeout        time.Duration `mapstructure:"phase_timeout"` // 0 disables the per-phase cap
	TopK                int           `mapstructure:"top_k"`
	MinDocuments        int           `mapstructure:"min_documents"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
}

func (r RetrievalConfig) Validate() error {
	if r.MaxParallelAgents <= 0 {
		return fmt.Errorf("retrieval.max_parallel_agents must be > 0")
	}
	if r.AgentTimeout <= 0 {
		return fmt.Errorf("retrieval.agent_timeout must be > 0")
	}
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("retrieval.confidence_threshold must be in [0,1]")
	}
	return nil
}

// SynthesisConfig controls answer assembly and confidence blending.
type SynthesisConfig struct {
	AgentWeight        float64 `mapstructure:"agent_weight"` // share of final confidence from agent consensus
	FallbackConfidence float64 `mapstructure:"fallback_confidence"`
	MaxContextDocs     int     `mapstructure:"max_context_docs"`
}

func (s SynthesisConfig) Validate() error {
	if s.AgentWeight < 0 || s.AgentWeight > 1 {
		return fmt.Errorf("synthesis.agent_weight must be in [0,1]")
	}
	return nil
}

// ToolsConfig contains external tool settings
type ToolsConfig struct {
	Search              SearchToolConfig    `mapstructure:"search"`
	Authority           AuthorityToolConfig `mapstructure:"authority"`
	Enhancer            EnhancerToolConfig  `mapstructure:"enhancer"`
	HealthCheckSchedule string              `mapstructure:"health_check_schedule"` // cron expression, empty disables
}

// SearchToolConfig contains web search settings
type SearchToolConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	MaxResults   int           `mapstructure:"max_results"`
	MaxQueryLen  int           `mapstructure:"max_query_len"`
	MaxRetries   int           `mapstructure:"max_retries"`
	Freshness    string        `mapstructure:"freshness"`
	FetchContent bool          `mapstructure:"fetch_content"` // pull readable text from result pages
	Timeout      time.Duration `mapstructure:"timeout"`
}

// AuthorityToolConfig contains settings for the government data tool.
type AuthorityToolConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	MaxRetries int           `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// EnhancerToolConfig controls the LLM query-enhancement tool.
type EnhancerToolConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxRetries int  `mapstructure:"max_retries"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Index    IndexConfig    `mapstructure:"index"`
}

// PostgresConfig contains Postgres connection settings
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

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// RedisConfig contains Redis connection settings for the answer cache
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return nil // cache disabled
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// IndexConfig controls the lexical index used by the regulation agent.
type IndexConfig struct {
	Path string `mapstructure:"path"` // empty keeps the index in memory
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.max_processing_time", 5*time.Minute)
	viper.SetDefault("general.default_timeout", 30*time.Second)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("retrieval.max_parallel_agents", 5)
	viper.SetDefault("retrieval.agent_timeout", 30*time.Second)
	viper.SetDefault("retrieval.top_k", 10)
	viper.SetDefault("retrieval.min_documents", 3)
	viper.SetDefault("retrieval.confidence_threshold", 0.6)
	viper.SetDefault("synthesis.agent_weight", 0.6)
	viper.SetDefault("synthesis.fallback_confidence", 0.3)
	viper.SetDefault("synthesis.max_context_docs", 15)
	viper.SetDefault("tools.search.max_results", 10)
	viper.SetDefault("tools.search.max_query_len", 390)
	viper.SetDefault("tools.search.max_retries", 3)
	viper.SetDefault("tools.search.freshness", "py") // past year
	viper.SetDefault("tools.authority.max_retries", 3)
	viper.SetDefault("tools.enhancer.enabled", true)
	viper.SetDefault("tools.enhancer.max_retries", 2)
	viper.SetDefault("storage.redis.ttl", time.Hour)

	if path == "" {
		viper.AddConfigPath("./app/config") // path to look for the config file in
		viper.AddConfigPath("./config")     // path to look for the config file in
		viper.AddConfigPath(".")            // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("LEXUM")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (LEXUM_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// unmarshal config
	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Retrieval.Validate(); err != nil {
		panic(err)
	}
	if err := config.Synthesis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	return &config
}
