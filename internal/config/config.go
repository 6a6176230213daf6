// Package config provides configuration management for the content pipeline.
package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "PIPELINE"

// SSL mode constants for database connections.
const (
	SSLModeDisable    = "disable"
	SSLModeRequire    = "require"
	SSLModeVerifyCA   = "verify-ca"
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the pipeline worker, gateway and CLI.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Research ResearchConfig `mapstructure:"research"`
	Images   ImagesConfig   `mapstructure:"images"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Apps     AppsConfig     `mapstructure:"apps"`
}

// ServerConfig holds HTTP gateway configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	// SSLMode defaults to "require". Use "disable" only for local development.
	SSLMode                string        `mapstructure:"ssl_mode"`
	MaxConns               int32         `mapstructure:"max_conns"`
	MinConns               int32         `mapstructure:"min_conns"`
	MaxConnLifetime        time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime        time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod      time.Duration `mapstructure:"health_check_period"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout"`
	MigrationPath          string        `mapstructure:"migration_path"`
	MigrationAutoRun       bool          `mapstructure:"migration_auto_run"`
	StatementCacheCapacity int           `mapstructure:"statement_cache_capacity"`
}

// TemporalConfig holds Temporal connection and worker settings.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// ExecutionTimeout bounds a whole pipeline run, independent of activity timeouts.
	ExecutionTimeout time.Duration   `mapstructure:"execution_timeout"`
	TLS              TemporalTLS     `mapstructure:"tls"`
	Worker           WorkerPoolSizes `mapstructure:"worker"`
}

// TemporalTLS holds optional mTLS material for the Temporal frontend.
type TemporalTLS struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertPath   string `mapstructure:"cert_path"`
	KeyPath    string `mapstructure:"key_path"`
	CAPath     string `mapstructure:"ca_path"`
	ServerName string `mapstructure:"server_name"`
}

// WorkerPoolSizes bounds the Temporal worker's concurrency.
type WorkerPoolSizes struct {
	MaxConcurrentActivities    int `mapstructure:"max_concurrent_activities"`
	MaxConcurrentWorkflowTasks int `mapstructure:"max_concurrent_workflow_tasks"`
	ActivityPollers            int `mapstructure:"activity_pollers"`
	WorkflowPollers            int `mapstructure:"workflow_pollers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error, fatal, panic.
	Level string `mapstructure:"level"`
	// Format is json or console.
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LLMConfig holds generation provider settings.
type LLMConfig struct {
	// Provider is openai or anthropic.
	Provider    string          `mapstructure:"provider"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	MaxRetries  int             `mapstructure:"max_retries"`
	Temperature float64         `mapstructure:"temperature"`
	MaxTokens   int             `mapstructure:"max_tokens"`
	OpenAI      OpenAIConfig    `mapstructure:"openai"`
	Anthropic   AnthropicConfig `mapstructure:"anthropic"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is loaded from PIPELINE_LLM_OPENAI_API_KEY only.
	APIKey  string `mapstructure:"-"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is loaded from PIPELINE_LLM_ANTHROPIC_API_KEY only.
	APIKey string `mapstructure:"-"`
	Model  string `mapstructure:"model"`
}

// ResearchConfig groups the research collaborators.
type ResearchConfig struct {
	News         EndpointConfig `mapstructure:"news"`
	DeepResearch EndpointConfig `mapstructure:"deep_research"`
	Crawl        CrawlConfig    `mapstructure:"crawl"`
}

// EndpointConfig holds settings for a rate-limited JSON API.
type EndpointConfig struct {
	// APIKey is loaded from the environment only (see loadSecrets).
	APIKey     string        `mapstructure:"-"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// CrawlConfig holds deep-crawl settings.
type CrawlConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	MaxPages     int           `mapstructure:"max_pages"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// ImagesConfig holds image generation settings.
type ImagesConfig struct {
	Endpoint EndpointConfig `mapstructure:"endpoint"`
	Model    string         `mapstructure:"model"`
	Size     string         `mapstructure:"size"`
}

// GraphConfig holds knowledge-graph sync settings.
type GraphConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Endpoint EndpointConfig `mapstructure:"endpoint"`
}

// KafkaConfig holds Kafka settings for the outbox relay and the intake listener.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Intake       IntakeConfig  `mapstructure:"intake"`
}

// IntakeConfig holds the article request consumer settings.
type IntakeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// OutboxConfig holds outbox relay settings.
type OutboxConfig struct {
	Table        string        `mapstructure:"table"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	// LockID is the advisory lock key that elects a single relaying worker.
	LockID int64 `mapstructure:"lock_id"`
}

// PipelineConfig holds the default pipeline settings.
type PipelineConfig struct {
	MinSources            int     `mapstructure:"min_sources"`
	WordCountTolerance    float64 `mapstructure:"word_count_tolerance"`
	RegenerationBudget    int     `mapstructure:"regeneration_budget"`
	CitationWeight        float64 `mapstructure:"citation_weight"`
	WordCountWeight       float64 `mapstructure:"word_count_weight"`
	StructureWeight       float64 `mapstructure:"structure_weight"`
	TargetCitationsPer500 float64 `mapstructure:"target_citations_per_500"`
}

// Settings converts the pipeline config into domain settings.
func (c PipelineConfig) Settings() domain.PipelineSettings {
	return domain.PipelineSettings{
		MinSources:         c.MinSources,
		WordCountTolerance: c.WordCountTolerance,
		RegenerationBudget: c.RegenerationBudget,
		Quality: domain.QualityWeights{
			CitationDensity:        c.CitationWeight,
			WordCountAdherence:     c.WordCountWeight,
			StructuralCompleteness: c.StructureWeight,
			TargetCitationsPer500:  c.TargetCitationsPer500,
		},
	}
}

// AppsConfig points at the app profile file.
type AppsConfig struct {
	Path string `mapstructure:"path"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP gateway address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the worker's metrics listener address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from defaults, an optional config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/content-pipeline")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates the mapstructure:"-" fields from the environment so
// that credentials never come from a config file.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv(EnvPrefix + "_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv(EnvPrefix + "_LLM_ANTHROPIC_API_KEY")
	cfg.Research.News.APIKey = os.Getenv(EnvPrefix + "_RESEARCH_NEWS_API_KEY")
	cfg.Research.DeepResearch.APIKey = os.Getenv(EnvPrefix + "_RESEARCH_DEEP_RESEARCH_API_KEY")
	cfg.Images.Endpoint.APIKey = os.Getenv(EnvPrefix + "_IMAGES_API_KEY")
	cfg.Graph.Endpoint.APIKey = os.Getenv(EnvPrefix + "_GRAPH_API_KEY")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pipeline")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "content_pipeline")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "content-pipeline")
	v.SetDefault("temporal.execution_timeout", "45m")
	v.SetDefault("temporal.tls.enabled", false)
	v.SetDefault("temporal.worker.max_concurrent_activities", 50)
	v.SetDefault("temporal.worker.max_concurrent_workflow_tasks", 50)
	v.SetDefault("temporal.worker.activity_pollers", 4)
	v.SetDefault("temporal.worker.workflow_pollers", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.max_retries", 1)
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-sonnet-4-20250514")

	v.SetDefault("research.news.base_url", "https://newsapi.org/v2")
	v.SetDefault("research.news.timeout", "20s")
	v.SetDefault("research.news.rate_limit", 5.0)
	v.SetDefault("research.news.max_retries", 2)
	v.SetDefault("research.deep_research.base_url", "https://api.tavily.com")
	v.SetDefault("research.deep_research.timeout", "150s")
	v.SetDefault("research.deep_research.rate_limit", 2.0)
	v.SetDefault("research.deep_research.max_retries", 2)
	v.SetDefault("research.crawl.timeout", "20s")
	v.SetDefault("research.crawl.rate_limit", 4.0)
	v.SetDefault("research.crawl.max_pages", 5)
	v.SetDefault("research.crawl.max_body_bytes", 5<<20)
	v.SetDefault("research.crawl.user_agent", "content-pipeline/1.0 (+https://newsroom.example)")

	v.SetDefault("images.endpoint.base_url", "https://api.openai.com/v1")
	v.SetDefault("images.endpoint.timeout", "80s")
	v.SetDefault("images.endpoint.rate_limit", 1.0)
	v.SetDefault("images.endpoint.max_retries", 0)
	v.SetDefault("images.model", "gpt-image-1")
	v.SetDefault("images.size", "1536x1024")

	v.SetDefault("graph.enabled", true)
	v.SetDefault("graph.endpoint.base_url", "https://api.getzep.com/api/v2")
	v.SetDefault("graph.endpoint.timeout", "20s")
	v.SetDefault("graph.endpoint.rate_limit", 5.0)
	v.SetDefault("graph.endpoint.max_retries", 1)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.content_pipeline")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.intake.enabled", false)
	v.SetDefault("kafka.intake.topic", "article.requested")
	v.SetDefault("kafka.intake.group_id", "content-pipeline-intake")

	v.SetDefault("outbox.table", "outbox_events")
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_retries", 10)
	v.SetDefault("outbox.lock_id", 7_340_001)

	defaults := domain.DefaultPipelineSettings()
	v.SetDefault("pipeline.min_sources", defaults.MinSources)
	v.SetDefault("pipeline.word_count_tolerance", defaults.WordCountTolerance)
	v.SetDefault("pipeline.regeneration_budget", defaults.RegenerationBudget)
	v.SetDefault("pipeline.citation_weight", defaults.Quality.CitationDensity)
	v.SetDefault("pipeline.word_count_weight", defaults.Quality.WordCountAdherence)
	v.SetDefault("pipeline.structure_weight", defaults.Quality.StructuralCompleteness)
	v.SetDefault("pipeline.target_citations_per_500", defaults.Quality.TargetCitationsPer500)

	v.SetDefault("apps.path", "apps.yaml")
}

// Validate validates the configuration shared by every process.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Temporal.HostPort == "" {
		return fmt.Errorf("temporal host_port is required")
	}
	if c.Temporal.TaskQueue == "" {
		return fmt.Errorf("temporal task_queue is required")
	}
	if c.Temporal.ExecutionTimeout <= 0 {
		return fmt.Errorf("temporal execution_timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	return c.Pipeline.validate()
}

func (c PipelineConfig) validate() error {
	if c.MinSources < 1 {
		return fmt.Errorf("pipeline min_sources must be at least 1")
	}
	if c.WordCountTolerance <= 0 || c.WordCountTolerance >= 1 {
		return fmt.Errorf("pipeline word_count_tolerance must be between 0 and 1")
	}
	if c.RegenerationBudget < 0 {
		return fmt.Errorf("pipeline regeneration_budget must not be negative")
	}
	weights := c.CitationWeight + c.WordCountWeight + c.StructureWeight
	if c.CitationWeight < 0 || c.WordCountWeight < 0 || c.StructureWeight < 0 || math.Abs(weights-1) > 1e-6 {
		return fmt.Errorf("pipeline quality weights must be non-negative and sum to 1 (got %.3f)", weights)
	}
	return nil
}

// ValidateWorker checks the settings only the worker needs: a generation
// provider with its credentials.
func (c *Config) ValidateWorker() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires %s_LLM_OPENAI_API_KEY to be set", c.LLM.Provider, EnvPrefix)
		}
	case "anthropic":
		if c.LLM.Anthropic.APIKey == "" {
			return fmt.Errorf("LLM provider %q requires %s_LLM_ANTHROPIC_API_KEY to be set", c.LLM.Provider, EnvPrefix)
		}
	default:
		return fmt.Errorf("unsupported LLM provider: %q", c.LLM.Provider)
	}
	if c.Research.News.BaseURL == "" && c.Research.DeepResearch.BaseURL == "" {
		return fmt.Errorf("at least one research endpoint must be configured")
	}
	return nil
}
