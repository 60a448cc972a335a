package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/gps-cli/internal/resilience"
)

// Config is the top-level configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Roster     SourceConfig     `yaml:"roster" mapstructure:"roster"`
	Responses  SourceConfig     `yaml:"responses" mapstructure:"responses"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig picks where roster or response records come from.
type SourceConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
}

// SalesforceConfig holds JWT bearer flow settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NotionConfig holds Notion API settings.
type NotionConfig struct {
	Token       string  `yaml:"token" mapstructure:"token"`
	ResponsesDB string  `yaml:"responses_db" mapstructure:"responses_db"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds settings for the narrative summarizer.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize   int     `yaml:"batch_size" mapstructure:"batch_size"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ArchiveConfig selects the blob store packages are archived to.
type ArchiveConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"`
	Path      string `yaml:"path" mapstructure:"path"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// ProcessingConfig tunes the packager and external-call retries.
type ProcessingConfig struct {
	Concurrency int         `yaml:"concurrency" mapstructure:"concurrency"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig mirrors resilience.Policy in flat form.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Policy converts the retry settings.
func (r RetryConfig) Policy() resilience.Policy {
	return resilience.PolicyFrom(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Modes accepted by Validate.
const (
	ModeProcess   = "process"
	ModeReport    = "report"
	ModeSummarize = "summarize"
	ModeServe     = "serve"
	ModeImport    = "import"
)

// Source values for roster and responses.
const (
	SourceStore      = "store"
	SourceSalesforce = "salesforce"
	SourceNotion     = "notion"
)

// Load reads config from an optional .env file, config.yaml in the working
// directory, and GPS_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("config: no .env file loaded", zap.Error(err))
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("GPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "gps.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("roster.source", SourceStore)
	v.SetDefault("responses.source", SourceStore)
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5.0)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.responses_db", "")
	v.SetDefault("notion.rate_limit", 3.0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.concurrency", 2)
	v.SetDefault("anthropic.batch_size", 5)
	v.SetDefault("anthropic.rate_limit", 0.0)
	v.SetDefault("archive.driver", "none")
	v.SetDefault("archive.path", "archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key", "")
	v.SetDefault("archive.secret_key", "")
	v.SetDefault("processing.concurrency", 4)
	v.SetDefault("processing.retry.max_attempts", 3)
	v.SetDefault("processing.retry.initial_backoff_ms", 500)
	v.SetDefault("processing.retry.max_backoff_ms", 30000)
	v.SetDefault("processing.retry.multiplier", 2.0)
	v.SetDefault("processing.retry.jitter_fraction", 0.25)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the values a command needs are present.
func (c *Config) Validate(mode string) error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for postgres")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return eris.New("config: store.sqlite_path is required for sqlite")
		}
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	switch mode {
	case ModeProcess:
		if err := c.validateSources(); err != nil {
			return err
		}
		return c.validateArchive()
	case ModeSummarize:
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required")
		}
		if c.Anthropic.Model == "" {
			return eris.New("config: anthropic.model is required")
		}
	case ModeServe:
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: server.port %d out of range", c.Server.Port)
		}
	case ModeReport, ModeImport, "":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	return nil
}

func (c *Config) validateSources() error {
	switch c.Roster.Source {
	case SourceStore:
	case SourceSalesforce:
		if c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "" {
			return eris.New("config: salesforce.client_id, salesforce.username and salesforce.key_path are required for the salesforce roster")
		}
	default:
		return eris.Errorf("config: unknown roster.source %q", c.Roster.Source)
	}

	switch c.Responses.Source {
	case SourceStore:
	case SourceNotion:
		if c.Notion.Token == "" || c.Notion.ResponsesDB == "" {
			return eris.New("config: notion.token and notion.responses_db are required for notion responses")
		}
	default:
		return eris.Errorf("config: unknown responses.source %q", c.Responses.Source)
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Driver {
	case "", "none":
	case "local":
		if c.Archive.Path == "" {
			return eris.New("config: archive.path is required for the local archive")
		}
	case "s3", "gcs":
		if c.Archive.Bucket == "" {
			return eris.Errorf("config: archive.bucket is required for the %s archive", c.Archive.Driver)
		}
	default:
		return eris.Errorf("config: unknown archive.driver %q", c.Archive.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
