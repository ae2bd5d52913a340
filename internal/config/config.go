package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type MatchPrompts struct {
	Single string `toml:"single"`
	Batch  string `toml:"batch"`
}

type ServerConfig struct {
	Port            string        `toml:"port"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `toml:"driver"` // postgres | sqlite
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `toml:"conn_max_idle_time"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type MatcherConfig struct {
	Strategy     string        `toml:"strategy"` // llm | embedding
	MaxAttempts  int           `toml:"max_attempts"`
	BackoffBase  time.Duration `toml:"backoff_base"`
	BackoffMax   time.Duration `toml:"backoff_max"`
	Multiplier   float64       `toml:"multiplier"`
	CallTimeout  time.Duration `toml:"call_timeout"`
	MaxTextChars int           `toml:"max_text_chars"`
}

type MappingConfig struct {
	Threshold          float64       `toml:"threshold"`
	BatchSize          int           `toml:"batch_size"`
	PairConcurrency    int           `toml:"pair_concurrency"`
	ControlConcurrency int           `toml:"control_concurrency"`
	SyncGraph          bool          `toml:"sync_graph"`
	RemapTimeout       time.Duration `toml:"remap_timeout"`
}

type CatalogConfig struct {
	BaseURL         string        `toml:"base_url"`
	Email           string        `toml:"email"`
	Password        string        `toml:"password"`
	Timeout         time.Duration `toml:"timeout"`
	RefreshInterval time.Duration `toml:"refresh_interval"`
}

type MemgraphConfig struct {
	URI       string `toml:"uri"`
	User      string `toml:"user"`
	Password  string `toml:"password"`
	BatchSize int    `toml:"batch_size"`
}

type CoverageConfig struct {
	Cache     string        `toml:"cache"` // "" | redis
	RedisAddr string        `toml:"redis_addr"`
	RedisKey  string        `toml:"redis_key"`
	TTL       time.Duration `toml:"ttl"`
}

type LogConfig struct {
	Mode string `toml:"mode"`
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	LLM      LLMConfig      `toml:"llm"`
	Matcher  MatcherConfig  `toml:"matcher"`
	Mapping  MappingConfig  `toml:"mapping"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Memgraph MemgraphConfig `toml:"memgraph"`
	Coverage CoverageConfig `toml:"coverage"`
	Prompts  MatchPrompts   `toml:"prompts"`
	Log      LogConfig      `toml:"log"`
}

// DefaultThreshold is the acceptance threshold used when none is configured.
const DefaultThreshold = 0.85

// DefaultRemapTimeout bounds one remap run.
const DefaultRemapTimeout = 30 * time.Minute

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "crosswalk.db",
			MaxOpenConns:    40,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "gpt-oss:latest",
			BaseURL:  "http://localhost:11434",
		},
		Matcher: MatcherConfig{
			Strategy:     "llm",
			MaxAttempts:  4,
			BackoffBase:  time.Second,
			BackoffMax:   20 * time.Second,
			Multiplier:   2.0,
			CallTimeout:  90 * time.Second,
			MaxTextChars: 2000,
		},
		Mapping: MappingConfig{
			Threshold:          DefaultThreshold,
			BatchSize:          1,
			PairConcurrency:    2,
			ControlConcurrency: 4,
			RemapTimeout:       DefaultRemapTimeout,
		},
		Catalog: CatalogConfig{
			Timeout: 15 * time.Second,
		},
		Memgraph: MemgraphConfig{
			BatchSize: 500,
		},
		Coverage: CoverageConfig{
			RedisKey: "crosswalk:coverage",
			TTL:      10 * time.Minute,
		},
		Log: LogConfig{
			Mode: "development",
		},
	}
}

// Load reads a TOML file over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when they are set.
func (c *Config) ApplyEnv() error {
	setString(&c.Server.Port, "PORT")
	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.Catalog.BaseURL, "CATALOG_BASE_URL")
	setString(&c.Catalog.Email, "CATALOG_EMAIL")
	setString(&c.Catalog.Password, "CATALOG_PASSWORD")
	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	setString(&c.Log.Mode, "LOG_MODE")

	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		c.Coverage.RedisAddr = addr
		if c.Coverage.Cache == "" {
			c.Coverage.Cache = "redis"
		}
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_THRESHOLD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MATCH_THRESHOLD %q is not a number: %w", v, err)
		}
		c.Mapping.Threshold = f
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Mapping.Threshold < 0 || c.Mapping.Threshold > 1 {
		return fmt.Errorf("mapping.threshold must be within [0,1], got %v", c.Mapping.Threshold)
	}
	if c.Mapping.BatchSize < 1 {
		return fmt.Errorf("mapping.batch_size must be positive")
	}
	if c.Mapping.PairConcurrency < 1 || c.Mapping.ControlConcurrency < 1 {
		return fmt.Errorf("mapping concurrency must be positive")
	}
	if c.Matcher.MaxAttempts < 1 {
		return fmt.Errorf("matcher.max_attempts must be positive")
	}
	switch strings.ToLower(c.Matcher.Strategy) {
	case "llm", "embedding":
	default:
		return fmt.Errorf("unsupported matcher strategy: %s", c.Matcher.Strategy)
	}
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch strings.ToLower(c.Coverage.Cache) {
	case "":
	case "redis":
		if c.Coverage.RedisAddr == "" {
			return fmt.Errorf("coverage.redis_addr is required when coverage.cache = redis")
		}
	default:
		return fmt.Errorf("unsupported coverage cache: %s", c.Coverage.Cache)
	}
	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}
