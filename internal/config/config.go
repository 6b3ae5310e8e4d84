package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Enhance   EnhanceConfig   `yaml:"enhance" mapstructure:"enhance"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	ObjStore  ObjStoreConfig  `yaml:"objstore" mapstructure:"objstore"`
	Lock      LockConfig      `yaml:"lock" mapstructure:"lock"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DataConfig points at the local artifact tree (PDFs, enhanced images, CSVs).
type DataConfig struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// LineConfig holds probabilistic Hough parameters for one line orientation.
type LineConfig struct {
	Threshold int `yaml:"threshold" mapstructure:"threshold"`
	MinLength int `yaml:"min_length" mapstructure:"min_length"`
	MaxGap    int `yaml:"max_gap" mapstructure:"max_gap"`
}

// EnhanceConfig holds the image-processing tunables of the enhancement stage.
type EnhanceConfig struct {
	DPI            int        `yaml:"dpi" mapstructure:"dpi"`
	PageIndex      int        `yaml:"page_index" mapstructure:"page_index"`
	HSVLower       []int      `yaml:"hsv_lower" mapstructure:"hsv_lower"`
	HSVUpper       []int      `yaml:"hsv_upper" mapstructure:"hsv_upper"`
	RowThreshold   int        `yaml:"row_threshold" mapstructure:"row_threshold"`
	FallbackTop    int        `yaml:"fallback_top" mapstructure:"fallback_top"`
	FallbackBottom int        `yaml:"fallback_bottom" mapstructure:"fallback_bottom"`
	Vertical       LineConfig `yaml:"vertical" mapstructure:"vertical"`
	Horizontal     LineConfig `yaml:"horizontal" mapstructure:"horizontal"`
	Tolerance      int        `yaml:"tolerance" mapstructure:"tolerance"`
	LayoutFile     string     `yaml:"layout_file" mapstructure:"layout_file"`
}

// ExtractConfig configures the dual-extraction stage.
type ExtractConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	Model         string `yaml:"model" mapstructure:"model"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts   int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RepairPolicy  string `yaml:"repair_policy" mapstructure:"repair_policy"`
	RatePerMinute int    `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	CallRetries   int    `yaml:"call_retries" mapstructure:"call_retries"`
	BreakerTrips  int    `yaml:"breaker_trips" mapstructure:"breaker_trips"`
	DiffLog       string `yaml:"diff_log" mapstructure:"diff_log"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ObjStoreConfig configures the artifact mirror. Backblaze B2 is reached
// through its S3-compatible endpoint.
type ObjStoreConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	PathStyle bool   `yaml:"path_style" mapstructure:"path_style"`
	LocalDir  string `yaml:"local_dir" mapstructure:"local_dir"`
}

// LockConfig configures per-report locking.
type LockConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml, .env and environment variables.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sitrep.db")
	v.SetDefault("data.root", "data")
	v.SetDefault("enhance.dpi", 600)
	v.SetDefault("enhance.page_index", 3)
	v.SetDefault("enhance.hsv_lower", []int{40, 0, 210})
	v.SetDefault("enhance.hsv_upper", []int{50, 30, 255})
	v.SetDefault("enhance.row_threshold", 500000)
	v.SetDefault("enhance.fallback_top", 800)
	v.SetDefault("enhance.fallback_bottom", 4500)
	v.SetDefault("enhance.vertical.threshold", 1400)
	v.SetDefault("enhance.vertical.min_length", 79)
	v.SetDefault("enhance.vertical.max_gap", 50)
	v.SetDefault("enhance.horizontal.threshold", 400)
	v.SetDefault("enhance.horizontal.min_length", 50)
	v.SetDefault("enhance.horizontal.max_gap", 10)
	v.SetDefault("enhance.tolerance", 5)
	v.SetDefault("extract.provider", "gemini")
	v.SetDefault("extract.model", "gemini-2.0-flash")
	v.SetDefault("extract.timeout_secs", 120)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.repair_policy", "raise")
	v.SetDefault("extract.rate_per_minute", 30)
	v.SetDefault("extract.diff_log", "differing_outputs.txt")
	v.SetDefault("extract.call_retries", 2)
	v.SetDefault("extract.breaker_trips", 5)
	v.SetDefault("enhance.layout_file", "")
	v.SetDefault("gemini.key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("objstore.provider", "none")
	v.SetDefault("objstore.bucket", "")
	v.SetDefault("objstore.endpoint", "")
	v.SetDefault("objstore.access_key", "")
	v.SetDefault("objstore.secret_key", "")
	v.SetDefault("objstore.local_dir", "")
	v.SetDefault("lock.redis_url", "")
	v.SetDefault("objstore.prefix", "lassa")
	v.SetDefault("objstore.region", "us-west-004")
	v.SetDefault("objstore.path_style", true)
	v.SetDefault("lock.provider", "local")
	v.SetDefault("lock.ttl_secs", 900)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
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

// Validate checks the settings a given command needs. Mode is one of
// "enhance", "extract", "run", "sync" or "serve"; unknown modes only get the
// common checks.
func (c *Config) Validate(mode string) error {
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	switch mode {
	case "enhance", "run":
		if len(c.Enhance.HSVLower) != 3 || len(c.Enhance.HSVUpper) != 3 {
			return eris.New("config: enhance.hsv_lower and enhance.hsv_upper need three values")
		}
		if c.Enhance.DPI <= 0 {
			return eris.New("config: enhance.dpi must be positive")
		}
	}

	switch mode {
	case "extract", "run":
		if c.Extract.MaxAttempts < 1 {
			return eris.New("config: extract.max_attempts must be at least 1")
		}
		if c.Extract.RepairPolicy != "raise" && c.Extract.RepairPolicy != "lower" {
			return eris.Errorf("config: unknown extract.repair_policy %q", c.Extract.RepairPolicy)
		}
		switch c.Extract.Provider {
		case "gemini":
			if c.Gemini.Key == "" {
				return eris.New("config: gemini.key is required")
			}
		case "anthropic":
			if c.Anthropic.Key == "" {
				return eris.New("config: anthropic.key is required")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				return eris.New("config: openai.key is required")
			}
		default:
			return eris.Errorf("config: unknown extract.provider %q", c.Extract.Provider)
		}
	case "sync":
		if c.ObjStore.Provider == "none" || c.ObjStore.Provider == "" {
			return eris.New("config: objstore.provider is required for sync")
		}
		if c.ObjStore.Provider == "s3" && c.ObjStore.Bucket == "" {
			return eris.New("config: objstore.bucket is required")
		}
	}

	return nil
}

// InitLogger sets up the global zap logger.
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
