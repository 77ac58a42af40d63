package common

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Quota    QuotaConfig    `mapstructure:"quota"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	GRPCAddr        string        `mapstructure:"grpc_addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxImageBytes   int64         `mapstructure:"max_image_bytes"`
}

// OCRConfig selects and configures the image-to-text engine.
type OCRConfig struct {
	Engine         string        `mapstructure:"engine"` // vision | tesseract
	VisionAPIKey   string        `mapstructure:"vision_api_key"`
	VisionEndpoint string        `mapstructure:"vision_endpoint"`
	TesseractLang  string        `mapstructure:"tesseract_lang"`
	TesseractPSM   int           `mapstructure:"tesseract_psm"`
	TessdataDir    string        `mapstructure:"tessdata_dir"`
	CachePath      string        `mapstructure:"cache_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds structured-extraction provider configuration
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"` // perplexity | openai | anthropic | gemini | none
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	PerplexityAPIKey  string        `mapstructure:"perplexity_api_key"`
	OpenAIAPIKey      string        `mapstructure:"openai_api_key"`
	AnthropicAPIKey   string        `mapstructure:"anthropic_api_key"`
	GeminiAPIKey      string        `mapstructure:"gemini_api_key"`
	Temperature       float32       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Lenient           bool          `mapstructure:"lenient"`
}

// KeyForProvider returns the explicit api_key when set, otherwise the
// provider-specific key.
func (c LLMConfig) KeyForProvider() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	switch c.Provider {
	case "perplexity":
		return c.PerplexityAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	}
	return ""
}

// QuotaConfig selects the monthly OCR usage counter.
type QuotaConfig struct {
	Backend          string `mapstructure:"backend"` // postgres | redis | none
	FreeMonthlyLimit int    `mapstructure:"free_monthly_limit"`
}

// RedisConfig is used when quota.backend is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig configures the MinIO image store. An empty endpoint disables it.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether images should be uploaded.
func (c StorageConfig) Enabled() bool {
	return c.Endpoint != ""
}

// IngestConfig sizes the batch and watch workers.
type IngestConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Debounce  time.Duration `mapstructure:"debounce"`
	UseAI     bool          `mapstructure:"use_ai"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envAliases binds the plain variable names used by deployments alongside
// the KEIBA_ prefixed ones.
var envAliases = map[string][]string{
	"database.url":           {"KEIBA_DATABASE_URL", "DB_URL"},
	"ocr.vision_api_key":     {"KEIBA_OCR_VISION_API_KEY", "GCV_API_KEY", "GOOGLE_CLOUD_VISION_API_KEY"},
	"llm.api_key":            {"KEIBA_LLM_API_KEY"},
	"llm.perplexity_api_key": {"KEIBA_LLM_PERPLEXITY_API_KEY", "PERPLEXITY_API_KEY"},
	"llm.openai_api_key":     {"KEIBA_LLM_OPENAI_API_KEY", "OPENAI_API_KEY"},
	"llm.anthropic_api_key":  {"KEIBA_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
	"llm.gemini_api_key":     {"KEIBA_LLM_GEMINI_API_KEY", "GEMINI_API_KEY"},
	"redis.addr":             {"KEIBA_REDIS_ADDR", "REDIS_ADDR"},
	"storage.access_key":     {"KEIBA_STORAGE_ACCESS_KEY", "MINIO_ACCESS_KEY"},
	"storage.secret_key":     {"KEIBA_STORAGE_SECRET_KEY", "MINIO_SECRET_KEY"},
}

// LoadConfig reads an optional YAML file and the environment. An empty path
// looks for ./config.yaml.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KEIBA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)
	v.SetDefault("database.statement_timeout", time.Duration(0))

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_image_bytes", 10<<20)

	v.SetDefault("ocr.engine", "vision")
	v.SetDefault("ocr.vision_endpoint", "")
	v.SetDefault("ocr.tesseract_psm", 6)
	v.SetDefault("ocr.tesseract_lang", "jpn")
	v.SetDefault("ocr.tessdata_dir", "")
	v.SetDefault("ocr.cache_path", "")
	v.SetDefault("ocr.timeout", 30*time.Second)

	v.SetDefault("llm.provider", "perplexity")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.requests_per_second", 1.0)
	v.SetDefault("llm.burst", 2)
	v.SetDefault("llm.lenient", true)

	v.SetDefault("quota.backend", "postgres")
	v.SetDefault("quota.free_monthly_limit", 0)

	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.bucket", "bet-images")
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_size", 64)
	v.SetDefault("ingest.debounce", 500*time.Millisecond)
	v.SetDefault("ingest.use_ai", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

var (
	validEngines   = []string{"vision", "tesseract"}
	validProviders = []string{"perplexity", "openai", "anthropic", "gemini", "none"}
	validBackends  = []string{"postgres", "redis", "none"}
	validFormats   = []string{"json", "console"}
)

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if !oneOf(c.Log.Format, validFormats) {
		return NewAppError("CONFIG_ERROR", "log.format must be json or console", ErrInvalidInput)
	}
	if !oneOf(c.OCR.Engine, validEngines) {
		return NewAppError("CONFIG_ERROR", "ocr.engine must be vision or tesseract", ErrInvalidInput)
	}
	if !oneOf(c.LLM.Provider, validProviders) {
		return NewAppError("CONFIG_ERROR", "llm.provider is not supported: "+c.LLM.Provider, ErrInvalidInput)
	}
	if c.LLM.Provider != "none" && c.LLM.KeyForProvider() == "" {
		return NewAppError("CONFIG_ERROR", "an API key is required for llm.provider "+c.LLM.Provider, ErrInvalidInput)
	}
	if !oneOf(c.Quota.Backend, validBackends) {
		return NewAppError("CONFIG_ERROR", "quota.backend must be postgres, redis or none", ErrInvalidInput)
	}
	if c.Quota.Backend == "redis" && c.Redis.Addr == "" {
		return NewAppError("CONFIG_ERROR", "REDIS_ADDR is required for the redis quota backend", ErrInvalidInput)
	}
	if c.Quota.FreeMonthlyLimit < 0 {
		return NewAppError("CONFIG_ERROR", "quota.free_monthly_limit must not be negative", ErrInvalidInput)
	}
	if c.Storage.Enabled() && c.Storage.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "storage.bucket is required when storage.endpoint is set", ErrInvalidInput)
	}
	return nil
}

// RequireDatabase is checked by commands that open a pool.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
