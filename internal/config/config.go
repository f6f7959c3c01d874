package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MiB is one mebibyte.
const MiB = 1 << 20

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	VLM       VLMConfig       `mapstructure:"vlm"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Image     ImageConfig     `mapstructure:"image"`
	Analyze   AnalyzeConfig   `mapstructure:"analyze"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	Name string     `mapstructure:"name"`
	CORS CORSConfig `mapstructure:"cors"`
	// SessionSecret is carried for collaborators (web UI sessions) outside the API.
	SessionSecret string `mapstructure:"session_secret"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type VLMConfig struct {
	Provider        string        `mapstructure:"provider"` // gemini, openai
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Temperature     float64       `mapstructure:"temperature"`
	TopK            int           `mapstructure:"top_k"`
	TopP            float64       `mapstructure:"top_p"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Backend  string        `mapstructure:"backend"` // memory, redis
	Redis    RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type ImageConfig struct {
	MaxBytes               int64         `mapstructure:"max_bytes"`
	MaxDimension           int           `mapstructure:"max_dimension"`
	JPEGQuality            int           `mapstructure:"jpeg_quality"`
	DownloadTimeout        time.Duration `mapstructure:"download_timeout"`
	UserAgent              string        `mapstructure:"user_agent"`
	PassthroughUndecodable bool          `mapstructure:"passthrough_undecodable"`
}

type AnalyzeConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // r2, s3, s3compatible; empty auto-detects
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// APIKeyConfigured reports whether a provider credential is present.
func (c *VLMConfig) APIKeyConfigured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Explicit bindings for the deployment environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.mode", "GIN_MODE")
	v.BindEnv("server.session_secret", "SESSION_SECRET")
	v.BindEnv("vlm.provider", "VLM_PROVIDER")
	v.BindEnv("vlm.model", "VLM_MODEL")
	v.BindEnv("vlm.api_key", "GEMINI_API_KEY")
	v.BindEnv("vlm.base_url", "VLM_BASE_URL")
	v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("rate_limit.backend", "RATE_LIMIT_BACKEND")
	v.BindEnv("rate_limit.redis.addr", "REDIS_ADDR")
	v.BindEnv("rate_limit.redis.password", "REDIS_PASSWORD")
	v.BindEnv("archive.enabled", "ARCHIVE_ENABLED")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.name", "Image Prompt Extractor")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.session_secret", "")

	v.SetDefault("vlm.provider", "gemini")
	v.SetDefault("vlm.model", "gemini-1.5-flash")
	v.SetDefault("vlm.api_key", "")
	v.SetDefault("vlm.base_url", "")
	v.SetDefault("vlm.timeout", 60*time.Second)
	v.SetDefault("vlm.temperature", 0.7)
	v.SetDefault("vlm.top_k", 40)
	v.SetDefault("vlm.top_p", 0.95)
	v.SetDefault("vlm.max_output_tokens", 2048)

	v.SetDefault("rate_limit.requests", 15)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.redis.db", 0)
	v.SetDefault("rate_limit.redis.key", "ratelimit:vlm:window")

	v.SetDefault("image.max_bytes", 32*MiB)
	v.SetDefault("image.max_dimension", 2048)
	v.SetDefault("image.jpeg_quality", 85)
	v.SetDefault("image.download_timeout", 30*time.Second)
	v.SetDefault("image.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("image.passthrough_undecodable", true)

	v.SetDefault("analyze.request_timeout", 40*time.Second)

	v.SetDefault("archive.enabled", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/analyses.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "imgprompt")
}

func (c *Config) validate() error {
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.requests and rate_limit.window must be positive")
	}
	if c.Image.MaxBytes <= 0 {
		return fmt.Errorf("image.max_bytes must be positive")
	}
	if c.Image.MaxDimension <= 0 {
		return fmt.Errorf("image.max_dimension must be positive")
	}
	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be between 1 and 100")
	}
	switch c.VLM.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown vlm.provider %q", c.VLM.Provider)
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	return nil
}
