package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/timmy/producer-tools/internal/domain"
	"github.com/timmy/producer-tools/internal/storage"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Converter ConverterConfig `mapstructure:"converter"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg"`
	Analyzer  AnalyzerConfig  `mapstructure:"analyzer"`
	Artwork   ArtworkConfig   `mapstructure:"artwork"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	CORS            CORSConfig    `mapstructure:"cors"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type ConverterConfig struct {
	WorkDir           string        `mapstructure:"work_dir"`
	DefaultFormat     string        `mapstructure:"default_format"`
	Formats           []string      `mapstructure:"formats"`
	Strategies        []string      `mapstructure:"strategies"`
	StrategyDelay     time.Duration `mapstructure:"strategy_delay"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	// StagePause is slept after each progress publish so pollers see steps.
	StagePause time.Duration `mapstructure:"stage_pause"`
}

type FetcherConfig struct {
	Binary        string        `mapstructure:"binary"`
	CookiesFile   string        `mapstructure:"cookies_file"`
	CookiesBase64 string        `mapstructure:"cookies_base64"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SocketTimeout time.Duration `mapstructure:"socket_timeout"`
}

type FFmpegConfig struct {
	Binary      string `mapstructure:"binary"`
	ProbeBinary string `mapstructure:"ffprobe_binary"`
}

type AnalyzerConfig struct {
	Provider      string        `mapstructure:"provider"`
	SampleSeconds int           `mapstructure:"sample_seconds"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ArtworkConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	URL             string        `mapstructure:"url"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type StorageConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Type          string        `mapstructure:"type"`
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	Bucket        string        `mapstructure:"bucket"`
	Region        string        `mapstructure:"region"`
	PublicURL     string        `mapstructure:"public_url"`
	Prefix        string        `mapstructure:"prefix"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// DSN returns the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

// S3Config converts the storage section for storage.NewStorage.
func (c StorageConfig) S3Config() *storage.S3Config {
	return &storage.S3Config{
		Type:          storage.StorageType(c.Type),
		Endpoint:      c.Endpoint,
		AccessKey:     c.AccessKey,
		SecretKey:     c.SecretKey,
		UseSSL:        c.UseSSL,
		Bucket:        c.Bucket,
		Region:        c.Region,
		PublicURL:     c.PublicURL,
		PresignExpiry: c.PresignExpiry,
	}
}

// SupportedFormats parses the enabled output formats.
func (c ConverterConfig) SupportedFormats() ([]domain.AudioFormat, error) {
	if len(c.Formats) == 0 {
		return domain.SupportedFormats, nil
	}
	out := make([]domain.AudioFormat, 0, len(c.Formats))
	for _, name := range c.Formats {
		f, err := domain.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// ExtractionStrategies parses the configured strategy order.
func (c ConverterConfig) ExtractionStrategies() ([]domain.ExtractionStrategy, error) {
	if len(c.Strategies) == 0 {
		return domain.DefaultStrategies(), nil
	}
	return domain.ParseStrategies(c.Strategies)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	formats, err := c.Converter.SupportedFormats()
	if err != nil {
		errs = append(errs, fmt.Errorf("converter.formats: %w", err))
	}
	if def, err := domain.ParseFormat(c.Converter.DefaultFormat); err != nil {
		errs = append(errs, fmt.Errorf("converter.default_format: %w", err))
	} else if formats != nil && !containsFormat(formats, def) {
		errs = append(errs, fmt.Errorf("converter.default_format %q is not enabled", def))
	}
	if _, err := c.Converter.ExtractionStrategies(); err != nil {
		errs = append(errs, fmt.Errorf("converter.strategies: %w", err))
	}
	if c.Converter.WorkDir == "" {
		errs = append(errs, errors.New("converter.work_dir is required"))
	}
	if c.Converter.MaxConcurrentJobs < 0 {
		errs = append(errs, errors.New("converter.max_concurrent_jobs must not be negative"))
	}
	switch c.Analyzer.Provider {
	case "builtin", "none":
	case "remote":
		if c.Analyzer.BaseURL == "" {
			errs = append(errs, errors.New("analyzer.base_url is required for the remote provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("analyzer.provider %q is not supported", c.Analyzer.Provider))
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite":
		case "postgres":
			if c.Database.URL == "" {
				errs = append(errs, errors.New("database.url is required for postgres"))
			}
		default:
			errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
		}
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required when storage is enabled"))
	}

	return errors.Join(errs...)
}

func containsFormat(formats []domain.AudioFormat, f domain.AudioFormat) bool {
	for _, v := range formats {
		if v == f {
			return true
		}
	}
	return false
}

// Load reads configuration from configPath, CONFIG_PATH, ./configs/config.yaml
// or ./config.yaml, in that order, with environment overrides.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for deploy-time settings and secrets
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.mode", "GIN_MODE")
	_ = v.BindEnv("converter.work_dir", "WORK_DIR")
	_ = v.BindEnv("fetcher.cookies_file", "COOKIES_FILE")
	_ = v.BindEnv("fetcher.cookies_base64", "COOKIES_BASE64")
	_ = v.BindEnv("analyzer.api_key", "ANALYZER_API_KEY")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.region", "S3_REGION")
	_ = v.BindEnv("storage.public_url", "S3_PUBLIC_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("converter.work_dir", "./data/work")
	v.SetDefault("converter.default_format", "mp3")
	v.SetDefault("converter.formats", domain.FormatNames(domain.SupportedFormats))
	v.SetDefault("converter.strategies", []string{"android", "ios", "web", "tv_embedded"})
	v.SetDefault("converter.strategy_delay", time.Second)
	v.SetDefault("converter.max_concurrent_jobs", 0)
	v.SetDefault("converter.stage_pause", 500*time.Millisecond)

	v.SetDefault("fetcher.binary", "yt-dlp")
	v.SetDefault("fetcher.timeout", 10*time.Minute)
	v.SetDefault("fetcher.socket_timeout", 30*time.Second)

	v.SetDefault("ffmpeg.binary", "ffmpeg")
	v.SetDefault("ffmpeg.ffprobe_binary", "ffprobe")

	v.SetDefault("analyzer.provider", "builtin")
	v.SetDefault("analyzer.sample_seconds", 30)
	v.SetDefault("analyzer.timeout", 60*time.Second)

	v.SetDefault("artwork.enabled", true)
	v.SetDefault("artwork.timeout", 15*time.Second)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/producer-tools.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.prefix", "audio")
	v.SetDefault("storage.presign_expiry", 24*time.Hour)
}
