package logger

import (
	"io"
	"os"
	"strconv"
)

// Config controls how a Logger formats and where it writes.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // explicit destination; wins over File
	ServiceName string

	// Environment is local, dev or prod. File output is skipped for local.
	Environment string
	File        string
	FileOnly    bool
	Rotation    Rotation
}

// Rotation configures lumberjack file rotation.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig logs JSON at info level to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stdout,
		ServiceName: "producer-tools",
		Environment: "local",
	}
}

// ConfigFromEnv reads LOG_*, APP_ENV and SERVICE_NAME.
func ConfigFromEnv() *Config {
	return &Config{
		Level:       envString("LOG_LEVEL", "info"),
		Format:      envString("LOG_FORMAT", "json"),
		ServiceName: envString("SERVICE_NAME", "producer-tools"),
		Environment: envString("APP_ENV", "local"),
		File:        envString("LOG_FILE", "/var/log/producer-tools/app.log"),
		FileOnly:    envBool("LOG_FILE_ONLY", false),
		Rotation: Rotation{
			MaxSizeMB:  envInt("LOG_MAX_SIZE", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: envInt("LOG_MAX_AGE", 30),
			Compress:   envBool("LOG_COMPRESS", true),
		},
	}
}

func (c *Config) writesFile() bool {
	return c.Environment != "local" && c.File != ""
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return i
}
