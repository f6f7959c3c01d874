package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

const defaultServiceName = "imgprompt"

// EnvConfig holds logger settings read from the environment.
type EnvConfig struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // overrides every other destination
	ServiceName string

	// local writes to stdout only; dev and prod also write LogFile.
	Environment string

	LogFile     string
	LogFileOnly bool

	// Rotation
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// LoadFromEnv reads LOG_* variables. SERVICE_NAME falls back to a slug of
// SERVER_NAME, and GIN_MODE picks the level and environment defaults so a
// release build logs to a file without extra settings.
func LoadFromEnv() *EnvConfig {
	service := getEnv("SERVICE_NAME", ServiceSlug(os.Getenv("SERVER_NAME")))

	level, environment := "info", "local"
	switch os.Getenv("GIN_MODE") {
	case "debug":
		level = "debug"
	case "release":
		environment = "prod"
	}

	return &EnvConfig{
		Level:       getEnv("LOG_LEVEL", level),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: service,
		Environment: getEnv("APP_ENV", environment),

		LogFile:     getEnv("LOG_FILE", defaultLogFile(service)),
		LogFileOnly: getEnvBool("LOG_FILE_ONLY", false),

		MaxSize:    getEnvInt("LOG_MAX_SIZE", 50),
		MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		MaxAge:     getEnvInt("LOG_MAX_AGE", 14),
		Compress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// ForService names the logger after the configured server name. Explicit
// SERVICE_NAME and LOG_FILE settings win.
func (e *EnvConfig) ForService(name string) *EnvConfig {
	c := *e
	if os.Getenv("SERVICE_NAME") == "" && strings.TrimSpace(name) != "" {
		c.ServiceName = ServiceSlug(name)
	}
	if os.Getenv("LOG_FILE") == "" {
		c.LogFile = defaultLogFile(c.ServiceName)
	}
	return &c
}

// ServiceSlug turns a display name such as "Image Prompt Extractor" into
// "image-prompt-extractor".
func ServiceSlug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return defaultServiceName
	}
	return slug
}

func defaultLogFile(service string) string {
	return filepath.Join("logs", service+".log")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return i
}
