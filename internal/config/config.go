// Package config loads pipeline configuration from the environment and
// an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values. It is built once at startup and
// passed explicitly into constructors; nothing reads the environment later.
type Config struct {
	// SurrealDB connection (metadata store and notification queue)
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Object storage
	StorageBackend string `yaml:"storage_backend"` // "fs" or "s3"
	StorageDir     string `yaml:"storage_dir"`     // fs: directory for raw objects
	StorageBaseURL string `yaml:"storage_base_url"`
	StorageToken   string `yaml:"storage_token"` // fs: access token appended to signed URLs
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`

	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`

	// Recognition
	VisionBackend  string `yaml:"vision_backend"` // "http" or "bedrock"
	VisionEndpoint string `yaml:"vision_endpoint"`
	VisionAPIKey   string `yaml:"vision_api_key"`
	BedrockModel   string `yaml:"bedrock_model"`

	// Worker
	LockDuration      time.Duration `yaml:"lock_duration"`
	LockRenewInterval time.Duration `yaml:"lock_renew_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxDeliveryCount  int           `yaml:"max_delivery_count"`

	// HTTP API
	ServerPort string `yaml:"server_port"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "visio"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "images"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		StorageBackend: getEnv("VISIO_STORAGE_BACKEND", "fs"),
		StorageDir:     getEnv("VISIO_STORAGE_DIR", "/var/lib/visio/objects"),
		StorageBaseURL: getEnv("VISIO_STORAGE_BASE_URL", "http://localhost:8484"),
		StorageToken:   getEnv("VISIO_STORAGE_TOKEN", ""),
		S3Bucket:       getEnv("VISIO_S3_BUCKET", ""),
		S3Region:       getEnv("VISIO_S3_REGION", ""),

		SignedURLTTL: getEnvDuration("VISIO_SIGNED_URL_TTL", 15*time.Minute),

		VisionBackend:  getEnv("VISIO_VISION_BACKEND", "http"),
		VisionEndpoint: getEnv("VISIO_VISION_ENDPOINT", ""),
		VisionAPIKey:   getEnv("VISIO_VISION_API_KEY", ""),
		BedrockModel:   getEnv("VISIO_BEDROCK_MODEL", "anthropic.claude-3-haiku-20240307-v1:0"),

		LockDuration:      getEnvDuration("VISIO_LOCK_DURATION", 30*time.Second),
		LockRenewInterval: getEnvDuration("VISIO_LOCK_RENEW_INTERVAL", 10*time.Second),
		PollInterval:      getEnvDuration("VISIO_POLL_INTERVAL", time.Second),
		MaxDeliveryCount:  getEnvInt("VISIO_MAX_DELIVERY_COUNT", 5),

		ServerPort: getEnv("VISIO_SERVER_PORT", "8484"),

		LogFile:  getEnv("VISIO_LOG_FILE", "/tmp/visio.log"),
		LogLevel: ParseLogLevel(getEnv("VISIO_LOG_LEVEL", "INFO")),
	}
}

// LoadFile loads configuration from the environment, then overlays values
// set in the YAML file at path. File values win over environment values.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field requirements for the chosen backends.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case "fs", "memory":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 storage backend requires VISIO_S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	switch c.VisionBackend {
	case "http":
		if c.VisionEndpoint == "" {
			return fmt.Errorf("http vision backend requires VISIO_VISION_ENDPOINT")
		}
	case "bedrock":
	default:
		return fmt.Errorf("unknown vision backend %q", c.VisionBackend)
	}

	if c.LockRenewInterval >= c.LockDuration {
		return fmt.Errorf("lock renew interval (%s) must be shorter than lock duration (%s)",
			c.LockRenewInterval, c.LockDuration)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// ParseLogLevel converts a level name to a slog.Level, defaulting to INFO.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
