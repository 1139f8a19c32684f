// Package config handles application configuration loading from a YAML file
// merged with environment variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	contextutils "ieltsprep/internal/utils"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// GeminiConfig holds the model identifiers and endpoint for the Gemini REST API.
// Text generation walks TextModels in order; audio walks TTSModels.
type GeminiConfig struct {
	BaseURL     string   `json:"base_url" yaml:"base_url" validate:"required,url"`
	TextModels  []string `json:"text_models" yaml:"text_models" validate:"required,min=1"`
	TTSModels   []string `json:"tts_models" yaml:"tts_models" validate:"required,min=1"`
	ImageModel  string   `json:"image_model" yaml:"image_model" validate:"required"`
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64  `json:"temperature" yaml:"temperature"`
}

// StorageConfig holds the bucket REST endpoint used for generated image uploads.
type StorageConfig struct {
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Bucket     string `json:"bucket" yaml:"bucket"`
	PublicBase string `json:"public_base" yaml:"public_base"`
	ServiceKey string `json:"service_key" yaml:"service_key"`
}

// QuotaConfig controls the per-user daily token accounting.
type QuotaConfig struct {
	DailyTokenCeiling int     `json:"daily_token_ceiling" yaml:"daily_token_ceiling" validate:"gt=0"`
	AlertThreshold    float64 `json:"alert_threshold" yaml:"alert_threshold" validate:"gte=0,lte=1"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port                string   `json:"port" yaml:"port"`
	SessionSecret       string   `json:"session_secret" yaml:"session_secret"`
	KeyEncryptionSecret string   `json:"key_encryption_secret" yaml:"key_encryption_secret"`
	Debug               bool     `json:"debug" yaml:"debug"`
	LogLevel            string   `json:"log_level" yaml:"log_level"`
	CORSOrigins         []string `json:"cors_origins" yaml:"cors_origins"`
	AppBaseURL          string   `json:"app_base_url" yaml:"app_base_url"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`
	Protocol       string            `json:"protocol" yaml:"protocol"` // "grpc" or "http"
	Insecure       bool              `json:"insecure" yaml:"insecure"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	ServiceName    string            `json:"service_name" yaml:"service_name"`
	ServiceVersion string            `json:"service_version" yaml:"service_version"`
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"`
}

// SMTPConfig represents SMTP server configuration
type SMTPConfig struct {
	Host        string `json:"host" yaml:"host"`
	Port        int    `json:"port" yaml:"port"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password" yaml:"password"`
	FromAddress string `json:"from_address" yaml:"from_address"`
	FromName    string `json:"from_name" yaml:"from_name"`
}

// EmailConfig represents email configuration for quota alerts
type EmailConfig struct {
	SMTP    SMTPConfig `json:"smtp" yaml:"smtp"`
	Enabled bool       `json:"enabled" yaml:"enabled"`
}

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Gemini        GeminiConfig        `json:"gemini" yaml:"gemini"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Quota         QuotaConfig         `json:"quota" yaml:"quota"`
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`
	Email         EmailConfig         `json:"email" yaml:"email"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// NewConfig loads configuration from the file named by CONFIG_FILE (default
// config.yaml), then applies environment overrides, then validates.
func NewConfig() (result0 *Config, err error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, contextutils.WrapErrorf(err, "failed to read config file %s", path)
		}
		// Missing file is fine, environment alone can configure the service.
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to parse config file %s", path)
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, contextutils.WrapError(err, "config validation failed")
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     "8080",
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: DatabaseConnMaxLifetime,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/models",
			TextModels: []string{
				"gemini-2.5-flash",
				"gemini-2.5-flash-lite",
				"gemini-2.0-flash",
			},
			TTSModels: []string{
				"gemini-2.5-flash-preview-tts",
			},
			ImageModel:  "gemini-2.0-flash-preview-image-generation",
			MaxTokens:   65536,
			Temperature: 0.7,
		},
		Quota: QuotaConfig{
			DailyTokenCeiling: 1_000_000,
			AlertThreshold:    0.8,
		},
		OpenTelemetry: OpenTelemetryConfig{
			Endpoint:      "localhost:4317",
			Protocol:      "grpc",
			Insecure:      true,
			ServiceName:   "ieltsprep-backend",
			EnableTracing: true,
			EnableMetrics: true,
			EnableLogging: true,
			SamplingRate:  1.0,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Server.SessionSecret = v
	}
	if v := os.Getenv("KEY_ENCRYPTION_SECRET"); v != "" {
		cfg.Server.KeyEncryptionSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		cfg.Server.Debug, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("TEST_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.IsTest = true
	}
	if v := os.Getenv("GEMINI_BASE_URL"); v != "" {
		cfg.Gemini.BaseURL = v
	}
	if v := os.Getenv("STORAGE_ENDPOINT"); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("STORAGE_SERVICE_KEY"); v != "" {
		cfg.Storage.ServiceKey = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OpenTelemetry.Endpoint = v
	}
	if v := os.Getenv("DAILY_TOKEN_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Quota.DailyTokenCeiling = n
		}
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.SMTP.Password = v
	}
}
