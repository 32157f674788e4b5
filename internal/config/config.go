package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// TokenFileName is the well-known name of the persisted credential.
const TokenFileName = "token"

// Config holds all configuration for the transcription client
type Config struct {
	// Remote transcription service
	APIBaseURL     string `envconfig:"TRANSCRIBE_API_URL" default:"http://localhost:8000"`
	RequestTimeout int    `envconfig:"REQUEST_TIMEOUT" default:"30"` // seconds
	UploadTimeout  int    `envconfig:"UPLOAD_TIMEOUT" default:"600"` // seconds

	// Credential persistence. Empty means <user config dir>/transcribe/token.
	TokenFile string `envconfig:"TOKEN_FILE" default:""`

	// Audio capture configuration
	AudioSampleRate      int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`
	AudioChannels        int     `envconfig:"AUDIO_CHANNELS" default:"1"`
	AudioFramesPerBuffer int     `envconfig:"AUDIO_FRAMES_PER_BUFFER" default:"1024"`
	SilenceThreshold     float64 `envconfig:"SILENCE_THRESHOLD" default:"500.0"` // RMS below this is treated as silence

	// Companion server (transcribe serve)
	Port            string `envconfig:"PORT" default:"8090"`
	RefreshInterval int    `envconfig:"REFRESH_INTERVAL" default:"10"` // seconds between job list refreshes
	WatchInterval   int    `envconfig:"WATCH_INTERVAL" default:"3"`    // seconds between job polls

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings that would otherwise fail later at call time
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("TRANSCRIBE_API_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("UPLOAD_TIMEOUT must be positive")
	}
	if c.AudioSampleRate <= 0 || c.AudioChannels <= 0 || c.AudioFramesPerBuffer <= 0 {
		return fmt.Errorf("audio sample rate, channels and frames per buffer must be positive")
	}
	if c.RefreshInterval <= 0 || c.WatchInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL and WATCH_INTERVAL must be positive")
	}
	return nil
}

// RequestTimeoutDuration is the bound applied to every JSON API call
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// UploadTimeoutDuration is the bound applied to a multipart submission
func (c *Config) UploadTimeoutDuration() time.Duration {
	return time.Duration(c.UploadTimeout) * time.Second
}

// RefreshIntervalDuration is the period of background job list refreshes
func (c *Config) RefreshIntervalDuration() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

// WatchIntervalDuration is the period between polls of a single job
func (c *Config) WatchIntervalDuration() time.Duration {
	return time.Duration(c.WatchInterval) * time.Second
}

// TokenPath resolves where the credential is persisted
func (c *Config) TokenPath() (string, error) {
	if c.TokenFile != "" {
		return c.TokenFile, nil
	}
	dir := GetEnv("XDG_CONFIG_HOME", "")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("failed to resolve config dir: %w", err)
		}
	}
	return filepath.Join(dir, "transcribe", TokenFileName), nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
