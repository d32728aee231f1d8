package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds serve-mode settings.
type ServerConfig struct {
	Addr      string
	AuthToken string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds the ambient runtime configuration shared by all subcommands.
// The sweep definition itself lives in a separate YAML file (see sweepfile.go).
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Notification NotificationConfig

	StateDir      string
	ReportDir     string
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "0.0.0.0:7071"
	defaultLogLevel      = "info"
	defaultReportDir     = "."
	defaultShutdownGrace = 5 * time.Second
)

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Load builds the ambient config from environment variables, with an optional
// .env file as a lower-priority source. Subcommand flags override individual
// fields after loading.
func Load() (*Config, error) {
	// Check the current directory first, then the user config directory.
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "sweeprun", ".env"))
	}
	_ = godotenv.Load(envFiles...) // optional

	cfg := &Config{
		Server: ServerConfig{
			Addr:      getEnvString("SWEEPRUN_ADDR", defaultAddr),
			AuthToken: getEnvString("SWEEPRUN_AUTH_TOKEN", ""),
		},
		Log: LogConfig{
			Level: getEnvString("SWEEPRUN_LOG_LEVEL", defaultLogLevel),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("SWEEPRUN_BARK_URL", ""),
				Enabled: getEnvBool("SWEEPRUN_BARK_ENABLED", false),
			},
		},
		StateDir:      getEnvString("SWEEPRUN_STATE_DIR", ""),
		ReportDir:     getEnvString("SWEEPRUN_REPORT_DIR", defaultReportDir),
		ShutdownGrace: getEnvDuration("SWEEPRUN_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	return cfg, nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "sweeprun")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
