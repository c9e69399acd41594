package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var globalConfig *Config

// Load reads configuration from configPath, or from the default search
// paths when configPath is empty. Environment variables with the ROADCLAW
// prefix override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := ResolveUserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		// 1) ./.roadclaw/config.yaml  2) ./config.yaml  3) ~/.roadclaw/config.yaml
		v.AddConfigPath(filepath.Join(".", ".roadclaw"))
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".roadclaw"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ROADCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project.path", "roadmap.json")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 7333)
	// Use time.Duration defaults; plain integers would become nanoseconds
	// when unmarshaled.
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.ping_interval", 30*time.Second)
	v.SetDefault("server.pong_timeout", 60*time.Second)

	v.SetDefault("watch.debounce_ms", 500)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Save writes the configuration to path as YAML.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Get returns the last loaded configuration.
func Get() *Config {
	return globalConfig
}

// GetDefaultConfigPath returns the per-user config file path.
func GetDefaultConfigPath() (string, error) {
	home, err := ResolveUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".roadclaw", "config.yaml"), nil
}

// DefaultJournalPath returns the per-user journal database path, used when
// journal.path is unset.
func DefaultJournalPath() (string, error) {
	home, err := ResolveUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".roadclaw", "journal.db"), nil
}

// ResolveUserHomeDir returns the best-effort user home directory.
// On Windows, prefer USERPROFILE or HOMEDRIVE+HOMEPATH to avoid HOME drift.
func ResolveUserHomeDir() (string, error) {
	if runtime.GOOS == "windows" {
		if profile := strings.TrimSpace(os.Getenv("USERPROFILE")); profile != "" {
			return profile, nil
		}
		drive := strings.TrimSpace(os.Getenv("HOMEDRIVE"))
		path := strings.TrimSpace(os.Getenv("HOMEPATH"))
		if drive != "" && path != "" {
			return filepath.Clean(drive + path), nil
		}
	}
	return os.UserHomeDir()
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read_timeout must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write_timeout must be positive")
	}
	if cfg.Server.PingInterval <= 0 {
		return fmt.Errorf("server ping_interval must be positive")
	}
	if cfg.Server.PongTimeout <= cfg.Server.PingInterval {
		return fmt.Errorf("server pong_timeout must exceed ping_interval")
	}

	if cfg.Watch.DebounceMs <= 0 {
		return fmt.Errorf("watch debounce_ms must be positive")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn, or error")
	}

	if strings.TrimSpace(cfg.Project.Path) == "" {
		return fmt.Errorf("project path cannot be empty")
	}
	return nil
}
