package config

import "time"

// Config is the application configuration.
type Config struct {
	Project ProjectConfig `mapstructure:"project" yaml:"project"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ProjectConfig points at the default project state file used when the CLI
// is run without an explicit --file.
type ProjectConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig configures the dashboard HTTP/WebSocket server.
type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
}

// WatchConfig configures external change detection.
type WatchConfig struct {
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// JournalConfig configures the mutation journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}
