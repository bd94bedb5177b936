package config

import "time"

// Config holds relay server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	AdminAddr         string        `mapstructure:"admin_addr" yaml:"admin_addr"`
	HistoryPath       string        `mapstructure:"history_path" yaml:"history_path"`
	HistorySync       bool          `mapstructure:"history_sync" yaml:"history_sync"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections"`
	MaxLineBytes      int           `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
	OutboundBuffer    int           `mapstructure:"outbound_buffer" yaml:"outbound_buffer"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	RelayRateLimit    int           `mapstructure:"relay_rate_limit" yaml:"relay_rate_limit"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":9000",
		AdminAddr:         ":9080",
		HistoryPath:       "message_history.log",
		LogLevel:          "info",
		MaxLineBytes:      64 * 1024,
		OutboundBuffer:    32,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// AdminAddr and HistorySync cannot be cleared this way; set them directly.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.AdminAddr != "" {
		c.AdminAddr = other.AdminAddr
	}
	if other.HistoryPath != "" {
		c.HistoryPath = other.HistoryPath
	}
	if other.HistorySync {
		c.HistorySync = true
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.MaxConnections != 0 {
		c.MaxConnections = other.MaxConnections
	}
	if other.MaxLineBytes != 0 {
		c.MaxLineBytes = other.MaxLineBytes
	}
	if other.OutboundBuffer != 0 {
		c.OutboundBuffer = other.OutboundBuffer
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.RelayRateLimit != 0 {
		c.RelayRateLimit = other.RelayRateLimit
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
