// Package config loads runtime settings for the chat server from an optional
// YAML file and the environment, then applies the defaults and validation the
// server relies on.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sivarajmuthukumar12/the-chat-server/internal/log"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Server    ServerConfig
	Chat      ChatConfig
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       log.Config
}

// ServerConfig controls the listeners.
type ServerConfig struct {
	TCPAddr         string        `mapstructure:"tcp_addr"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	MaxLineLength   int           `mapstructure:"max_line_length"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ChatConfig controls session and room behaviour.
type ChatConfig struct {
	MaxNameLength int           `mapstructure:"max_name_length"`
	TypingTimeout time.Duration `mapstructure:"typing_timeout"`
	TypingSweep   time.Duration `mapstructure:"typing_sweep"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	Color         bool          `mapstructure:"color"`
}

// WebSocketConfig controls the /ws transport.
type WebSocketConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
}

// RateLimitConfig defines the parameters for per-connection line rate limiting.
type RateLimitConfig struct {
	Burst          int           `mapstructure:"burst"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
}

// Default returns a Config populated with default values for all settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			TCPAddr:         ":8080",
			HTTPAddr:        ":8081",
			MaxLineLength:   4096,
			WriteWait:       10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Chat: ChatConfig{
			MaxNameLength: 15,
			TypingTimeout: 3 * time.Second,
			TypingSweep:   3 * time.Second,
			SendBuffer:    256,
			Color:         true,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			AllowedOrigins: []string{"http://localhost:8081"},
			MaxMessageSize: 4096,
			PingInterval:   54 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		Log: log.Config{
			Level:       "info",
			ServiceName: "chat-server",
		},
	}
}

// Load reads configuration from configPath/config.yaml (if present) and the
// environment. Keys map to variables with dots replaced by underscores, e.g.
// SERVER_TCP_ADDR or CHAT_TYPING_TIMEOUT.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v, Default())

	// Short aliases for the listen addresses.
	_ = v.BindEnv("server.tcp_addr", "SERVER_TCP_ADDR", "CHAT_PORT")
	_ = v.BindEnv("server.http_addr", "SERVER_HTTP_ADDR", "HTTP_PORT")
	_ = v.BindEnv("log.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Sanitize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.tcp_addr", d.Server.TCPAddr)
	v.SetDefault("server.http_addr", d.Server.HTTPAddr)
	v.SetDefault("server.max_line_length", d.Server.MaxLineLength)
	v.SetDefault("server.write_wait", d.Server.WriteWait)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("chat.max_name_length", d.Chat.MaxNameLength)
	v.SetDefault("chat.typing_timeout", d.Chat.TypingTimeout)
	v.SetDefault("chat.typing_sweep", d.Chat.TypingSweep)
	v.SetDefault("chat.send_buffer", d.Chat.SendBuffer)
	v.SetDefault("chat.color", d.Chat.Color)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.allowed_origins", d.WebSocket.AllowedOrigins)
	v.SetDefault("websocket.max_message_size", d.WebSocket.MaxMessageSize)
	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.pong_wait", d.WebSocket.PongWait)
	v.SetDefault("websocket.write_wait", d.WebSocket.WriteWait)

	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("rate_limit.refill_interval", d.RateLimit.RefillInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.service_name", d.Log.ServiceName)
}

// Sanitize replaces zero or invalid values with defaults.
func (c *Config) Sanitize() {
	d := Default()

	c.Server.TCPAddr = listenAddr(c.Server.TCPAddr, d.Server.TCPAddr)
	c.Server.HTTPAddr = listenAddr(c.Server.HTTPAddr, d.Server.HTTPAddr)
	if c.Server.MaxLineLength <= 0 {
		c.Server.MaxLineLength = d.Server.MaxLineLength
	}
	if c.Server.WriteWait <= 0 {
		c.Server.WriteWait = d.Server.WriteWait
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Chat.MaxNameLength <= 0 {
		c.Chat.MaxNameLength = d.Chat.MaxNameLength
	}
	if c.Chat.TypingTimeout <= 0 {
		c.Chat.TypingTimeout = d.Chat.TypingTimeout
	}
	if c.Chat.TypingSweep <= 0 {
		c.Chat.TypingSweep = d.Chat.TypingSweep
	}
	if c.Chat.SendBuffer <= 0 {
		c.Chat.SendBuffer = d.Chat.SendBuffer
	}

	if c.WebSocket.MaxMessageSize <= 0 {
		c.WebSocket.MaxMessageSize = d.WebSocket.MaxMessageSize
	}
	if c.WebSocket.PongWait <= 0 {
		c.WebSocket.PongWait = d.WebSocket.PongWait
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		c.WebSocket.PingInterval = c.WebSocket.PongWait * 9 / 10
	}
	if c.WebSocket.WriteWait <= 0 {
		c.WebSocket.WriteWait = d.WebSocket.WriteWait
	}
	c.WebSocket.AllowedOrigins = parseList(strings.Join(c.WebSocket.AllowedOrigins, ","))

	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = d.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = d.RateLimit.RefillInterval
	}
}

// listenAddr accepts a host:port or a bare port such as CHAT_PORT=9099.
func listenAddr(addr, fallback string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fallback
	}
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
