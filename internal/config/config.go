// Package config provides Viper-based configuration loading for the Blast
// Arena game server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration before timing out a response
	// write. WebSocket connections are exempt once hijacked.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// WebsocketConfig holds per-connection WebSocket tuning.
type WebsocketConfig struct {
	// ReadBufferSize is the upgrader read buffer in bytes.
	ReadBufferSize int `mapstructure:"read_buffer_size"`
	// WriteBufferSize is the upgrader write buffer in bytes.
	WriteBufferSize int `mapstructure:"write_buffer_size"`
	// SendQueueSize is the per-connection outbound message buffer. A
	// connection whose queue is full has messages dropped rather than
	// blocking the publisher.
	SendQueueSize int `mapstructure:"send_queue_size"`
	// PongTimeout is the read deadline extension granted on each pong.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
	// PingInterval is how often the server pings each connection. Must be
	// shorter than PongTimeout.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GameConfig holds the room orchestration rules.
type GameConfig struct {
	// MaxRooms is the global ceiling on concurrently live rooms.
	MaxRooms int `mapstructure:"max_rooms"`
	// MinCapacity and MaxCapacity bound the per-room capacity requested at
	// creation; out-of-range requests are clamped, not rejected.
	MinCapacity int `mapstructure:"min_capacity"`
	MaxCapacity int `mapstructure:"max_capacity"`
	// TeamCap is the maximum players per team in team mode. Team caps can
	// bind before raw capacity does.
	TeamCap int `mapstructure:"team_cap"`
	// MaxHealth is the authoritative health ceiling and respawn value.
	MaxHealth int `mapstructure:"max_health"`
	// RespawnDelay is how long a dead player stays at zero health before
	// the deferred respawn fires.
	RespawnDelay time.Duration `mapstructure:"respawn_delay"`
	// SelectionDelay is the gap between the round-result broadcast and the
	// selection-phase broadcast for the same round.
	SelectionDelay time.Duration `mapstructure:"selection_delay"`
	// ListLimit caps the public room listing. This is a display cap, not a
	// system limit.
	ListLimit int `mapstructure:"list_limit"`
	// ChoicesPerRound is how many augment options are offered each
	// selection phase.
	ChoicesPerRound int `mapstructure:"choices_per_round"`
}

// Config is the top-level application configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWebsocket(c.Websocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be 1-65535, got %d", h.Port))
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateWebsocket(w WebsocketConfig) error {
	var errs []string
	if w.ReadBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.read_buffer_size must be >= 1, got %d", w.ReadBufferSize))
	}
	if w.WriteBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.write_buffer_size must be >= 1, got %d", w.WriteBufferSize))
	}
	if w.SendQueueSize < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_queue_size must be >= 1, got %d", w.SendQueueSize))
	}
	if w.PongTimeout <= 0 {
		errs = append(errs, "websocket.pong_timeout must be positive")
	}
	if w.PingInterval <= 0 {
		errs = append(errs, "websocket.ping_interval must be positive")
	}
	if w.PingInterval > 0 && w.PongTimeout > 0 && w.PingInterval >= w.PongTimeout {
		errs = append(errs, "websocket.ping_interval must be shorter than websocket.pong_timeout")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.MaxRooms < 1 {
		errs = append(errs, fmt.Sprintf("game.max_rooms must be >= 1, got %d", g.MaxRooms))
	}
	if g.MinCapacity < 1 {
		errs = append(errs, fmt.Sprintf("game.min_capacity must be >= 1, got %d", g.MinCapacity))
	}
	if g.MaxCapacity < g.MinCapacity {
		errs = append(errs, "game.max_capacity must not be less than game.min_capacity")
	}
	if g.TeamCap < 1 {
		errs = append(errs, fmt.Sprintf("game.team_cap must be >= 1, got %d", g.TeamCap))
	}
	if g.MaxHealth < 1 {
		errs = append(errs, fmt.Sprintf("game.max_health must be >= 1, got %d", g.MaxHealth))
	}
	if g.RespawnDelay <= 0 {
		errs = append(errs, "game.respawn_delay must be positive")
	}
	if g.SelectionDelay <= 0 {
		errs = append(errs, "game.selection_delay must be positive")
	}
	if g.ListLimit < 1 {
		errs = append(errs, fmt.Sprintf("game.list_limit must be >= 1, got %d", g.ListLimit))
	}
	if g.ChoicesPerRound < 1 {
		errs = append(errs, fmt.Sprintf("game.choices_per_round must be >= 1, got %d", g.ChoicesPerRound))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with BLAST_ prefix
	v.SetEnvPrefix("BLAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
// Tests and env-only deployments start from this.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshalling pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.send_queue_size", 256)
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.write_timeout", "10s")

	v.SetDefault("game.max_rooms", 100)
	v.SetDefault("game.min_capacity", 2)
	v.SetDefault("game.max_capacity", 8)
	v.SetDefault("game.team_cap", 3)
	v.SetDefault("game.max_health", 100)
	v.SetDefault("game.respawn_delay", "3s")
	v.SetDefault("game.selection_delay", "4s")
	v.SetDefault("game.list_limit", 3)
	v.SetDefault("game.choices_per_round", 3)
}
