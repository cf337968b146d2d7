package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
)

var ErrInvalidConfig = errors.New("invalid config")

// Server holds the tasting server settings. Every field can be set from
// the environment; a .env file is honoured by the server binary.
type Server struct {
	Port       int    `env:"PORT" envDefault:"8080"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"25s"`
	PingTimeout  time.Duration `env:"PING_TIMEOUT" envDefault:"60s"`
	PollWait     time.Duration `env:"POLL_WAIT" envDefault:"20s"`
	SendBuffer   int           `env:"SEND_BUFFER" envDefault:"256"`

	ChatHistoryLimit int `env:"CHAT_HISTORY_LIMIT" envDefault:"100"`

	// RequireSameRoom restricts signal relay to members of the same room.
	RequireSameRoom bool `env:"SIGNAL_REQUIRE_SAME_ROOM" envDefault:"false"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadServer parses and validates the server settings.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate checks the heartbeat timings are consistent and the limits in range.
func (s Server) Validate() error {
	switch {
	case s.Port <= 0 || s.Port > 65535:
		return fmt.Errorf("%w: PORT %d out of range", ErrInvalidConfig, s.Port)
	case s.PingInterval <= 0:
		return fmt.Errorf("%w: PING_INTERVAL must be positive", ErrInvalidConfig)
	case s.PingTimeout <= s.PingInterval:
		return fmt.Errorf("%w: PING_TIMEOUT (%s) must exceed PING_INTERVAL (%s)", ErrInvalidConfig, s.PingTimeout, s.PingInterval)
	case s.PollWait <= 0 || s.PollWait >= s.PingTimeout:
		return fmt.Errorf("%w: POLL_WAIT (%s) must be positive and below PING_TIMEOUT", ErrInvalidConfig, s.PollWait)
	case s.SendBuffer <= 0:
		return fmt.Errorf("%w: SEND_BUFFER must be positive", ErrInvalidConfig)
	case s.ChatHistoryLimit <= 0 || s.ChatHistoryLimit > room.MaxHistoryLimit:
		return fmt.Errorf("%w: CHAT_HISTORY_LIMIT must be between 1 and %d", ErrInvalidConfig, room.MaxHistoryLimit)
	}
	return nil
}

// Addr is the listen address.
func (s Server) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}
