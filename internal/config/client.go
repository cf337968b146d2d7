package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default client configuration values
const (
	DefaultServer           = "http://localhost:8080"
	DefaultTransports       = "websocket,polling"
	DefaultMaxAttempts      = 5
	DefaultRetryDelay       = 2 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultHeartbeat        = 25 * time.Second
	DefaultSTUN             = "stun:stun.l.google.com:19302"
)

// Client holds the tasting CLI configuration
type Client struct {
	// ServerURL is the http(s) base URL of the tasting server
	ServerURL *url.URL

	// Transports in preference order
	Transports []string

	// Codec used on the websocket transport
	Codec string

	MaxAttempts      int
	RetryDelay       time.Duration
	HandshakeTimeout time.Duration
	Heartbeat        time.Duration

	STUNServer string
}

// Options for loading config with CLI flag overrides.
// Zero values fall through to the environment.
type Options struct {
	Server      string
	Transports  string
	Codec       string
	MaxAttempts int
	RetryDelay  time.Duration
	STUNServer  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Client, error) {
	// Load server: CLI flag > env > default
	server := pick(opts.Server, "TASTING_SERVER", DefaultServer)
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("%w: server url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: server url must be http or https, got %q", ErrInvalidConfig, server)
	}

	transports := splitList(pick(opts.Transports, "TASTING_TRANSPORTS", DefaultTransports))
	if len(transports) == 0 {
		return nil, fmt.Errorf("%w: no transports", ErrInvalidConfig)
	}

	attempts := opts.MaxAttempts
	if attempts == 0 {
		attempts, err = envInt("TASTING_MAX_ATTEMPTS", DefaultMaxAttempts)
		if err != nil {
			return nil, err
		}
	}
	if attempts < 1 {
		return nil, fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	}

	delay := opts.RetryDelay
	if delay == 0 {
		delay, err = envDuration("TASTING_RETRY_DELAY", DefaultRetryDelay)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		ServerURL:        u,
		Transports:       transports,
		Codec:            pick(opts.Codec, "TASTING_CODEC", "json"),
		MaxAttempts:      attempts,
		RetryDelay:       delay,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Heartbeat:        DefaultHeartbeat,
		STUNServer:       pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
	}, nil
}

// WebSocketURL returns the websocket endpoint for the configured codec.
func (c *Client) WebSocketURL() string {
	u := *c.ServerURL
	u.Scheme = "ws"
	if c.ServerURL.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	if c.Codec != "" && c.Codec != "json" {
		u.RawQuery = url.Values{"codec": {c.Codec}}.Encode()
	}
	return u.String()
}

// PollURL returns the long-polling endpoint.
func (c *Client) PollURL() string {
	return c.endpoint("/poll")
}

// RoomsURL returns the room statistics endpoint.
func (c *Client) RoomsURL() string {
	return c.endpoint("/api/rooms")
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

func (c *Client) endpoint(path string) string {
	u := *c.ServerURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func pick(flag, key, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
