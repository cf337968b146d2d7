package cmd

import (
	"fmt"
	"log/slog"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/client"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/config"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// LoadConfig merges the persistent flags with the environment.
func LoadConfig(stun string) (*config.Client, error) {
	cfg, err := config.Load(config.Options{
		Server:      flagServer,
		Transports:  flagTransports,
		Codec:       flagCodec,
		MaxAttempts: flagMaxAttempts,
		RetryDelay:  flagRetryDelay,
		STUNServer:  stun,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// NewController builds a reconnection controller for the configured
// transports, tried in the configured order.
func NewController(cfg *config.Client, logger *slog.Logger) (*client.Controller, error) {
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	transports := make([]client.Transport, 0, len(cfg.Transports))
	for _, kind := range cfg.Transports {
		switch kind {
		case protocol.TransportWebSocket:
			transports = append(transports, &client.WebSocketTransport{URL: cfg.WebSocketURL(), Codec: codec})
		case protocol.TransportPolling:
			transports = append(transports, &client.PollingTransport{URL: cfg.PollURL()})
		default:
			return nil, fmt.Errorf("%w: unknown transport %q", config.ErrInvalidConfig, kind)
		}
	}

	return client.NewController(client.Options{
		Transports:       transports,
		Strategy:         client.Fixed(cfg.Transports...),
		MaxAttempts:      cfg.MaxAttempts,
		RetryDelay:       cfg.RetryDelay,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Heartbeat:        cfg.Heartbeat,
		Logger:           logger.With("component", "client"),
	}), nil
}
