package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/config"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/gateway"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/session"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/signaling"
)

const shutdownTimeout = 5 * time.Second

// Server is the assembled tasting server: one gateway feeding one
// dispatcher over a process-wide registry and relay.
type Server struct {
	cfg      config.Server
	logger   *slog.Logger
	gateway  *gateway.Gateway
	registry *room.Registry
	handler  http.Handler
}

func New(cfg config.Server, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gw := gateway.New(gateway.Config{
		PingInterval:   cfg.PingInterval,
		PingTimeout:    cfg.PingTimeout,
		PollWait:       cfg.PollWait,
		SendBuffer:     cfg.SendBuffer,
		MaxMessageSize: gateway.DefaultConfig().MaxMessageSize,
		AllowedOrigin:  cfg.CORSOrigin,
	}, gateway.WithLogger(logger.With("component", "gateway")))

	registry := room.NewRegistry(gw,
		room.WithHistoryLimit(cfg.ChatHistoryLimit),
		room.WithLogger(logger.With("component", "registry")),
	)

	relayOpts := []signaling.Option{signaling.WithLogger(logger.With("component", "relay"))}
	if cfg.RequireSameRoom {
		relayOpts = append(relayOpts, signaling.RequireSameRoom(registry))
	}
	relay := signaling.NewRelay(gw, relayOpts...)

	gw.SetHandler(session.NewDispatcher(registry, relay, gw,
		session.WithLogger(logger.With("component", "dispatcher")),
	))

	return &Server{
		cfg:      cfg,
		logger:   logger,
		gateway:  gw,
		registry: registry,
		handler:  Routes(gw, registry, cfg.CORSOrigin, logger),
	}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until ctx is done, then closes every
// client connection with reason server-shutdown and drains the listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.gateway.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down", "connections", s.gateway.Count())
		s.gateway.Shutdown()

		shctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shctx)
	})
	return g.Wait()
}

// ListenAndServe listens on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return err
	}
	s.logger.Info("starting tasting server", "addr", ln.Addr().String())
	return s.Serve(ctx, ln)
}
