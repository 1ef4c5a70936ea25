package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rackbridge/rackbridge-core/internal/infrastructure/config"
	"github.com/rackbridge/rackbridge-core/internal/model"
	"github.com/rackbridge/rackbridge-core/internal/persist"
	"github.com/rackbridge/rackbridge-core/internal/shadow"
)

// HealthChecker verifies a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerStatus exposes broker liveness.
type BrokerStatus interface {
	IsConnected() bool
}

// CommandSender builds and publishes one command. Implemented by the
// command builder.
type CommandSender interface {
	Send(cmd model.CommandRequest) error
}

// DropCounter exposes per-subscriber drop counts for the health view.
type DropCounter interface {
	Drops() map[string]uint64
}

// Deps collects the server's collaborators.
type Deps struct {
	Config  *config.Config
	Cache   *shadow.Cache
	Sender  CommandSender
	History *persist.History // nil when storage is disabled
	DB      HealthChecker    // nil when storage is disabled
	Broker  BrokerStatus
	Drops   DropCounter
	Logger  *slog.Logger
	Version string
}

// Server is the read API: live shadow views, history queries, health,
// and command submission.
type Server struct {
	deps    Deps
	logger  *slog.Logger
	httpSrv *http.Server
	started time.Time
}

// New creates the API server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		deps:    deps,
		logger:  logger,
		started: time.Now(),
	}

	cfg := deps.Config.APIServer
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  deps.Config.GetReadTimeout(),
		WriteTimeout: deps.Config.GetWriteTimeout(),
		IdleTimeout:  deps.Config.GetIdleTimeout(),
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("api server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
