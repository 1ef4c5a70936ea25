package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rackbridge/rackbridge-core/internal/bus"
	"github.com/rackbridge/rackbridge-core/internal/infrastructure/config"
	"github.com/rackbridge/rackbridge-core/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The push listener binds inside the deployment perimeter;
		// origin policy is enforced by the fronting proxy.
		return true
	},
}

// Server owns the push stream listener and the bus subscription that
// feeds it.
type Server struct {
	cfg     config.PushStreamConfig
	bus     *bus.Bus
	hub     *Hub
	logger  *slog.Logger
	httpSrv *http.Server
}

// New creates the push stream server.
func New(cfg config.PushStreamConfig, b *bus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		cfg:    cfg,
		bus:    b,
		hub:    NewHub(cfg, logger),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleUpgrade)
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	return s
}

// Hub exposes the hub for health reporting.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves WebSocket upgrades and relays normalized events until the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	sub := s.bus.Subscribe("push", bus.TopicEventNormalized, 512)

	go s.hub.Run(ctx)
	go s.relay(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("push stream listening", "addr", s.httpSrv.Addr, "path", s.cfg.Path)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("push stream: %w", err)
	case <-ctx.Done():
		return s.httpSrv.Shutdown(context.Background())
	}
}

// relay forwards each normalized event to the hub.
func (s *Server) relay(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			event, ok := msg.Payload.(model.Event)
			if !ok {
				s.logger.Warn("push relay: unexpected payload type")
				continue
			}
			s.hub.Broadcast(event)
		}
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("push upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	s.hub.register(c)

	go c.writePump(s.cfg)
	go c.readPump(s.cfg)
}
