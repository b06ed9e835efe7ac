// Package api is the HTTP/WebSocket front door: the STT ingress socket,
// per-call monitor sockets, the per-user notification socket, and the
// broadcast/health endpoints.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/csnavigator/callcopilot/pkg/agent"
	"github.com/csnavigator/callcopilot/pkg/config"
	"github.com/csnavigator/callcopilot/pkg/events"
	"github.com/csnavigator/callcopilot/pkg/models"
	"github.com/csnavigator/callcopilot/pkg/session"
)

// ProfileFetcher resolves a customer profile by phone number. Implemented
// by directory.Client.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, phoneNumber string) (*models.CustomerInfo, error)
}

// Analyzer runs the end-of-call analysis. Implemented by analysis.Analyzer.
type Analyzer interface {
	Run(ctx context.Context, callID string)
}

// Server wires the transport layer to the session store, orchestrator, and
// fan-out surfaces.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg          *config.ServerConfig
	store        *session.Store
	orchestrator *agent.Orchestrator
	rooms        *events.RoomManager
	notifier     *events.Notifier
	directory    ProfileFetcher
	analyzer     Analyzer
}

// NewServer builds the server and registers all routes.
func NewServer(
	cfg *config.ServerConfig,
	store *session.Store,
	orchestrator *agent.Orchestrator,
	rooms *events.RoomManager,
	notifier *events.Notifier,
	directory ProfileFetcher,
	analyzer Analyzer,
) *Server {
	e := echo.New()
	s := &Server{
		echo:         e,
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		rooms:        rooms,
		notifier:     notifier,
		directory:    directory,
		analyzer:     analyzer,
	}

	e.Use(securityHeaders())
	e.Use(corsMiddleware(cfg.AllowedCORSOrigins))

	e.GET("/health", s.healthHandler)
	e.POST("/broadcast", s.broadcastHandler)
	e.GET("/ws/calls", s.ingressHandler)
	e.GET("/ws/calls/:call_id/monitor", s.monitorHandler)
	e.GET("/ws/notifications/:user_id", s.notificationsHandler)

	return s
}

// Handler exposes the underlying router, for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start runs the HTTP server on addr. Blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
