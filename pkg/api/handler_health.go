package api

import (
	"encoding/json"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/csnavigator/callcopilot/pkg/version"
)

// maxBroadcastBody bounds the externally supplied broadcast payload.
const maxBroadcastBody = 64 * 1024

// healthHandler handles GET /health. Minimal unauthenticated response;
// external dependencies (LLM, vector store, directory) are deliberately
// not probed so an upstream outage does not get this service restarted.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "healthy",
		"version":       version.Full(),
		"active_calls":  s.store.Active(),
		"monitor_rooms": s.rooms.ActiveRooms(),
	})
}

// broadcastHandler handles POST /broadcast: forwards an external JSON event
// (e.g. a ring trigger) to every notification subscriber unchanged.
func (s *Server) broadcastHandler(c *echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBroadcastBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}
	if !json.Valid(body) {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be valid JSON")
	}

	s.notifier.Forward(body)
	return c.JSON(http.StatusOK, map[string]string{"status": "forwarded"})
}
