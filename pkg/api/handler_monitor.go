package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/csnavigator/callcopilot/pkg/session"
)

// monitorMessage is a client frame on the monitor socket.
type monitorMessage struct {
	Type       string `json:"type"`
	MemberID   int    `json:"memberId"`
	TenantName string `json:"tenantName"`
}

// monitorHandler attaches an operator console to a call's room. Monitor
// attach counts as call activity: it sets the session start time if no
// turn arrived yet.
func (s *Server) monitorHandler(c *echo.Context) error {
	callID := c.Param("call_id")
	if callID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "call_id is required")
	}

	conn, err := s.accept(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	s.store.MarkStart(callID)
	monitor := s.rooms.Attach(ctx, callID, conn)
	defer func() {
		s.rooms.Detach(callID, monitor)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return nil
		}

		var msg monitorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid monitor message", "call_id", callID, "error", err)
			continue
		}

		switch msg.Type {
		case "IDENTIFY":
			s.store.BindOperator(callID, session.Operator{
				MemberID:   msg.MemberID,
				TenantName: msg.TenantName,
			})
			slog.Info("Operator identified",
				"call_id", callID, "member_id", msg.MemberID, "tenant", msg.TenantName)

		case "CALL_ENDED":
			slog.Info("Monitor requested call end", "call_id", callID)
			s.endCall(callID)

		default:
			slog.Debug("Ignoring monitor message", "call_id", callID, "type", msg.Type)
		}
	}
}

// notificationsHandler subscribes a console to the per-user notification
// bus. The socket is receive-only from the client's perspective; inbound
// frames are discarded.
func (s *Server) notificationsHandler(c *echo.Context) error {
	userID := c.Param("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	conn, err := s.accept(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	sub := s.notifier.Subscribe(ctx, userID, conn)
	defer func() {
		s.notifier.Unsubscribe(userID, sub)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return nil
		}
	}
}
