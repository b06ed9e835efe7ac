package api

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/csnavigator/callcopilot/pkg/events"
	"github.com/csnavigator/callcopilot/pkg/models"
)

// ingressMessage is the union of the two STT frame shapes. A frame with a
// speaker is a turn; a frame with only a call id is metadata.
type ingressMessage struct {
	CallID      string `json:"callId"`
	CallIDSnake string `json:"call_id"`

	CustomerNumber      string `json:"customerNumber"`
	CustomerNumberSnake string `json:"customer_number"`
	PhoneNumber         string `json:"phoneNumber"`

	Speaker    string `json:"speaker"`
	Transcript string `json:"transcript"`
	TurnID     int    `json:"turn_id"`
}

func (m *ingressMessage) callID() string {
	if m.CallID != "" {
		return m.CallID
	}
	return m.CallIDSnake
}

func (m *ingressMessage) customerNumber() string {
	switch {
	case m.CustomerNumber != "":
		return m.CustomerNumber
	case m.CustomerNumberSnake != "":
		return m.CustomerNumberSnake
	}
	return m.PhoneNumber
}

func (m *ingressMessage) isTurn() bool { return m.Speaker != "" }

// ingressHandler is the STT front door. The producer has no receive loop,
// so this handler never writes application frames back; protocol
// violations close the socket with 1003 and everything else flows out
// through the monitor room and notification bus.
func (s *Server) ingressHandler(c *echo.Context) error {
	conn, err := s.accept(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var callID string

	defer func() {
		if callID != "" {
			s.endCall(callID)
		}
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			// Producer disconnected; end-of-call cleanup runs in the defer.
			return nil
		}
		if msgType != websocket.MessageText {
			slog.Warn("Rejecting binary frame on ingress", "call_id", callID)
			_ = conn.Close(websocket.StatusUnsupportedData, "binary frames not supported")
			return nil
		}

		var msg ingressMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Malformed ingress frame", "call_id", callID, "error", err)
			_ = conn.Close(websocket.StatusUnsupportedData, "malformed JSON")
			return nil
		}

		switch {
		case msg.isTurn():
			if callID == "" {
				// Turn before metadata: adopt a server-generated call id.
				callID = uuid.New().String()
				s.startCall(callID, "")
			}
			s.handleTurn(callID, &msg)

		case msg.callID() != "":
			if id := msg.callID(); id != callID {
				callID = id
				s.startCall(callID, msg.customerNumber())
			}

		default:
			slog.Debug("Ignoring ingress frame without call id or speaker")
		}
	}
}

// startCall resets the session and fires CALL_STARTED immediately with a
// placeholder profile; the real profile is resolved in the background and
// announced via CALL_UPDATED.
func (s *Server) startCall(callID, customerNumber string) {
	replaced := s.store.Reset(callID, customerNumber)
	slog.Info("Call started", "call_id", callID, "replaced_previous", replaced)

	s.notifier.NotifyAll(events.Notification{
		Type:   events.NotificationCallStarted,
		CallID: callID,
	})

	if customerNumber != "" && s.directory != nil {
		go s.resolveProfile(callID, customerNumber)
	}
}

func (s *Server) resolveProfile(callID, phoneNumber string) {
	info, err := s.directory.FetchProfile(context.Background(), phoneNumber)
	if err != nil {
		slog.Warn("Customer profile fetch failed", "call_id", callID, "error", err)
		return
	}
	if info == nil {
		slog.Info("Unknown caller, continuing without profile", "call_id", callID)
		return
	}

	s.store.SetCustomerInfo(callID, info)
	s.notifier.NotifyAll(events.Notification{
		Type:         events.NotificationCallUpdated,
		CallID:       callID,
		CustomerInfo: info,
	})
}

// handleTurn appends the turn, mirrors it to monitors in arrival order, and
// dispatches the orchestrator as a detached task. Agent results for
// overlapping turns interleave by completion.
func (s *Server) handleTurn(callID string, msg *ingressMessage) {
	speaker := models.Speaker(msg.Speaker)
	if speaker != models.SpeakerCustomer && speaker != models.SpeakerAgent {
		slog.Warn("Dropping turn with unknown speaker",
			"call_id", callID, "speaker", msg.Speaker)
		return
	}

	turn, ok := s.store.AppendTurn(callID, speaker, msg.Transcript, msg.TurnID)
	if !ok {
		slog.Warn("Dropping turn for ended call", "call_id", callID)
		return
	}

	s.rooms.Broadcast(callID, events.NewTranscriptUpdate(callID, turn))

	firstTurn := s.store.ConsumeFirstTurn(callID)
	snap, ok := s.store.Snapshot(callID)
	if !ok {
		return
	}

	go func() {
		for result := range s.orchestrator.Dispatch(context.Background(), turn, snap, firstTurn) {
			s.rooms.Broadcast(callID, events.NewResultFrame(callID, turn.TurnID, result))
		}
	}()
}

// endCall freezes the session, announces CALL_ENDED, releases per-call
// agent state, and schedules the analyzer. Safe to call from both the
// socket-close path and a monitor's CALL_ENDED message; the analyzer
// claims the work exactly once.
func (s *Server) endCall(callID string) {
	s.store.End(callID)
	s.notifier.NotifyAll(events.Notification{
		Type:   events.NotificationCallEnded,
		CallID: callID,
	})
	s.orchestrator.EndCall(callID)
	if s.analyzer != nil {
		go s.analyzer.Run(context.Background(), callID)
	}
}

// accept upgrades the request, validating the Origin against the configured
// console origins when any are set.
func (s *Server) accept(c *echo.Context) (*websocket.Conn, error) {
	opts := &websocket.AcceptOptions{}
	if len(s.cfg.AllowedCORSOrigins) > 0 {
		opts.OriginPatterns = s.cfg.AllowedCORSOrigins
	} else {
		opts.InsecureSkipVerify = true
	}
	return websocket.Accept(c.Response(), c.Request(), opts)
}
