// Package agent defines the per-turn handler contract and the orchestrator
// that fans a customer turn out to every registered handler, streaming
// results back in completion order.
package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/csnavigator/callcopilot/pkg/models"
	"github.com/csnavigator/callcopilot/pkg/session"
)

// Handler is one agent pipeline. Handle consumes a snapshot of the session
// taken after the turn was appended; firstTurn is true exactly once per
// call so the handler can incorporate the customer profile.
//
// Implementations must be safe for concurrent calls across sessions.
type Handler interface {
	Type() string
	Handle(ctx context.Context, turn models.Turn, snap session.Snapshot, firstTurn bool) (models.AgentResult, error)
}

// Orchestrator dispatches customer turns to all registered handlers.
type Orchestrator struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewOrchestrator creates an orchestrator with the given handlers.
func NewOrchestrator(handlers ...Handler) *Orchestrator {
	return &Orchestrator{handlers: handlers}
}

// Register adds a handler. Intended for startup wiring, but safe at runtime.
func (o *Orchestrator) Register(h Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, h)
}

// CallEnder is implemented by handlers that keep per-call state between
// turns and need a cleanup signal when the call terminates.
type CallEnder interface {
	EndCall(callID string)
}

// EndCall releases per-call state on every handler that keeps any.
func (o *Orchestrator) EndCall(callID string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, h := range o.handlers {
		if ender, ok := h.(CallEnder); ok {
			ender.EndCall(callID)
		}
	}
}

// Dispatch launches every handler concurrently and returns a channel that
// yields their results in completion order, closing when all handlers are
// done. Skip sentinels are filtered out. A handler error or panic is logged
// and contributes no result; it never affects the other handlers.
func (o *Orchestrator) Dispatch(ctx context.Context, turn models.Turn, snap session.Snapshot, firstTurn bool) <-chan models.AgentResult {
	o.mu.RLock()
	handlers := make([]Handler, len(o.handlers))
	copy(handlers, o.handlers)
	o.mu.RUnlock()

	// Buffered to handler count so a slow consumer never blocks a handler
	// goroutine.
	results := make(chan models.AgentResult, len(handlers))

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Agent handler panicked",
						"agent_type", h.Type(), "call_id", snap.CallID, "panic", r)
				}
			}()

			result, err := h.Handle(ctx, turn, snap, firstTurn)
			if err != nil {
				slog.Error("Agent handler failed",
					"agent_type", h.Type(), "call_id", snap.CallID,
					"turn_id", turn.TurnID, "error", err)
				return
			}
			if result.NextStep == models.StepSkip {
				slog.Debug("Agent handler skipped turn",
					"agent_type", h.Type(), "call_id", snap.CallID,
					"turn_id", turn.TurnID, "reason", result.SkipReason)
				return
			}
			results <- result
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}
