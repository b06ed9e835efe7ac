// Package session owns the per-call mutable state: customer profile, rolling
// turn history, operator binding, and lifecycle timestamps. The Store is the
// single writer surface; agents and the analyzer consume snapshots.
package session

import (
	"sync"
	"time"

	"github.com/csnavigator/callcopilot/pkg/models"
)

// Operator is the monitor-side identity bound to a call via IDENTIFY.
type Operator struct {
	MemberID   int    `json:"member_id"`
	TenantName string `json:"tenant_name"`
}

// session is one call record. All access goes through Store methods; the
// struct itself is never handed out.
type session struct {
	callID         string
	customerNumber string
	customerInfo   *models.CustomerInfo
	operator       *Operator
	history        []models.Turn
	turnCounter    int
	isFirstTurn    bool
	startTime      time.Time
	endTime        time.Time
	analyzed       bool
}

// Snapshot is an immutable copy of a session consumed by agent pipelines and
// the end-of-call analyzer.
type Snapshot struct {
	CallID         string
	CustomerNumber string
	CustomerInfo   *models.CustomerInfo
	Operator       *Operator
	History        []models.Turn
	StartTime      time.Time
	EndTime        time.Time
}

// LastTurns returns the trailing n turns of the snapshot history.
func (s Snapshot) LastTurns(n int) []models.Turn {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Store is the keyed session map. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*session)}
}

// Reset installs a fresh session for callID, discarding any previous record:
// history, turn counter, and per-agent stage all start over. Returns whether
// a previous session was replaced.
func (s *Store) Reset(callID, customerNumber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.sessions[callID]
	s.sessions[callID] = &session{
		callID:         callID,
		customerNumber: customerNumber,
		isFirstTurn:    true,
	}
	return existed
}

// getOrCreate returns the session for callID, creating it if absent.
// Caller must hold s.mu.
func (s *Store) getOrCreate(callID string) *session {
	sess, ok := s.sessions[callID]
	if !ok {
		sess = &session{callID: callID, isFirstTurn: true}
		s.sessions[callID] = sess
	}
	return sess
}

// AppendTurn appends a turn to the call history. A zero turnID gets the next
// counter value; a supplied turnID advances the counter so later assignments
// stay strictly increasing. Appends to an ended session are dropped.
// Also sets the session start time if this is the first activity.
func (s *Store) AppendTurn(callID string, speaker models.Speaker, transcript string, turnID int) (models.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreate(callID)
	if !sess.endTime.IsZero() {
		return models.Turn{}, false
	}
	if turnID <= 0 {
		turnID = sess.turnCounter + 1
	}
	if turnID > sess.turnCounter {
		sess.turnCounter = turnID
	}
	turn := models.Turn{
		TurnID:     turnID,
		Speaker:    speaker,
		Transcript: transcript,
		Timestamp:  time.Now(),
	}
	sess.history = append(sess.history, turn)
	if sess.startTime.IsZero() {
		sess.startTime = turn.Timestamp
	}
	return turn, true
}

// ConsumeFirstTurn reports whether this is the first orchestrated turn of
// the call and clears the flag. The orchestrator uses it to forward the
// customer profile exactly once.
func (s *Store) ConsumeFirstTurn(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok || !sess.isFirstTurn {
		return false
	}
	sess.isFirstTurn = false
	return true
}

// SetCustomerInfo attaches the resolved profile to the session.
func (s *Store) SetCustomerInfo(callID string, info *models.CustomerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(callID).customerInfo = info
}

// CustomerInfo returns the profile, or nil while unresolved.
func (s *Store) CustomerInfo(callID string) *models.CustomerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[callID]; ok {
		return sess.customerInfo
	}
	return nil
}

// BindOperator records the monitor identity for the call. Unknown sessions
// are created so an early IDENTIFY is not lost.
func (s *Store) BindOperator(callID string, op Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(callID)
	sess.operator = &op
}

// MarkStart sets the session start time if not already set (first monitor
// attach or first turn, whichever comes first).
func (s *Store) MarkStart(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(callID)
	if sess.startTime.IsZero() {
		sess.startTime = time.Now()
	}
}

// End sets the end time, freezing the session. Idempotent.
func (s *Store) End(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return
	}
	if sess.endTime.IsZero() {
		sess.endTime = time.Now()
	}
}

// MarkAnalyzed atomically claims the end-of-call analysis for this session.
// Returns false if analysis already ran (or the session is unknown), so both
// the monitor CALL_ENDED path and the socket-close path can race safely.
func (s *Store) MarkAnalyzed(callID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[callID]
	if !ok || sess.analyzed {
		return false
	}
	sess.analyzed = true
	return true
}

// Snapshot returns an immutable copy of the session.
func (s *Store) Snapshot(callID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[callID]
	if !ok {
		return Snapshot{}, false
	}
	history := make([]models.Turn, len(sess.history))
	copy(history, sess.history)
	snap := Snapshot{
		CallID:         sess.callID,
		CustomerNumber: sess.customerNumber,
		CustomerInfo:   sess.customerInfo,
		History:        history,
		StartTime:      sess.startTime,
		EndTime:        sess.endTime,
	}
	if sess.operator != nil {
		op := *sess.operator
		snap.Operator = &op
	}
	return snap, true
}

// Delete removes the session record entirely.
func (s *Store) Delete(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, callID)
}

// Active returns the number of live sessions, for health reporting.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
