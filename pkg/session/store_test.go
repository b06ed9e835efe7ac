package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csnavigator/callcopilot/pkg/models"
)

func TestAppendTurnAssignsIncreasingIDs(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "01012345678")

	t1, ok := s.AppendTurn("c1", models.SpeakerAgent, "반갑습니다", 0)
	require.True(t, ok)
	t2, ok := s.AppendTurn("c1", models.SpeakerCustomer, "요금제 문의요", 0)
	require.True(t, ok)

	assert.Equal(t, 1, t1.TurnID)
	assert.Equal(t, 2, t2.TurnID)
}

func TestAppendTurnHonorsSuppliedID(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "")

	turn, ok := s.AppendTurn("c1", models.SpeakerCustomer, "첫 발화", 7)
	require.True(t, ok)
	assert.Equal(t, 7, turn.TurnID)

	// Counter advanced: next assigned ID continues past the supplied one.
	next, ok := s.AppendTurn("c1", models.SpeakerCustomer, "다음 발화", 0)
	require.True(t, ok)
	assert.Equal(t, 8, next.TurnID)
}

func TestHistoryAppendOnly(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "")
	s.AppendTurn("c1", models.SpeakerAgent, "하나", 0)
	s.AppendTurn("c1", models.SpeakerCustomer, "둘", 0)

	snap, ok := s.Snapshot("c1")
	require.True(t, ok)
	require.Len(t, snap.History, 2)

	// Mutating the snapshot must not touch the store.
	snap.History[0].Transcript = "변조"
	again, _ := s.Snapshot("c1")
	assert.Equal(t, "하나", again.History[0].Transcript)
}

func TestEndedSessionRejectsTurns(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "")
	s.AppendTurn("c1", models.SpeakerCustomer, "발화", 0)
	s.End("c1")

	_, ok := s.AppendTurn("c1", models.SpeakerCustomer, "늦은 발화", 0)
	assert.False(t, ok)

	snap, _ := s.Snapshot("c1")
	assert.Len(t, snap.History, 1)
	assert.False(t, snap.EndTime.IsZero())
}

func TestResetClearsState(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "010")
	s.AppendTurn("c1", models.SpeakerCustomer, "이전 통화", 0)
	s.BindOperator("c1", Operator{MemberID: 5, TenantName: "t"})

	replaced := s.Reset("c1", "010")
	assert.True(t, replaced)

	snap, _ := s.Snapshot("c1")
	assert.Empty(t, snap.History)
	assert.Nil(t, snap.Operator)

	turn, _ := s.AppendTurn("c1", models.SpeakerCustomer, "새 통화", 0)
	assert.Equal(t, 1, turn.TurnID)
}

func TestConsumeFirstTurnOnce(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "")
	assert.True(t, s.ConsumeFirstTurn("c1"))
	assert.False(t, s.ConsumeFirstTurn("c1"))
	assert.False(t, s.ConsumeFirstTurn("unknown"))
}

func TestMarkAnalyzedIdempotent(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "")

	var wg sync.WaitGroup
	claims := make(chan bool, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claims <- s.MarkAnalyzed("c1")
		}()
	}
	wg.Wait()
	close(claims)

	winners := 0
	for claimed := range claims {
		if claimed {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one goroutine may run the analyzer")
}

func TestSessionIsolation(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			callID := fmt.Sprintf("call-%d", i)
			s.Reset(callID, "")
			for j := range 5 {
				s.AppendTurn(callID, models.SpeakerCustomer, fmt.Sprintf("발화 %d", j), 0)
			}
		}()
	}
	wg.Wait()

	for i := range 10 {
		snap, ok := s.Snapshot(fmt.Sprintf("call-%d", i))
		require.True(t, ok)
		assert.Len(t, snap.History, 5)
		assert.Equal(t, 5, snap.History[4].TurnID)
	}
}

func TestLastTurns(t *testing.T) {
	s := NewStore()
	s.Reset("c1", "")
	for i := range 8 {
		s.AppendTurn("c1", models.SpeakerCustomer, fmt.Sprintf("발화 %d", i), 0)
	}
	snap, _ := s.Snapshot("c1")

	last := snap.LastTurns(5)
	require.Len(t, last, 5)
	assert.Equal(t, 4, last[0].TurnID)
	assert.Equal(t, 8, last[4].TurnID)

	assert.Len(t, snap.LastTurns(20), 8)
}
