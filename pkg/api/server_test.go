package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csnavigator/callcopilot/pkg/agent"
	"github.com/csnavigator/callcopilot/pkg/config"
	"github.com/csnavigator/callcopilot/pkg/events"
	"github.com/csnavigator/callcopilot/pkg/models"
	"github.com/csnavigator/callcopilot/pkg/session"
)

// fakeAgent is a scripted agent.Handler.
type fakeAgent struct {
	agentType string
	delay     time.Duration
	handle    func(turn models.Turn) models.AgentResult
}

func (f *fakeAgent) Type() string { return f.agentType }

func (f *fakeAgent) Handle(_ context.Context, turn models.Turn, _ session.Snapshot, _ bool) (models.AgentResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.handle == nil {
		return models.Skipped(f.agentType, "not scripted"), nil
	}
	return f.handle(turn), nil
}

// guidanceLike skips agent turns and answers customer turns, mirroring the
// real pipeline's short-circuit behavior.
func guidanceLike() *fakeAgent {
	return &fakeAgent{
		agentType: "guidance",
		handle: func(turn models.Turn) models.AgentResult {
			if turn.Speaker == models.SpeakerAgent {
				return models.Skipped("guidance", "agent turn")
			}
			return models.AgentResult{
				AgentType:         "guidance",
				NextStep:          models.StepGenerate,
				RecommendedAnswer: "위약금은 잔여 약정에 따라 산정됩니다.",
				WorkGuide:         "위약금 조회 메뉴 확인",
			}
		},
	}
}

type recordingAnalyzer struct {
	mu    sync.Mutex
	calls []string
	done  chan string
}

func newRecordingAnalyzer() *recordingAnalyzer {
	return &recordingAnalyzer{done: make(chan string, 8)}
}

func (r *recordingAnalyzer) Run(_ context.Context, callID string) {
	r.mu.Lock()
	r.calls = append(r.calls, callID)
	r.mu.Unlock()
	r.done <- callID
}

type fakeDirectory struct {
	profiles map[string]*models.CustomerInfo
}

func (f *fakeDirectory) FetchProfile(_ context.Context, phone string) (*models.CustomerInfo, error) {
	return f.profiles[phone], nil
}

type testEnv struct {
	store    *session.Store
	rooms    *events.RoomManager
	notifier *events.Notifier
	analyzer *recordingAnalyzer
	srv      *httptest.Server
}

func newEnv(t *testing.T, handlers ...agent.Handler) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    session.NewStore(),
		rooms:    events.NewRoomManager(2 * time.Second),
		notifier: events.NewNotifier(2 * time.Second),
		analyzer: newRecordingAnalyzer(),
	}
	directory := &fakeDirectory{profiles: map[string]*models.CustomerInfo{
		"01012345678": {CustomerID: "cust-1", Name: "김철수", RatePlan: "5G 스탠다드"},
	}}
	server := NewServer(
		&config.ServerConfig{WSWriteTimeout: 2 * time.Second},
		env.store,
		agent.NewOrchestrator(handlers...),
		env.rooms,
		env.notifier,
		directory,
		env.analyzer,
	)
	env.srv = httptest.NewServer(server.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(e.srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func waitForRoom(t *testing.T, env *testEnv, callID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.rooms.RoomSize(callID) == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngressAgentTurnProducesNoResults(t *testing.T) {
	env := newEnv(t, guidanceLike())

	monitor := env.dial(t, "/ws/calls/c1/monitor")
	waitForRoom(t, env, "c1", 1)

	ingress := env.dial(t, "/ws/calls")
	sendJSON(t, ingress, map[string]any{"callId": "c1"})
	sendJSON(t, ingress, map[string]any{"speaker": "agent", "transcript": "반갑습니다."})

	frame := readFrame(t, monitor)
	assert.Equal(t, "transcript_update", frame["type"])
	turn := frame["turn"].(map[string]any)
	assert.Equal(t, float64(1), turn["turn_id"])

	// No result frames follow for an agent turn.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, _, err := monitor.Read(ctx)
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		snap, ok := env.store.Snapshot("c1")
		return ok && len(snap.History) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestIngressCustomerTurnStreamsResult(t *testing.T) {
	env := newEnv(t, guidanceLike())

	monitor := env.dial(t, "/ws/calls/c1/monitor")
	waitForRoom(t, env, "c1", 1)

	ingress := env.dial(t, "/ws/calls")
	sendJSON(t, ingress, map[string]any{"callId": "c1"})
	sendJSON(t, ingress, map[string]any{"speaker": "agent", "transcript": "반갑습니다."})
	sendJSON(t, ingress, map[string]any{"speaker": "customer", "transcript": "해지 시 위약금은 얼마나 나와?"})

	var sawSecondTranscript, sawResult bool
	for i := 0; i < 3 && !(sawSecondTranscript && sawResult); i++ {
		frame := readFrame(t, monitor)
		switch frame["type"] {
		case "transcript_update":
			turn := frame["turn"].(map[string]any)
			if turn["turn_id"] == float64(2) {
				sawSecondTranscript = true
			}
		case "result":
			result := frame["result"].(map[string]any)
			assert.Equal(t, "guidance", result["agent_type"])
			assert.NotEmpty(t, result["recommended_answer"])
			sawResult = true
		}
	}
	assert.True(t, sawSecondTranscript, "expected transcript_update for turn 2")
	assert.True(t, sawResult, "expected a guidance result frame")
}

func TestIngressTurnOrdering(t *testing.T) {
	// A slow handler must not delay transcript mirroring.
	env := newEnv(t, &fakeAgent{agentType: "slow", delay: 50 * time.Millisecond})

	monitor := env.dial(t, "/ws/calls/c1/monitor")
	waitForRoom(t, env, "c1", 1)

	ingress := env.dial(t, "/ws/calls")
	sendJSON(t, ingress, map[string]any{"callId": "c1"})
	for i := 0; i < 5; i++ {
		sendJSON(t, ingress, map[string]any{"speaker": "customer", "transcript": "요금제 문의"})
	}

	last := float64(0)
	for i := 0; i < 5; i++ {
		frame := readFrame(t, monitor)
		require.Equal(t, "transcript_update", frame["type"])
		id := frame["turn"].(map[string]any)["turn_id"].(float64)
		assert.Greater(t, id, last, "turn ids must be strictly increasing in arrival order")
		last = id
	}
}

func TestIngressRejectsBinaryFrames(t *testing.T) {
	env := newEnv(t)
	ingress := env.dial(t, "/ws/calls")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ingress.Write(ctx, websocket.MessageBinary, []byte{0x01}))

	_, _, err := ingress.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusUnsupportedData, websocket.CloseStatus(err))
}

func TestIngressRejectsMalformedJSON(t *testing.T) {
	env := newEnv(t)
	ingress := env.dial(t, "/ws/calls")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ingress.Write(ctx, websocket.MessageText, []byte("{not json")))

	_, _, err := ingress.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusUnsupportedData, websocket.CloseStatus(err))
}

func TestIngressNeverWritesToSTTSocket(t *testing.T) {
	env := newEnv(t, guidanceLike())

	ingress := env.dial(t, "/ws/calls")
	sendJSON(t, ingress, map[string]any{"callId": "c1"})
	sendJSON(t, ingress, map[string]any{"speaker": "customer", "transcript": "위약금 문의드립니다"})

	// The producer has no receive loop; nothing may arrive on this socket.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, _, err := ingress.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.CloseStatus(err), websocket.StatusCode(-1), "no close frame, just timeout")
}

func TestEndOfCallOnDisconnect(t *testing.T) {
	env := newEnv(t, guidanceLike())

	notifications := env.dial(t, "/ws/notifications/op-1")
	require.Eventually(t, func() bool { return env.notifier.Subscribers("op-1") == 1 },
		2*time.Second, 10*time.Millisecond)

	ingress := env.dial(t, "/ws/calls")
	sendJSON(t, ingress, map[string]any{"callId": "c1", "customerNumber": "01012345678"})
	for i := 0; i < 4; i++ {
		speaker := "customer"
		if i%2 == 0 {
			speaker = "agent"
		}
		sendJSON(t, ingress, map[string]any{"speaker": speaker, "transcript": "통화 내용"})
	}

	// CALL_STARTED arrives first, CALL_UPDATED once the profile resolves.
	frame := readFrame(t, notifications)
	assert.Equal(t, "CALL_STARTED", frame["type"])
	frame = readFrame(t, notifications)
	assert.Equal(t, "CALL_UPDATED", frame["type"])
	assert.NotNil(t, frame["customer_info"])

	require.NoError(t, ingress.Close(websocket.StatusNormalClosure, ""))

	frame = readFrame(t, notifications)
	assert.Equal(t, "CALL_ENDED", frame["type"])
	assert.Equal(t, "c1", frame["callId"])

	select {
	case callID := <-env.analyzer.done:
		assert.Equal(t, "c1", callID)
	case <-time.After(2 * time.Second):
		t.Fatal("analyzer was not scheduled")
	}

	snap, ok := env.store.Snapshot("c1")
	require.True(t, ok)
	assert.Len(t, snap.History, 4)
	assert.False(t, snap.EndTime.IsZero())
}

func TestMonitorIdentifyBindsOperator(t *testing.T) {
	env := newEnv(t)

	monitor := env.dial(t, "/ws/calls/c1/monitor")
	sendJSON(t, monitor, map[string]any{"type": "IDENTIFY", "memberId": 42, "tenantName": "acme"})

	require.Eventually(t, func() bool {
		snap, ok := env.store.Snapshot("c1")
		return ok && snap.Operator != nil && snap.Operator.MemberID == 42 && snap.Operator.TenantName == "acme"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMonitorCallEndedTriggersAnalysis(t *testing.T) {
	env := newEnv(t)
	env.store.Reset("c1", "")
	env.store.AppendTurn("c1", models.SpeakerCustomer, "요금제 문의", 0)

	monitor := env.dial(t, "/ws/calls/c1/monitor")
	sendJSON(t, monitor, map[string]any{"type": "CALL_ENDED"})

	select {
	case callID := <-env.analyzer.done:
		assert.Equal(t, "c1", callID)
	case <-time.After(2 * time.Second):
		t.Fatal("analyzer was not scheduled")
	}
}

func TestSessionIsolationAcrossCalls(t *testing.T) {
	env := newEnv(t, guidanceLike())

	monitor1 := env.dial(t, "/ws/calls/c1/monitor")
	monitor2 := env.dial(t, "/ws/calls/c2/monitor")
	waitForRoom(t, env, "c1", 1)
	waitForRoom(t, env, "c2", 1)

	ingress1 := env.dial(t, "/ws/calls")
	ingress2 := env.dial(t, "/ws/calls")
	sendJSON(t, ingress1, map[string]any{"callId": "c1"})
	sendJSON(t, ingress2, map[string]any{"callId": "c2"})
	sendJSON(t, ingress1, map[string]any{"speaker": "agent", "transcript": "c1 첫 턴"})
	sendJSON(t, ingress2, map[string]any{"speaker": "agent", "transcript": "c2 첫 턴"})

	frame1 := readFrame(t, monitor1)
	assert.Equal(t, "c1", frame1["callId"])
	frame2 := readFrame(t, monitor2)
	assert.Equal(t, "c2", frame2["callId"])

	require.Eventually(t, func() bool {
		s1, ok1 := env.store.Snapshot("c1")
		s2, ok2 := env.store.Snapshot("c2")
		return ok1 && ok2 && len(s1.History) == 1 && len(s2.History) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastEndpointForwards(t *testing.T) {
	env := newEnv(t)

	notifications := env.dial(t, "/ws/notifications/op-1")
	require.Eventually(t, func() bool { return env.notifier.Subscribers("op-1") == 1 },
		2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(env.srv.URL+"/broadcast", "application/json",
		strings.NewReader(`{"type":"RING","callId":"c7"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	frame := readFrame(t, notifications)
	assert.Equal(t, "RING", frame["type"])
	assert.Equal(t, "c7", frame["callId"])
}

func TestBroadcastEndpointRejectsInvalidJSON(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Post(env.srv.URL+"/broadcast", "application/json",
		strings.NewReader("{broken"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
