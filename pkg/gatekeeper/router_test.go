package gatekeeper

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csnavigator/callcopilot/pkg/llm"
)

// fakeLLM returns canned JSON and counts calls.
type fakeLLM struct {
	calls    atomic.Int32
	response string
	err      error
}

func (f *fakeLLM) ChatJSON(_ context.Context, _ llm.Request) (json.RawMessage, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func newTestRouter(f llm.Client) *Router {
	return NewRouter(f, "fast-model", NewCache(16))
}

func TestRouteTier0Blocks(t *testing.T) {
	f := &fakeLLM{response: `{}`}
	r := newTestRouter(f)

	tests := []struct {
		name      string
		utterance string
		reason    string
	}{
		{"abusive escalation", "책임자 나와, 소보원에 신고한다.", "abusive or escalating language"},
		{"profanity", "씨발 뭐 이따위야", "abusive or escalating language"},
		{"sensitive topic", "아버지가 사망하셔서 해지하려고요", "sensitive topic"},
		{"legal threat", "소송 진행할 겁니다", "sensitive topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Route(context.Background(), tt.utterance)
			assert.True(t, d.Skip)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
	assert.Equal(t, int32(0), f.calls.Load(), "tier 0 never reaches the LLM")
}

func TestRouteShortInputSkips(t *testing.T) {
	f := &fakeLLM{response: `{}`}
	r := newTestRouter(f)

	d := r.Route(context.Background(), "네네")
	assert.True(t, d.Skip)
	assert.Equal(t, "utterance too short", d.Reason)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestRouteShortOpportunityStillClassified(t *testing.T) {
	f := &fakeLLM{response: `{"intent":"marketing","sentiment":"neutral","marketing_opportunity":true}`}
	r := newTestRouter(f)

	d := r.Route(context.Background(), "요금제?")
	require.False(t, d.Skip)
	require.NotNil(t, d.Classification)
	assert.True(t, d.Classification.MarketingOpportunity)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRouteSemanticClassification(t *testing.T) {
	f := &fakeLLM{response: `{"intent":"churn","sentiment":"negative","marketing_opportunity":true,"churn_reason":"price"}`}
	r := newTestRouter(f)

	d := r.Route(context.Background(), "다른 통신사로 옮길까 고민 중이에요")
	require.False(t, d.Skip)
	require.NotNil(t, d.Classification)
	assert.Equal(t, IntentChurn, d.Classification.Intent)
	assert.Equal(t, "price", d.Classification.ChurnReason)
}

func TestRouteFuriousSkips(t *testing.T) {
	f := &fakeLLM{response: `{"intent":"complaint","sentiment":"furious","marketing_opportunity":false}`}
	r := newTestRouter(f)

	d := r.Route(context.Background(), "도대체 몇 번을 말해야 알아듣습니까 정말")
	assert.True(t, d.Skip)
	assert.Equal(t, "customer is furious", d.Reason)
}

func TestRouteLLMFailureFallsBack(t *testing.T) {
	f := &fakeLLM{err: errors.New("timeout")}
	r := newTestRouter(f)

	// Opportunity keyword present: fall back to a marketing classification.
	d := r.Route(context.Background(), "데이터가 부족해서 불편해요")
	require.False(t, d.Skip)
	require.NotNil(t, d.Classification)
	assert.True(t, d.Classification.MarketingOpportunity)

	// No opportunity keyword: fall back to skip.
	d = r.Route(context.Background(), "주소를 좀 바꾸고 싶은데요")
	assert.True(t, d.Skip)
	assert.Equal(t, "classifier unavailable", d.Reason)
}

// flakyLLM fails its first call, then answers normally.
type flakyLLM struct {
	calls atomic.Int32
}

func (f *flakyLLM) ChatJSON(_ context.Context, _ llm.Request) (json.RawMessage, error) {
	if f.calls.Add(1) == 1 {
		return nil, errors.New("timeout")
	}
	return json.RawMessage(`{"intent":"support","sentiment":"neutral","marketing_opportunity":false}`), nil
}

func TestRouteFallbackVerdictNotCached(t *testing.T) {
	f := &flakyLLM{}
	r := newTestRouter(f)

	// First route hits the outage and falls back to a skip.
	d := r.Route(context.Background(), "주소를 좀 바꾸고 싶은데요")
	assert.True(t, d.Skip)
	assert.Equal(t, "classifier unavailable", d.Reason)

	// The same utterance must reach the classifier again once it recovers.
	d = r.Route(context.Background(), "주소를 좀 바꾸고 싶은데요")
	require.False(t, d.Skip)
	require.NotNil(t, d.Classification)
	assert.Equal(t, IntentSupport, d.Classification.Intent)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestRouteCachesDecision(t *testing.T) {
	f := &fakeLLM{response: `{"intent":"marketing","sentiment":"neutral","marketing_opportunity":true}`}
	r := newTestRouter(f)

	first := r.Route(context.Background(), "요금제 추천해 주세요")
	second := r.Route(context.Background(), "요금제 추천해 주세요!")

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.calls.Load(), "second route served from cache")
}
