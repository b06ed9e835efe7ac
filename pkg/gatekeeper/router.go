// Package gatekeeper is the tiered safety and intent filter in front of the
// marketing pipeline: regex tiers first, then a fast-LLM semantic classifier,
// with a semantic LRU cache over the final decision.
package gatekeeper

import (
	"context"
	"log/slog"
	"regexp"
	"unicode/utf8"

	"github.com/csnavigator/callcopilot/pkg/llm"
)

// minRouteLength is the utterance length (in runes) below which an input
// with no opportunity keyword is skipped without an LLM call.
const minRouteLength = 6

var (
	// abusePattern catches abusive or escalating language. A match always
	// blocks marketing for the turn.
	abusePattern = regexp.MustCompile(`개새끼|미친|씨발|꺼져|죽여|때려|책임자\s*나와|소보원|방통위|신고\s*(한다|할)|고소`)

	// sensitivePattern catches topics where any sales pitch is
	// inappropriate regardless of intent.
	sensitivePattern = regexp.MustCompile(`사망|돌아가셨|장례|소송|법적|변호사|경찰|병원|입원|수술|사고`)

	// opportunityPattern catches utterances worth classifying even when
	// they are short: pricing, plans, contracts, data shortage, churn.
	opportunityPattern = regexp.MustCompile(`요금|할인|비싸|저렴|약정|위약금|해지|결합|요금제|데이터|부족|느려|속도|무제한|혜택|변경`)
)

// Intent values produced by the semantic classifier.
const (
	IntentMarketing   = "marketing"
	IntentSupport     = "support"
	IntentComplaint   = "complaint"
	IntentNeutral     = "neutral"
	IntentObjection   = "objection"
	IntentQuestion    = "question"
	IntentAlternative = "alternative"
	IntentChurn       = "churn"
)

// Classification is the semantic routing result consumed by the marketing
// analyzer.
type Classification struct {
	Intent               string `json:"intent"`
	Sentiment            string `json:"sentiment"`
	MarketingOpportunity bool   `json:"marketing_opportunity"`
	ChurnReason          string `json:"churn_reason,omitempty"`
}

// Decision is the gatekeeper output: either a skip with a reason, or a
// classification to act on.
type Decision struct {
	Skip           bool            `json:"skip"`
	Reason         string          `json:"reason,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// routePrompt enumerates the routing rules for the fast classifier. The
// "sniper" rules pick out the narrow windows where a pitch lands: churn
// signals, fixable complaints, and post-resolution moments.
const routePrompt = `당신은 통신사 상담 발화 분류기입니다. 고객 발화를 보고 JSON으로만 답하세요.
스키마: {"intent": "marketing|support|complaint|neutral|objection|question|alternative|churn", "sentiment": "positive|neutral|negative|furious", "marketing_opportunity": true|false, "churn_reason": "price|quality|unknown"}

규칙:
- 해지/이탈 신호 → intent=churn, marketing_opportunity=true (리텐션 기회)
- 해결 가능한 불만(데이터 부족, 속도 느림) → marketing_opportunity=true (업셀 기회)
- 문제 해결 직후의 중립/긍정 발화 → marketing_opportunity=true (제안 타이밍)
- 해결 불가능한 기술 장애, 격앙된 고객 → marketing_opportunity=false
- 요금제/혜택을 직접 문의 → intent=marketing, marketing_opportunity=true
- churn_reason은 intent=churn일 때만 의미가 있습니다`

// Router is the tiered filter. Safe for concurrent use.
type Router struct {
	client    llm.Client
	fastModel string
	cache     *Cache
}

// NewRouter builds a router over the given LLM client and cache.
func NewRouter(client llm.Client, fastModel string, cache *Cache) *Router {
	return &Router{client: client, fastModel: fastModel, cache: cache}
}

// Route classifies one customer utterance. Tier 0/1 never call the LLM;
// tier 2 asks the fast model and falls back to the regex verdict on any LLM
// failure. Decisions are cached by normalized utterance, except fallback
// verdicts from a failed classifier call: those are transient and the next
// occurrence of the utterance should retry the LLM.
func (r *Router) Route(ctx context.Context, utterance string) Decision {
	if cached, ok := r.cache.Get(utterance); ok {
		return cached
	}

	decision, cacheable := r.route(ctx, utterance)
	if cacheable {
		r.cache.Set(utterance, decision)
	}
	return decision
}

func (r *Router) route(ctx context.Context, utterance string) (Decision, bool) {
	// Tier 0: hard blocks.
	if abusePattern.MatchString(utterance) {
		return Decision{Skip: true, Reason: "abusive or escalating language"}, true
	}
	if sensitivePattern.MatchString(utterance) {
		return Decision{Skip: true, Reason: "sensitive topic"}, true
	}

	// Tier 1: heuristics.
	hasOpportunity := opportunityPattern.MatchString(utterance)
	if utf8.RuneCountInString(utterance) < minRouteLength && !hasOpportunity {
		return Decision{Skip: true, Reason: "utterance too short"}, true
	}

	// Tier 2: fast-LLM semantic route.
	cls, err := llm.Decode[Classification](ctx, r.client, llm.Request{
		Model:  r.fastModel,
		System: routePrompt,
		User:   utterance,
	})
	if err != nil {
		slog.Warn("Semantic route failed, falling back to regex verdict", "error", err)
		if hasOpportunity {
			return Decision{Classification: &Classification{
				Intent:               IntentMarketing,
				Sentiment:            "neutral",
				MarketingOpportunity: true,
			}}, false
		}
		return Decision{Skip: true, Reason: "classifier unavailable"}, false
	}

	if cls.Sentiment == "furious" {
		return Decision{Skip: true, Reason: "customer is furious"}, true
	}
	return Decision{Classification: &cls}, true
}
