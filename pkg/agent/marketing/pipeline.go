// Package marketing implements the marketing agent: a stage-driven pipeline
// with sticky conversational context. Each customer turn passes the
// gatekeeper, a deep analysis, the stage-transition table, conditional
// product retrieval, and pitch generation.
package marketing

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/csnavigator/callcopilot/pkg/agent"
	"github.com/csnavigator/callcopilot/pkg/gatekeeper"
	"github.com/csnavigator/callcopilot/pkg/llm"
	"github.com/csnavigator/callcopilot/pkg/masking"
	"github.com/csnavigator/callcopilot/pkg/models"
	"github.com/csnavigator/callcopilot/pkg/retrieval"
	"github.com/csnavigator/callcopilot/pkg/session"
)

// AgentType identifies marketing results on the wire.
const AgentType = "marketing"

const (
	// historyWindow is how many trailing turns the deep analysis consults.
	historyWindow = 6
	// maxProductCandidates bounds the proposal size.
	maxProductCandidates = 4
	// productCategory is the retrieval category holding sellable products.
	productCategory = "marketing"
)

// neutralClarification is the safety-net reply when a pitch is required but
// no candidate survived filtering.
const neutralClarification = "더 정확한 안내를 위해 고객님의 사용 패턴을 조금 더 여쭤봐도 될까요?"

var (
	// alternativePhrases force the alternative branch of the transition
	// table even when the classifier labels the turn differently.
	alternativePhrases = regexp.MustCompile(`다른\s*(건|거|상품|옵션|요금제)|딴\s*거|그거\s*말고`)

	// verificationPattern and consentPattern mark procedural call stages
	// where pitching is suppressed unless the customer asks about plans.
	verificationPattern = regexp.MustCompile(`본인\s*확인|명의|생년월일|주민등록`)
	consentPattern      = regexp.MustCompile(`녹취|개인정보\s*(수집|이용|동의)|동의\s*(하시|해\s*주|부탁)`)
	planInquiryPattern  = regexp.MustCompile(`요금제|플랜|상품\s*추천|혜택`)
)

// Retriever is the staged-search surface the pipeline needs.
type Retriever interface {
	StagedSearch(ctx context.Context, req retrieval.StagedRequest) ([]models.RetrievedItem, error)
}

type deepAnalysis struct {
	MarketingOpportunity bool   `json:"marketing_opportunity"`
	Intent               string `json:"intent"`
	Sentiment            string `json:"sentiment"`
	ChurnReason          string `json:"churn_reason"`
	ObjectionReason      string `json:"objection_reason"`
	Reasoning            string `json:"reasoning"`
}

type generation struct {
	RecommendedPitch  string `json:"recommended_pitch"`
	MarketingProposal string `json:"marketing_proposal"`
	Reasoning         string `json:"reasoning"`
	MarketingType     string `json:"marketing_type"`
}

// state is the per-call checkpoint.
type state struct {
	stage             Stage
	currentProposal   []models.RetrievedItem
	rejectedProposals []string
	messages          []models.Turn
}

// Pipeline is the marketing agent handler.
type Pipeline struct {
	client      llm.Client
	fastModel   string
	retriever   Retriever
	router      *gatekeeper.Router
	checkpoints *agent.Checkpoint[state]
}

// New builds the marketing pipeline.
func New(client llm.Client, fastModel string, retriever Retriever, router *gatekeeper.Router) *Pipeline {
	return &Pipeline{
		client:      client,
		fastModel:   fastModel,
		retriever:   retriever,
		router:      router,
		checkpoints: agent.NewCheckpoint[state](),
	}
}

// Type implements agent.Handler.
func (p *Pipeline) Type() string { return AgentType }

// EndCall drops the per-call checkpoint once the call is over.
func (p *Pipeline) EndCall(callID string) {
	p.checkpoints.Delete(callID)
}

// Stage reports the current conversation stage for a call. Used by tests
// and monitor extras.
func (p *Pipeline) Stage(callID string) Stage {
	stage := StageListening
	p.checkpoints.Update(callID, func(s *state) {
		if s.stage != "" {
			stage = s.stage
		}
	})
	return stage
}

// Handle implements agent.Handler.
func (p *Pipeline) Handle(ctx context.Context, turn models.Turn, snap session.Snapshot, firstTurn bool) (models.AgentResult, error) {
	// Snapshot the sticky context; the transition is committed only after
	// a successful generation.
	var stage Stage
	var proposal []models.RetrievedItem
	var rejected []string
	p.checkpoints.Update(snap.CallID, func(s *state) {
		s.messages = append(s.messages, turn)
		if s.stage == "" {
			s.stage = StageListening
		}
		stage = s.stage
		proposal = slices.Clone(s.currentProposal)
		rejected = slices.Clone(s.rejectedProposals)
	})

	if turn.Speaker == models.SpeakerAgent {
		return models.Skipped(AgentType, "agent turn"), nil
	}
	if stage == StageClosing {
		return models.Skipped(AgentType, "conversation closed"), nil
	}

	masked := masking.Mask(turn.Transcript)

	// Procedural stages: no pitching during identity verification or
	// consent reading unless the customer brings up plans themselves.
	if (verificationPattern.MatchString(masked) || consentPattern.MatchString(masked)) &&
		!planInquiryPattern.MatchString(masked) {
		return models.Skipped(AgentType, "verification or consent stage"), nil
	}

	decision := p.router.Route(ctx, masked)
	if decision.Skip {
		return models.Skipped(AgentType, "gatekeeper: "+decision.Reason), nil
	}

	analysisResult := p.analyze(ctx, snap, decision.Classification)
	hasAltPhrase := alternativePhrases.MatchString(masked)
	nextStage, mtype := transition(stage, analysisResult, hasAltPhrase)

	if mtype == TypeNone {
		p.checkpoints.Update(snap.CallID, func(s *state) { s.stage = nextStage })
		return models.Skipped(AgentType, "no marketing opportunity"), nil
	}

	candidates := proposal
	var evidence []models.RetrievedItem
	if mtype.needsRetrieval() {
		// Alternatives and price moves blacklist what is on the table.
		if mtype == TypeAlternative || mtype == TypeRetentionPrice || mtype == TypeCostOptimization {
			rejected = mergeRejected(rejected, proposalNames(proposal))
		}
		var err error
		candidates, evidence, err = p.retrieve(ctx, snap, mtype, rejected)
		if err != nil {
			slog.Warn("Marketing retrieval failed",
				"call_id", snap.CallID, "turn_id", turn.TurnID, "error", err)
			return models.Skipped(AgentType, "retrieval failed"), nil
		}
	}

	if mtype.needsPitch() && len(candidates) == 0 {
		p.checkpoints.Update(snap.CallID, func(s *state) {
			s.rejectedProposals = rejected
		})
		return models.AgentResult{
			AgentType:         AgentType,
			NextStep:          models.StepGenerate,
			RecommendedAnswer: neutralClarification,
			Extras: map[string]any{
				"marketing_type": string(TypeNone),
				"stage":          string(stage),
			},
		}, nil
	}

	gen, err := p.generate(ctx, snap, mtype, candidates, evidence, rejected)
	if err != nil {
		slog.Warn("Marketing generation failed",
			"call_id", snap.CallID, "turn_id", turn.TurnID, "error", err)
		return models.Skipped(AgentType, "generation failed"), nil
	}
	if gen.MarketingProposal == "" && len(candidates) > 0 {
		gen.MarketingProposal = beforeAfterCard(snap.CustomerInfo, candidates[0])
	}

	// Commit the transition and the sticky context.
	p.checkpoints.Update(snap.CallID, func(s *state) {
		s.stage = nextStage
		s.rejectedProposals = rejected
		switch mtype {
		case TypeUpsell, TypeRetention, TypeRetentionPrice, TypeCostOptimization, TypeAlternative:
			s.currentProposal = candidates
		}
	})

	return models.AgentResult{
		AgentType:         AgentType,
		NextStep:          models.StepGenerate,
		RecommendedAnswer: gen.RecommendedPitch,
		WorkGuide:         gen.MarketingProposal,
		Extras: map[string]any{
			"marketing_type":     string(mtype),
			"stage":              string(nextStage),
			"marketing_proposal": gen.MarketingProposal,
			"reasoning":          gen.Reasoning,
			"current_proposal":   proposalNames(candidates),
		},
	}, nil
}

// analyze runs the deep analysis over the last turns and the profile. Any
// LLM failure falls back to the gatekeeper classification.
func (p *Pipeline) analyze(ctx context.Context, snap session.Snapshot, cls *gatekeeper.Classification) deepAnalysis {
	var b strings.Builder
	if snap.CustomerInfo != nil {
		fmt.Fprintf(&b, "## 고객 정보\n요금제: %s / 잔여개월: %s / 결합: %s\n신호: %s\n\n",
			snap.CustomerInfo.RatePlan, snap.CustomerInfo.RemainingMonths,
			snap.CustomerInfo.CombinationProduct,
			strings.Join(DeriveSignals(snap.CustomerInfo), ", "))
	}
	fmt.Fprintf(&b, "## 최근 대화\n%s", formatDialogue(snap.LastTurns(historyWindow)))

	out, err := llm.Decode[deepAnalysis](ctx, p.client, llm.Request{
		Model:  p.fastModel,
		System: deepAnalyzePrompt,
		User:   b.String(),
	})
	if err != nil {
		slog.Warn("Marketing deep analysis failed, using gatekeeper classification", "error", err)
		if cls != nil {
			return deepAnalysis{
				MarketingOpportunity: cls.MarketingOpportunity,
				Intent:               cls.Intent,
				Sentiment:            cls.Sentiment,
				ChurnReason:          cls.ChurnReason,
			}
		}
		return deepAnalysis{}
	}
	return out
}

// transition implements the stage-transition table.
func transition(stage Stage, a deepAnalysis, hasAltPhrase bool) (Stage, Type) {
	switch stage {
	case StageListening, "":
		if !a.MarketingOpportunity {
			return StageListening, TypeNone
		}
		switch {
		case a.Intent == gatekeeper.IntentChurn && a.ChurnReason == "quality":
			return StageProposing, TypeRetention
		case a.Intent == gatekeeper.IntentChurn:
			return StageProposing, TypeRetentionPrice
		case a.ObjectionReason == "price":
			return StageProposing, TypeCostOptimization
		default:
			return StageProposing, TypeUpsell
		}

	case StageProposing:
		switch {
		case a.Intent == gatekeeper.IntentAlternative || hasAltPhrase:
			return StageProposing, TypeAlternative
		case a.Intent == gatekeeper.IntentObjection && a.ObjectionReason == "price":
			return StageProposing, TypeCostOptimization
		case a.Intent == gatekeeper.IntentObjection || a.Intent == gatekeeper.IntentQuestion:
			return StageNegotiating, TypeExplanation
		case a.Intent == gatekeeper.IntentMarketing:
			return StageClosing, TypeHybrid
		default:
			return StageProposing, TypeNone
		}

	case StageNegotiating:
		switch {
		case a.Intent == gatekeeper.IntentAlternative || hasAltPhrase:
			return StageProposing, TypeAlternative
		case a.Intent == gatekeeper.IntentMarketing:
			return StageClosing, TypeHybrid
		case a.Intent == gatekeeper.IntentObjection || a.Intent == gatekeeper.IntentQuestion:
			return StageNegotiating, TypeExplanation
		default:
			return StageNegotiating, TypeNone
		}
	}
	return stage, TypeNone
}

// retrieve runs the category-weighted staged search and splits the fused
// results into product candidates and supporting evidence, applying the
// rejection blacklist and the price cap.
func (p *Pipeline) retrieve(ctx context.Context, snap session.Snapshot, mtype Type, rejected []string) ([]models.RetrievedItem, []models.RetrievedItem, error) {
	query := buildQuery(snap.CustomerInfo, snap.LastTurns(historyWindow))
	items, err := p.retriever.StagedSearch(ctx, retrieval.StagedRequest{
		Query:         query,
		Categories:    retrieval.DefaultCategories,
		Weights:       mtype.categoryWeights(),
		AlwaysInclude: retrieval.DefaultAlwaysInclude,
	})
	if err != nil {
		return nil, nil, err
	}

	var maxPrice float64
	if factor := mtype.priceCapFactor(); factor > 0 && snap.CustomerInfo != nil && snap.CustomerInfo.MonthlyFee > 0 {
		maxPrice = factor * float64(snap.CustomerInfo.MonthlyFee)
	}

	var products, evidence []models.RetrievedItem
	for _, item := range items {
		if item.Metadata.Category != productCategory {
			evidence = append(evidence, item)
			continue
		}
		if isRejected(item.Metadata.Title, rejected) {
			continue
		}
		if maxPrice > 0 && item.Metadata.Price > maxPrice {
			continue
		}
		if len(products) < maxProductCandidates {
			products = append(products, item)
		}
	}
	return products, evidence, nil
}

func (p *Pipeline) generate(ctx context.Context, snap session.Snapshot, mtype Type, candidates, evidence []models.RetrievedItem, rejected []string) (generation, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## 전략 지침 (%s)\n%s\n\n", mtype, strategyPreambles[mtype])
	if snap.CustomerInfo != nil {
		fmt.Fprintf(&b, "## 고객 정보\n요금제: %s / 월정액: %d원\n신호: %s\n\n",
			snap.CustomerInfo.RatePlan, snap.CustomerInfo.MonthlyFee,
			strings.Join(DeriveSignals(snap.CustomerInfo), ", "))
	}
	if len(candidates) > 0 {
		b.WriteString("## 후보 상품\n")
		for _, c := range candidates {
			fmt.Fprintf(&b, "- %s (%.0f원): %s\n",
				c.Metadata.Title, c.Metadata.Price, truncateRunes(c.Content, maxEvidenceDocRunes))
		}
		b.WriteString("\n")
	}
	if len(rejected) > 0 {
		fmt.Fprintf(&b, "## 거절된 상품\n%s\n\n", strings.Join(rejected, ", "))
	}
	if ev := buildEvidence(evidence); ev != "" {
		fmt.Fprintf(&b, "## 근거 자료\n%s\n", ev)
	}
	fmt.Fprintf(&b, "## 최근 대화\n%s", formatDialogue(snap.LastTurns(historyWindow)))

	return llm.Decode[generation](ctx, p.client, llm.Request{
		System: generateSystemPrompt,
		User:   b.String(),
	})
}

// beforeAfterCard synthesizes a rule-based proposal summary when the model
// returned a pitch without one.
func beforeAfterCard(customer *models.CustomerInfo, top models.RetrievedItem) string {
	current := "현재 요금제"
	if customer != nil && customer.RatePlan != "" {
		current = customer.RatePlan
	}
	if top.Metadata.Price > 0 {
		return fmt.Sprintf("%s → %s (월 %.0f원)", current, top.Metadata.Title, top.Metadata.Price)
	}
	return fmt.Sprintf("%s → %s", current, top.Metadata.Title)
}

func proposalNames(items []models.RetrievedItem) []string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		if it.Metadata.Title != "" {
			names = append(names, it.Metadata.Title)
		}
	}
	return names
}

func mergeRejected(rejected, names []string) []string {
	for _, n := range names {
		if !slices.Contains(rejected, n) {
			rejected = append(rejected, n)
		}
	}
	return rejected
}

func isRejected(name string, rejected []string) bool {
	for _, r := range rejected {
		if r != "" && (name == r || strings.Contains(name, r) || strings.Contains(r, name)) {
			return true
		}
	}
	return false
}

func formatDialogue(turns []models.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		label := "고객"
		if t.Speaker == models.SpeakerAgent {
			label = "상담사"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, masking.Mask(t.Transcript))
	}
	return b.String()
}
