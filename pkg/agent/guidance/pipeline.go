// Package guidance implements the guidance agent: a three-node pipeline
// (analyze → retrieve → generate) that turns each customer utterance into a
// recommended answer and a work guide for the human operator.
package guidance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/csnavigator/callcopilot/pkg/agent"
	"github.com/csnavigator/callcopilot/pkg/llm"
	"github.com/csnavigator/callcopilot/pkg/masking"
	"github.com/csnavigator/callcopilot/pkg/models"
	"github.com/csnavigator/callcopilot/pkg/session"
)

// AgentType identifies guidance results on the wire.
const AgentType = "guidance"

const (
	// historyWindow is how many trailing turns the pipeline consults.
	historyWindow = 5
	// perCategoryK is the dense search depth per category.
	perCategoryK = 2
	// minTranscriptRunes short-circuits filler utterances.
	minTranscriptRunes = 2
)

// defaultSearchFilter is used when the analyze node fails.
var defaultSearchFilter = []string{"guideline", "terms"}

// Searcher is the retrieval surface the pipeline needs.
type Searcher interface {
	Semantic(ctx context.Context, query string, k int, categories []string) ([]models.RetrievedItem, error)
}

type analysis struct {
	NextStep     string   `json:"next_step"`
	SearchFilter []string `json:"search_filter"`
}

type generation struct {
	RecommendedAnswer string `json:"recommended_answer"`
	WorkGuide         string `json:"work_guide"`
}

// state is the per-call checkpoint: the pipeline's own message log, which
// survives between turns.
type state struct {
	messages []models.Turn
}

// Pipeline is the guidance agent handler.
type Pipeline struct {
	client      llm.Client
	fastModel   string
	store       Searcher
	checkpoints *agent.Checkpoint[state]
}

// New builds the guidance pipeline.
func New(client llm.Client, fastModel string, store Searcher) *Pipeline {
	return &Pipeline{
		client:      client,
		fastModel:   fastModel,
		store:       store,
		checkpoints: agent.NewCheckpoint[state](),
	}
}

// Type implements agent.Handler.
func (p *Pipeline) Type() string { return AgentType }

// EndCall drops the per-call checkpoint once the call is over.
func (p *Pipeline) EndCall(callID string) {
	p.checkpoints.Delete(callID)
}

// Handle implements agent.Handler.
func (p *Pipeline) Handle(ctx context.Context, turn models.Turn, snap session.Snapshot, firstTurn bool) (models.AgentResult, error) {
	p.checkpoints.Update(snap.CallID, func(s *state) {
		s.messages = append(s.messages, turn)
	})

	// Agent turns only feed the message log.
	if turn.Speaker == models.SpeakerAgent {
		return models.Skipped(AgentType, "agent turn"), nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(turn.Transcript)) < minTranscriptRunes {
		return models.Skipped(AgentType, "transcript too short"), nil
	}

	recent := snap.LastTurns(historyWindow)
	step := p.analyze(ctx, recent)
	if step.NextStep == string(models.StepSkip) {
		return models.Skipped(AgentType, "analyzer routed skip"), nil
	}

	var contextBlock string
	if step.NextStep == string(models.StepRetrieve) && len(step.SearchFilter) > 0 {
		contextBlock = p.retrieve(ctx, recent, step.SearchFilter)
	}

	gen, err := p.generate(ctx, snap.CustomerInfo, recent, contextBlock)
	if err != nil {
		slog.Warn("Guidance generation failed",
			"call_id", snap.CallID, "turn_id", turn.TurnID, "error", err)
		return models.Skipped(AgentType, "generation failed"), nil
	}

	return models.AgentResult{
		AgentType:         AgentType,
		NextStep:          models.StepGenerate,
		RecommendedAnswer: gen.RecommendedAnswer,
		WorkGuide:         gen.WorkGuide,
	}, nil
}

// analyze decides whether this turn needs document grounding. LLM failure
// degrades to a retrieve with the default filter rather than losing the
// turn.
func (p *Pipeline) analyze(ctx context.Context, recent []models.Turn) analysis {
	out, err := llm.Decode[analysis](ctx, p.client, llm.Request{
		Model:  p.fastModel,
		System: analyzePrompt,
		User:   formatDialogue(recent),
	})
	if err != nil {
		slog.Warn("Guidance analyze failed, defaulting to retrieve", "error", err)
		return analysis{NextStep: string(models.StepRetrieve), SearchFilter: defaultSearchFilter}
	}
	switch out.NextStep {
	case string(models.StepRetrieve), string(models.StepGenerate), string(models.StepSkip):
		return out
	default:
		return analysis{NextStep: string(models.StepRetrieve), SearchFilter: defaultSearchFilter}
	}
}

// retrieve runs a dense search per requested category and concatenates the
// hits into a category-prefixed context block. Search failures degrade to an
// empty block; generation still runs.
func (p *Pipeline) retrieve(ctx context.Context, recent []models.Turn, filter []string) string {
	query := masking.Mask(joinTranscripts(recent))

	var b strings.Builder
	seen := make(map[string]bool)
	for _, category := range filter {
		if seen[category] {
			continue
		}
		seen[category] = true
		items, err := p.store.Semantic(ctx, query, perCategoryK, []string{category})
		if err != nil {
			slog.Warn("Guidance retrieval failed for category",
				"category", category, "error", err)
			continue
		}
		for _, item := range items {
			fmt.Fprintf(&b, "[%s] %s\n", category, item.Content)
		}
	}
	return b.String()
}

func (p *Pipeline) generate(ctx context.Context, customer *models.CustomerInfo, recent []models.Turn, contextBlock string) (generation, error) {
	var b strings.Builder
	if customer != nil {
		fmt.Fprintf(&b, "## 고객 정보\n이름: %s / 요금제: %s / 결합상품: %s\n\n",
			customer.Name, customer.RatePlan, customer.CombinationProduct)
	}
	if contextBlock != "" {
		fmt.Fprintf(&b, "## 근거 자료\n%s\n", contextBlock)
	}
	fmt.Fprintf(&b, "## 최근 대화\n%s", formatDialogue(recent))

	return llm.Decode[generation](ctx, p.client, llm.Request{
		System: generateSystemPrompt,
		User:   b.String(),
	})
}

// formatDialogue renders turns as speaker-labelled masked lines.
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

func joinTranscripts(turns []models.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, t.Transcript)
	}
	return strings.Join(parts, " ")
}
