// Package analysis runs the end-of-call summary: one structured LLM call
// over the masked transcript, then an upload to the persistence service.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/csnavigator/callcopilot/pkg/llm"
	"github.com/csnavigator/callcopilot/pkg/masking"
	"github.com/csnavigator/callcopilot/pkg/models"
	"github.com/csnavigator/callcopilot/pkg/session"
)

// billsecRatio derives billable seconds from call duration. Product
// convention; keep the ratio when changing the formula.
const billsecRatio = 0.7

// timeLayout is the timestamp format the persistence service expects.
const timeLayout = "2006-01-02 15:04:05"

const analyzePrompt = `당신은 콜센터 통화 분석기입니다. 전체 통화 내용을 읽고 JSON으로만 답하세요.
스키마: {"summary_text": "통화 요약 3~5문장", "estimated_cost": 예상 비용(원, 정수, 없으면 0), "ces_score": 0~10, "csat_score": 0~10, "rps_score": 0~10, "keyword": ["핵심 키워드"], "violence_count": 폭언 횟수(정수)}

규칙:
- summary_text에는 문의 내용, 처리 결과, 후속 조치를 포함
- ces_score는 고객 노력(낮을수록 쉬움을 10에 가깝게), csat_score는 만족도, rps_score는 추천 의향
- violence_count는 고객의 욕설/폭언 발화 수`

// Uploader posts the finished call log. Implemented by directory.Client.
type Uploader interface {
	UploadCallLog(ctx context.Context, payload models.CallLogPayload) error
}

// Analyzer produces and uploads the end-of-call summary.
type Analyzer struct {
	client   llm.Client
	uploader Uploader
	store    *session.Store
}

// New builds an analyzer over the session store.
func New(client llm.Client, uploader Uploader, store *session.Store) *Analyzer {
	return &Analyzer{client: client, uploader: uploader, store: store}
}

// Run analyzes one finished call and posts the result. Exactly one of the
// racing triggers (monitor CALL_ENDED, socket disconnect) wins via the
// session's analyzed flag; the loser returns immediately. All failures are
// logged and swallowed; nothing is posted on analysis failure.
func (a *Analyzer) Run(ctx context.Context, callID string) {
	a.store.End(callID)
	if !a.store.MarkAnalyzed(callID) {
		slog.Debug("Analysis already claimed", "call_id", callID)
		return
	}

	snap, ok := a.store.Snapshot(callID)
	if !ok {
		slog.Warn("Analysis requested for unknown call", "call_id", callID)
		return
	}
	if len(snap.History) == 0 {
		slog.Info("Skipping analysis of empty call", "call_id", callID)
		return
	}

	result, err := a.analyze(ctx, snap)
	if err != nil {
		slog.Error("End-of-call analysis failed", "call_id", callID, "error", err)
		return
	}

	payload := buildPayload(snap, result)
	if err := a.uploader.UploadCallLog(ctx, payload); err != nil {
		slog.Error("Call log upload failed", "call_id", callID, "error", err)
		return
	}
	slog.Info("Call log uploaded",
		"call_id", callID, "turns", len(payload.Transcripts),
		"duration", payload.Duration, "billsec", payload.Billsec)
}

func (a *Analyzer) analyze(ctx context.Context, snap session.Snapshot) (models.AnalysisResult, error) {
	return llm.Decode[models.AnalysisResult](ctx, a.client, llm.Request{
		System: analyzePrompt,
		User:   formatTranscript(snap.History),
	})
}

// buildPayload assembles the upload body from the session snapshot and the
// analysis result.
func buildPayload(snap session.Snapshot, result models.AnalysisResult) models.CallLogPayload {
	duration := callDuration(snap.StartTime, snap.EndTime)
	payload := models.CallLogPayload{
		Transcripts:    snap.History,
		SummaryText:    result.SummaryText,
		EstimatedCost:  result.EstimatedCost,
		CESScore:       result.CESScore,
		CSATScore:      result.CSATScore,
		RPSScore:       result.RPSScore,
		Keyword:        result.Keyword,
		ViolenceCount:  result.ViolenceCount,
		CustomerNumber: snap.CustomerNumber,
		StartTime:      snap.StartTime.Format(timeLayout),
		EndTime:        snap.EndTime.Format(timeLayout),
		Duration:       duration,
		Billsec:        billsecFor(duration),
	}
	if payload.Keyword == nil {
		payload.Keyword = []string{}
	}
	if snap.Operator != nil {
		payload.MemberID = snap.Operator.MemberID
		payload.TenantName = snap.Operator.TenantName
	}
	return payload
}

func callDuration(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Seconds())
}

func billsecFor(duration int) int {
	return int(math.Round(billsecRatio * float64(duration)))
}

func formatTranscript(turns []models.Turn) string {
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
