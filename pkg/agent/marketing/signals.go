package marketing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/csnavigator/callcopilot/pkg/masking"
	"github.com/csnavigator/callcopilot/pkg/models"
)

// expiryThresholdMonths marks a contract as near expiry for retention
// purposes.
const expiryThresholdMonths = 3

// DeriveSignals turns a customer profile into short marketing signal
// strings. Pure function; nil profile yields no signals. The signals feed
// both the retrieval query and the generation prompt.
func DeriveSignals(c *models.CustomerInfo) []string {
	if c == nil {
		return nil
	}
	var signals []string

	if m, err := strconv.Atoi(strings.TrimSpace(c.RemainingMonths)); err == nil && m <= expiryThresholdMonths {
		signals = append(signals, "약정 만료 임박")
	}
	switch {
	case c.Overcharge1MonthAgo == "Y" && c.Overcharge2MonthAgo == "Y":
		signals = append(signals, "2개월 연속 초과 요금 발생")
	case c.Overcharge1MonthAgo == "Y" || c.Overcharge2MonthAgo == "Y":
		signals = append(signals, "최근 초과 요금 발생")
	}
	if c.CombinationProduct == "" {
		signals = append(signals, "결합 상품 미가입")
	}
	if c.InternetProduct == "" {
		signals = append(signals, "인터넷 미가입")
	}
	if c.DataSharing == "Y" {
		signals = append(signals, "데이터 쉐어링 사용 중")
	}
	if strings.Contains(c.HouseholdType, "가족") {
		signals = append(signals, "가족 가구")
	}
	if c.RemoteWork == "Y" {
		signals = append(signals, "재택 근무")
	}
	if c.OptionalContract == "N" {
		signals = append(signals, "선택약정 미적용")
	}
	if c.WelfareCard == "Y" {
		signals = append(signals, "복지 할인 대상")
	}
	return signals
}

// queryKeywords are scanned in the recent dialogue and promoted to the
// front of the retrieval query when present.
var queryKeywords = []string{
	"해지", "위약금", "약정", "결합", "요금제", "데이터", "속도",
	"할인", "혜택", "무제한", "인터넷", "IPTV",
}

// maxQueryRunes caps the retrieval query length.
const maxQueryRunes = 500

// buildQuery assembles the staged-search query from dialogue keywords, the
// customer's plan, derived signals, and the masked dialogue tail.
func buildQuery(customer *models.CustomerInfo, recent []models.Turn) string {
	var dialogue strings.Builder
	for _, t := range recent {
		if t.Speaker == models.SpeakerCustomer {
			dialogue.WriteString(t.Transcript)
			dialogue.WriteString(" ")
		}
	}
	text := dialogue.String()

	var parts []string
	for _, kw := range queryKeywords {
		if strings.Contains(text, kw) {
			parts = append(parts, kw)
		}
	}
	if customer != nil && customer.RatePlan != "" {
		parts = append(parts, customer.RatePlan)
	}
	parts = append(parts, DeriveSignals(customer)...)
	parts = append(parts, masking.Mask(strings.TrimSpace(text)))

	return truncateRunes(strings.Join(parts, " "), maxQueryRunes)
}

const (
	// maxEvidenceDocRunes caps one evidence block.
	maxEvidenceDocRunes = 300
	// maxEvidenceTotalRunes caps the whole evidence section.
	maxEvidenceTotalRunes = 1500
)

// buildEvidence renders non-product items as a bounded context block with
// category/title/source headers.
func buildEvidence(items []models.RetrievedItem) string {
	var b strings.Builder
	for _, item := range items {
		block := fmt.Sprintf("[%s] %s (%s)\n%s\n",
			item.Metadata.Category, item.Metadata.Title, item.Metadata.Source,
			truncateRunes(item.Content, maxEvidenceDocRunes))
		if len([]rune(b.String()))+len([]rune(block)) > maxEvidenceTotalRunes {
			break
		}
		b.WriteString(block)
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
