package marketing

// Stage is the marketing conversation stage. The machine starts in
// StageListening and terminates in StageClosing.
type Stage string

const (
	StageListening   Stage = "listening"
	StageProposing   Stage = "proposing"
	StageNegotiating Stage = "negotiating"
	StageClosing     Stage = "closing"
)

// Type selects the generation strategy preamble.
type Type string

const (
	TypeNone             Type = "none"
	TypeUpsell           Type = "upsell"
	TypeRetention        Type = "retention"
	TypeRetentionPrice   Type = "retention_price"
	TypeCostOptimization Type = "cost_optimization"
	TypeHybrid           Type = "hybrid"
	TypeExplanation      Type = "explanation"
	TypeAlternative      Type = "alternative"
)

// needsRetrieval reports whether a marketing type requires a fresh product
// search. Explanation reuses the sticky proposal; hybrid closes on it; none
// produces no pitch.
func (t Type) needsRetrieval() bool {
	switch t {
	case TypeUpsell, TypeRetention, TypeRetentionPrice, TypeCostOptimization, TypeAlternative:
		return true
	}
	return false
}

// needsPitch reports whether the type is expected to carry product
// candidates into generation.
func (t Type) needsPitch() bool {
	return t != TypeNone && t != TypeExplanation
}

// priceCapFactor returns the multiplier applied to the customer's monthly
// fee when filtering candidates, or 0 when the type is not price-capped.
// Retention pricing may go slightly above the current fee; cost optimization
// must not.
func (t Type) priceCapFactor() float64 {
	switch t {
	case TypeCostOptimization:
		return 1.0
	case TypeRetentionPrice:
		return 1.1
	}
	return 0
}

// typeCategoryWeights are the staged-search fusion weights per marketing
// type. Retention leans harder on product and guideline material than
// upsell; price moves pull the terms category up for fee comparisons.
var typeCategoryWeights = map[Type]map[string]float64{
	TypeUpsell:           {"marketing": 1.45, "guideline": 1.15, "principle": 1.05, "terms": 1.0},
	TypeRetention:        {"marketing": 1.55, "guideline": 1.2, "principle": 1.05, "terms": 1.0},
	TypeRetentionPrice:   {"marketing": 1.5, "guideline": 1.1, "principle": 1.0, "terms": 1.15},
	TypeCostOptimization: {"marketing": 1.5, "guideline": 1.1, "principle": 1.0, "terms": 1.2},
	TypeAlternative:      {"marketing": 1.6, "guideline": 1.1, "principle": 1.0, "terms": 1.0},
}

// categoryWeights returns the fusion weights for the type, defaulting to the
// upsell profile for types without a dedicated entry.
func (t Type) categoryWeights() map[string]float64 {
	if w, ok := typeCategoryWeights[t]; ok {
		return w
	}
	return typeCategoryWeights[TypeUpsell]
}
