// Package masking redacts personally identifiable information from call
// transcripts. Masking is a pure string transformation applied before any
// text reaches an LLM, the retrieval store, or a monitor broadcast.
package masking

// Mask applies all built-in PII patterns to the input and returns the
// redacted text. Idempotent: masking already-masked text is a no-op because
// the replacement tokens match none of the patterns.
func Mask(text string) string {
	for _, p := range builtinPatterns {
		text = p.Regex.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// MaskAll masks a slice of transcripts, preserving order.
func MaskAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Mask(t)
	}
	return out
}
