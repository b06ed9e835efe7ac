package masking

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPatterns are the PII rules applied to every transcript before it is
// passed to an LLM or broadcast outside the session. Order matters: phone
// numbers must be masked before the generic digit-run rule would split them.
var builtinPatterns = []*CompiledPattern{
	{
		Name:        "mobile_phone",
		Regex:       regexp.MustCompile(`\b01[0-9][- ]?\d{3,4}[- ]?\d{4}\b`),
		Replacement: "<PHONE>",
		Description: "Korean mobile phone numbers (010-1234-5678 and variants)",
	},
	{
		Name:        "digit_run",
		Regex:       regexp.MustCompile(`\b\d{6,}\b`),
		Replacement: "<NUM>",
		Description: "Long digit runs: account numbers, RRNs, order IDs",
	},
	{
		Name:        "road_address",
		Regex:       regexp.MustCompile(`[가-힣0-9]+(?:로|길)\s?\d+(?:-\d+)?(?:번지)?`),
		Replacement: "<ADDRESS>",
		Description: "Road-name addresses (…로 12, …길 34-5)",
	},
	{
		Name:        "unit_address",
		Regex:       regexp.MustCompile(`\d+동\s?\d+호`),
		Replacement: "<ADDRESS>",
		Description: "Apartment unit numbers (101동 1203호)",
	},
	{
		Name:        "honorific_name",
		Regex:       regexp.MustCompile(`[가-힣]{2,3}\s?(고객님|님|씨)`),
		Replacement: "<NAME>$1",
		Description: "Personal names directly followed by an honorific",
	},
}
