package models

// AnalysisResult is the structured end-of-call summary produced by a single
// LLM call over the full transcript.
type AnalysisResult struct {
	SummaryText   string   `json:"summary_text"`
	EstimatedCost int      `json:"estimated_cost"`
	CESScore      float64  `json:"ces_score"`
	CSATScore     float64  `json:"csat_score"`
	RPSScore      float64  `json:"rps_score"`
	Keyword       []string `json:"keyword"`
	ViolenceCount int      `json:"violence_count"`
}

// CallLogPayload is the end-of-call upload body for the persistence service.
type CallLogPayload struct {
	Transcripts    []Turn   `json:"transcripts"`
	SummaryText    string   `json:"summary_text"`
	EstimatedCost  int      `json:"estimated_cost"`
	CESScore       float64  `json:"ces_score"`
	CSATScore      float64  `json:"csat_score"`
	RPSScore       float64  `json:"rps_score"`
	Keyword        []string `json:"keyword"`
	ViolenceCount  int      `json:"violence_count"`
	CustomerNumber string   `json:"customer_number"`
	MemberID       int      `json:"member_id"`
	TenantName     string   `json:"tenant_name"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Duration       int      `json:"duration"`
	Billsec        int      `json:"billsec"`
}
