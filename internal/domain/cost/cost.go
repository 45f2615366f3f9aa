// Package cost defines aggregations over the usage ledger.
package cost

// Summary holds aggregate cost and token metrics.
type Summary struct {
	TotalCostUSD     float64 `json:"total_cost_usd"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CallCount        int     `json:"call_count"`
	BatchedCallCount int     `json:"batched_call_count"`
	FailedCallCount  int     `json:"failed_call_count"`
}

// ProjectSummary extends Summary with the project id.
type ProjectSummary struct {
	ProjectID string `json:"project_id"`
	Summary
}

// ModelSummary breaks down cost by LLM model.
type ModelSummary struct {
	Model string `json:"model"`
	Summary
}

// CrewSummary breaks down cost by crew member.
type CrewSummary struct {
	CrewID string `json:"crew_id"`
	Summary
}

// DailyCost holds aggregated cost for a single day (YYYY-MM-DD, UTC).
type DailyCost struct {
	Date             string  `json:"date"`
	CostUSD          float64 `json:"cost_usd"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CallCount        int     `json:"call_count"`
}
