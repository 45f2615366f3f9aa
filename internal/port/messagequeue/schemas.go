package messagequeue

// UsageRecordedPayload is the schema for usage.recorded messages.
type UsageRecordedPayload struct {
	EventID           string  `json:"event_id"`
	ProjectID         string  `json:"project_id"`
	WorkflowRequestID string  `json:"workflow_request_id"`
	CrewID            string  `json:"crew_id"`
	Model             string  `json:"model"`
	Tier              string  `json:"tier"`
	PromptTokens      int64   `json:"prompt_tokens"`
	CompletionTokens  int64   `json:"completion_tokens"`
	CostUSD           float64 `json:"cost_usd"`
	Status            string  `json:"status"`
}

// RunCompletedPayload is the schema for usage.run.completed messages.
type RunCompletedPayload struct {
	WorkflowRequestID string   `json:"workflow_request_id"`
	ProjectID         string   `json:"project_id"`
	CrewIDs           []string `json:"crew_ids"`
	Status            string   `json:"status"`
	EstimatedCost     float64  `json:"estimated_cost"`
	ActualCost        float64  `json:"actual_cost"`
	APICallsSaved     int      `json:"api_calls_saved"`
}

// BudgetResetPayload is the schema for budget.reset messages, sent by an
// external scheduler at period boundaries. An empty scope resets every scope.
type BudgetResetPayload struct {
	Scope  string `json:"scope"`
	Period string `json:"period"`
}

// BudgetAlertPayload is the schema for budget.alert messages.
type BudgetAlertPayload struct {
	Scope     string  `json:"scope"`
	Kind      string  `json:"kind"`
	Limit     float64 `json:"limit"`
	Estimated float64 `json:"estimated"`
	Available float64 `json:"available"`
	Rejected  bool    `json:"rejected"`
}
