package dto

// ValidateTriggerRequest asks for a trigger to be parsed and previewed
type ValidateTriggerRequest struct {
	TriggerKind       string `json:"trigger_kind" binding:"required"`
	TriggerExpression string `json:"trigger_expression" binding:"required"`
	Timezone          string `json:"timezone"`
	Count             int    `json:"count"`
}

// ValidateTriggerResponse lists upcoming fire times as unix ms and RFC3339
type ValidateTriggerResponse struct {
	Valid       bool     `json:"valid"`
	Error       string   `json:"error,omitempty"`
	Description string   `json:"description,omitempty"`
	NextRuns    []int64  `json:"next_runs"`
	NextRunsISO []string `json:"next_runs_iso"`
}
