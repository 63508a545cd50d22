package dto

// CreateScheduleRequest represents request to create a schedule
type CreateScheduleRequest struct {
	Name              string                 `json:"name" binding:"required"`
	TriggerKind       string                 `json:"trigger_kind" binding:"required"`
	TriggerExpression string                 `json:"trigger_expression" binding:"required"`
	JobType           string                 `json:"job_type" binding:"required"`
	Payload           map[string]interface{} `json:"payload"`
	ConcurrencyPolicy string                 `json:"concurrency_policy"`
	Timezone          string                 `json:"timezone"`
	Enabled           *bool                  `json:"enabled"`
}

// UpdateScheduleRequest changes only the fields present in the body
type UpdateScheduleRequest struct {
	Name              *string                `json:"name"`
	TriggerKind       *string                `json:"trigger_kind"`
	TriggerExpression *string                `json:"trigger_expression"`
	JobType           *string                `json:"job_type"`
	Payload           map[string]interface{} `json:"payload"`
	ConcurrencyPolicy *string                `json:"concurrency_policy"`
	Timezone          *string                `json:"timezone"`
	ExpectedVersion   *int64                 `json:"expected_version"`
}

// ScheduleRequest is used by routes that take the schedule id from the path only
type ScheduleRequest struct{}

// ListSchedulesRequest takes limit and next_token from the query string
type ListSchedulesRequest struct {
	PaginationRequest
}

// ScheduleResponse represents a single schedule
type ScheduleResponse struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	TriggerKind       string                 `json:"trigger_kind"`
	TriggerExpression string                 `json:"trigger_expression"`
	JobType           string                 `json:"job_type"`
	Payload           map[string]interface{} `json:"payload"`
	Enabled           bool                   `json:"enabled"`
	ConcurrencyPolicy string                 `json:"concurrency_policy"`
	Timezone          string                 `json:"timezone"`
	NextRun           int64                  `json:"next_run,omitempty"`
	LastRun           int64                  `json:"last_run,omitempty"`
	Version           int64                  `json:"version"`
	CreatedAt         int64                  `json:"created_at"`
	UpdatedAt         int64                  `json:"updated_at"`
}

// ListSchedulesResponse represents response for listing schedules
type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules"`
	PaginationResponse
}
