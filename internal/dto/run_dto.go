package dto

// GetRunRequest represents request to get a run
type GetRunRequest struct {
	// No body fields - run_id comes from path params
}

// ListRunsRequest represents request to list a schedule's runs
type ListRunsRequest struct {
	PaginationRequest
}

// RunResponse represents a single run
type RunResponse struct {
	ID              string                 `json:"id"`
	ScheduleID      string                 `json:"schedule_id"`
	Status          string                 `json:"status"`
	Trigger         string                 `json:"trigger"`
	ScheduledFor    int64                  `json:"scheduled_for"`
	QueueJobID      string                 `json:"queue_job_id,omitempty"`
	QueueName       string                 `json:"queue_name,omitempty"`
	PayloadSnapshot map[string]interface{} `json:"payload_snapshot"`
	StartedAt       int64                  `json:"started_at,omitempty"`
	FinishedAt      int64                  `json:"finished_at,omitempty"`
	DurationMs      *int64                 `json:"duration_ms,omitempty"`
	ErrorCode       string                 `json:"error_code,omitempty"`
	ErrorSummary    string                 `json:"error_summary,omitempty"`
	ErrorDetail     string                 `json:"error_detail,omitempty"`
	Version         int64                  `json:"version"`
	CreatedAt       int64                  `json:"created_at"`
	UpdatedAt       int64                  `json:"updated_at"`
}

// ListRunsResponse represents response for listing runs
type ListRunsResponse struct {
	Runs []RunResponse `json:"runs"`
	PaginationResponse
}

// ReportOutcomeRequest is posted by workers when a job starts or finishes.
// Either queue_job_id or run_id identifies the run.
type ReportOutcomeRequest struct {
	QueueJobID  string `json:"queue_job_id"`
	RunID       string `json:"run_id"`
	Status      string `json:"status" binding:"required"`
	ErrorDetail string `json:"error_detail"`
	FinishedAt  int64  `json:"finished_at"`
}
