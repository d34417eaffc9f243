// Package v1alpha1 holds the wire types of the generation API.
package v1alpha1

import "time"

// Job is the wire representation of a job record. Timestamps are RFC3339,
// null when not yet stamped.
type Job struct {
	Id          string         `json:"id"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	JobType     string         `json:"job_type"`
	Priority    int            `json:"priority"`
	RequestData map[string]any `json:"request_data,omitempty"`
	ResultData  map[string]any `json:"result_data,omitempty"`
	Message     *string        `json:"message"`
	Error       *string        `json:"error"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	StartedAt   *time.Time     `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	WorkerId    *string        `json:"worker_id"`
}

type JobList struct {
	Jobs   []Job `json:"jobs"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// JobStats reports job counts per status plus the total and the combined
// count of every non-terminal status.
type JobStats struct {
	Queued          int64 `json:"queued"`
	Pending         int64 `json:"pending"`
	Processing      int64 `json:"processing"`
	LoadingModel    int64 `json:"loading_model"`
	PreparingPrompt int64 `json:"preparing_prompt"`
	GeneratingAudio int64 `json:"generating_audio"`
	Exporting       int64 `json:"exporting"`
	Analyzing       int64 `json:"analyzing"`
	Rendering       int64 `json:"rendering"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
	Total           int64 `json:"total"`
	Active          int64 `json:"active"`
}

type JobCreateRequest struct {
	JobType     string         `json:"job_type" validate:"required,max=100"`
	RequestData map[string]any `json:"request_data" validate:"required"`
	Priority    int            `json:"priority" validate:"gte=0,lte=100"`
	Status      string         `json:"status,omitempty"`
}

// JobUpdateRequest carries a partial update; absent fields stay untouched.
type JobUpdateRequest struct {
	Status     *string        `json:"status,omitempty"`
	Progress   *int           `json:"progress,omitempty" validate:"omitempty,gte=0,lte=100"`
	Message    *string        `json:"message,omitempty"`
	Error      *string        `json:"error,omitempty"`
	ResultData map[string]any `json:"result_data,omitempty"`
	WorkerId   *string        `json:"worker_id,omitempty"`
}

type GenerationRequest struct {
	Prompt   string `json:"prompt" validate:"required"`
	Duration int    `json:"duration" validate:"gte=10,lte=300"`
	Priority int    `json:"priority" validate:"gte=0,lte=100"`
}

type GenerationReply struct {
	JobId   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type DeleteReply struct {
	Message string `json:"message"`
}

type HealthReply struct {
	Status string `json:"status"`
}

// Error is the body of every non-2xx response.
type Error struct {
	Message   string  `json:"message"`
	RequestId *string `json:"request_id,omitempty"`
}
