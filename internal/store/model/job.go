package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job. Everything that is not
// COMPLETED or FAILED counts as active.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"

	// Generator pipeline phases. Semantically all "processing".
	JobStatusLoadingModel    JobStatus = "loading_model"
	JobStatusPreparingPrompt JobStatus = "preparing_prompt"
	JobStatusGeneratingAudio JobStatus = "generating_audio"
	JobStatusExporting       JobStatus = "exporting"
	JobStatusAnalyzing       JobStatus = "analyzing"
	JobStatusRendering       JobStatus = "rendering"

	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobStatusValues lists every known status. Order matters for the stats
// response which reports a count per status.
var JobStatusValues = []JobStatus{
	JobStatusQueued,
	JobStatusPending,
	JobStatusProcessing,
	JobStatusLoadingModel,
	JobStatusPreparingPrompt,
	JobStatusGeneratingAudio,
	JobStatusExporting,
	JobStatusAnalyzing,
	JobStatusRendering,
	JobStatusCompleted,
	JobStatusFailed,
}

// EligibleStatuses are the statuses a worker may claim a job from.
var EligibleStatuses = []JobStatus{JobStatusQueued, JobStatusPending}

// TerminalStatuses are the states with no further processing expected.
var TerminalStatuses = []JobStatus{JobStatusCompleted, JobStatusFailed}

// ParseJobStatus validates a caller-supplied status string.
func ParseJobStatus(s string) (JobStatus, bool) {
	for _, status := range JobStatusValues {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) IsActive() bool {
	return !s.IsTerminal()
}

// IsProcessing reports whether the status belongs to the in-progress family,
// i.e. a worker has picked the job up but it is not finished yet.
func (s JobStatus) IsProcessing() bool {
	switch s {
	case JobStatusQueued, JobStatusPending, JobStatusCompleted, JobStatusFailed:
		return false
	default:
		return true
	}
}

// Job is one unit of schedulable generation work.
type Job struct {
	ID       uuid.UUID `gorm:"primaryKey;type:VARCHAR(255)"`
	Status   JobStatus `gorm:"not null;default:queued;type:VARCHAR(50);index:jobs_status_idx"`
	Progress int       `gorm:"not null;default:0"`

	JobType  string `gorm:"not null;type:VARCHAR(100);index:jobs_job_type_idx"`
	Priority int    `gorm:"not null;default:0;index:jobs_priority_idx"`

	RequestData *JSONField[map[string]any] `gorm:"type:jsonb"`
	ResultData  *JSONField[map[string]any] `gorm:"type:jsonb"`

	Message *string `gorm:"type:TEXT"`
	Error   *string `gorm:"type:TEXT"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	StartedAt   *time.Time
	CompletedAt *time.Time

	WorkerID *string `gorm:"type:VARCHAR(255);index:jobs_worker_id_idx"`

	// LeaseExpiresAt guards against workers that die mid-job. It is stamped
	// on claim, refreshed on every worker update and cleared on completion.
	// The requeuer returns processing jobs with an expired lease to queued.
	LeaseExpiresAt *time.Time `gorm:"index:jobs_lease_idx"`
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
