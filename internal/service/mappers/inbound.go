package mappers

import (
	"github.com/google/uuid"

	"github.com/soundforge/generation-api/internal/store/model"
)

type JobCreateForm struct {
	JobType       string
	RequestData   map[string]any
	Priority      int
	InitialStatus model.JobStatus
}

func (f JobCreateForm) ToJob() model.Job {
	status := f.InitialStatus
	if status == "" {
		status = model.JobStatusQueued
	}

	job := model.Job{
		ID:       uuid.New(),
		Status:   status,
		Progress: 0,
		JobType:  f.JobType,
		Priority: f.Priority,
	}
	if f.RequestData != nil {
		job.RequestData = model.MakeJSONField(f.RequestData)
	}
	return job
}

// JobUpdateForm carries a partial update. Nil pointers mean "leave as is".
type JobUpdateForm struct {
	ID         uuid.UUID
	Status     *model.JobStatus
	Progress   *int
	Message    *string
	Error      *string
	ResultData map[string]any
	WorkerID   *string
}
