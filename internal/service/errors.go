package service

import (
	"fmt"

	"github.com/google/uuid"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %s not found", id)}
}

type ErrInvalidJobStatus struct {
	error
}

func NewErrInvalidJobStatus(status string) *ErrInvalidJobStatus {
	return &ErrInvalidJobStatus{fmt.Errorf("invalid status: %s", status)}
}

// ErrJobActive signals an attempt to delete a job a worker may still be
// driving. Only never-started or terminal jobs can be deleted directly.
type ErrJobActive struct {
	error
}

func NewErrJobActive(id uuid.UUID) *ErrJobActive {
	return &ErrJobActive{fmt.Errorf("cannot delete active job %s", id)}
}

// ErrJobFinished signals an attempt to mutate a job that already reached a
// terminal state. Terminal jobs are immutable.
type ErrJobFinished struct {
	error
}

func NewErrJobFinished(id uuid.UUID) *ErrJobFinished {
	return &ErrJobFinished{fmt.Errorf("job %s already finished", id)}
}

type ErrUnknownModel struct {
	error
}

func NewErrUnknownModel(model string, supported []string) *ErrUnknownModel {
	return &ErrUnknownModel{fmt.Errorf("unsupported model %q, supported models: %v", model, supported)}
}
