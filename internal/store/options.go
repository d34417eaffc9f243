package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/soundforge/generation-api/internal/store/model"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	// SortByCreatedTime orders newest first.
	SortByCreatedTime
	// SortByUpdatedTime orders most recently touched first.
	SortByUpdatedTime
	// SortByPriority orders highest priority first, oldest first as tiebreak.
	SortByPriority
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByStatus(statuses ...model.JobStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return qf
}

func (qf *JobQueryFilter) ByJobType(jobTypes ...string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("job_type IN ?", jobTypes)
	})
	return qf
}

func (qf *JobQueryFilter) ByWorkerID(workerID string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("worker_id = ?", workerID)
	})
	return qf
}

func (qf *JobQueryFilter) CreatedBefore(cutoff time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("created_at < ?", cutoff)
	})
	return qf
}

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByCreatedTime:
			return tx.Order("created_at DESC")
		case SortByUpdatedTime:
			return tx.Order("updated_at DESC")
		case SortByPriority:
			return tx.Order("priority DESC").Order("created_at")
		default:
			return tx
		}
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *JobQueryOptions) WithOffset(offset int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	})
	return o
}
