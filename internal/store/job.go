package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soundforge/generation-api/internal/store/model"
)

// claimPasses bounds how many times ClaimNext re-reads the candidate list
// when racing claimers steal every candidate of a pass.
const claimPasses = 3

// claimBatchSize is the number of eligible rows fetched per pass.
const claimBatchSize = 10

// Job interface for job-related database operations.
type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Count(ctx context.Context, filter *JobQueryFilter) (int64, error)
	CountByStatus(ctx context.Context, jobType string) (map[model.JobStatus]int64, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	ClaimNext(ctx context.Context, jobTypes []string, workerID string, leaseFor time.Duration) (*model.Job, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []model.JobStatus) (int64, error)
	RequeueExpired(ctx context.Context, now time.Time, message string) (int64, error)
	InitialMigration() error
}

// JobStore implements the Job interface.
type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

// NewJobStore creates a new job store
func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (s *JobStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Job{})
}

func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	result := s.getDB(ctx).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("creating job: %w", result.Error)
	}

	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	result := s.getDB(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying job: %w", result.Error)
	}

	return &job, nil
}

// Update applies the given column changes and returns the refreshed row.
// Unspecified columns are left untouched; updated_at is refreshed by gorm.
func (s *JobStore) Update(ctx context.Context, id uuid.UUID, fields map[string]any) (*model.Job, error) {
	result := s.getDB(ctx).Model(&model.Job{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return nil, fmt.Errorf("updating job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}

	return s.Get(ctx, id)
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	tx := s.getDB(ctx).Model(&model.Job{})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	var jobs model.JobList
	if result := tx.Find(&jobs); result.Error != nil {
		return nil, fmt.Errorf("listing jobs: %w", result.Error)
	}
	return jobs, nil
}

func (s *JobStore) Count(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	tx := s.getDB(ctx).Model(&model.Job{})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	var count int64
	if result := tx.Count(&count); result.Error != nil {
		return 0, fmt.Errorf("counting jobs: %w", result.Error)
	}
	return count, nil
}

func (s *JobStore) CountByStatus(ctx context.Context, jobType string) (map[model.JobStatus]int64, error) {
	tx := s.getDB(ctx).Model(&model.Job{})
	if jobType != "" {
		tx = tx.Where("job_type = ?", jobType)
	}

	var rows []struct {
		Status model.JobStatus
		Count  int64
	}
	if result := tx.Select("status, COUNT(*) as count").Group("status").Scan(&rows); result.Error != nil {
		return nil, fmt.Errorf("counting jobs by status: %w", result.Error)
	}

	counts := make(map[model.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// Delete removes the job unless a worker may still be driving it: terminal
// jobs always qualify, eligible jobs only while never started. The guard is
// part of the DELETE predicate so a claim committing concurrently either wins
// the row first or finds it gone. Returns false when no row matched.
func (s *JobStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := s.getDB(ctx).
		Where("id = ?", id).
		Where("status IN ? OR (status IN ? AND started_at IS NULL)", model.TerminalStatuses, model.EligibleStatuses).
		Delete(&model.Job{})
	if result.Error != nil {
		return false, fmt.Errorf("deleting job: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ClaimNext selects the highest-priority eligible job and transitions it to
// processing on behalf of workerID. The transition is a conditional update
// guarded on the job still being eligible, so concurrent claimers never win
// the same row. With an empty workerID the candidate is returned untouched.
func (s *JobStore) ClaimNext(ctx context.Context, jobTypes []string, workerID string, leaseFor time.Duration) (*model.Job, error) {
	filter := NewJobQueryFilter().ByStatus(model.EligibleStatuses...)
	if len(jobTypes) > 0 {
		filter = filter.ByJobType(jobTypes...)
	}
	opts := NewJobQueryOptions().WithSortOrder(SortByPriority).WithLimit(claimBatchSize)

	for pass := 0; pass < claimPasses; pass++ {
		candidates, err := s.List(ctx, filter, opts)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		if workerID == "" {
			return &candidates[0], nil
		}

		now := time.Now().UTC()
		for i := range candidates {
			result := s.getDB(ctx).Model(&model.Job{}).
				Where("id = ? AND status IN ?", candidates[i].ID, model.EligibleStatuses).
				Updates(map[string]any{
					"status":           model.JobStatusProcessing,
					"worker_id":        workerID,
					"started_at":       gorm.Expr("COALESCE(started_at, ?)", now),
					"lease_expires_at": now.Add(leaseFor),
				})
			if result.Error != nil {
				return nil, fmt.Errorf("claiming job: %w", result.Error)
			}
			if result.RowsAffected == 1 {
				return s.Get(ctx, candidates[i].ID)
			}
			// lost the race for this candidate, try the next one
		}
	}

	return nil, nil
}

func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []model.JobStatus) (int64, error) {
	result := s.getDB(ctx).
		Where("created_at < ? AND status IN ?", cutoff, statuses).
		Delete(&model.Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RequeueExpired returns in-progress jobs whose lease lapsed to queued so
// another worker can pick them up. Progress is kept as reported last.
func (s *JobStore) RequeueExpired(ctx context.Context, now time.Time, message string) (int64, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("lease_expires_at IS NOT NULL AND lease_expires_at < ?", now).
		Where("status NOT IN ?", append(model.EligibleStatuses, model.TerminalStatuses...)).
		Updates(map[string]any{
			"status":           model.JobStatusQueued,
			"worker_id":        nil,
			"lease_expires_at": nil,
			"message":          message,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("requeueing expired jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
