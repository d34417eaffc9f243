package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/soundforge/generation-api/internal/service/mappers"
	"github.com/soundforge/generation-api/internal/store"
	"github.com/soundforge/generation-api/internal/store/model"
	"github.com/soundforge/generation-api/pkg/metrics"
)

const (
	defaultCompletedMessage = "Job completed successfully"
	defaultFailedMessage    = "Job failed"
	defaultFailedError      = "Unknown error"
)

// JobQueueService owns the job lifecycle state machine. All mutation of job
// rows goes through it; handlers and workers never touch the store directly.
type JobQueueService struct {
	store    store.Store
	leaseFor time.Duration
}

func NewJobQueueService(store store.Store, leaseFor time.Duration) *JobQueueService {
	return &JobQueueService{store: store, leaseFor: leaseFor}
}

func (s *JobQueueService) Enqueue(ctx context.Context, form mappers.JobCreateForm) (*model.Job, error) {
	job, err := s.store.Job().Create(ctx, form.ToJob())
	if err != nil {
		return nil, err
	}

	metrics.IncreaseJobsEnqueued(job.JobType)
	zap.S().Named("job_queue").Infof("enqueued job %s of type %s", job.ID, job.JobType)
	return job, nil
}

func (s *JobQueueService) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

// Update applies a partial update under the state machine rules:
//
//   - first transition into the processing family stamps started_at once;
//   - completed forces progress to 100 and stamps completed_at;
//   - failed stores a non-empty error and stamps completed_at;
//   - terminal jobs are immutable (ErrJobFinished);
//   - progress is clamped into [0,100], not required to be monotonic;
//   - an update keeping the job active refreshes the worker lease.
func (s *JobQueueService) Update(ctx context.Context, form mappers.JobUpdateForm) (*model.Job, error) {
	job, err := s.GetJob(ctx, form.ID)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() {
		return nil, NewErrJobFinished(job.ID)
	}

	now := time.Now().UTC()
	fields := map[string]any{}

	if form.Progress != nil {
		fields["progress"] = clampProgress(*form.Progress)
	}
	if form.Message != nil {
		fields["message"] = *form.Message
	}
	if form.Error != nil {
		fields["error"] = *form.Error
	}
	if form.ResultData != nil {
		fields["result_data"] = model.MakeJSONField(form.ResultData)
	}
	if form.WorkerID != nil {
		fields["worker_id"] = *form.WorkerID
	}

	if form.Status != nil {
		status := *form.Status
		fields["status"] = status

		if status.IsProcessing() && job.StartedAt == nil {
			fields["started_at"] = now
		}

		switch status {
		case model.JobStatusCompleted:
			fields["progress"] = 100
			fields["completed_at"] = now
			fields["lease_expires_at"] = nil
			if form.Message == nil && job.Message == nil {
				fields["message"] = defaultCompletedMessage
			}
		case model.JobStatusFailed:
			fields["completed_at"] = now
			fields["lease_expires_at"] = nil
			// an empty error is as useless as an omitted one
			if blank(form.Error) && blank(job.Error) {
				fields["error"] = defaultFailedError
			}
			if form.Message == nil && job.Message == nil {
				fields["message"] = defaultFailedMessage
			}
		default:
			fields["lease_expires_at"] = now.Add(s.leaseFor)
		}
	} else if job.Status.IsProcessing() {
		// plain progress/message update from a live worker keeps the lease
		fields["lease_expires_at"] = now.Add(s.leaseFor)
	}

	updated, err := s.store.Job().Update(ctx, form.ID, fields)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(form.ID)
		}
		return nil, err
	}

	// terminal transitions count only once the write went through
	if form.Status != nil {
		switch *form.Status {
		case model.JobStatusCompleted:
			metrics.IncreaseJobsCompleted(updated.JobType)
		case model.JobStatusFailed:
			metrics.IncreaseJobsFailed(updated.JobType)
		}
	}
	return updated, nil
}

// UpdateProgress is a convenience wrapper over Update.
func (s *JobQueueService) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, message *string) (*model.Job, error) {
	return s.Update(ctx, mappers.JobUpdateForm{ID: id, Progress: &progress, Message: message})
}

// JobListFilter narrows and pages a job listing.
type JobListFilter struct {
	Statuses []model.JobStatus
	JobType  string
	Limit    int
	Offset   int
	OrderBy  store.SortOrder
}

// ListJobs returns one page of jobs plus the total count matching the filter.
func (s *JobQueueService) ListJobs(ctx context.Context, filter JobListFilter) (model.JobList, int64, error) {
	storeFilter := store.NewJobQueryFilter()
	if len(filter.Statuses) > 0 {
		storeFilter = storeFilter.ByStatus(filter.Statuses...)
	}
	if filter.JobType != "" {
		storeFilter = storeFilter.ByJobType(filter.JobType)
	}

	order := filter.OrderBy
	if order == store.Unsorted {
		order = store.SortByCreatedTime
	}
	opts := store.NewJobQueryOptions().
		WithSortOrder(order).
		WithLimit(filter.Limit).
		WithOffset(filter.Offset)

	jobs, err := s.store.Job().List(ctx, storeFilter, opts)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.store.Job().Count(ctx, storeFilter)
	if err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

// ClaimNext hands the highest-priority queued job to workerID, transitioning
// it to processing atomically. Returns nil when no eligible job exists.
func (s *JobQueueService) ClaimNext(ctx context.Context, jobTypes []string, workerID string) (*model.Job, error) {
	job, err := s.store.Job().ClaimNext(ctx, jobTypes, workerID, s.leaseFor)
	if err != nil {
		return nil, err
	}
	if job != nil && workerID != "" {
		metrics.IncreaseJobsClaimed(job.JobType)
		zap.S().Named("job_queue").Debugf("job %s claimed by %s", job.ID, workerID)
	}
	return job, nil
}

// JobStats reports per-status counts. Active sums every non-terminal status.
type JobStats struct {
	Counts map[model.JobStatus]int64
	Total  int64
	Active int64
}

func (s *JobQueueService) Stats(ctx context.Context, jobType string) (JobStats, error) {
	counts, err := s.store.Job().CountByStatus(ctx, jobType)
	if err != nil {
		return JobStats{}, err
	}

	stats := JobStats{Counts: make(map[model.JobStatus]int64, len(model.JobStatusValues))}
	for _, status := range model.JobStatusValues {
		count := counts[status]
		stats.Counts[status] = count
		stats.Total += count
		if status.IsActive() {
			stats.Active += count
		}
		metrics.SetQueueDepth(string(status), count)
	}
	return stats, nil
}

// CleanupOlderThan deletes jobs created before now minus the given number of
// days. Without an explicit status filter only terminal jobs are removed.
func (s *JobQueueService) CleanupOlderThan(ctx context.Context, days int, statuses []model.JobStatus) (int64, error) {
	if len(statuses) == 0 {
		statuses = model.TerminalStatuses
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	removed, err := s.store.Job().DeleteOlderThan(ctx, cutoff, statuses)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		zap.S().Named("job_queue").Infof("cleaned up %d old jobs", removed)
	}
	return removed, nil
}

// RequeueExpired returns abandoned in-progress jobs to the queue. A job is
// abandoned when its worker lease lapsed without a terminal transition.
func (s *JobQueueService) RequeueExpired(ctx context.Context) (int64, error) {
	requeued, err := s.store.Job().RequeueExpired(ctx, time.Now().UTC(), "Requeued after worker lease expired")
	if err != nil {
		return 0, err
	}

	if requeued > 0 {
		metrics.IncreaseJobsRequeued(requeued)
		zap.S().Named("job_queue").Warnf("requeued %d jobs with expired leases", requeued)
	}
	return requeued, nil
}

// DeleteJob removes a single job. Jobs a worker may still be driving are
// protected; only never-started queued jobs and terminal jobs qualify. The
// guard lives in the delete predicate itself, so a claim racing the delete
// either wins the row first or finds it gone.
func (s *JobQueueService) DeleteJob(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.store.Job().Delete(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		zap.S().Named("job_queue").Infof("deleted job %s", id)
		return nil
	}

	// nothing matched: the id is either unknown or held by a worker
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return NewErrJobActive(id)
}

func blank(s *string) bool {
	return s == nil || *s == ""
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
