// Package worker runs the bounded pool of generation workers. Each worker
// pulls jobs from the queue on a jittered poll interval, drives them through
// the generator pipeline and reports the terminal transition. Pool size caps
// how many generations run concurrently in this process.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jitterbug "github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/soundforge/generation-api/internal/generator"
	"github.com/soundforge/generation-api/internal/service"
	"github.com/soundforge/generation-api/internal/service/mappers"
	"github.com/soundforge/generation-api/internal/store/model"
)

type Pool struct {
	queue        *service.JobQueueService
	registry     *generator.Registry
	count        int
	pollInterval time.Duration
}

func NewPool(queue *service.JobQueueService, registry *generator.Registry, count int, pollInterval time.Duration) *Pool {
	if count < 1 {
		count = 1
	}
	return &Pool{
		queue:        queue,
		registry:     registry,
		count:        count,
		pollInterval: pollInterval,
	}
}

// Run blocks until ctx is cancelled and every worker drained.
func (p *Pool) Run(ctx context.Context) {
	jobTypes := p.registry.JobTypes()
	zap.S().Named("worker").Infof("starting %d workers for job types %v", p.count, jobTypes)

	var wg sync.WaitGroup
	for i := 0; i < p.count; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx, workerID, jobTypes)
		}()
	}
	wg.Wait()

	zap.S().Named("worker").Info("worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, workerID string, jobTypes []string) {
	log := zap.S().Named("worker").With("worker_id", workerID)

	// jitter spreads the polling of the workers so they don't stampede the
	// jobs table in lockstep
	ticker := jitterbug.New(p.pollInterval, &jitterbug.Norm{Stdev: p.pollInterval / 10})
	defer ticker.Stop()

	for {
		// drain everything claimable before going back to sleep
		for {
			job, err := p.queue.ClaimNext(ctx, jobTypes, workerID)
			if err != nil {
				log.Errorf("claiming next job: %v", err)
				break
			}
			if job == nil {
				break
			}
			p.process(ctx, log, job)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) process(ctx context.Context, log *zap.SugaredLogger, job *model.Job) {
	log.Infof("processing job %s of type %s", job.ID, job.JobType)

	gen, ok := p.registry.Lookup(job.JobType)
	if !ok {
		// claimable only through a direct API update into queued with a type
		// no local backend serves
		p.markFailed(ctx, log, job, fmt.Sprintf("no generator registered for job type %s", job.JobType))
		return
	}

	report := func(status model.JobStatus, progress int, message string) error {
		_, err := p.queue.Update(ctx, mappers.JobUpdateForm{
			ID:       job.ID,
			Status:   &status,
			Progress: &progress,
			Message:  &message,
		})
		return err
	}

	result, err := gen.Generate(ctx, job, report)
	if err != nil {
		if ctx.Err() != nil {
			// shutdown mid-job: leave the job in its last active state, the
			// lease requeuer hands it to another worker later
			log.Warnf("job %s interrupted by shutdown", job.ID)
			return
		}
		p.markFailed(ctx, log, job, err.Error())
		return
	}

	status := model.JobStatusCompleted
	message := "Generation completed successfully"
	if _, err := p.queue.Update(ctx, mappers.JobUpdateForm{
		ID:         job.ID,
		Status:     &status,
		Message:    &message,
		ResultData: result,
	}); err != nil {
		log.Errorf("marking job %s completed: %v", job.ID, err)
		return
	}

	log.Infof("job %s completed", job.ID)
}

// markFailed records the failure on the job. The marking itself may hit a
// storage error; that is logged and swallowed so a worker never crashes on
// its failure path.
func (p *Pool) markFailed(ctx context.Context, log *zap.SugaredLogger, job *model.Job, errText string) {
	status := model.JobStatusFailed
	message := fmt.Sprintf("Generation failed: %s", errText)
	if _, err := p.queue.Update(ctx, mappers.JobUpdateForm{
		ID:      job.ID,
		Status:  &status,
		Error:   &errText,
		Message: &message,
	}); err != nil {
		log.Errorf("marking job %s failed: %v", job.ID, err)
		return
	}
	log.Warnf("job %s failed: %s", job.ID, errText)
}
