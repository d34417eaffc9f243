package worker

import (
	"context"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/soundforge/generation-api/internal/service"
)

// Requeuer returns abandoned jobs to the queue. A job is abandoned when the
// worker that claimed it stopped renewing its lease, typically after a crash
// or a hard restart mid-generation.
type Requeuer struct {
	queue    *service.JobQueueService
	interval time.Duration
}

func NewRequeuer(queue *service.JobQueueService, interval time.Duration) *Requeuer {
	return &Requeuer{queue: queue, interval: interval}
}

func (r *Requeuer) Run(ctx context.Context) {
	log := zap.S().Named("requeuer")

	ticker := jitterbug.New(r.interval, &jitterbug.Norm{Stdev: r.interval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("requeuer stopped")
			return
		case <-ticker.C:
			n, err := r.queue.RequeueExpired(ctx)
			if err != nil {
				log.Errorf("requeuing expired jobs: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("requeued %d jobs with expired leases", n)
			}
		}
	}
}

// Sweeper deletes finished jobs older than the retention window so the jobs
// table doesn't grow without bound.
type Sweeper struct {
	queue         *service.JobQueueService
	interval      time.Duration
	retentionDays int
}

func NewSweeper(queue *service.JobQueueService, interval time.Duration, retentionDays int) *Sweeper {
	return &Sweeper{queue: queue, interval: interval, retentionDays: retentionDays}
}

func (s *Sweeper) Run(ctx context.Context) {
	log := zap.S().Named("sweeper")

	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: time.Minute})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.queue.CleanupOlderThan(ctx, s.retentionDays, nil)
			if err != nil {
				log.Errorf("cleaning up old jobs: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("removed %d jobs older than %d days", n, s.retentionDays)
			}
		}
	}
}
