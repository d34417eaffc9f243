package store_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/soundforge/generation-api/internal/config"
	"github.com/soundforge/generation-api/internal/store"
	"github.com/soundforge/generation-api/internal/store/model"
)

const (
	insertJobStm = "INSERT INTO jobs (id, status, progress, job_type, priority, created_at, updated_at) VALUES ('%s', '%s', 0, '%s', %d, '%s', '%s');"
)

func insertJob(db *gorm.DB, id uuid.UUID, status model.JobStatus, jobType string, priority int, createdAt time.Time) {
	ts := createdAt.UTC().Format("2006-01-02 15:04:05.999999999-07:00")
	tx := db.Exec(fmt.Sprintf(insertJobStm, id, status, jobType, priority, ts, ts))
	Expect(tx.Error).To(BeNil())
}

var _ = Describe("job store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg, err := config.New()
		Expect(err).To(BeNil())
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db

		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	Context("create", func() {
		It("creates a job with queue defaults", func() {
			job, err := s.Job().Create(context.TODO(), model.Job{
				ID:      uuid.New(),
				Status:  model.JobStatusQueued,
				JobType: "musicgen_generation",
			})
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.Progress).To(Equal(0))
			Expect(job.WorkerID).To(BeNil())
			Expect(job.LeaseExpiresAt).To(BeNil())
		})

		It("rejects a duplicate id", func() {
			id := uuid.New()
			_, err := s.Job().Create(context.TODO(), model.Job{ID: id, Status: model.JobStatusQueued, JobType: "musicgen_generation"})
			Expect(err).To(BeNil())

			_, err = s.Job().Create(context.TODO(), model.Job{ID: id, Status: model.JobStatusQueued, JobType: "musicgen_generation"})
			Expect(err).To(Equal(store.ErrDuplicateKey))
		})
	})

	Context("get", func() {
		It("returns the job by id", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 5, time.Now())

			job, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(id))
			Expect(job.Priority).To(Equal(5))
		})

		It("returns ErrRecordNotFound for an unknown id", func() {
			_, err := s.Job().Get(context.TODO(), uuid.New())
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})
	})

	Context("update", func() {
		It("updates only the given columns", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			job, err := s.Job().Update(context.TODO(), id, map[string]any{
				"status":   model.JobStatusProcessing,
				"progress": 42,
			})
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusProcessing))
			Expect(job.Progress).To(Equal(42))
			Expect(job.JobType).To(Equal("musicgen_generation"))
		})

		It("returns ErrRecordNotFound for an unknown id", func() {
			_, err := s.Job().Update(context.TODO(), uuid.New(), map[string]any{"progress": 10})
			Expect(err).To(Equal(store.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("lists all jobs without filter", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusCompleted, "bark_generation", 0, time.Now())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter(), store.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		It("filters by status", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusCompleted, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusFailed, "musicgen_generation", 0, time.Now())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().ByStatus(model.JobStatusCompleted, model.JobStatusFailed), store.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
		})

		It("filters by job type", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "bark_generation", 0, time.Now())

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().ByJobType("bark_generation"), store.NewJobQueryOptions())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].JobType).To(Equal("bark_generation"))
		})

		It("applies limit and offset with newest first ordering", func() {
			base := time.Now().Add(-time.Hour)
			var ids []uuid.UUID
			for i := 0; i < 5; i++ {
				id := uuid.New()
				ids = append(ids, id)
				insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, base.Add(time.Duration(i)*time.Minute))
			}

			jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter(), store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime).WithLimit(2).WithOffset(1))
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].ID).To(Equal(ids[3]))
			Expect(jobs[1].ID).To(Equal(ids[2]))
		})
	})

	Context("count", func() {
		It("counts jobs matching the filter", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "bark_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusFailed, "bark_generation", 0, time.Now())

			count, err := s.Job().Count(context.TODO(), store.NewJobQueryFilter().ByJobType("bark_generation"))
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(2)))
		})

		It("counts jobs grouped by status", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusCompleted, "bark_generation", 0, time.Now())

			counts, err := s.Job().CountByStatus(context.TODO(), "")
			Expect(err).To(BeNil())
			Expect(counts[model.JobStatusQueued]).To(Equal(int64(2)))
			Expect(counts[model.JobStatusCompleted]).To(Equal(int64(1)))

			counts, err = s.Job().CountByStatus(context.TODO(), "bark_generation")
			Expect(err).To(BeNil())
			Expect(counts[model.JobStatusQueued]).To(Equal(int64(0)))
			Expect(counts[model.JobStatusCompleted]).To(Equal(int64(1)))
		})
	})

	Context("delete", func() {
		It("deletes a terminal job", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusCompleted, "musicgen_generation", 0, time.Now())

			deleted, err := s.Job().Delete(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(deleted).To(BeTrue())

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
		})

		It("deletes a queued job that never started", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			deleted, err := s.Job().Delete(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(deleted).To(BeTrue())
		})

		It("reports no match for an unknown id", func() {
			deleted, err := s.Job().Delete(context.TODO(), uuid.New())
			Expect(err).To(BeNil())
			Expect(deleted).To(BeFalse())
		})

		It("keeps a job a worker claimed after the caller last saw it queued", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			claimed, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(claimed.ID).To(Equal(id))

			deleted, err := s.Job().Delete(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(deleted).To(BeFalse())

			stored, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusProcessing))
		})

		It("keeps a requeued job that already started once", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			_, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(gormdb.Exec("UPDATE jobs SET status = 'queued', worker_id = NULL, lease_expires_at = NULL;").Error).To(BeNil())

			deleted, err := s.Job().Delete(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(deleted).To(BeFalse())
		})
	})

	Context("claim", func() {
		It("claims the highest priority job first", func() {
			low := uuid.New()
			high := uuid.New()
			insertJob(gormdb, low, model.JobStatusQueued, "musicgen_generation", 1, time.Now())
			insertJob(gormdb, high, model.JobStatusQueued, "musicgen_generation", 9, time.Now())

			job, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(job).ToNot(BeNil())
			Expect(job.ID).To(Equal(high))
			Expect(job.Status).To(Equal(model.JobStatusProcessing))
			Expect(job.WorkerID).ToNot(BeNil())
			Expect(*job.WorkerID).To(Equal("worker-1"))
			Expect(job.StartedAt).ToNot(BeNil())
			Expect(job.LeaseExpiresAt).ToNot(BeNil())
		})

		It("breaks priority ties by enqueue time", func() {
			older := uuid.New()
			newer := uuid.New()
			insertJob(gormdb, newer, model.JobStatusQueued, "musicgen_generation", 5, time.Now())
			insertJob(gormdb, older, model.JobStatusQueued, "musicgen_generation", 5, time.Now().Add(-time.Minute))

			job, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(older))
		})

		It("only claims jobs of the requested types", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusQueued, "bark_generation", 9, time.Now())

			job, err := s.Job().ClaimNext(context.TODO(), []string{"musicgen_generation"}, "worker-1", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(job).To(BeNil())
		})

		It("returns nil when nothing is eligible", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusProcessing, "musicgen_generation", 0, time.Now())
			insertJob(gormdb, uuid.New(), model.JobStatusCompleted, "musicgen_generation", 0, time.Now())

			job, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(job).To(BeNil())
		})

		It("peeks without claiming when no worker id is given", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			job, err := s.Job().ClaimNext(context.TODO(), nil, "", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(job.ID).To(Equal(id))
			Expect(job.Status).To(Equal(model.JobStatusQueued))

			stored, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusQueued))
			Expect(stored.WorkerID).To(BeNil())
		})

		It("hands a contended job to exactly one claimer", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			const claimers = 8
			winners := make(chan string, claimers)
			var wg sync.WaitGroup
			for i := 0; i < claimers; i++ {
				workerID := fmt.Sprintf("worker-%d", i)
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					job, err := s.Job().ClaimNext(context.TODO(), nil, workerID, 5*time.Minute)
					Expect(err).To(BeNil())
					if job != nil {
						winners <- workerID
					}
				}()
			}
			wg.Wait()
			close(winners)

			var got []string
			for w := range winners {
				got = append(got, w)
			}
			Expect(got).To(HaveLen(1))

			stored, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(stored.Status).To(Equal(model.JobStatusProcessing))
			Expect(*stored.WorkerID).To(Equal(got[0]))
		})

		It("keeps the original started_at when a requeued job is claimed again", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			first, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(first.ID).To(Equal(id))

			_, err = s.Job().Update(context.TODO(), id, map[string]any{"status": model.JobStatusQueued, "worker_id": nil, "lease_expires_at": nil})
			Expect(err).To(BeNil())

			second, err := s.Job().ClaimNext(context.TODO(), nil, "worker-2", 5*time.Minute)
			Expect(err).To(BeNil())
			Expect(second.ID).To(Equal(id))
			Expect(second.StartedAt.Unix()).To(Equal(first.StartedAt.Unix()))
		})
	})

	Context("retention", func() {
		It("deletes only terminal jobs older than the cutoff", func() {
			oldCompleted := uuid.New()
			oldQueued := uuid.New()
			recentCompleted := uuid.New()
			insertJob(gormdb, oldCompleted, model.JobStatusCompleted, "musicgen_generation", 0, time.Now().AddDate(0, 0, -40))
			insertJob(gormdb, oldQueued, model.JobStatusQueued, "musicgen_generation", 0, time.Now().AddDate(0, 0, -40))
			insertJob(gormdb, recentCompleted, model.JobStatusCompleted, "musicgen_generation", 0, time.Now())

			cutoff := time.Now().AddDate(0, 0, -30)
			n, err := s.Job().DeleteOlderThan(context.TODO(), cutoff, model.TerminalStatuses)
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(1)))

			_, err = s.Job().Get(context.TODO(), oldCompleted)
			Expect(err).To(Equal(store.ErrRecordNotFound))
			_, err = s.Job().Get(context.TODO(), oldQueued)
			Expect(err).To(BeNil())
			_, err = s.Job().Get(context.TODO(), recentCompleted)
			Expect(err).To(BeNil())
		})

		It("is idempotent", func() {
			insertJob(gormdb, uuid.New(), model.JobStatusFailed, "musicgen_generation", 0, time.Now().AddDate(0, 0, -40))

			cutoff := time.Now().AddDate(0, 0, -30)
			n, err := s.Job().DeleteOlderThan(context.TODO(), cutoff, model.TerminalStatuses)
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(1)))

			n, err = s.Job().DeleteOlderThan(context.TODO(), cutoff, model.TerminalStatuses)
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(0)))
		})
	})

	Context("requeue", func() {
		It("returns jobs with expired leases to the queue", func() {
			id := uuid.New()
			insertJob(gormdb, id, model.JobStatusQueued, "musicgen_generation", 0, time.Now())

			_, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", -time.Minute)
			Expect(err).To(BeNil())

			n, err := s.Job().RequeueExpired(context.TODO(), time.Now().UTC(), "requeued")
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(1)))

			job, err := s.Job().Get(context.TODO(), id)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusQueued))
			Expect(job.WorkerID).To(BeNil())
			Expect(job.LeaseExpiresAt).To(BeNil())
		})

		It("leaves live leases and terminal jobs alone", func() {
			live := uuid.New()
			insertJob(gormdb, live, model.JobStatusQueued, "musicgen_generation", 0, time.Now())
			_, err := s.Job().ClaimNext(context.TODO(), nil, "worker-1", time.Hour)
			Expect(err).To(BeNil())

			done := uuid.New()
			insertJob(gormdb, done, model.JobStatusCompleted, "musicgen_generation", 0, time.Now())
			_, err = s.Job().Update(context.TODO(), done, map[string]any{"lease_expires_at": time.Now().Add(-time.Hour)})
			Expect(err).To(BeNil())

			n, err := s.Job().RequeueExpired(context.TODO(), time.Now().UTC(), "requeued")
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(0)))

			job, err := s.Job().Get(context.TODO(), live)
			Expect(err).To(BeNil())
			Expect(job.Status).To(Equal(model.JobStatusProcessing))
		})
	})

	Context("transaction", func() {
		It("commits a created job", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.Job().Create(ctx, model.Job{ID: uuid.New(), Status: model.JobStatusQueued, JobType: "musicgen_generation"})
			Expect(err).To(BeNil())

			_, cerr := store.Commit(ctx)
			Expect(cerr).To(BeNil())

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(1))
		})

		It("rolls back a created job", func() {
			ctx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			_, err = s.Job().Create(ctx, model.Job{ID: uuid.New(), Status: model.JobStatusQueued, JobType: "musicgen_generation"})
			Expect(err).To(BeNil())

			_, rerr := store.Rollback(ctx)
			Expect(rerr).To(BeNil())

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) FROM jobs;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(0))
		})
	})
})
