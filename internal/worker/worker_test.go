package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/soundforge/generation-api/internal/config"
	"github.com/soundforge/generation-api/internal/generator"
	"github.com/soundforge/generation-api/internal/service"
	"github.com/soundforge/generation-api/internal/service/mappers"
	"github.com/soundforge/generation-api/internal/store"
	"github.com/soundforge/generation-api/internal/store/model"
	"github.com/soundforge/generation-api/internal/worker"
)

// fakeGenerator reports one intermediate phase and returns a fixed result or
// a fixed error.
type fakeGenerator struct {
	model  string
	result map[string]any
	err    error
}

func (g *fakeGenerator) Model() string { return g.model }

func (g *fakeGenerator) Generate(ctx context.Context, job *model.Job, report generator.ReportFunc) (map[string]any, error) {
	if err := report(model.JobStatusGeneratingAudio, 50, "Generating audio..."); err != nil {
		return nil, err
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

var _ = Describe("worker pool", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		srv    *service.JobQueueService
	)

	BeforeAll(func() {
		cfg, err := config.New()
		Expect(err).To(BeNil())
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())

		srv = service.NewJobQueueService(s, 5*time.Minute)
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
	})

	runPool := func(ctx context.Context, registry *generator.Registry) chan struct{} {
		done := make(chan struct{})
		pool := worker.NewPool(srv, registry, 1, 20*time.Millisecond)
		go func() {
			defer GinkgoRecover()
			pool.Run(ctx)
			close(done)
		}()
		return done
	}

	It("drives a queued job to completion", func() {
		registry := generator.NewRegistry()
		registry.Register("musicgen_generation", &fakeGenerator{
			model:  "musicgen",
			result: map[string]any{"output_file": "/out/a.mp3"},
		})

		job, err := srv.Enqueue(context.TODO(), mappers.JobCreateForm{JobType: "musicgen_generation"})
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := runPool(ctx, registry)

		Eventually(func() model.JobStatus {
			stored, err := srv.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			return stored.Status
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.JobStatusCompleted))

		cancel()
		Eventually(done, 5*time.Second).Should(BeClosed())

		stored, err := srv.GetJob(context.TODO(), job.ID)
		Expect(err).To(BeNil())
		Expect(stored.Progress).To(Equal(100))
		Expect(stored.StartedAt).ToNot(BeNil())
		Expect(stored.CompletedAt).ToNot(BeNil())
		Expect(stored.LeaseExpiresAt).To(BeNil())
		Expect(stored.ResultData.Data["output_file"]).To(Equal("/out/a.mp3"))
	})

	It("marks the job failed when the generator errors", func() {
		registry := generator.NewRegistry()
		registry.Register("musicgen_generation", &fakeGenerator{
			model: "musicgen",
			err:   errors.New("model server unreachable"),
		})

		job, err := srv.Enqueue(context.TODO(), mappers.JobCreateForm{JobType: "musicgen_generation"})
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := runPool(ctx, registry)

		Eventually(func() model.JobStatus {
			stored, err := srv.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			return stored.Status
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.JobStatusFailed))

		cancel()
		Eventually(done, 5*time.Second).Should(BeClosed())

		stored, err := srv.GetJob(context.TODO(), job.ID)
		Expect(err).To(BeNil())
		Expect(*stored.Error).To(Equal("model server unreachable"))
		Expect(stored.CompletedAt).ToNot(BeNil())
	})

	It("only claims job types it has a generator for", func() {
		registry := generator.NewRegistry()
		registry.Register("musicgen_generation", &fakeGenerator{model: "musicgen", result: map[string]any{}})

		other, err := srv.Enqueue(context.TODO(), mappers.JobCreateForm{JobType: "bark_generation"})
		Expect(err).To(BeNil())
		mine, err := srv.Enqueue(context.TODO(), mappers.JobCreateForm{JobType: "musicgen_generation"})
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := runPool(ctx, registry)

		Eventually(func() model.JobStatus {
			stored, err := srv.GetJob(context.TODO(), mine.ID)
			Expect(err).To(BeNil())
			return stored.Status
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.JobStatusCompleted))

		cancel()
		Eventually(done, 5*time.Second).Should(BeClosed())

		stored, err := srv.GetJob(context.TODO(), other.ID)
		Expect(err).To(BeNil())
		Expect(stored.Status).To(Equal(model.JobStatusQueued))
	})

	It("requeues an expired lease through the requeuer", func() {
		shortLease := service.NewJobQueueService(s, 10*time.Millisecond)

		job, err := shortLease.Enqueue(context.TODO(), mappers.JobCreateForm{JobType: "musicgen_generation"})
		Expect(err).To(BeNil())
		_, err = shortLease.ClaimNext(context.TODO(), nil, "worker-dead")
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			worker.NewRequeuer(shortLease, 20*time.Millisecond).Run(ctx)
			close(done)
		}()

		Eventually(func() model.JobStatus {
			stored, err := shortLease.GetJob(context.TODO(), job.ID)
			Expect(err).To(BeNil())
			return stored.Status
		}, 5*time.Second, 20*time.Millisecond).Should(Equal(model.JobStatusQueued))

		cancel()
		Eventually(done, 5*time.Second).Should(BeClosed())

		stored, err := shortLease.GetJob(context.TODO(), job.ID)
		Expect(err).To(BeNil())
		Expect(stored.WorkerID).To(BeNil())
	})
})
