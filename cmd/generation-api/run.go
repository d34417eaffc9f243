package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apiserver "github.com/soundforge/generation-api/internal/api_server"
	"github.com/soundforge/generation-api/internal/config"
	"github.com/soundforge/generation-api/internal/generator"
	"github.com/soundforge/generation-api/internal/service"
	"github.com/soundforge/generation-api/internal/store"
	"github.com/soundforge/generation-api/internal/worker"
	"github.com/soundforge/generation-api/pkg/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the generation api",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			zap.S().Fatalw("reading configuration", "error", err)
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		zap.S().Info("Starting generation API service")
		defer zap.S().Info("Generation API service stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			zap.S().Fatalw("running initial migration", "error", err)
		}

		registry := generator.NewRegistry()
		for _, m := range generator.SupportedModels {
			registry.Register(
				service.JobTypeForModel(m),
				generator.NewPipelineGenerator(m, cfg.Service.OutputFolder, 500*time.Millisecond),
			)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, s, registry, listener)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("running api server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating metrics listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(cfg.Service.MetricsAddress, listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("running metrics server", "error", err)
			}
		}()

		jobSrv := service.NewJobQueueService(s, cfg.Worker.LeaseDuration)

		go worker.NewRequeuer(jobSrv, cfg.Worker.RequeueInterval).Run(ctx)
		go worker.NewSweeper(jobSrv, cfg.Worker.RetentionInterval, cfg.Worker.RetentionDays).Run(ctx)

		pool := worker.NewPool(jobSrv, registry, cfg.Worker.Count, cfg.Worker.PollInterval)
		pool.Run(ctx)

		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
