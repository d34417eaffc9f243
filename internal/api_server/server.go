package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/soundforge/generation-api/internal/config"
	"github.com/soundforge/generation-api/internal/generator"
	handlers "github.com/soundforge/generation-api/internal/handlers/v1alpha1"
	"github.com/soundforge/generation-api/internal/service"
	"github.com/soundforge/generation-api/internal/store"
	"github.com/soundforge/generation-api/pkg/metrics"
	"github.com/soundforge/generation-api/pkg/middleware"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	store    store.Store
	registry *generator.Registry
	listener net.Listener
}

// New returns a new instance of a generation-api server.
func New(
	cfg *config.Config,
	store store.Store,
	registry *generator.Registry,
	listener net.Listener,
) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		listener: listener,
	}
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Service.CORSOrigins,
			AllowedMethods:   []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	jobSrv := service.NewJobQueueService(s.store, s.cfg.Worker.LeaseDuration)
	generationSrv := service.NewGenerationService(jobSrv, s.registry.Models())
	healthSrv := service.NewHealthService(s.store)

	h := handlers.NewServiceHandler(jobSrv, generationSrv, healthSrv)
	h.RegisterRoutes(router)

	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
