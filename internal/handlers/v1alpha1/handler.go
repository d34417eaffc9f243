package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	api "github.com/soundforge/generation-api/api/v1alpha1"
	"github.com/soundforge/generation-api/internal/service"
	"github.com/soundforge/generation-api/pkg/requestid"
)

// ServiceHandler translates HTTP requests into job queue service calls.
type ServiceHandler struct {
	jobSrv        *service.JobQueueService
	generationSrv *service.GenerationService
	healthSrv     *service.HealthService
	validate      *validator.Validate
}

func NewServiceHandler(jobSrv *service.JobQueueService, generationSrv *service.GenerationService, healthSrv *service.HealthService) *ServiceHandler {
	return &ServiceHandler{
		jobSrv:        jobSrv,
		generationSrv: generationSrv,
		healthSrv:     healthSrv,
		validate:      validator.New(),
	}
}

// RegisterRoutes mounts the v1alpha1 API on the given router.
func (h *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/stats", h.GetJobStats)
			r.Get("/stats/{jobType}", h.GetJobStatsByType)
			r.Get("/{id}", h.GetJob)
			r.Put("/{id}", h.UpdateJob)
			r.Post("/{id}/progress", h.UpdateJobProgress)
			r.Delete("/{id}", h.DeleteJob)
		})
		r.Post("/generate/{model}", h.CreateGeneration)
		r.Get("/health", h.Health)
	})
}

func replyError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	render.JSON(w, r, api.Error{Message: message, RequestId: requestid.FromContextPtr(r.Context())})
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.healthSrv.Check(r.Context()); err != nil {
		replyError(w, r, http.StatusServiceUnavailable, err.Error())
		return
	}
	render.JSON(w, r, api.HealthReply{Status: "ok"})
}
