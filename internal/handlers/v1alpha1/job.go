package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	api "github.com/soundforge/generation-api/api/v1alpha1"
	"github.com/soundforge/generation-api/internal/handlers/v1alpha1/mappers"
	"github.com/soundforge/generation-api/internal/service"
	svcmappers "github.com/soundforge/generation-api/internal/service/mappers"
	"github.com/soundforge/generation-api/internal/store"
	"github.com/soundforge/generation-api/internal/store/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var body api.JobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		replyError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode request body: %v", err))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		replyError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	initialStatus := model.JobStatusQueued
	if body.Status != "" {
		status, ok := model.ParseJobStatus(body.Status)
		if !ok {
			replyError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", body.Status))
			return
		}
		initialStatus = status
	}

	job, err := h.jobSrv.Enqueue(r.Context(), svcmappers.JobCreateForm{
		JobType:       body.JobType,
		RequestData:   body.RequestData,
		Priority:      body.Priority,
		InitialStatus: initialStatus,
	})
	if err != nil {
		replyError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to create job: %v", err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.jobSrv.GetJob(r.Context(), id)
	if err != nil {
		h.replyJobError(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *ServiceHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	var body api.JobUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		replyError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode request body: %v", err))
		return
	}
	if err := h.validate.Struct(body); err != nil {
		replyError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	form := svcmappers.JobUpdateForm{
		ID:         id,
		Progress:   body.Progress,
		Message:    body.Message,
		Error:      body.Error,
		ResultData: body.ResultData,
		WorkerID:   body.WorkerId,
	}
	if body.Status != nil {
		status, ok := model.ParseJobStatus(*body.Status)
		if !ok {
			replyError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", *body.Status))
			return
		}
		form.Status = &status
	}

	job, err := h.jobSrv.Update(r.Context(), form)
	if err != nil {
		h.replyJobError(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *ServiceHandler) UpdateJobProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	progress, err := strconv.Atoi(r.URL.Query().Get("progress"))
	if err != nil {
		replyError(w, r, http.StatusUnprocessableEntity, "progress must be an integer between 0 and 100")
		return
	}
	// strict boundary validation, unlike the clamping internal update path
	if progress < 0 || progress > 100 {
		replyError(w, r, http.StatusUnprocessableEntity, "progress must be between 0 and 100")
		return
	}

	var message *string
	if m := r.URL.Query().Get("message"); m != "" {
		message = &m
	}

	job, err := h.jobSrv.UpdateProgress(r.Context(), id, progress, message)
	if err != nil {
		h.replyJobError(w, r, err)
		return
	}

	render.JSON(w, r, mappers.JobToApi(*job))
}

func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := service.JobListFilter{
		JobType: query.Get("job_type"),
		Limit:   defaultListLimit,
	}

	if statusParam := query.Get("status"); statusParam != "" {
		for _, s := range strings.Split(statusParam, ",") {
			status, ok := model.ParseJobStatus(strings.TrimSpace(s))
			if !ok {
				replyError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid status: %s", s))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if limitParam := query.Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > maxListLimit {
			replyError(w, r, http.StatusBadRequest, fmt.Sprintf("limit must be an integer between 1 and %d", maxListLimit))
			return
		}
		filter.Limit = limit
	}

	if offsetParam := query.Get("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			replyError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	switch query.Get("order_by") {
	case "", "created_at":
		filter.OrderBy = store.SortByCreatedTime
	case "updated_at":
		filter.OrderBy = store.SortByUpdatedTime
	case "priority":
		filter.OrderBy = store.SortByPriority
	default:
		replyError(w, r, http.StatusBadRequest, "order_by must be one of created_at, updated_at, priority")
		return
	}

	jobs, total, err := h.jobSrv.ListJobs(r.Context(), filter)
	if err != nil {
		replyError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to list jobs: %v", err))
		return
	}

	render.JSON(w, r, mappers.JobListToApi(jobs, total, filter.Limit, filter.Offset))
}

func (h *ServiceHandler) GetJobStats(w http.ResponseWriter, r *http.Request) {
	h.jobStats(w, r, "")
}

func (h *ServiceHandler) GetJobStatsByType(w http.ResponseWriter, r *http.Request) {
	h.jobStats(w, r, chi.URLParam(r, "jobType"))
}

func (h *ServiceHandler) jobStats(w http.ResponseWriter, r *http.Request, jobType string) {
	stats, err := h.jobSrv.Stats(r.Context(), jobType)
	if err != nil {
		replyError(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to get job stats: %v", err))
		return
	}
	render.JSON(w, r, mappers.JobStatsToApi(stats))
}

func (h *ServiceHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		replyError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	if err := h.jobSrv.DeleteJob(r.Context(), id); err != nil {
		h.replyJobError(w, r, err)
		return
	}

	render.JSON(w, r, api.DeleteReply{Message: fmt.Sprintf("Job %s deleted successfully", id)})
}

// replyJobError maps service error types to HTTP statuses. Anything not
// recognized is a storage failure and surfaces as a 500.
func (h *ServiceHandler) replyJobError(w http.ResponseWriter, r *http.Request, err error) {
	switch err.(type) {
	case *service.ErrJobNotFound:
		replyError(w, r, http.StatusNotFound, err.Error())
	case *service.ErrInvalidJobStatus, *service.ErrJobActive, *service.ErrUnknownModel:
		replyError(w, r, http.StatusBadRequest, err.Error())
	case *service.ErrJobFinished:
		replyError(w, r, http.StatusConflict, err.Error())
	default:
		replyError(w, r, http.StatusInternalServerError, err.Error())
	}
}
