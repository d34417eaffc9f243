package v1alpha1

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	api "github.com/soundforge/generation-api/api/v1alpha1"
)

func (h *ServiceHandler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	modelName := chi.URLParam(r, "model")

	var body api.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		replyError(w, r, http.StatusBadRequest, fmt.Sprintf("failed to decode request body: %v", err))
		return
	}
	if body.Duration == 0 {
		body.Duration = 30
	}
	if err := h.validate.Struct(body); err != nil {
		replyError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.generationSrv.Start(r.Context(), modelName, body.Prompt, body.Duration, body.Priority)
	if err != nil {
		h.replyJobError(w, r, err)
		return
	}

	message := fmt.Sprintf("Generation job queued using model %s", modelName)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, api.GenerationReply{
		JobId:   job.ID.String(),
		Status:  string(job.Status),
		Message: message,
	})
}
