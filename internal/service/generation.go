package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/soundforge/generation-api/internal/service/mappers"
	"github.com/soundforge/generation-api/internal/store/model"
)

// GenerationService fronts the queue for the generation endpoint. It knows
// which model backends are registered and enqueues one job per request; the
// worker pool picks jobs up from there.
type GenerationService struct {
	queue  *JobQueueService
	models []string
}

func NewGenerationService(queue *JobQueueService, models []string) *GenerationService {
	return &GenerationService{queue: queue, models: models}
}

// SupportedModels lists the registered generator backends.
func (s *GenerationService) SupportedModels() []string {
	return slices.Clone(s.models)
}

func (s *GenerationService) Start(ctx context.Context, modelName, prompt string, duration, priority int) (*model.Job, error) {
	if !slices.Contains(s.models, modelName) {
		return nil, NewErrUnknownModel(modelName, s.models)
	}

	return s.queue.Enqueue(ctx, mappers.JobCreateForm{
		JobType: JobTypeForModel(modelName),
		RequestData: map[string]any{
			"prompt":   prompt,
			"duration": duration,
			"model":    modelName,
		},
		Priority: priority,
	})
}

// JobTypeForModel derives the queue job type for a generator backend,
// e.g. "diffrhythm" -> "diffrhythm_generation".
func JobTypeForModel(modelName string) string {
	return fmt.Sprintf("%s_generation", modelName)
}
