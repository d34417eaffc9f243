package generator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/soundforge/generation-api/internal/store/model"
)

// SupportedModels are the backends the service ships with. Each is served by
// a PipelineGenerator until a real model server is wired in its place.
var SupportedModels = []string{"musicgen", "diffrhythm", "bark"}

// phase is one step of the generation pipeline with the progress value
// reported on entering it.
type phase struct {
	status   model.JobStatus
	progress int
	message  string
}

var pipelinePhases = []phase{
	{model.JobStatusLoadingModel, 5, "Loading model..."},
	{model.JobStatusPreparingPrompt, 15, "Preparing prompt..."},
	{model.JobStatusGeneratingAudio, 20, "Generating audio..."},
	{model.JobStatusExporting, 95, "Exporting audio..."},
}

// PipelineGenerator walks a job through the standard synthesis phases and
// produces a result payload pointing at the exported file. The actual model
// inference is stubbed with a configurable delay per phase.
type PipelineGenerator struct {
	model        string
	outputFolder string
	phaseDelay   time.Duration
}

var _ Generator = (*PipelineGenerator)(nil)

func NewPipelineGenerator(modelName, outputFolder string, phaseDelay time.Duration) *PipelineGenerator {
	return &PipelineGenerator{
		model:        modelName,
		outputFolder: outputFolder,
		phaseDelay:   phaseDelay,
	}
}

func (g *PipelineGenerator) Model() string {
	return g.model
}

func (g *PipelineGenerator) Generate(ctx context.Context, job *model.Job, report ReportFunc) (map[string]any, error) {
	request := map[string]any{}
	if job.RequestData != nil {
		request = job.RequestData.Data
	}

	for _, p := range pipelinePhases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := report(p.status, p.progress, p.message); err != nil {
			return nil, fmt.Errorf("reporting %s: %w", p.status, err)
		}

		zap.S().Named("generator").Debugf("job %s: %s", job.ID, p.message)

		select {
		case <-time.After(g.phaseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	duration := 30
	if d, ok := request["duration"].(float64); ok { // numbers decode as float64
		duration = int(d)
	}
	prompt, _ := request["prompt"].(string)

	return map[string]any{
		"output_file": filepath.Join(g.outputFolder, fmt.Sprintf("%s.mp3", job.ID)),
		"duration":    duration,
		"model":       g.model,
		"prompt":      prompt,
		"format":      "mp3",
	}, nil
}
