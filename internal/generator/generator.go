// Package generator defines the contract between the worker pool and the
// model backends that produce audio. Real backends wrap external model
// servers; the built-in pipeline generator simulates one end to end.
package generator

import (
	"context"
	"sort"

	"github.com/soundforge/generation-api/internal/store/model"
)

// ReportFunc feeds pipeline phase, progress and a human-readable message
// back into the job queue. Implementations must tolerate it returning an
// error (e.g. the job was force-deleted) by aborting the generation.
type ReportFunc func(status model.JobStatus, progress int, message string) error

// Generator is one model backend. Generate drives a claimed job through its
// pipeline phases via report and returns the result payload attached to the
// job on completion.
type Generator interface {
	Model() string
	Generate(ctx context.Context, job *model.Job, report ReportFunc) (map[string]any, error)
}

// Registry maps queue job types to their generator backends.
type Registry struct {
	byJobType map[string]Generator
}

func NewRegistry() *Registry {
	return &Registry{byJobType: make(map[string]Generator)}
}

func (r *Registry) Register(jobType string, g Generator) {
	r.byJobType[jobType] = g
}

func (r *Registry) Lookup(jobType string) (Generator, bool) {
	g, ok := r.byJobType[jobType]
	return g, ok
}

// JobTypes returns the job types workers should claim, sorted for stable
// logging and tests.
func (r *Registry) JobTypes() []string {
	types := make([]string, 0, len(r.byJobType))
	for t := range r.byJobType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Models returns the model names of all registered backends.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.byJobType))
	for _, g := range r.byJobType {
		models = append(models, g.Model())
	}
	sort.Strings(models)
	return models
}
