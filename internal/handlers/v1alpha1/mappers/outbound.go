package mappers

import (
	api "github.com/soundforge/generation-api/api/v1alpha1"
	"github.com/soundforge/generation-api/internal/service"
	"github.com/soundforge/generation-api/internal/store/model"
)

func JobToApi(j model.Job) api.Job {
	out := api.Job{
		Id:          j.ID.String(),
		Status:      string(j.Status),
		Progress:    j.Progress,
		JobType:     j.JobType,
		Priority:    j.Priority,
		Message:     j.Message,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		WorkerId:    j.WorkerID,
	}
	if j.RequestData != nil {
		out.RequestData = j.RequestData.Data
	}
	if j.ResultData != nil {
		out.ResultData = j.ResultData.Data
	}
	return out
}

func JobListToApi(jobs model.JobList, total int64, limit, offset int) api.JobList {
	out := api.JobList{
		Jobs:   make([]api.Job, 0, len(jobs)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, JobToApi(j))
	}
	return out
}

func JobStatsToApi(stats service.JobStats) api.JobStats {
	return api.JobStats{
		Queued:          stats.Counts[model.JobStatusQueued],
		Pending:         stats.Counts[model.JobStatusPending],
		Processing:      stats.Counts[model.JobStatusProcessing],
		LoadingModel:    stats.Counts[model.JobStatusLoadingModel],
		PreparingPrompt: stats.Counts[model.JobStatusPreparingPrompt],
		GeneratingAudio: stats.Counts[model.JobStatusGeneratingAudio],
		Exporting:       stats.Counts[model.JobStatusExporting],
		Analyzing:       stats.Counts[model.JobStatusAnalyzing],
		Rendering:       stats.Counts[model.JobStatusRendering],
		Completed:       stats.Counts[model.JobStatusCompleted],
		Failed:          stats.Counts[model.JobStatusFailed],
		Total:           stats.Total,
		Active:          stats.Active,
	}
}
