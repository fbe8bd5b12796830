package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/feed-mirror/app/content"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

type RunPipelineTask struct {
	tasks.Task
	pipeline *Pipeline
}

func NewRunPipelineTask(pipeline *Pipeline, subject string) *RunPipelineTask {
	return &RunPipelineTask{
		Task:     tasks.NewTask(tasks.TaskTypeRunPipeline, subject),
		pipeline: pipeline,
	}
}

// Execute skips quietly when another run holds the lock. Systemic failures
// are returned so the scheduler retries them.
func (t *RunPipelineTask) Execute(ctx context.Context) error {
	stats, err := t.pipeline.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		slog.Info("Pipeline run already in progress, skipping trigger", "id", t.ID)
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("Task completed", "type", string(t.Type), "processed", stats.Processed, "saved", stats.Saved, "errors", stats.Errors, "duration", t.GetDuration().String())
	return nil
}

// Trigger builds the periodic task for the scheduler.
func Trigger(pipeline *Pipeline, subject string) tasks.Trigger {
	return func() tasks.TaskInterface {
		return NewRunPipelineTask(pipeline, subject)
	}
}

type ProcessURLTask struct {
	tasks.Task
	pipeline *Pipeline
}

func NewProcessURLTask(pipeline *Pipeline, url string) *ProcessURLTask {
	return &ProcessURLTask{
		Task:     tasks.NewTask(tasks.TaskTypeProcessURL, url),
		pipeline: pipeline,
	}
}

// Execute retries only failures a second attempt could fix.
func (t *ProcessURLTask) Execute(ctx context.Context) error {
	result := t.pipeline.ProcessSpecificURL(ctx, t.Subject)
	if result.Success {
		slog.Info("Task completed", "type", string(t.Type), "url", t.Subject, "new", result.IsNew, "mirror", result.MirrorURL)
		return nil
	}

	var validationErr *content.ValidationError
	switch {
	case errors.Is(result.Err, ErrAlreadyProcessed):
		slog.Info("URL already mirrored", "url", t.Subject, "mirror", result.MirrorURL)
		return nil
	case errors.As(result.Err, &validationErr):
		slog.Warn("URL rejected", "url", t.Subject, "reason", validationErr.Reason)
		return nil
	}
	return result.Err
}
