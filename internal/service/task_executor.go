package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang-backtest/internal/job"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
)

type TaskExecutor interface {
	Execute(ctx context.Context, taskHistory *model.TaskExecutionHistory) error
}

type taskExecutor struct {
	log                *logger.Logger
	jobRepo            repository.JobRepository
	executorStrategies map[job.JobType]job.JobExecutionStrategy
}

func NewTaskExecutor(log *logger.Logger, jobRepo repository.JobRepository, executorStrategies ...job.JobExecutionStrategy) TaskExecutor {
	byType := make(map[job.JobType]job.JobExecutionStrategy, len(executorStrategies))
	for _, s := range executorStrategies {
		byType[s.GetType()] = s
	}
	return &taskExecutor{
		log:                log,
		jobRepo:            jobRepo,
		executorStrategies: byType,
	}
}

// Execute runs the job behind taskHistory and records the outcome on it.
// A job that outlives its context is marked as timed out.
func (t *taskExecutor) Execute(ctx context.Context, taskHistory *model.TaskExecutionHistory) error {
	ctx = logger.NewContext(ctx, t.log.With(
		logger.IntField("job_id", int(taskHistory.JobID)),
		logger.IntField("history_id", int(taskHistory.ID)),
	))
	t.log.InfoContext(ctx, "Processing job")

	j, err := t.jobRepo.FindByID(ctx, taskHistory.JobID)
	if err != nil {
		t.log.ErrorContext(ctx, "Failed to find job", logger.ErrorField(err))
		return fmt.Errorf("failed to find job: %w", err)
	}

	executor := t.executorStrategies[job.JobType(j.Type)]
	if executor == nil {
		t.log.ErrorContext(ctx, "Job type not found", logger.StringField("job_type", j.Type))
		taskHistory.Status = model.StatusFailed
		taskHistory.ErrorMessage = sql.NullString{String: fmt.Sprintf("job type %q not found", j.Type), Valid: true}
	} else {
		result, err := executor.Execute(ctx, j)
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			taskHistory.Status = model.StatusTimeout
			taskHistory.ErrorMessage = sql.NullString{String: "job timed out", Valid: true}
		case err != nil:
			t.log.ErrorContext(ctx, "Failed to execute job", logger.ErrorField(err))
			taskHistory.Status = model.StatusFailed
			taskHistory.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		default:
			taskHistory.Status = model.StatusCompleted
		}
		taskHistory.ExitCode = sql.NullInt32{Int32: result.ExitCode, Valid: true}
		taskHistory.Output = sql.NullString{String: result.Output, Valid: true}
	}

	taskHistory.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	// the run context may already be done, the history row must still be written
	if err := t.jobRepo.UpdateTaskExecutionHistory(context.WithoutCancel(ctx), taskHistory); err != nil {
		t.log.ErrorContext(ctx, "Failed to update task execution history", logger.ErrorField(err))
		return fmt.Errorf("failed to update task execution history: %w", err)
	}
	return nil
}
