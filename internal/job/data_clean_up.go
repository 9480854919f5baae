package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
)

type DataCleanUpPayload struct {
	RetentionDays int `json:"retention_days"`
}

type DataCleanUpResult struct {
	Table string `json:"table"`
	Total int64  `json:"total"`
	Error string `json:"error,omitempty"`
}

// DataCleanUpStrategy removes backtest results and task history past the
// retention window.
type DataCleanUpStrategy struct {
	log                *logger.Logger
	backtestResultRepo repository.BacktestResultRepository
	jobRepo            repository.JobRepository
	now                func() time.Time
}

func NewDataCleanUpStrategy(log *logger.Logger, backtestResultRepo repository.BacktestResultRepository, jobRepo repository.JobRepository) JobExecutionStrategy {
	return &DataCleanUpStrategy{
		log:                log,
		backtestResultRepo: backtestResultRepo,
		jobRepo:            jobRepo,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

func (s *DataCleanUpStrategy) GetType() JobType {
	return JobTypeDataCleanUp
}

func (s *DataCleanUpStrategy) Execute(ctx context.Context, job *model.Job) (JobResult, error) {
	s.log.InfoContext(ctx, "Starting data clean up")

	var payload DataCleanUpPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		s.log.ErrorContext(ctx, "Failed to unmarshal job payload", logger.ErrorField(err), logger.IntField("job_id", int(job.ID)))
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: fmt.Sprintf("failed to unmarshal job payload: %v", err)}, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	if payload.RetentionDays <= 0 {
		return JobResult{ExitCode: JOB_EXIT_CODE_SKIPPED, Output: "retention_days not set"}, nil
	}

	date := s.now().AddDate(0, 0, -payload.RetentionDays)
	steps := []struct {
		table string
		fn    func(context.Context, time.Time) (int64, error)
	}{
		{"backtest_results", func(ctx context.Context, t time.Time) (int64, error) {
			return s.backtestResultRepo.DeleteOlderThan(ctx, t)
		}},
		{"task_execution_history", func(ctx context.Context, t time.Time) (int64, error) {
			return s.jobRepo.DeleteTaskHistoryOlderThan(ctx, t)
		}},
	}

	outputMsg := make([]DataCleanUpResult, 0, len(steps))
	failed := 0
	for _, step := range steps {
		total, err := step.fn(ctx, date)
		out := DataCleanUpResult{Table: step.table, Total: total}
		if err != nil {
			failed++
			s.log.ErrorContext(ctx, "Failed to delete old rows", logger.ErrorField(err), logger.StringField("table", step.table))
			out.Error = fmt.Sprintf("failed to delete %s older than %v: %v", step.table, date, err)
		}
		outputMsg = append(outputMsg, out)
	}

	res, err := json.Marshal(outputMsg)
	if err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: fmt.Sprintf("failed to marshal output message: %v", err)}, fmt.Errorf("failed to marshal output message: %w", err)
	}
	return JobResult{ExitCode: exitCode(len(steps), failed), Output: string(res)}, nil
}
