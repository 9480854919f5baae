package job

import (
	"context"

	"golang-backtest/internal/model"
)

const (
	JOB_EXIT_CODE_SUCCESS         = 200
	JOB_EXIT_CODE_FAILED          = 500
	JOB_EXIT_CODE_SKIPPED         = 204
	JOB_EXIT_CODE_PARTIAL_SUCCESS = 206
)

type JobType string

const (
	JobTypeStrategyBacktest JobType = "strategy_backtest"
	JobTypeSignalScan       JobType = "signal_scan"
	JobTypeDataCleanUp      JobType = "data_clean_up"
)

type JobResult struct {
	ExitCode int32  `json:"exit_code"`
	Output   string `json:"output"`
}

// JobExecutionStrategy runs one job type. Execute decodes job.Payload itself.
type JobExecutionStrategy interface {
	Execute(ctx context.Context, job *model.Job) (JobResult, error)
	GetType() JobType
}

// exitCode grades a batch by how many of its items failed.
func exitCode(total, failed int) int32 {
	switch {
	case total == 0:
		return JOB_EXIT_CODE_SKIPPED
	case failed == 0:
		return JOB_EXIT_CODE_SUCCESS
	case failed < total:
		return JOB_EXIT_CODE_PARTIAL_SUCCESS
	default:
		return JOB_EXIT_CODE_FAILED
	}
}
