package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang-backtest/internal/contract"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

// StrategyBacktestPayload describes a rolling window ending at the day the
// job runs. An empty StrategyIDs runs every active strategy.
type StrategyBacktestPayload struct {
	StrategyIDs        []string               `json:"strategy_ids"`
	WindowDays         int                    `json:"window_days"`
	InitialCapital     float64                `json:"initial_capital"`
	Commission         float64                `json:"commission"`
	Slippage           float64                `json:"slippage"`
	Benchmark          string                 `json:"benchmark"`
	Timeframe          dto.Timeframe          `json:"timeframe"`
	RebalanceFrequency dto.RebalanceFrequency `json:"rebalance_frequency"`
	SharedCapital      bool                   `json:"shared_capital"`
}

type StrategyBacktestResult struct {
	StrategyID  string  `json:"strategy_id"`
	Results     int     `json:"results"`
	TotalReturn float64 `json:"total_return,omitempty"`
	Error       string  `json:"error,omitempty"`
}

type StrategyBacktestStrategy struct {
	log          *logger.Logger
	backtest     contract.BacktestContract
	strategyRepo repository.StrategyRepository
	now          func() time.Time
}

func NewStrategyBacktestStrategy(log *logger.Logger, backtest contract.BacktestContract, strategyRepo repository.StrategyRepository) JobExecutionStrategy {
	return &StrategyBacktestStrategy{
		log:          log,
		backtest:     backtest,
		strategyRepo: strategyRepo,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *StrategyBacktestStrategy) GetType() JobType {
	return JobTypeStrategyBacktest
}

func (s *StrategyBacktestStrategy) Execute(ctx context.Context, job *model.Job) (JobResult, error) {
	var payload StrategyBacktestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		s.log.ErrorContext(ctx, "Failed to unmarshal job payload", logger.ErrorField(err), logger.IntField("job_id", int(job.ID)))
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: fmt.Sprintf("failed to unmarshal job payload: %v", err)}, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 365
	}

	ids := payload.StrategyIDs
	if len(ids) == 0 {
		active, err := s.strategyRepo.Get(ctx, dto.GetStrategiesParam{IsActive: utils.ToPointer(true)})
		if err != nil {
			return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: err.Error()}, fmt.Errorf("failed to list active strategies: %w", err)
		}
		for _, st := range active {
			ids = append(ids, st.ID)
		}
	}

	end := s.now().Truncate(24 * time.Hour)
	cfg := dto.BacktestConfig{
		StartDate:          end.AddDate(0, 0, -payload.WindowDays),
		EndDate:            end,
		InitialCapital:     payload.InitialCapital,
		Commission:         payload.Commission,
		Slippage:           payload.Slippage,
		Benchmark:          payload.Benchmark,
		Timeframe:          payload.Timeframe,
		RebalanceFrequency: payload.RebalanceFrequency,
		SharedCapital:      payload.SharedCapital,
	}

	outputs := make([]StrategyBacktestResult, 0, len(ids))
	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			s.log.WarnContext(ctx, "Backtest job cancelled", logger.ErrorField(ctx.Err()))
			break
		}
		out := StrategyBacktestResult{StrategyID: id}
		results, err := s.backtest.RunStrategy(ctx, id, cfg)
		if err != nil {
			failed++
			out.Error = err.Error()
			s.log.WarnContext(ctx, "Scheduled backtest failed", logger.ErrorField(err), logger.StringField("strategy_id", id))
		} else {
			out.Results = len(results)
			if len(results) == 1 {
				out.TotalReturn = results[0].Metrics.TotalReturn
			}
		}
		outputs = append(outputs, out)
	}

	res, err := json.Marshal(outputs)
	if err != nil {
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: fmt.Sprintf("failed to marshal output message: %v", err)}, fmt.Errorf("failed to marshal output message: %w", err)
	}
	return JobResult{ExitCode: exitCode(len(ids), failed), Output: string(res)}, nil
}
