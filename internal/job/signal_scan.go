package job

import (
	"context"
	"encoding/json"
	"fmt"

	"golang-backtest/internal/contract"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

// SignalScanPayload selects the strategies to scan. An empty StrategyIDs
// scans every active strategy.
type SignalScanPayload struct {
	StrategyIDs []string      `json:"strategy_ids"`
	Timeframe   dto.Timeframe `json:"timeframe"`
}

type SignalScanResult struct {
	StrategyID string       `json:"strategy_id"`
	Signals    []dto.Signal `json:"signals,omitempty"`
	Error      string       `json:"error,omitempty"`
}

type SignalScanStrategy struct {
	log          *logger.Logger
	signals      contract.SignalContract
	strategyRepo repository.StrategyRepository
}

func NewSignalScanStrategy(log *logger.Logger, signals contract.SignalContract, strategyRepo repository.StrategyRepository) JobExecutionStrategy {
	return &SignalScanStrategy{
		log:          log,
		signals:      signals,
		strategyRepo: strategyRepo,
	}
}

func (s *SignalScanStrategy) GetType() JobType {
	return JobTypeSignalScan
}

// Execute reports buy and sell signals only. Holds are dropped from the output.
func (s *SignalScanStrategy) Execute(ctx context.Context, job *model.Job) (JobResult, error) {
	var payload SignalScanPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		s.log.ErrorContext(ctx, "Failed to unmarshal job payload", logger.ErrorField(err), logger.IntField("job_id", int(job.ID)))
		return JobResult{ExitCode: JOB_EXIT_CODE_FAILED, Output: fmt.Sprintf("failed to unmarshal job payload: %v", err)}, fmt.Errorf("failed to unmarshal job payload: %w", err)
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

	outputs := make([]SignalScanResult, 0, len(ids))
	failed := 0
	for _, id := range ids {
		out := SignalScanResult{StrategyID: id}
		signals, err := s.signals.Scan(ctx, id, payload.Timeframe)
		if err != nil {
			failed++
			out.Error = err.Error()
			s.log.WarnContext(ctx, "Signal scan failed", logger.ErrorField(err), logger.StringField("strategy_id", id))
		}
		for _, sig := range signals {
			if sig.Type != dto.SignalHold {
				out.Signals = append(out.Signals, sig)
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
