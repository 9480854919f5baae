package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

// summaryLimit caps the backtest summaries attached to a strategy on read.
const summaryLimit = 20

type StrategyService interface {
	Create(ctx context.Context, strategy *dto.Strategy) (*dto.Strategy, []string, error)
	Update(ctx context.Context, id string, strategy *dto.Strategy) (*dto.Strategy, []string, error)
	Get(ctx context.Context, id string) (*dto.Strategy, error)
	List(ctx context.Context, param dto.GetStrategiesParam) ([]dto.Strategy, error)
	Delete(ctx context.Context, id, ownerID string) error
}

type strategyService struct {
	log                *logger.Logger
	engine             *engine.Engine
	unitOfWork         repository.UnitOfWork
	strategyRepo       repository.StrategyRepository
	backtestResultRepo repository.BacktestResultRepository
	now                func() time.Time
}

func NewStrategyService(
	log *logger.Logger,
	eng *engine.Engine,
	unitOfWork repository.UnitOfWork,
	strategyRepo repository.StrategyRepository,
	backtestResultRepo repository.BacktestResultRepository,
) StrategyService {
	return &strategyService{
		log:                log,
		engine:             eng,
		unitOfWork:         unitOfWork,
		strategyRepo:       strategyRepo,
		backtestResultRepo: backtestResultRepo,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

func (s *strategyService) Create(ctx context.Context, strategy *dto.Strategy) (*dto.Strategy, []string, error) {
	warnings, err := s.engine.Validate(strategy)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	strategy.ID = uuid.NewString()
	strategy.Version = 1
	strategy.CreatedAt = now
	strategy.UpdatedAt = now
	strategy.PerformanceMetrics = nil
	strategy.BacktestResults = nil

	m, err := model.NewStrategy(strategy)
	if err != nil {
		return nil, nil, err
	}
	if err := s.strategyRepo.Create(ctx, m); err != nil {
		s.log.ErrorContext(ctx, "Failed to create strategy", logger.ErrorField(err))
		return nil, nil, fmt.Errorf("failed to create strategy: %w", err)
	}
	s.log.InfoContext(ctx, "Strategy created",
		logger.StringField("strategy_id", strategy.ID),
		logger.StringField("owner_id", strategy.OwnerID),
	)
	return strategy, warnings, nil
}

// Update replaces the editable fields. Identity, ownership and creation time
// are kept; the version moves only when the rules change. The stored row is
// locked between read and write so concurrent edits bump the version once each.
func (s *strategyService) Update(ctx context.Context, id string, strategy *dto.Strategy) (*dto.Strategy, []string, error) {
	warnings, err := s.engine.Validate(strategy)
	if err != nil {
		return nil, nil, err
	}

	err = s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		existing, err := s.load(ctx, id, append(opts, utils.WithForUpdate())...)
		if err != nil {
			return err
		}
		if strategy.OwnerID != "" && strategy.OwnerID != existing.OwnerID {
			return fmt.Errorf("strategy %s belongs to another owner: %w", id, ErrForbidden)
		}

		strategy.ID = existing.ID
		strategy.OwnerID = existing.OwnerID
		strategy.CreatedAt = existing.CreatedAt
		strategy.UpdatedAt = s.now()
		strategy.Version = existing.Version
		strategy.PerformanceMetrics = nil
		strategy.BacktestResults = nil
		if rulesChanged(existing, strategy) {
			strategy.Version++
		}

		m, err := model.NewStrategy(strategy)
		if err != nil {
			return err
		}
		if err := s.strategyRepo.Update(ctx, m, opts...); err != nil {
			s.log.ErrorContext(ctx, "Failed to update strategy", logger.ErrorField(err), logger.StringField("strategy_id", id))
			return fmt.Errorf("failed to update strategy: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return strategy, warnings, nil
}

func (s *strategyService) Get(ctx context.Context, id string) (*dto.Strategy, error) {
	strategy, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	version := strategy.Version
	results, err := s.backtestResultRepo.Get(ctx, model.GetBacktestResultsParam{
		StrategyID: id,
		Version:    &version,
		Limit:      summaryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest results: %w", err)
	}
	if len(results) == 0 {
		return strategy, nil
	}

	strategy.BacktestResults = make([]dto.BacktestSummary, 0, len(results))
	for i := range results {
		r, err := results[i].ToDTO()
		if err != nil {
			return nil, err
		}
		strategy.BacktestResults = append(strategy.BacktestResults, r.Summary())
		if i == 0 {
			metrics := r.Metrics
			strategy.PerformanceMetrics = &metrics
		}
	}
	return strategy, nil
}

func (s *strategyService) List(ctx context.Context, param dto.GetStrategiesParam) ([]dto.Strategy, error) {
	rows, err := s.strategyRepo.Get(ctx, param)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	out := make([]dto.Strategy, 0, len(rows))
	for i := range rows {
		st, err := rows[i].ToDTO()
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// Delete soft deletes the strategy. Its backtest results stay readable by id.
func (s *strategyService) Delete(ctx context.Context, id, ownerID string) error {
	err := s.unitOfWork.Run(ctx, func(opts ...utils.DBOption) error {
		existing, err := s.load(ctx, id, append(opts, utils.WithForUpdate())...)
		if err != nil {
			return err
		}
		if ownerID != "" && ownerID != existing.OwnerID {
			return fmt.Errorf("strategy %s belongs to another owner: %w", id, ErrForbidden)
		}
		if err := s.strategyRepo.Delete(ctx, id, opts...); err != nil {
			return fmt.Errorf("failed to delete strategy: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Strategy deleted", logger.StringField("strategy_id", id))
	return nil
}

func (s *strategyService) load(ctx context.Context, id string, opts ...utils.DBOption) (*dto.Strategy, error) {
	m, err := s.strategyRepo.FindByID(ctx, id, opts...)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", id, err)
	}
	return m.ToDTO()
}

// rulesChanged compares the parts of a strategy that affect backtest output.
func rulesChanged(a, b *dto.Strategy) bool {
	pairs := [][2]interface{}{
		{a.BuyConditions, b.BuyConditions},
		{a.SellConditions, b.SellConditions},
		{a.RiskManagement, b.RiskManagement},
		{a.TargetSelection, b.TargetSelection},
	}
	for _, p := range pairs {
		x, errX := json.Marshal(p[0])
		y, errY := json.Marshal(p[1])
		if errX != nil || errY != nil || !bytes.Equal(x, y) {
			return true
		}
	}
	return false
}
