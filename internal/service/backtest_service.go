package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"golang-backtest/config"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/metrics"
)

type BacktestService interface {
	// Run backtests an unsaved strategy. Nothing is persisted.
	Run(ctx context.Context, req dto.RunBacktestRequest) ([]dto.BacktestResult, []string, error)
	// RunStrategy backtests a stored strategy and appends the results.
	RunStrategy(ctx context.Context, strategyID string, cfg dto.BacktestConfig) ([]dto.BacktestResult, error)
	ListResults(ctx context.Context, strategyID string, limit int) ([]dto.BacktestResult, error)
}

type backtestService struct {
	cfg                *config.Config
	log                *logger.Logger
	engine             *engine.Engine
	selector           TargetSelector
	barRepo            repository.BarRepository
	strategyRepo       repository.StrategyRepository
	backtestResultRepo repository.BacktestResultRepository
}

func NewBacktestService(
	cfg *config.Config,
	log *logger.Logger,
	eng *engine.Engine,
	selector TargetSelector,
	barRepo repository.BarRepository,
	strategyRepo repository.StrategyRepository,
	backtestResultRepo repository.BacktestResultRepository,
) BacktestService {
	return &backtestService{
		cfg:                cfg,
		log:                log,
		engine:             eng,
		selector:           selector,
		barRepo:            barRepo,
		strategyRepo:       strategyRepo,
		backtestResultRepo: backtestResultRepo,
	}
}

func (s *backtestService) Run(ctx context.Context, req dto.RunBacktestRequest) ([]dto.BacktestResult, []string, error) {
	if limit := s.cfg.API.MaxInlineBarCount; limit > 0 {
		total := 0
		for _, bars := range req.Series {
			total += len(bars)
		}
		if total > limit {
			return nil, nil, engine.NewValidationError("series", "%d inline bars exceeds the limit of %d", total, limit)
		}
	}

	strategy := req.Strategy
	warnings, err := s.engine.Validate(&strategy)
	if err != nil {
		metrics.ObserveBacktest(metrics.StatusInvalid, 0, 0)
		return nil, nil, err
	}
	results, err := s.run(ctx, &strategy, req.Series, req.Config)
	if err != nil {
		return nil, nil, err
	}
	return results, warnings, nil
}

func (s *backtestService) RunStrategy(ctx context.Context, strategyID string, cfg dto.BacktestConfig) ([]dto.BacktestResult, error) {
	m, err := s.strategyRepo.FindByID(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", strategyID, err)
	}
	strategy, err := m.ToDTO()
	if err != nil {
		return nil, err
	}

	results, err := s.run(ctx, strategy, nil, cfg)
	if err != nil {
		return nil, err
	}

	rows := make([]model.BacktestResult, 0, len(results))
	for i := range results {
		row, err := model.NewBacktestResult(&results[i])
		if err != nil {
			return nil, fmt.Errorf("failed to encode backtest result: %w", err)
		}
		rows = append(rows, *row)
	}
	if err := s.backtestResultRepo.CreateBatch(ctx, rows); err != nil {
		s.log.ErrorContext(ctx, "Failed to store backtest results", logger.ErrorField(err), logger.StringField("strategy_id", strategyID))
		return nil, fmt.Errorf("failed to store backtest results: %w", err)
	}
	s.log.InfoContext(ctx, "Backtest results stored",
		logger.StringField("strategy_id", strategyID),
		logger.IntField("version", strategy.Version),
		logger.IntField("results", len(rows)),
	)
	return results, nil
}

func (s *backtestService) ListResults(ctx context.Context, strategyID string, limit int) ([]dto.BacktestResult, error) {
	if _, err := s.strategyRepo.FindByID(ctx, strategyID); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", strategyID, err)
	}
	rows, err := s.backtestResultRepo.Get(ctx, model.GetBacktestResultsParam{StrategyID: strategyID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to load backtest results: %w", err)
	}
	out := make([]dto.BacktestResult, 0, len(rows))
	for i := range rows {
		r, err := rows[i].ToDTO()
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *backtestService) run(ctx context.Context, strategy *dto.Strategy, supplied dto.SeriesMap, cfg dto.BacktestConfig) (results []dto.BacktestResult, err error) {
	start := time.Now()
	defer func() {
		trades := 0
		for _, r := range results {
			trades += len(r.Trades)
		}
		metrics.ObserveBacktest(runStatus(err), time.Since(start), trades)
	}()

	if err := engine.ValidateBacktestConfig(cfg); err != nil {
		return nil, err
	}
	symbols, err := s.selector.Resolve(ctx, strategy.TargetSelection)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target selection: %w", err)
	}

	series, err := s.loadSeries(ctx, symbols, supplied, cfg)
	if err != nil {
		return nil, err
	}
	return s.engine.RunSymbols(ctx, strategy, symbols, series, cfg)
}

// loadSeries fetches every symbol not already supplied, with enough history
// before the start date to warm up indicators. A missing benchmark only
// drops the benchmark metrics.
func (s *backtestService) loadSeries(ctx context.Context, symbols []string, supplied dto.SeriesMap, cfg dto.BacktestConfig) (dto.SeriesMap, error) {
	series := make(dto.SeriesMap, len(symbols)+1)
	for sym, bars := range supplied {
		series[strings.ToUpper(sym)] = bars
	}

	param := dto.GetBarsParam{
		Timeframe: cfg.Timeframe.Or(s.engine.Options().DefaultTimeframe),
		From:      cfg.StartDate.AddDate(0, 0, -s.cfg.MarketData.LookbackDays),
		To:        cfg.EndDate,
	}

	type request struct {
		symbol   string
		required bool
	}
	var missing []request
	for _, sym := range symbols {
		if _, ok := series[sym]; !ok {
			missing = append(missing, request{symbol: sym, required: true})
		}
	}
	if bench := strings.ToUpper(cfg.Benchmark); bench != "" && !containsSymbol(symbols, bench) {
		if _, ok := series[bench]; !ok {
			missing = append(missing, request{symbol: bench})
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.engine.Options().MaxConcurrency)
	for _, req := range missing {
		g.Go(func() error {
			p := param
			p.Symbol = req.symbol
			bars, err := s.barRepo.Get(ctx, p)
			if err != nil {
				if !req.required {
					s.log.WarnContext(ctx, "Failed to fetch benchmark bars", logger.ErrorField(err), logger.StringField("symbol", req.symbol))
					return nil
				}
				return fmt.Errorf("failed to fetch bars for %s: %w", req.symbol, err)
			}
			mu.Lock()
			series[req.symbol] = bars
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return series, nil
}

func containsSymbol(symbols []string, symbol string) bool {
	for _, s := range symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case errors.Is(err, engine.ErrValidation):
		return metrics.StatusInvalid
	case errors.Is(err, engine.ErrInsufficientData):
		return metrics.StatusInsufficientData
	default:
		return metrics.StatusError
	}
}
