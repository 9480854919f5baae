package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"golang-backtest/config"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/metrics"
)

// SignalService evaluates stored strategies against recent bars. Signals are
// returned to the caller and never stored.
type SignalService interface {
	Evaluate(ctx context.Context, param dto.GetStrategySignalParam) (dto.Signal, error)
	// Scan evaluates every symbol of the strategy universe. Symbols without
	// enough history are skipped.
	Scan(ctx context.Context, strategyID string, tf dto.Timeframe) ([]dto.Signal, error)
}

type signalService struct {
	cfg          *config.Config
	log          *logger.Logger
	engine       *engine.Engine
	selector     TargetSelector
	barRepo      repository.BarRepository
	strategyRepo repository.StrategyRepository
	now          func() time.Time
}

func NewSignalService(
	cfg *config.Config,
	log *logger.Logger,
	eng *engine.Engine,
	selector TargetSelector,
	barRepo repository.BarRepository,
	strategyRepo repository.StrategyRepository,
) SignalService {
	return &signalService{
		cfg:          cfg,
		log:          log,
		engine:       eng,
		selector:     selector,
		barRepo:      barRepo,
		strategyRepo: strategyRepo,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *signalService) Evaluate(ctx context.Context, param dto.GetStrategySignalParam) (dto.Signal, error) {
	strategy, err := s.load(ctx, param.StrategyID)
	if err != nil {
		return dto.Signal{}, err
	}
	return s.evaluate(ctx, strategy, strings.ToUpper(param.Symbol), param.Timeframe)
}

func (s *signalService) Scan(ctx context.Context, strategyID string, tf dto.Timeframe) ([]dto.Signal, error) {
	strategy, err := s.load(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	symbols, err := s.selector.Resolve(ctx, strategy.TargetSelection)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target selection: %w", err)
	}

	signals := make([]*dto.Signal, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.engine.Options().MaxConcurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			sig, err := s.evaluate(gctx, strategy, symbol, tf)
			if errors.Is(err, engine.ErrInsufficientData) {
				s.log.WarnContext(gctx, "Skipping symbol without enough history",
					logger.StringField("symbol", symbol), logger.ErrorField(err))
				return nil
			}
			if err != nil {
				return err
			}
			signals[i] = &sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]dto.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig != nil {
			out = append(out, *sig)
		}
	}
	return out, nil
}

func (s *signalService) evaluate(ctx context.Context, strategy *dto.Strategy, symbol string, tf dto.Timeframe) (dto.Signal, error) {
	tf = tf.Or(s.engine.Options().DefaultTimeframe)
	now := s.now()
	bars, err := s.barRepo.Get(ctx, dto.GetBarsParam{
		Symbol:    symbol,
		Timeframe: tf,
		From:      now.AddDate(0, 0, -s.cfg.Backtest.SignalLookbackDays),
		To:        now,
	})
	if err != nil {
		return dto.Signal{}, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	sig, err := s.engine.Evaluate(strategy, symbol, bars, tf)
	if err != nil {
		return dto.Signal{}, err
	}
	metrics.SignalsGenerated.WithLabelValues(string(sig.Type)).Inc()
	s.log.DebugContext(ctx, "Signal evaluated",
		logger.StringField("strategy_id", strategy.ID),
		logger.StringField("symbol", symbol),
		logger.StringField("signal", string(sig.Type)),
		logger.FloatField("confidence", sig.Confidence),
	)
	return sig, nil
}

func (s *signalService) load(ctx context.Context, id string) (*dto.Strategy, error) {
	m, err := s.strategyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", id, err)
	}
	return m.ToDTO()
}
