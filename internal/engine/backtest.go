package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"golang-backtest/internal/dto"
	"golang-backtest/pkg/logger"
)

// Run backtests the strategy over its resolved target universe. Every
// symbol gets its own result unless cfg.SharedCapital is set, in which
// case one portfolio result is returned.
func (e *Engine) Run(ctx context.Context, strategy *dto.Strategy, series dto.SeriesMap, cfg dto.BacktestConfig) ([]dto.BacktestResult, error) {
	if _, err := e.validator.Validate(strategy); err != nil {
		return nil, err
	}
	symbols, err := e.resolver.Resolve(ctx, strategy.TargetSelection)
	if err != nil {
		return nil, err
	}
	return e.RunSymbols(ctx, strategy, symbols, series, cfg)
}

// RunSymbols backtests the strategy over an explicit symbol list.
func (e *Engine) RunSymbols(ctx context.Context, strategy *dto.Strategy, symbols []string, series dto.SeriesMap, cfg dto.BacktestConfig) ([]dto.BacktestResult, error) {
	if _, err := e.validator.Validate(strategy); err != nil {
		return nil, err
	}
	if err := ValidateBacktestConfig(cfg); err != nil {
		return nil, err
	}
	cfg.Timeframe = cfg.Timeframe.Or(e.opts.DefaultTimeframe)
	if err := validateTimeframes(strategy, cfg.Timeframe); err != nil {
		return nil, err
	}

	symbols = DedupeSymbols(symbols)
	if len(symbols) == 0 {
		verr := &ValidationError{}
		verr.add("target_selection", "resolved to no symbols")
		return nil, verr
	}

	runners := make([]*runner, len(symbols))
	for i, sym := range symbols {
		r, err := e.newRunner(strategy, sym, lookup(series, sym), cfg)
		if err != nil {
			return nil, err
		}
		runners[i] = r
	}
	benchmark := e.benchmark(series, cfg)

	start := time.Now()
	defer func() {
		e.log.Debug("Backtest finished",
			logger.StringField("strategy_id", strategy.ID),
			logger.IntField("symbols", len(symbols)),
			logger.BoolField("shared_capital", cfg.SharedCapital),
			logger.DurationField("elapsed", time.Since(start)),
		)
	}()

	if cfg.SharedCapital {
		res, err := e.simulate(ctx, strategy, runners, cfg, benchmark)
		if err != nil {
			return nil, err
		}
		res.Symbol = dto.PortfolioSymbol
		res.Symbols = symbols
		return []dto.BacktestResult{res}, nil
	}

	results := make([]dto.BacktestResult, len(runners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrency)
	for i, r := range runners {
		g.Go(func() error {
			res, err := e.simulate(gctx, strategy, []*runner{r}, cfg, benchmark)
			if err != nil {
				return err
			}
			res.Symbol = r.symbol
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func lookup(series dto.SeriesMap, symbol string) []dto.Bar {
	if bars, ok := series[symbol]; ok {
		return bars
	}
	for k, bars := range series {
		if strings.EqualFold(k, symbol) {
			return bars
		}
	}
	return nil
}

func (e *Engine) benchmark(series dto.SeriesMap, cfg dto.BacktestConfig) []dto.Bar {
	if cfg.Benchmark == "" {
		return nil
	}
	bars := lookup(series, cfg.Benchmark)
	if len(bars) == 0 {
		e.log.Warn("Benchmark series not supplied, beta and alpha are omitted",
			logger.StringField("benchmark", cfg.Benchmark))
	}
	return bars
}

type position struct {
	qty             float64
	fill            float64
	entryCost       float64
	entryCommission float64
	entryDate       time.Time
	stop            float64
	initialStop     float64
	target          float64
	highWater       float64
	signal          dto.Signal
}

// runner walks one symbol's bars. Bars before from are lookback only.
type runner struct {
	symbol string
	sc     *seriesContext
	from   int
	to     int
	next   int

	pos          *position
	pendingEntry *Order
	pendingExit  *dto.Signal
	lastClose    float64
	lastBar      time.Time
	trades       []dto.Trade
}

func (r *runner) barAt(ts time.Time) (int, bool) {
	if r.next >= r.to || !r.sc.bars[r.next].Timestamp.Equal(ts) {
		return 0, false
	}
	i := r.next
	r.next++
	return i, true
}

func (e *Engine) newRunner(strategy *dto.Strategy, symbol string, bars []dto.Bar, cfg dto.BacktestConfig) (*runner, error) {
	if len(bars) == 0 {
		return nil, &InsufficientDataError{Symbol: symbol, Required: 1, Reason: "no bars supplied"}
	}
	if err := checkOrdered(symbol, bars); err != nil {
		return nil, err
	}

	// bars after the window must not reach any indicator
	_, to := window(bars, cfg.StartDate, cfg.EndDate)
	bars = bars[:to]
	from, _ := window(bars, cfg.StartDate, cfg.EndDate)
	if from >= to {
		return nil, &InsufficientDataError{Symbol: symbol, Required: 1, Reason: "no bars inside the backtest window"}
	}

	sc, err := e.prepare(strategy, symbol, bars, cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	return &runner{symbol: symbol, sc: sc, from: from, to: to, next: from}, nil
}

// simulation is the mutable state of one portfolio across a run.
type simulation struct {
	e        *Engine
	strategy *dto.Strategy
	cfg      dto.BacktestConfig
	runners  []*runner
	cash     float64
	curve    []dto.EquityPoint
}

func (s *simulation) marketValue() float64 {
	var v float64
	for _, r := range s.runners {
		if r.pos != nil {
			v += r.pos.qty * r.lastClose
		}
	}
	return v
}

func (s *simulation) openPositions() int {
	n := 0
	for _, r := range s.runners {
		if r.pos != nil || r.pendingEntry != nil {
			n++
		}
	}
	return n
}

func (e *Engine) simulate(ctx context.Context, strategy *dto.Strategy, runners []*runner, cfg dto.BacktestConfig, benchmark []dto.Bar) (dto.BacktestResult, error) {
	s := &simulation{e: e, strategy: strategy, cfg: cfg, runners: runners, cash: cfg.InitialCapital}

	timeline := mergeTimeline(runners)
	s.curve = make([]dto.EquityPoint, 0, len(timeline))
	for n, ts := range timeline {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return dto.BacktestResult{}, err
			}
		}
		for _, r := range runners {
			if i, ok := r.barAt(ts); ok {
				s.step(r, i)
			}
		}
		mv := s.marketValue()
		point := dto.EquityPoint{Timestamp: ts, Equity: s.cash + mv, Cash: s.cash}
		if point.Equity > 0 {
			point.Exposure = mv / point.Equity
		}
		s.curve = append(s.curve, point)
	}

	for _, r := range runners {
		if r.pos != nil {
			s.exit(r, r.lastClose, r.lastBar, dto.ExitReasonEndOfData, nil, true)
		}
	}
	if last := len(s.curve) - 1; last >= 0 {
		s.curve[last].Equity = s.cash
		s.curve[last].Cash = s.cash
		s.curve[last].Exposure = 0
	}

	var trades []dto.Trade
	for _, r := range runners {
		trades = append(trades, r.trades...)
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].EntryDate.Before(trades[j].EntryDate)
	})
	if trades == nil {
		trades = []dto.Trade{}
	}

	analyzer := NewPerformanceAnalyzer(cfg.Timeframe)
	res := dto.BacktestResult{
		ID:              uuid.NewString(),
		StrategyID:      strategy.ID,
		StrategyVersion: strategy.Version,
		StartDate:       timeline[0],
		EndDate:         timeline[len(timeline)-1],
		InitialCapital:  cfg.InitialCapital,
		FinalEquity:     s.cash,
		Metrics:         analyzer.Analyze(cfg.InitialCapital, trades, s.curve, benchmark),
		Trades:          trades,
		CreatedAt:       time.Now().UTC(),
	}
	if cfg.IncludeEquityCurve {
		res.EquityCurve = s.curve
	}
	return res, nil
}

func mergeTimeline(runners []*runner) []time.Time {
	seen := make(map[int64]bool)
	var out []time.Time
	for _, r := range runners {
		for _, b := range r.sc.bars[r.from:r.to] {
			k := b.Timestamp.UnixNano()
			if !seen[k] {
				seen[k] = true
				out = append(out, b.Timestamp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// step processes bar i of one runner. Orders decided on bar i-1 fill at the
// open of bar i, protective levels are checked against bar i, and the
// signal on bar i's close becomes an order for bar i+1.
func (s *simulation) step(r *runner, i int) {
	bar := r.sc.bars[i]
	rm := s.strategy.RiskManagement
	slip := s.cfg.Slippage
	exited := false

	if r.pendingExit != nil && r.pos != nil {
		s.exit(r, bar.Open*(1-slip), bar.Timestamp, dto.ExitReasonSignal, r.pendingExit.SatisfiedConditions, false)
		exited = true
	}
	r.pendingExit = nil

	if r.pendingEntry != nil {
		s.enter(r, r.pendingEntry, bar)
		r.pendingEntry = nil
	}

	if p := r.pos; p != nil {
		level, reason, hit := protectiveExit(p, bar)
		if hit {
			s.exit(r, level*(1-slip), bar.Timestamp, reason, nil, false)
			exited = true
		} else {
			p.highWater = math.Max(p.highWater, bar.High)
			p.stop = TrailStop(p.stop, p.highWater, rm)
			if s.e.observeStop != nil {
				s.e.observeStop(r.symbol, i, p.stop)
			}
		}
	}

	r.lastClose = bar.Close
	r.lastBar = bar.Timestamp
	if exited || i == r.to-1 {
		return
	}

	sig := s.e.signals.Generate(s.strategy, r.symbol, bar.Timestamp, r.sc.snapshot(i))
	switch {
	case sig.Type.IsSell() && r.pos != nil:
		r.pendingExit = &sig
	case sig.Type.IsBuy() && r.pos == nil && r.pendingEntry == nil && s.rebalanceOpen(r, i):
		mv := s.marketValue()
		r.pendingEntry = s.e.risk.Size(sig, rm, PortfolioState{
			Cash:          s.cash,
			Equity:        s.cash + mv,
			OpenPositions: s.openPositions(),
			Volatility:    r.sc.atr.At(i),
		})
	}
}

// protectiveExit reports whether bar breaches the position's stop or
// target. A gap through a level fills at the open. When both levels are
// inside the bar the stop is assumed to have traded first.
func protectiveExit(p *position, bar dto.Bar) (float64, dto.ExitReason, bool) {
	stopReason := dto.ExitReasonStopLoss
	if p.stop > p.initialStop {
		stopReason = dto.ExitReasonTrailingStop
	}
	switch {
	case p.stop > 0 && bar.Open <= p.stop:
		return bar.Open, stopReason, true
	case p.target > 0 && bar.Open >= p.target:
		return bar.Open, dto.ExitReasonTakeProfit, true
	case p.stop > 0 && bar.Low <= p.stop:
		return p.stop, stopReason, true
	case p.target > 0 && bar.High >= p.target:
		return p.target, dto.ExitReasonTakeProfit, true
	}
	return 0, "", false
}

// rebalanceOpen gates new entries to the first bar of each rebalance
// period.
func (s *simulation) rebalanceOpen(r *runner, i int) bool {
	var period dto.Timeframe
	switch s.cfg.RebalanceFrequency {
	case dto.RebalanceDaily:
		period = dto.Timeframe1Day
	case dto.RebalanceWeekly:
		period = dto.Timeframe1Week
	case dto.RebalanceMonthly:
		period = dto.Timeframe1Month
	default:
		return true
	}
	if i == r.from {
		return true
	}
	prev := r.sc.bars[i-1].Timestamp
	return !period.BucketStart(prev).Equal(period.BucketStart(r.sc.bars[i].Timestamp))
}

func (s *simulation) enter(r *runner, order *Order, bar dto.Bar) {
	fill := bar.Open * (1 + s.cfg.Slippage)
	if fill <= 0 {
		return
	}
	qty := math.Min(order.Quantity, s.cash/(fill*(1+s.cfg.Commission)))
	if qty <= 0 {
		return
	}
	cost := qty * fill
	commission := cost * s.cfg.Commission
	s.cash -= cost + commission

	stop, target := Levels(fill, s.strategy.RiskManagement)
	r.pos = &position{
		qty:             qty,
		fill:            fill,
		entryCost:       cost,
		entryCommission: commission,
		entryDate:       bar.Timestamp,
		stop:            stop,
		initialStop:     stop,
		target:          target,
		highWater:       fill,
		signal:          order.Signal,
	}
}

func (s *simulation) exit(r *runner, price float64, ts time.Time, reason dto.ExitReason, conditions []string, forced bool) {
	p := r.pos
	proceeds := p.qty * price
	commission := proceeds * s.cfg.Commission
	s.cash += proceeds - commission

	basis := p.entryCost + p.entryCommission
	pnl := proceeds - commission - basis
	var ret float64
	if basis > 0 {
		ret = pnl / basis
	}

	r.trades = append(r.trades, dto.Trade{
		ID:                  tradeID(s.strategy.ID, r.symbol, p.entryDate, ts),
		Symbol:              r.symbol,
		EntryDate:           p.entryDate,
		ExitDate:            ts,
		EntryPrice:          p.fill,
		ExitPrice:           price,
		Quantity:            p.qty,
		Return:              ret,
		PnL:                 pnl,
		Commission:          p.entryCommission + commission,
		DurationDays:        int(ts.Sub(p.entryDate).Hours() / 24),
		SignalType:          p.signal.Type,
		SatisfiedConditions: p.signal.SatisfiedConditions,
		ExitReason:          reason,
		ExitConditions:      conditions,
		Forced:              forced,
	})
	r.pos = nil
}

// tradeID is stable across reruns of the same strategy on the same data.
func tradeID(strategyID, symbol string, entry, exit time.Time) string {
	name := fmt.Sprintf("%s|%s|%d|%d", strategyID, symbol, entry.UnixNano(), exit.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
