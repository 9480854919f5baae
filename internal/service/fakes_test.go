package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang-backtest/config"
	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flatBars(closes ...float64) []dto.Bar {
	bars := make([]dto.Bar, len(closes))
	for i, c := range closes {
		bars[i] = dto.Bar{Timestamp: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return bars
}

func priceCond(id string, op dto.Operator, v float64) dto.StrategyCondition {
	return dto.StrategyCondition{
		ID:         id,
		Indicator:  dto.IndicatorSMA,
		Operator:   op,
		Value:      dto.NumberValue(v),
		Parameters: dto.IndicatorParams{"period": 1},
	}
}

func thresholdStrategy(symbols ...string) *dto.Strategy {
	return &dto.Strategy{
		OwnerID:         "owner-1",
		Name:            "threshold",
		BuyConditions:   []dto.StrategyCondition{priceCond("above", dto.OperatorGreaterThan, 102)},
		SellConditions:  []dto.StrategyCondition{priceCond("below", dto.OperatorLessThan, 92)},
		RiskManagement:  dto.RiskManagement{PositionSize: 0.5, MaxPositions: 1},
		TargetSelection: dto.TargetSelection{Type: dto.TargetTypeList, Symbols: symbols},
		IsActive:        true,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		API:        config.API{MaxInlineBarCount: 1000},
		MarketData: config.MarketData{LookbackDays: 30},
		Backtest:   config.Backtest{SignalLookbackDays: 30},
		Scheduler:  config.Scheduler{MaxConcurrency: 1, TimeoutDuration: time.Second},
	}
}

func testEngine(resolver engine.UniverseResolver) *engine.Engine {
	return engine.New(engine.DefaultOptions(), nil, nil, logger.Nop(), resolver)
}

type memoryStrategyRepo struct {
	mu   sync.RWMutex
	rows map[string]model.Strategy
}

func newMemoryStrategyRepo() *memoryStrategyRepo {
	return &memoryStrategyRepo{rows: make(map[string]model.Strategy)}
}

func (r *memoryStrategyRepo) Create(_ context.Context, s *model.Strategy, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[s.ID] = *s
	return nil
}

func (r *memoryStrategyRepo) Update(_ context.Context, s *model.Strategy, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.ID]; !ok {
		return repository.ErrNotFound
	}
	r.rows[s.ID] = *s
	return nil
}

func (r *memoryStrategyRepo) FindByID(_ context.Context, id string, _ ...utils.DBOption) (*model.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *memoryStrategyRepo) Get(_ context.Context, param dto.GetStrategiesParam, _ ...utils.DBOption) ([]model.Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Strategy
	for _, s := range r.rows {
		if param.OwnerID != "" && s.OwnerID != param.OwnerID {
			continue
		}
		if param.IsActive != nil && s.IsActive != *param.IsActive {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryStrategyRepo) Delete(_ context.Context, id string, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type memoryResultRepo struct {
	mu   sync.RWMutex
	rows []model.BacktestResult
}

func (r *memoryResultRepo) CreateBatch(_ context.Context, results []model.BacktestResult, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, results...)
	return nil
}

// Get returns newest first, like the database ordering.
func (r *memoryResultRepo) Get(_ context.Context, param model.GetBacktestResultsParam, _ ...utils.DBOption) ([]model.BacktestResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.BacktestResult
	for i := len(r.rows) - 1; i >= 0; i-- {
		row := r.rows[i]
		if row.StrategyID != param.StrategyID {
			continue
		}
		if param.Version != nil && row.StrategyVersion != *param.Version {
			continue
		}
		out = append(out, row)
		if param.Limit > 0 && len(out) == param.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryResultRepo) DeleteByStrategy(_ context.Context, strategyID string, _ ...utils.DBOption) (int64, error) {
	return 0, nil
}

func (r *memoryResultRepo) DeleteOlderThan(_ context.Context, date time.Time, _ ...utils.DBOption) (int64, error) {
	return 0, nil
}

type memoryBarRepo struct {
	mu     sync.Mutex
	series dto.SeriesMap
	calls  []dto.GetBarsParam
}

func (r *memoryBarRepo) Get(_ context.Context, param dto.GetBarsParam) ([]dto.Bar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, param)
	bars, ok := r.series[strings.ToUpper(param.Symbol)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return bars, nil
}

type memoryAssetRepo struct {
	assets []model.Asset
}

func (r *memoryAssetRepo) Get(_ context.Context, param dto.GetAssetsParam, _ ...utils.DBOption) ([]model.Asset, error) {
	var out []model.Asset
	for _, a := range r.assets {
		if len(param.Symbols) == 0 || utils.ContainsString(param.Symbols, a.Symbol) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryAssetRepo) Upsert(_ context.Context, assets []model.Asset, _ ...utils.DBOption) error {
	r.assets = append(r.assets, assets...)
	return nil
}

type memoryDeckRepo struct {
	decks map[string]model.Deck
}

func (r *memoryDeckRepo) FindByID(_ context.Context, id string, _ ...utils.DBOption) (*model.Deck, error) {
	d, ok := r.decks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

type memoryJobRepo struct {
	mu        sync.Mutex
	jobs      map[uint]model.Job
	schedules []model.TaskSchedule
	histories []model.TaskExecutionHistory
}

func (r *memoryJobRepo) FindDueSchedules(_ context.Context, now time.Time, _ ...utils.DBOption) ([]model.TaskSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.TaskSchedule
	for _, s := range r.schedules {
		if s.IsActive && s.NextExecution.Valid && !s.NextExecution.Time.After(now) {
			s.Job = r.jobs[s.JobID]
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memoryJobRepo) CreateTaskExecutionHistory(_ context.Context, history *model.TaskExecutionHistory, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = uint(len(r.histories) + 1)
	r.histories = append(r.histories, *history)
	return nil
}

func (r *memoryJobRepo) UpdateTaskSchedule(_ context.Context, schedule *model.TaskSchedule, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.schedules {
		if r.schedules[i].ID == schedule.ID {
			r.schedules[i] = *schedule
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memoryJobRepo) FindByID(_ context.Context, id uint) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &j, nil
}

func (r *memoryJobRepo) UpdateTaskExecutionHistory(_ context.Context, history *model.TaskExecutionHistory, _ ...utils.DBOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.histories {
		if r.histories[i].ID == history.ID {
			r.histories[i] = *history
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *memoryJobRepo) Get(_ context.Context, param *model.GetJobParam, _ ...utils.DBOption) ([]model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Job, 0, len(r.jobs))
	for id, j := range r.jobs {
		if len(param.IDs) > 0 && !containsID(param.IDs, id) {
			continue
		}
		for _, s := range r.schedules {
			if s.JobID == id {
				j.Schedules = append(j.Schedules, s)
			}
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (r *memoryJobRepo) DeleteTaskHistoryOlderThan(_ context.Context, _ time.Time, _ ...utils.DBOption) (int64, error) {
	return 0, nil
}

func (r *memoryJobRepo) history(id uint) model.TaskExecutionHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.histories {
		if h.ID == id {
			return h
		}
	}
	return model.TaskExecutionHistory{}
}

// inlineUnitOfWork runs fn directly; the memory repositories need no
// transaction.
type inlineUnitOfWork struct{}

func (inlineUnitOfWork) Run(_ context.Context, fn func(opts ...utils.DBOption) error) error {
	return fn()
}
