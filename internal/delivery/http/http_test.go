package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/internal/service"
)

type stubStrategies struct {
	created *dto.Strategy
	listed  dto.GetStrategiesParam
	deleted [2]string
	err     error
}

func (s *stubStrategies) Create(_ context.Context, st *dto.Strategy) (*dto.Strategy, []string, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	st.ID = "new-id"
	s.created = st
	return st, []string{"over allocated"}, nil
}

func (s *stubStrategies) Update(_ context.Context, id string, st *dto.Strategy) (*dto.Strategy, []string, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	st.ID = id
	return st, nil, nil
}

func (s *stubStrategies) Get(_ context.Context, id string) (*dto.Strategy, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.Strategy{ID: id, Name: "stored"}, nil
}

func (s *stubStrategies) List(_ context.Context, param dto.GetStrategiesParam) ([]dto.Strategy, error) {
	s.listed = param
	return []dto.Strategy{{ID: "a"}}, nil
}

func (s *stubStrategies) Delete(_ context.Context, id, owner string) error {
	s.deleted = [2]string{id, owner}
	return s.err
}

type stubBacktests struct {
	req dto.RunBacktestRequest
	cfg dto.BacktestConfig
	err error
}

func (s *stubBacktests) Run(_ context.Context, req dto.RunBacktestRequest) ([]dto.BacktestResult, []string, error) {
	s.req = req
	if s.err != nil {
		return nil, nil, s.err
	}
	return []dto.BacktestResult{{Symbol: "AAA"}}, nil, nil
}

func (s *stubBacktests) RunStrategy(_ context.Context, id string, cfg dto.BacktestConfig) ([]dto.BacktestResult, error) {
	s.cfg = cfg
	if s.err != nil {
		return nil, s.err
	}
	return []dto.BacktestResult{{StrategyID: id}}, nil
}

func (s *stubBacktests) ListResults(_ context.Context, id string, limit int) ([]dto.BacktestResult, error) {
	return []dto.BacktestResult{{StrategyID: id, Symbol: fmt.Sprint(limit)}}, s.err
}

type stubSignals struct {
	err error
}

func (s *stubSignals) Evaluate(_ context.Context, param dto.GetStrategySignalParam) (dto.Signal, error) {
	if s.err != nil {
		return dto.Signal{}, s.err
	}
	return dto.Signal{Symbol: param.Symbol, Type: dto.SignalBuy}, nil
}

func (s *stubSignals) Scan(_ context.Context, _ string, _ dto.Timeframe) ([]dto.Signal, error) {
	return []dto.Signal{{Symbol: "AAA", Type: dto.SignalSell}}, s.err
}

type stubScheduler struct {
	ran []uint
}

func (s *stubScheduler) Execute(context.Context) error {
	return nil
}

func (s *stubScheduler) GetJobSchedule(context.Context, model.GetJobParam) ([]model.Job, error) {
	return []model.Job{{ID: 1}}, nil
}

func (s *stubScheduler) RunJobTask(_ context.Context, id uint) error {
	if id != 1 {
		return fmt.Errorf("job %d: %w", id, repository.ErrNotFound)
	}
	s.ran = append(s.ran, id)
	return nil
}

type testServer struct {
	e          *echo.Echo
	strategies *stubStrategies
	backtests  *stubBacktests
	signals    *stubSignals
	scheduler  *stubScheduler
}

func newTestServer() *testServer {
	ts := &testServer{
		e:          echo.New(),
		strategies: &stubStrategies{},
		backtests:  &stubBacktests{},
		signals:    &stubSignals{},
		scheduler:  &stubScheduler{},
	}
	svc := &service.Service{
		StrategyService:  ts.strategies,
		BacktestService:  ts.backtests,
		SignalService:    ts.signals,
		SchedulerService: ts.scheduler,
	}
	NewHttpAPIHandler(context.Background(), ts.e, goValidator.New(), svc).SetupRoutes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, dto.BaseResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)

	var resp dto.BaseResponse
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestCreateStrategy(t *testing.T) {
	ts := newTestServer()

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/strategies", `{
		"owner_id": "u1",
		"name": "rsi",
		"buy_conditions": [{"id": "b", "indicator": "rsi", "operator": "<", "value": 30}],
		"sell_conditions": [{"id": "s", "indicator": "rsi", "operator": ">", "value": "sma_20"}],
		"risk_management": {"position_size": 0.1, "max_positions": 2},
		"target_selection": {"type": "list", "symbols": ["AAPL"]}
	}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"over allocated"}, resp.Warnings)
	require.NotNil(t, ts.strategies.created)
	assert.Equal(t, "u1", ts.strategies.created.OwnerID)
	require.Len(t, ts.strategies.created.SellConditions, 1)
	assert.Equal(t, dto.RefValue("sma_20"), ts.strategies.created.SellConditions[0].Value)
}

func TestCreateStrategy_RequiresOwner(t *testing.T) {
	ts := newTestServer()
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/strategies", `{"name": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ts.strategies.created)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", engine.NewValidationError("buy_conditions", "at least one condition is required"), http.StatusBadRequest},
		{"insufficient data", &engine.InsufficientDataError{Symbol: "AAA", Required: 200}, http.StatusUnprocessableEntity},
		{"not found", fmt.Errorf("strategy x: %w", repository.ErrNotFound), http.StatusNotFound},
		{"forbidden", fmt.Errorf("strategy x: %w", service.ErrForbidden), http.StatusForbidden},
		{"other", fmt.Errorf("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.strategies.err = tt.err
			rec, resp := ts.do(t, http.MethodGet, "/api/v1/strategies/abc", "")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestErrorMapping_ValidationProblems(t *testing.T) {
	ts := newTestServer()
	ts.backtests.err = engine.NewValidationError("config.end_date", "must be after start_date")

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/backtest", `{"config": {"initial_capital": 1000}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	problems, ok := resp.Errors.([]interface{})
	require.True(t, ok)
	require.Len(t, problems, 1)
	assert.Equal(t, "config.end_date", problems[0].(map[string]interface{})["field"])
}

func TestListStrategies_Query(t *testing.T) {
	ts := newTestServer()

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/strategies?owner_id=u1&is_active=true&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", ts.strategies.listed.OwnerID)
	assert.Equal(t, 5, ts.strategies.listed.Limit)
	require.NotNil(t, ts.strategies.listed.IsActive)
	assert.True(t, *ts.strategies.listed.IsActive)
	assert.Nil(t, ts.strategies.listed.IsPublic)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/strategies?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteStrategy_PassesOwner(t *testing.T) {
	ts := newTestServer()
	rec, _ := ts.do(t, http.MethodDelete, "/api/v1/strategies/abc?owner_id=u1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"abc", "u1"}, ts.strategies.deleted)
}

func TestRunStrategyBacktest(t *testing.T) {
	ts := newTestServer()

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/strategies/abc/backtests", `{
		"start_date": "2023-01-01T00:00:00Z",
		"end_date": "2024-01-01T00:00:00Z",
		"initial_capital": 10000,
		"commission": 0.001,
		"benchmark": "SPY"
	}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.InDelta(t, 10000, ts.backtests.cfg.InitialCapital, 1e-9)
	assert.Equal(t, "SPY", ts.backtests.cfg.Benchmark)
	assert.Equal(t, 2023, ts.backtests.cfg.StartDate.Year())
}

func TestListBacktestResults_DefaultLimit(t *testing.T) {
	ts := newTestServer()
	rec, resp := ts.do(t, http.MethodGet, "/api/v1/strategies/abc/backtests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Equal(t, fmt.Sprint(defaultResultLimit), data[0].(map[string]interface{})["symbol"])
}

func TestInlineBacktest(t *testing.T) {
	ts := newTestServer()

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/backtest", `{
		"strategy": {"name": "inline", "target_selection": {"type": "list", "symbols": ["AAA"]}},
		"config": {"start_date": "2024-01-01T00:00:00Z", "end_date": "2024-02-01T00:00:00Z", "initial_capital": 100},
		"series": {"AAA": [{"timestamp": "2024-01-01T00:00:00Z", "open": 1, "high": 1, "low": 1, "close": 1, "volume": 10}]}
	}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.backtests.req.Series["AAA"], 1)
	assert.Equal(t, "inline", ts.backtests.req.Strategy.Name)
}

func TestSignals(t *testing.T) {
	ts := newTestServer()

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/strategies/abc/signals/AAPL?timeframe=1d", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", resp.Data.(map[string]interface{})["symbol"])

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/strategies/abc/signals", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.signals.err = &engine.InsufficientDataError{Symbol: "AAPL", Required: 200, Available: 10}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/strategies/abc/signals/AAPL", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestJobs(t *testing.T) {
	ts := newTestServer()

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/jobs/run", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/1/run", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uint{1}, ts.scheduler.ran)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/2/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/x/run", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer()
	rec, _ := ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
