package service

import (
	"golang-backtest/config"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/indicator"
	"golang-backtest/internal/job"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/cache"
	"golang-backtest/pkg/logger"
)

type Service struct {
	SchedulerService SchedulerService
	TaskExecutor     TaskExecutor
	StrategyService  StrategyService
	BacktestService  BacktestService
	SignalService    SignalService
	TargetSelector   TargetSelector
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	inmemoryCache cache.Cache,
) *Service {
	targetSelector := NewTargetSelector(log, repo.AssetRepo, repo.DeckRepo)
	eng := engine.New(cfg.Engine.ToOptions(), indicator.NewLibrary(), inmemoryCache, log, targetSelector)

	strategyService := NewStrategyService(log, eng, repo.UnitOfWork, repo.StrategyRepo, repo.BacktestResultRepo)
	backtestService := NewBacktestService(cfg, log, eng, targetSelector, repo.MarketDataRepo, repo.StrategyRepo, repo.BacktestResultRepo)
	signalService := NewSignalService(cfg, log, eng, targetSelector, repo.MarketDataRepo, repo.StrategyRepo)

	taskExecutor := NewTaskExecutor(log, repo.JobRepo,
		job.NewStrategyBacktestStrategy(log, backtestService, repo.StrategyRepo),
		job.NewSignalScanStrategy(log, signalService, repo.StrategyRepo),
		job.NewDataCleanUpStrategy(log, repo.BacktestResultRepo, repo.JobRepo),
	)
	schedulerService := NewSchedulerService(cfg, log, repo.JobRepo, taskExecutor)

	return &Service{
		SchedulerService: schedulerService,
		TaskExecutor:     taskExecutor,
		StrategyService:  strategyService,
		BacktestService:  backtestService,
		SignalService:    signalService,
		TargetSelector:   targetSelector,
	}
}
