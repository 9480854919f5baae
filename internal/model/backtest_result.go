package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	"golang-backtest/internal/dto"
)

// BacktestResult rows are append-only.
type BacktestResult struct {
	ID              string         `gorm:"type:uuid;primaryKey"`
	StrategyID      string         `gorm:"type:uuid;not null;index"`
	StrategyVersion int            `gorm:"not null"`
	Symbol          string         `gorm:"type:varchar(50);not null"`
	Symbols         datatypes.JSON `gorm:"type:jsonb"`
	StartDate       time.Time      `gorm:"not null"`
	EndDate         time.Time      `gorm:"not null"`
	InitialCapital  float64        `gorm:"not null"`
	FinalEquity     float64        `gorm:"not null"`
	Metrics         datatypes.JSON `gorm:"type:jsonb;not null"`
	Trades          datatypes.JSON `gorm:"type:jsonb;not null"`
	EquityCurve     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index"`
}

func (BacktestResult) TableName() string {
	return "backtest_results"
}

type GetBacktestResultsParam struct {
	StrategyID string
	Version    *int
	Limit      int
}

func NewBacktestResult(r *dto.BacktestResult) (*BacktestResult, error) {
	m := &BacktestResult{
		ID:              r.ID,
		StrategyID:      r.StrategyID,
		StrategyVersion: r.StrategyVersion,
		Symbol:          r.Symbol,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		InitialCapital:  r.InitialCapital,
		FinalEquity:     r.FinalEquity,
		CreatedAt:       r.CreatedAt,
	}
	var err error
	if len(r.Symbols) > 0 {
		if m.Symbols, err = toJSON(r.Symbols); err != nil {
			return nil, err
		}
	}
	if m.Metrics, err = toJSON(r.Metrics); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if m.Trades, err = toJSON(r.Trades); err != nil {
		return nil, fmt.Errorf("trades: %w", err)
	}
	if len(r.EquityCurve) > 0 {
		if m.EquityCurve, err = toJSON(r.EquityCurve); err != nil {
			return nil, fmt.Errorf("equity curve: %w", err)
		}
	}
	return m, nil
}

func (m *BacktestResult) ToDTO() (*dto.BacktestResult, error) {
	r := &dto.BacktestResult{
		ID:              m.ID,
		StrategyID:      m.StrategyID,
		StrategyVersion: m.StrategyVersion,
		Symbol:          m.Symbol,
		StartDate:       m.StartDate,
		EndDate:         m.EndDate,
		InitialCapital:  m.InitialCapital,
		FinalEquity:     m.FinalEquity,
		CreatedAt:       m.CreatedAt,
	}
	if err := fromJSON(m.Symbols, &r.Symbols); err != nil {
		return nil, err
	}
	if err := fromJSON(m.Metrics, &r.Metrics); err != nil {
		return nil, fmt.Errorf("result %s metrics: %w", m.ID, err)
	}
	if err := fromJSON(m.Trades, &r.Trades); err != nil {
		return nil, fmt.Errorf("result %s trades: %w", m.ID, err)
	}
	if err := fromJSON(m.EquityCurve, &r.EquityCurve); err != nil {
		return nil, fmt.Errorf("result %s equity curve: %w", m.ID, err)
	}
	return r, nil
}
