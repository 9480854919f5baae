package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"golang-backtest/internal/dto"
)

// Strategy stores conditions and settings as jsonb. Performance metrics
// are never stored, they are derived from backtest results on read.
type Strategy struct {
	ID              string         `gorm:"type:uuid;primaryKey"`
	OwnerID         string         `gorm:"type:varchar(100);not null;index"`
	Name            string         `gorm:"type:varchar(255);not null"`
	Description     string         `gorm:"type:text"`
	StrategyType    string         `gorm:"type:varchar(50)"`
	BuyConditions   datatypes.JSON `gorm:"type:jsonb;not null"`
	SellConditions  datatypes.JSON `gorm:"type:jsonb;not null"`
	RiskManagement  datatypes.JSON `gorm:"type:jsonb;not null"`
	TargetSelection datatypes.JSON `gorm:"type:jsonb;not null"`
	IsActive        bool           `gorm:"not null;default:true"`
	IsPublic        bool           `gorm:"not null;default:false"`
	Version         int            `gorm:"not null;default:1"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (Strategy) TableName() string {
	return "strategies"
}

func NewStrategy(s *dto.Strategy) (*Strategy, error) {
	m := &Strategy{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		Name:         s.Name,
		Description:  s.Description,
		StrategyType: string(s.StrategyType),
		IsActive:     s.IsActive,
		IsPublic:     s.IsPublic,
		Version:      s.Version,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	var err error
	if m.BuyConditions, err = toJSON(s.BuyConditions); err != nil {
		return nil, fmt.Errorf("buy conditions: %w", err)
	}
	if m.SellConditions, err = toJSON(s.SellConditions); err != nil {
		return nil, fmt.Errorf("sell conditions: %w", err)
	}
	if m.RiskManagement, err = toJSON(s.RiskManagement); err != nil {
		return nil, fmt.Errorf("risk management: %w", err)
	}
	if m.TargetSelection, err = toJSON(s.TargetSelection); err != nil {
		return nil, fmt.Errorf("target selection: %w", err)
	}
	return m, nil
}

func (m *Strategy) ToDTO() (*dto.Strategy, error) {
	s := &dto.Strategy{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		Name:         m.Name,
		Description:  m.Description,
		StrategyType: dto.StrategyType(m.StrategyType),
		IsActive:     m.IsActive,
		IsPublic:     m.IsPublic,
		Version:      m.Version,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if err := fromJSON(m.BuyConditions, &s.BuyConditions); err != nil {
		return nil, fmt.Errorf("strategy %s buy conditions: %w", m.ID, err)
	}
	if err := fromJSON(m.SellConditions, &s.SellConditions); err != nil {
		return nil, fmt.Errorf("strategy %s sell conditions: %w", m.ID, err)
	}
	if err := fromJSON(m.RiskManagement, &s.RiskManagement); err != nil {
		return nil, fmt.Errorf("strategy %s risk management: %w", m.ID, err)
	}
	if err := fromJSON(m.TargetSelection, &s.TargetSelection); err != nil {
		return nil, fmt.Errorf("strategy %s target selection: %w", m.ID, err)
	}
	return s, nil
}

func toJSON(v interface{}) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func fromJSON(data datatypes.JSON, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
