package model

import (
	"time"

	"golang-backtest/internal/dto"
)

type Asset struct {
	Symbol    string    `gorm:"type:varchar(50);primaryKey"`
	Name      string    `gorm:"type:varchar(255)"`
	Exchange  string    `gorm:"type:varchar(50);index"`
	Sector    string    `gorm:"type:varchar(100);index"`
	MarketCap float64   `gorm:"default:0"`
	LastPrice float64   `gorm:"default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Asset) TableName() string {
	return "assets"
}

func (a Asset) ToDTO() dto.Asset {
	return dto.Asset{
		Symbol:    a.Symbol,
		Name:      a.Name,
		Exchange:  a.Exchange,
		Sector:    a.Sector,
		MarketCap: a.MarketCap,
		LastPrice: a.LastPrice,
	}
}

// Deck is a named, ordered list of symbols owned by a user.
type Deck struct {
	ID        string      `gorm:"type:uuid;primaryKey"`
	OwnerID   string      `gorm:"type:varchar(100);not null;index"`
	Name      string      `gorm:"type:varchar(255);not null"`
	Assets    []DeckAsset `gorm:"foreignKey:DeckID"`
	CreatedAt time.Time   `gorm:"autoCreateTime"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime"`
}

func (Deck) TableName() string {
	return "decks"
}

type DeckAsset struct {
	DeckID   string `gorm:"type:uuid;primaryKey"`
	Symbol   string `gorm:"type:varchar(50);primaryKey"`
	Position int    `gorm:"not null;default:0"`
}

func (DeckAsset) TableName() string {
	return "deck_assets"
}

func (d Deck) ToDTO() dto.Deck {
	out := dto.Deck{ID: d.ID, OwnerID: d.OwnerID, Name: d.Name, Symbols: make([]string, 0, len(d.Assets))}
	for _, a := range d.Assets {
		out.Symbols = append(out.Symbols, a.Symbol)
	}
	return out
}
