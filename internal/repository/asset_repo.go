package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/model"
	"golang-backtest/pkg/utils"
)

type AssetRepository interface {
	Get(ctx context.Context, param dto.GetAssetsParam, opts ...utils.DBOption) ([]model.Asset, error)
	Upsert(ctx context.Context, assets []model.Asset, opts ...utils.DBOption) error
}

type assetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) Get(ctx context.Context, param dto.GetAssetsParam, opts ...utils.DBOption) ([]model.Asset, error) {
	var assets []model.Asset
	db := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
	if len(param.Symbols) > 0 {
		db = db.Where("symbol IN ?", param.Symbols)
	}
	if err := db.Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *assetRepository) Upsert(ctx context.Context, assets []model.Asset, opts ...utils.DBOption) error {
	if len(assets) == 0 {
		return nil
	}
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&assets).Error
}

type DeckRepository interface {
	FindByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.Deck, error)
}

type deckRepository struct {
	db *gorm.DB
}

func NewDeckRepository(db *gorm.DB) DeckRepository {
	return &deckRepository{db: db}
}

// FindByID loads the deck with its symbols in deck order.
func (r *deckRepository) FindByID(ctx context.Context, id string, opts ...utils.DBOption) (*model.Deck, error) {
	var deck model.Deck
	err := utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Preload("Assets", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&deck, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &deck, nil
}
