package service

import (
	"context"
	"fmt"

	"golang-backtest/internal/dto"
	"golang-backtest/internal/engine"
	"golang-backtest/internal/model"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

// TargetSelector resolves a strategy universe against stored decks and
// asset metadata.
type TargetSelector interface {
	engine.UniverseResolver
}

type targetSelector struct {
	log       *logger.Logger
	assetRepo repository.AssetRepository
	deckRepo  repository.DeckRepository
}

func NewTargetSelector(log *logger.Logger, assetRepo repository.AssetRepository, deckRepo repository.DeckRepository) TargetSelector {
	return &targetSelector{
		log:       log,
		assetRepo: assetRepo,
		deckRepo:  deckRepo,
	}
}

// Resolve keeps the declared order. With filters present a symbol without
// stored metadata is dropped since it cannot be shown to match.
func (t *targetSelector) Resolve(ctx context.Context, target dto.TargetSelection) ([]string, error) {
	var symbols []string
	switch target.Type {
	case dto.TargetTypeList, dto.TargetTypeAsset:
		symbols = target.Symbols
	case dto.TargetTypeDeck:
		deck, err := t.deckRepo.FindByID(ctx, target.DeckID)
		if err != nil {
			return nil, fmt.Errorf("failed to load deck %s: %w", target.DeckID, err)
		}
		symbols = deck.ToDTO().Symbols
	default:
		return nil, fmt.Errorf("unknown target type %q", target.Type)
	}
	symbols = engine.DedupeSymbols(symbols)

	if target.Filters == nil || len(symbols) == 0 {
		return symbols, nil
	}

	assets, err := t.assetRepo.Get(ctx, dto.GetAssetsParam{Symbols: symbols})
	if err != nil {
		return nil, fmt.Errorf("failed to load asset metadata: %w", err)
	}
	bySymbol := make(map[string]model.Asset, len(assets))
	for _, a := range assets {
		bySymbol[a.Symbol] = a
	}

	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		a, ok := bySymbol[s]
		if !ok {
			t.log.DebugContext(ctx, "Dropping symbol without metadata", logger.StringField("symbol", s))
			continue
		}
		if MatchesFilter(a.ToDTO(), *target.Filters) {
			out = append(out, s)
		}
	}
	t.log.DebugContext(ctx, "Target resolved",
		logger.StringField("type", string(target.Type)),
		logger.IntField("declared", len(symbols)),
		logger.IntField("selected", len(out)),
	)
	return out, nil
}

// MatchesFilter reports whether an asset passes every populated filter.
// Bounds are inclusive and sector and exchange compare case-insensitively.
func MatchesFilter(a dto.Asset, f dto.MetadataFilter) bool {
	if f.MinMarketCap != nil && a.MarketCap < *f.MinMarketCap {
		return false
	}
	if f.MaxMarketCap != nil && a.MarketCap > *f.MaxMarketCap {
		return false
	}
	if f.MinPrice != nil && a.LastPrice < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && a.LastPrice > *f.MaxPrice {
		return false
	}
	if len(f.Sectors) > 0 && !utils.ContainsFold(f.Sectors, a.Sector) {
		return false
	}
	if len(f.Exchanges) > 0 && !utils.ContainsFold(f.Exchanges, a.Exchange) {
		return false
	}
	return true
}
