package marketdata

import (
	"context"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage"
)

// Source resolves a live quote for one symbol. Sources are tried in a fixed
// priority order; the first success wins.
type Source interface {
	Name() string
	Quote(ctx context.Context, symbol string) (market.Price, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, symbol string) (market.Price, error)
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) Quote(ctx context.Context, symbol string) (market.Price, error) {
	return s.Fn(ctx, symbol)
}

// StaleCacheSource serves the last-known store row regardless of age. It sits
// between the live sources and the synthetic fallback so a dead upstream
// still yields real, if dated, data.
type StaleCacheSource struct {
	store storage.MarketStore
}

// NewStaleCacheSource creates the stale-cache fallback source.
func NewStaleCacheSource(store storage.MarketStore) *StaleCacheSource {
	return &StaleCacheSource{store: store}
}

func (s *StaleCacheSource) Name() string { return "cache" }

func (s *StaleCacheSource) Quote(ctx context.Context, symbol string) (market.Price, error) {
	return s.store.GetPrice(ctx, symbol)
}
