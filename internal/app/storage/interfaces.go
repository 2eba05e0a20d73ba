package storage

import (
	"context"
	"errors"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
)

// ErrNotFound is returned by lookups for keys that have never been written.
// Callers on the read path treat it as a cache miss, never as a fault.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is a plain cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// MarketStore persists cached prices and positions. Upserts are
// last-writer-wins by UpdatedAt per key; rows are superseded, never deleted.
type MarketStore interface {
	UpsertPrices(ctx context.Context, prices []market.Price) error
	GetPrice(ctx context.Context, symbol string) (market.Price, error)
	ListPrices(ctx context.Context) ([]market.Price, error)

	UpsertPositions(ctx context.Context, positions []market.Position) error
	ListPositions(ctx context.Context, wallet string) ([]market.Position, error)
}
