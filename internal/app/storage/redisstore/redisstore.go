// Package redisstore layers a Redis hot tier over another market store.
// Prices are written through to Redis with a TTL and read from Redis first;
// any Redis fault falls back to the underlying store so the tier is never a
// hard dependency.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

const priceKeyPrefix = "zkv:price:"

// Store wraps an underlying MarketStore with a Redis price tier.
type Store struct {
	client *redis.Client
	next   storage.MarketStore
	ttl    time.Duration
	log    *logger.Logger
}

var _ storage.MarketStore = (*Store)(nil)

// New creates the tiered store. TTL <= 0 defaults to one minute.
func New(client *redis.Client, next storage.MarketStore, ttl time.Duration, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("redisstore")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Store{client: client, next: next, ttl: ttl, log: log}
}

func (s *Store) UpsertPrices(ctx context.Context, prices []market.Price) error {
	// Both tiers must persist the same UpdatedAt, so unstamped rows are
	// stamped here rather than leaving it to the underlying store.
	stamped := stampPrices(prices, time.Now().UTC())
	if err := s.next.UpsertPrices(ctx, stamped); err != nil {
		return err
	}
	for _, p := range stamped {
		buf, err := json.Marshal(p)
		if err != nil {
			continue
		}
		if err := s.client.Set(ctx, priceKeyPrefix+p.Symbol, buf, s.ttl).Err(); err != nil {
			s.log.WithError(err).WithField("symbol", p.Symbol).Warn("redis price write failed")
		}
	}
	return nil
}

// stampPrices normalizes symbols, drops empty ones and fills missing
// UpdatedAt with now.
func stampPrices(prices []market.Price, now time.Time) []market.Price {
	out := make([]market.Price, 0, len(prices))
	for _, p := range prices {
		p.Symbol = market.NormalizeSymbol(p.Symbol)
		if p.Symbol == "" {
			continue
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		out = append(out, p)
	}
	return out
}

func (s *Store) GetPrice(ctx context.Context, symbol string) (market.Price, error) {
	key := priceKeyPrefix + market.NormalizeSymbol(symbol)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var p market.Price
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
	} else if err != redis.Nil {
		s.log.WithError(err).WithField("symbol", symbol).Warn("redis price read failed")
	}
	return s.next.GetPrice(ctx, symbol)
}

func (s *Store) ListPrices(ctx context.Context) ([]market.Price, error) {
	return s.next.ListPrices(ctx)
}

func (s *Store) UpsertPositions(ctx context.Context, positions []market.Position) error {
	return s.next.UpsertPositions(ctx, positions)
}

func (s *Store) ListPositions(ctx context.Context, wallet string) ([]market.Position, error) {
	return s.next.ListPositions(ctx, wallet)
}
