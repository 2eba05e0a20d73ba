// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests, local
// development and demo mode.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage"
)

// Store holds cached prices keyed by symbol and positions keyed by
// (wallet, symbol, chain).
type Store struct {
	mu        sync.RWMutex
	prices    map[string]market.Price
	positions map[string]market.Position
}

var _ storage.MarketStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		prices:    make(map[string]market.Price),
		positions: make(map[string]market.Position),
	}
}

func positionKey(p market.Position) string {
	return fmt.Sprintf("%s|%s|%s", market.NormalizeWallet(p.WalletAddress), market.NormalizeSymbol(p.Symbol), p.Chain)
}

// UpsertPrices writes one row per symbol. An incoming row older than the
// stored one is ignored so UpdatedAt stays monotonic per symbol.
func (s *Store) UpsertPrices(_ context.Context, prices []market.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range prices {
		p.Symbol = market.NormalizeSymbol(p.Symbol)
		if p.Symbol == "" {
			continue
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		if existing, ok := s.prices[p.Symbol]; ok && existing.UpdatedAt.After(p.UpdatedAt) {
			continue
		}
		s.prices[p.Symbol] = p
	}
	return nil
}

func (s *Store) GetPrice(_ context.Context, symbol string) (market.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[market.NormalizeSymbol(symbol)]
	if !ok {
		return market.Price{}, fmt.Errorf("price for %s: %w", symbol, storage.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListPrices(_ context.Context) ([]market.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Price, 0, len(s.prices))
	for _, p := range s.prices {
		result = append(result, p)
	}
	return result, nil
}

// UpsertPositions wholly replaces the row for each (wallet, symbol, chain)
// triple, subject to the same monotonic UpdatedAt rule as prices.
func (s *Store) UpsertPositions(_ context.Context, positions []market.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, p := range positions {
		p.WalletAddress = market.NormalizeWallet(p.WalletAddress)
		p.Symbol = market.NormalizeSymbol(p.Symbol)
		if p.WalletAddress == "" || p.Symbol == "" {
			continue
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		key := positionKey(p)
		if existing, ok := s.positions[key]; ok && existing.UpdatedAt.After(p.UpdatedAt) {
			continue
		}
		s.positions[key] = p
	}
	return nil
}

func (s *Store) ListPositions(_ context.Context, wallet string) ([]market.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wallet = market.NormalizeWallet(wallet)
	result := make([]market.Position, 0)
	for _, p := range s.positions {
		if wallet == "" || p.WalletAddress == wallet {
			result = append(result, p)
		}
	}
	return result, nil
}
