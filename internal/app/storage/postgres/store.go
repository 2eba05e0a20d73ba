// Package postgres implements the market store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage"
)

// Store implements storage.MarketStore backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.MarketStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the cache tables if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS market_prices (
			symbol      TEXT PRIMARY KEY,
			price       DOUBLE PRECISION NOT NULL,
			change_24h  DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_24h  DOUBLE PRECISION NOT NULL DEFAULT 0,
			high_24h    DOUBLE PRECISION NOT NULL DEFAULT 0,
			low_24h     DOUBLE PRECISION NOT NULL DEFAULT 0,
			source      TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS market_positions (
			wallet_address TEXT NOT NULL,
			symbol         TEXT NOT NULL,
			chain          TEXT NOT NULL,
			balance        DOUBLE PRECISION NOT NULL DEFAULT 0,
			balance_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
			price          DOUBLE PRECISION NOT NULL DEFAULT 0,
			change_24h     DOUBLE PRECISION NOT NULL DEFAULT 0,
			token_address  TEXT NOT NULL DEFAULT '',
			source         TEXT NOT NULL DEFAULT '',
			updated_at     TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (wallet_address, symbol, chain)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- prices -----------------------------------------------------------------

// UpsertPrices writes one row per symbol. The conflict guard keeps
// updated_at monotonic: an incoming row older than the stored one is a no-op.
func (s *Store) UpsertPrices(ctx context.Context, prices []market.Price) error {
	now := time.Now().UTC()
	for _, p := range prices {
		p.Symbol = market.NormalizeSymbol(p.Symbol)
		if p.Symbol == "" {
			continue
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO market_prices (symbol, price, change_24h, volume_24h, high_24h, low_24h, source, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol) DO UPDATE
			SET price = EXCLUDED.price,
			    change_24h = EXCLUDED.change_24h,
			    volume_24h = EXCLUDED.volume_24h,
			    high_24h = EXCLUDED.high_24h,
			    low_24h = EXCLUDED.low_24h,
			    source = EXCLUDED.source,
			    updated_at = EXCLUDED.updated_at
			WHERE market_prices.updated_at <= EXCLUDED.updated_at
		`, p.Symbol, p.Price, p.Change24h, p.Volume24h, p.High24h, p.Low24h, p.Source, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert price %s: %w", p.Symbol, err)
		}
	}
	return nil
}

func (s *Store) GetPrice(ctx context.Context, symbol string) (market.Price, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, price, change_24h, volume_24h, high_24h, low_24h, source, updated_at
		FROM market_prices
		WHERE symbol = $1
	`, market.NormalizeSymbol(symbol))

	var p market.Price
	err := row.Scan(&p.Symbol, &p.Price, &p.Change24h, &p.Volume24h, &p.High24h, &p.Low24h, &p.Source, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return market.Price{}, fmt.Errorf("price for %s: %w", symbol, storage.ErrNotFound)
	}
	if err != nil {
		return market.Price{}, fmt.Errorf("get price %s: %w", symbol, err)
	}
	return p, nil
}

func (s *Store) ListPrices(ctx context.Context) ([]market.Price, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, price, change_24h, volume_24h, high_24h, low_24h, source, updated_at
		FROM market_prices
	`)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer rows.Close()

	result := make([]market.Price, 0)
	for rows.Next() {
		var p market.Price
		if err := rows.Scan(&p.Symbol, &p.Price, &p.Change24h, &p.Volume24h, &p.High24h, &p.Low24h, &p.Source, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// --- positions --------------------------------------------------------------

func (s *Store) UpsertPositions(ctx context.Context, positions []market.Position) error {
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
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO market_positions (wallet_address, symbol, chain, balance, balance_usd, price, change_24h, token_address, source, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (wallet_address, symbol, chain) DO UPDATE
			SET balance = EXCLUDED.balance,
			    balance_usd = EXCLUDED.balance_usd,
			    price = EXCLUDED.price,
			    change_24h = EXCLUDED.change_24h,
			    token_address = EXCLUDED.token_address,
			    source = EXCLUDED.source,
			    updated_at = EXCLUDED.updated_at
			WHERE market_positions.updated_at <= EXCLUDED.updated_at
		`, p.WalletAddress, p.Symbol, p.Chain, p.Balance, p.BalanceUSD, p.Price, p.Change24h, p.TokenAddress, p.Source, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert position %s/%s: %w", p.WalletAddress, p.Symbol, err)
		}
	}
	return nil
}

func (s *Store) ListPositions(ctx context.Context, wallet string) ([]market.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_address, symbol, chain, balance, balance_usd, price, change_24h, token_address, source, updated_at
		FROM market_positions
		WHERE wallet_address = $1
	`, market.NormalizeWallet(wallet))
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	result := make([]market.Position, 0)
	for rows.Next() {
		var p market.Position
		if err := rows.Scan(&p.WalletAddress, &p.Symbol, &p.Chain, &p.Balance, &p.BalanceUSD, &p.Price, &p.Change24h, &p.TokenAddress, &p.Source, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
