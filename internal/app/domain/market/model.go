// Package market defines the cached market data models shared by the store,
// the aggregator and the HTTP boundary.
package market

import (
	"strings"
	"time"
)

// Price is the cached price row for a symbol. One row per symbol; the upsert
// key is the upper-cased symbol. UpdatedAt is monotonically non-decreasing
// per symbol and is only ever used for staleness checks.
type Price struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"`
	Volume24h float64   `json:"volume24h"`
	High24h   float64   `json:"high24h"`
	Low24h    float64   `json:"low24h"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Fresh reports whether the row is within maxAge of now. A row exactly at the
// boundary counts as stale (exclusive rule).
func (p Price) Fresh(now time.Time, maxAge time.Duration) bool {
	if p.UpdatedAt.IsZero() || maxAge <= 0 {
		return false
	}
	return now.Sub(p.UpdatedAt) < maxAge
}

// Position is the cached balance row for a wallet token. The upsert key is
// (lower-cased wallet, upper-cased symbol, chain); rows are wholly replaced
// by the most recent refresh.
type Position struct {
	WalletAddress string    `json:"walletAddress"`
	Symbol        string    `json:"symbol"`
	Chain         string    `json:"chain"`
	Balance       float64   `json:"balance"`
	BalanceUSD    float64   `json:"balanceUsd"`
	Price         float64   `json:"price"`
	Change24h     float64   `json:"change24h"`
	TokenAddress  string    `json:"tokenAddress"`
	Source        string    `json:"source"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PortfolioToken is one resolved holding inside a portfolio view.
type PortfolioToken struct {
	Symbol       string  `json:"symbol"`
	Chain        string  `json:"chain"`
	TokenAddress string  `json:"tokenAddress,omitempty"`
	Balance      float64 `json:"balance"`
	Price        float64 `json:"price"`
	Change24h    float64 `json:"change24h"`
	USDValue     float64 `json:"usdValue"`
	Source       string  `json:"source,omitempty"`
}

// Portfolio is the joined positions-and-prices view returned to callers.
// Tokens are sorted by USDValue descending.
type Portfolio struct {
	WalletAddress string           `json:"walletAddress"`
	Tokens        []PortfolioToken `json:"tokens"`
	TotalValue    float64          `json:"totalValue"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// NormalizeSymbol canonicalises a symbol for use as a cache key.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeWallet canonicalises a wallet address for use as a cache key.
func NormalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
