// Package marketdata resolves prices and portfolio views from a tiered set
// of sources: fresh cache first, then live sources in fixed priority order,
// then stale cache, then a synthetic fallback. The chain always produces a
// value; individual source failures only advance the chain.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/metrics"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

const (
	// DefaultMaxAge is the freshness window for cache short-circuits.
	DefaultMaxAge = 30 * time.Second
	// DefaultSourceTimeout bounds each source attempt so a hung upstream
	// cannot stall the whole chain.
	DefaultSourceTimeout = 5 * time.Second
)

// SyntheticSourceName tags prices served by the demo fallback.
const SyntheticSourceName = "synthetic"

// Options tune the aggregator's freshness and timeout behaviour.
type Options struct {
	MaxAge        time.Duration
	SourceTimeout time.Duration
}

// Aggregator is the tiered price and position resolver shared by all agents
// and HTTP handlers.
type Aggregator struct {
	store        storage.MarketStore
	sources      []Source
	liveSources  int
	maxAge       time.Duration
	perSourceCap time.Duration
	log          *logger.Logger

	now func() time.Time
}

// New constructs an aggregator over the given store and live sources, in
// priority order. The stale-cache and synthetic fallbacks are appended
// automatically.
func New(store storage.MarketStore, liveSources []Source, opts Options, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewDefault("marketdata")
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	timeout := opts.SourceTimeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}

	sources := append([]Source(nil), liveSources...)
	sources = append(sources, NewStaleCacheSource(store), NewSyntheticSource())

	return &Aggregator{
		store:        store,
		sources:      sources,
		liveSources:  len(liveSources),
		maxAge:       maxAge,
		perSourceCap: timeout,
		log:          log,
		now:          time.Now,
	}
}

// DemoMode reports whether no live sources are configured, meaning every
// resolution that misses the cache is served synthetically.
func (a *Aggregator) DemoMode() bool { return a.liveSources == 0 }

// PrimaryLive probes the highest-priority live source with a short timeout.
func (a *Aggregator) PrimaryLive(ctx context.Context) bool {
	if a.liveSources == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, a.perSourceCap)
	defer cancel()
	_, err := a.sources[0].Quote(ctx, "BTC")
	return err == nil
}

// cachedPrice reads the store without ever faulting: storage errors are
// logged and degrade to a miss.
func (a *Aggregator) cachedPrice(ctx context.Context, symbol string) (market.Price, bool) {
	p, err := a.store.GetPrice(ctx, symbol)
	if err != nil {
		if !storage.IsNotFound(err) {
			a.log.WithError(err).WithField("symbol", symbol).Warn("price cache read failed")
		}
		return market.Price{}, false
	}
	return p, true
}

// cachedPositions reads positions with the same never-fault contract.
func (a *Aggregator) cachedPositions(ctx context.Context, wallet string) []market.Position {
	positions, err := a.store.ListPositions(ctx, wallet)
	if err != nil {
		a.log.WithError(err).WithField("wallet", wallet).Warn("position cache read failed")
		return nil
	}
	return positions
}

// GetPrice resolves one symbol: fresh cache short-circuit, then the source
// chain, first success wins. The winning result is written back with its
// source tag; write failures are logged and swallowed.
func (a *Aggregator) GetPrice(ctx context.Context, symbol string) (market.Price, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return market.Price{}, fmt.Errorf("symbol is required")
	}

	if cached, ok := a.cachedPrice(ctx, symbol); ok && cached.Fresh(a.now(), a.maxAge) {
		metrics.RecordPriceResolution("fresh-cache", true)
		return cached, nil
	}

	var lastErr error
	for _, src := range a.sources {
		attemptCtx, cancel := context.WithTimeout(ctx, a.perSourceCap)
		price, err := src.Quote(attemptCtx, symbol)
		cancel()
		if err != nil {
			metrics.RecordPriceResolution(src.Name(), false)
			a.log.WithError(err).
				WithField("symbol", symbol).
				WithField("source", src.Name()).
				Debugf("price source failed, trying next")
			lastErr = err
			continue
		}

		metrics.RecordPriceResolution(src.Name(), true)
		price.Symbol = symbol
		if price.Source == "" {
			price.Source = src.Name()
		}

		// A stale-cache win keeps its stored UpdatedAt so callers can see
		// how old the degraded answer really is; only live resolves are
		// restamped and written back.
		if _, isCache := src.(*StaleCacheSource); !isCache {
			price.UpdatedAt = a.now().UTC()
			if err := a.store.UpsertPrices(ctx, []market.Price{price}); err != nil {
				a.log.WithError(err).WithField("symbol", symbol).Warn("price write-back failed")
			}
		}
		return price, nil
	}

	// Unreachable while the synthetic source terminates the chain, kept for
	// configurations that construct the aggregator without it.
	return market.Price{}, fmt.Errorf("all price sources failed for %s: %w", symbol, lastErr)
}

// GetMultiplePrices resolves each symbol independently and in parallel. One
// symbol's failure never affects another's result; failed symbols are
// simply absent from the map.
func (a *Aggregator) GetMultiplePrices(ctx context.Context, symbols []string) map[string]market.Price {
	result := make(map[string]market.Price, len(symbols))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		symbol := market.NormalizeSymbol(raw)
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			price, err := a.GetPrice(ctx, symbol)
			if err != nil {
				a.log.WithError(err).WithField("symbol", symbol).Warn("price resolution failed")
				return
			}
			mu.Lock()
			result[symbol] = price
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return result
}

// GetPortfolioData joins cached positions with resolved prices and returns
// tokens sorted by USD value descending.
func (a *Aggregator) GetPortfolioData(ctx context.Context, wallet string) (market.Portfolio, error) {
	wallet = market.NormalizeWallet(wallet)
	if wallet == "" {
		return market.Portfolio{}, fmt.Errorf("wallet address is required")
	}

	positions := a.cachedPositions(ctx, wallet)
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	prices := a.GetMultiplePrices(ctx, symbols)

	portfolio := market.Portfolio{
		WalletAddress: wallet,
		Tokens:        make([]market.PortfolioToken, 0, len(positions)),
		UpdatedAt:     a.now().UTC(),
	}
	for _, pos := range positions {
		price := pos.Price
		change := pos.Change24h
		source := pos.Source
		if resolved, ok := prices[market.NormalizeSymbol(pos.Symbol)]; ok {
			price = resolved.Price
			change = resolved.Change24h
			source = resolved.Source
		}
		usd := pos.Balance * price
		portfolio.Tokens = append(portfolio.Tokens, market.PortfolioToken{
			Symbol:       pos.Symbol,
			Chain:        pos.Chain,
			TokenAddress: pos.TokenAddress,
			Balance:      pos.Balance,
			Price:        price,
			Change24h:    change,
			USDValue:     usd,
			Source:       source,
		})
		portfolio.TotalValue += usd
	}

	sort.Slice(portfolio.Tokens, func(i, j int) bool {
		return portfolio.Tokens[i].USDValue > portfolio.Tokens[j].USDValue
	})
	return portfolio, nil
}

// TrackedSymbols lists every symbol currently cached, for background
// refresh. Store faults degrade to an empty list.
func (a *Aggregator) TrackedSymbols(ctx context.Context) []string {
	prices, err := a.store.ListPrices(ctx)
	if err != nil {
		a.log.WithError(err).Warn("list cached prices failed")
		return nil
	}
	symbols := make([]string, 0, len(prices))
	for _, p := range prices {
		symbols = append(symbols, p.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}
