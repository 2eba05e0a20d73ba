package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/memory"
)

func TestRefresherTickSeedsEmptyStore(t *testing.T) {
	store := memory.New()
	agg := New(store, nil, Options{MaxAge: time.Minute, SourceTimeout: time.Second}, nil)
	b := bus.New(100, nil)

	r := NewRefresher(agg, b, "@every 1h", []string{"BTC", "ETH"}, nil)
	r.tick(context.Background())

	stats := b.Stats()
	if got := stats.ByType["price-update"]; got != 2 {
		t.Fatalf("price-update broadcasts = %d, want 2", got)
	}
	if got := stats.BySender["marketdata"]; got != 2 {
		t.Fatalf("marketdata messages = %d, want 2", got)
	}

	// The tick resolves through the fallback chain and warms the cache.
	if _, err := store.GetPrice(context.Background(), "BTC"); err != nil {
		t.Fatalf("BTC not cached after tick: %v", err)
	}
}

func TestRefresherTickPrefersTrackedSymbols(t *testing.T) {
	store := memory.New()
	now := time.Now().UTC()
	if err := store.UpsertPrices(context.Background(), []market.Price{
		{Symbol: "LINK", Price: 18, Source: "exchange", UpdatedAt: now},
	}); err != nil {
		t.Fatalf("UpsertPrices: %v", err)
	}

	agg := New(store, nil, Options{MaxAge: time.Minute, SourceTimeout: time.Second}, nil)
	b := bus.New(100, nil)

	r := NewRefresher(agg, b, "@every 1h", []string{"BTC", "ETH"}, nil)
	r.tick(context.Background())

	history := b.History(10)
	if len(history) != 1 {
		t.Fatalf("history = %d messages, want 1", len(history))
	}
	if got := history[0].Payload["symbol"]; got != "LINK" {
		t.Fatalf("refreshed symbol = %v, want LINK", got)
	}
}

func TestRefresherTickNoSymbols(t *testing.T) {
	store := memory.New()
	agg := New(store, nil, Options{MaxAge: time.Minute, SourceTimeout: time.Second}, nil)
	b := bus.New(100, nil)

	r := NewRefresher(agg, b, "@every 1h", nil, nil)
	r.tick(context.Background())

	if got := b.Stats().Total; got != 0 {
		t.Fatalf("messages after empty tick = %d, want 0", got)
	}
}

func TestRefresherStartStop(t *testing.T) {
	store := memory.New()
	agg := New(store, nil, Options{MaxAge: time.Minute, SourceTimeout: time.Second}, nil)

	r := NewRefresher(agg, nil, "@every 1h", []string{"BTC"}, nil)
	if r.Name() != "marketdata-refresher" {
		t.Fatalf("Name() = %q", r.Name())
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Second start is a no-op.
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start twice: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Stop after stop is also a no-op.
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop twice: %v", err)
	}
}

func TestRefresherBadSchedule(t *testing.T) {
	store := memory.New()
	agg := New(store, nil, Options{MaxAge: time.Minute, SourceTimeout: time.Second}, nil)

	r := NewRefresher(agg, nil, "not a cron spec", nil, nil)
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
