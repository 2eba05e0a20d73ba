package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/system"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// Refresher keeps the price cache warm on a cron schedule and announces each
// refreshed price on the message bus so live consumers (the dashboard
// stream) can follow along.
type Refresher struct {
	agg      *Aggregator
	bus      *bus.Bus
	schedule string
	seed     []string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRefresher creates a lifecycle-managed cache warmer. schedule is a cron
// spec (robfig syntax, e.g. "@every 30s"); seed symbols are refreshed even
// before anything is cached.
func NewRefresher(agg *Aggregator, b *bus.Bus, schedule string, seed []string, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("marketdata-refresher")
	}
	if schedule == "" {
		schedule = "@every 30s"
	}
	return &Refresher{
		agg:      agg,
		bus:      b,
		schedule: schedule,
		seed:     append([]string(nil), seed...),
		log:      log,
	}
}

func (r *Refresher) Name() string { return "marketdata-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.tick(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	r.running = true
	r.log.WithField("schedule", r.schedule).Info("market data refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.running = false
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	r.log.Info("market data refresher stopped")
	return nil
}

func (r *Refresher) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	symbols := r.agg.TrackedSymbols(ctx)
	if len(symbols) == 0 {
		symbols = r.seed
	}
	if len(symbols) == 0 {
		return
	}

	prices := r.agg.GetMultiplePrices(ctx, symbols)
	if r.bus == nil {
		return
	}
	for _, price := range prices {
		r.bus.Broadcast("marketdata", "price-update", map[string]any{
			"symbol":    price.Symbol,
			"price":     price.Price,
			"change24h": price.Change24h,
			"source":    price.Source,
			"updatedAt": price.UpdatedAt,
		})
	}
}
