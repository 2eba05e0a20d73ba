package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/marketdata"
	"github.com/mrarejimmyz/zkvanguard/internal/app/orchestrator"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/memory"
	"github.com/mrarejimmyz/zkvanguard/internal/app/system"
	"github.com/mrarejimmyz/zkvanguard/internal/config"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Market storage.MarketStore
}

// Application ties the portfolio core together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Config       config.Config
	Bus          *bus.Bus
	Market       *marketdata.Aggregator
	Orchestrator *orchestrator.Orchestrator
}

// New builds a fully initialised application with the provided stores.
func New(cfg config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Market == nil {
		stores.Market = memory.New()
	}

	manager := system.NewManager()

	messageBus := bus.New(cfg.BusCapacity, log.WithField("component", "bus"))

	sources, err := buildSources(cfg, log)
	if err != nil {
		return nil, err
	}

	aggregator := marketdata.New(stores.Market, sources, marketdata.Options{
		MaxAge:        cfg.PriceMaxAge,
		SourceTimeout: cfg.SourceTimeout,
	}, log.WithField("component", "marketdata"))

	orch := orchestrator.New(aggregator, messageBus, cfg.SignerAvailable(), log.WithField("component", "orchestrator"))

	refresher := marketdata.NewRefresher(aggregator, messageBus, cfg.RefreshSchedule, cfg.SeedSymbols, log.WithField("component", "refresher"))
	if err := manager.Register(refresher); err != nil {
		return nil, fmt.Errorf("register %s: %w", refresher.Name(), err)
	}

	return &Application{
		manager:      manager,
		log:          log,
		Config:       cfg,
		Bus:          messageBus,
		Market:       aggregator,
		Orchestrator: orch,
	}, nil
}

// buildSources assembles the live price sources from configured credentials.
// A missing credential skips its source; it never fails startup.
func buildSources(cfg config.Config, log *logger.Logger) ([]marketdata.Source, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	httpClient := &http.Client{Timeout: 10 * time.Second}
	var sources []marketdata.Source

	if cfg.ExchangeAPIURL != "" {
		src, err := marketdata.NewExchangeSource(httpClient, cfg.ExchangeAPIURL, cfg.ExchangeAPIKey, log)
		if err != nil {
			return nil, fmt.Errorf("configure exchange source: %w", err)
		}
		sources = append(sources, src)
	} else {
		log.Warn("ZKV_EXCHANGE_API_URL not set; exchange source disabled")
	}

	if cfg.MCPGatewayURL != "" {
		src, err := marketdata.NewMCPSource(httpClient, cfg.MCPGatewayURL, log)
		if err != nil {
			return nil, fmt.Errorf("configure mcp source: %w", err)
		}
		sources = append(sources, src)
	} else {
		log.Warn("ZKV_MCP_GATEWAY_URL not set; mcp source disabled")
	}

	if cfg.DEXRPCURL != "" && cfg.DEXRouterAddr != "" {
		src, err := marketdata.NewDEXSource(httpClient, cfg.DEXRPCURL, cfg.DEXRouterAddr, nil, log)
		if err != nil {
			return nil, fmt.Errorf("configure dex source: %w", err)
		}
		sources = append(sources, src)
	} else {
		log.Warn("ZKV_DEX_RPC_URL or ZKV_DEX_ROUTER_ADDR not set; dex source disabled")
	}

	return reorderSources(sources, config.LoadSourcesConfigOrDefault(cfg.SourcesFile)), nil
}

// reorderSources applies a sources.yaml priority override to the default
// exchange, mcp, dex order.
func reorderSources(sources []marketdata.Source, override *config.SourcesConfig) []marketdata.Source {
	if len(sources) == 0 {
		return sources
	}
	byName := make(map[string]marketdata.Source, len(sources))
	names := make([]string, 0, len(sources))
	for _, src := range sources {
		byName[src.Name()] = src
		names = append(names, src.Name())
	}

	out := make([]marketdata.Source, 0, len(sources))
	for _, name := range override.Apply(names) {
		out = append(out, byName[name])
	}
	return out
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services and initializes the agents.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	if err := a.Orchestrator.Initialize(ctx, false); err != nil {
		a.log.WithError(err).Warn("some agents failed to initialize")
	}
	return nil
}

// Stop stops all services and shuts the agents down.
func (a *Application) Stop(ctx context.Context) error {
	a.Orchestrator.Shutdown(ctx)
	return a.manager.Stop(ctx)
}
