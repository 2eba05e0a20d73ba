// Package app composes the portfolio core into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── domain/             # Domain models (pure data structures)
//	│   ├── agent/          # Agent kinds, messages, requests, results
//	│   └── market/         # Prices, positions, portfolios
//	├── storage/            # Store interfaces and implementations
//	│   ├── interfaces.go   # MarketStore interface
//	│   ├── memory/         # In-memory implementation for tests and demo mode
//	│   ├── postgres/       # PostgreSQL implementation for production
//	│   └── redisstore/     # Redis write-through tier for hot prices
//	├── bus/                # Bounded-history message bus
//	├── marketdata/         # Aggregator, price sources, refresher
//	├── agents/             # Risk, settlement, reporting and lead agents
//	├── orchestrator/       # Agent slots, single-flight init, dispatch
//	├── httpapi/            # HTTP handlers and routing
//	├── system/             # Service lifecycle management
//	└── metrics/            # Prometheus collectors
//
// The app package wires these together; domain logic lives in the agents
// and the market-data aggregator, never here.
package app
