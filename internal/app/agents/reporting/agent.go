// Package reporting implements the portfolio-report agent.
package reporting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/internal/app/marketdata"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// RiskAssessor computes risk metrics for an address using cached data.
type RiskAssessor interface {
	AssessAddress(ctx context.Context, address string) (agent.RiskAssessment, error)
}

// Agent generates portfolio reports over a period.
type Agent struct {
	aggregator *marketdata.Aggregator
	assessor   RiskAssessor
	bus        *bus.Bus
	log        *logger.Logger

	mu      sync.Mutex
	started bool
}

// New creates a reporting agent. assessor may be nil, in which case reports
// with includeMetrics set carry no metrics section.
func New(aggregator *marketdata.Aggregator, assessor RiskAssessor, b *bus.Bus, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.NewDefault("reporting-agent")
	}
	return &Agent{aggregator: aggregator, assessor: assessor, bus: b, log: log}
}

// Kind reports the agent variant identity.
func (a *Agent) Kind() agent.Kind { return agent.KindReporting }

// Capabilities lists the operations this agent answers for.
func (a *Agent) Capabilities() []string {
	return []string{"generate-report", "portfolio-summary"}
}

// Start announces the agent on the bus. Calling it again is a no-op.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	a.started = true
	if a.bus != nil {
		a.bus.Broadcast(string(agent.KindReporting), "agent-started", map[string]any{
			"agent":        string(agent.KindReporting),
			"capabilities": a.Capabilities(),
		})
	}
	return nil
}

// Stop marks the agent stopped.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	return nil
}

// Generate builds a report for the address. An unset period defaults to daily.
func (a *Agent) Generate(ctx context.Context, address string, period agent.ReportPeriod, includeMetrics bool) (agent.Report, error) {
	period = period.Normalize()

	report := agent.Report{
		ReportID:    uuid.NewString(),
		Address:     address,
		Period:      period,
		GeneratedAt: time.Now().UTC(),
	}

	if a.aggregator != nil {
		portfolio, err := a.aggregator.GetPortfolioData(ctx, address)
		if err == nil {
			report.Portfolio = &portfolio
		} else {
			a.log.WithError(err).WithField("address", address).Warn("portfolio unavailable for report")
		}
	}

	if includeMetrics && a.assessor != nil {
		metrics, err := a.assessor.AssessAddress(ctx, address)
		if err == nil {
			report.Metrics = &metrics
		} else {
			a.log.WithError(err).Warn("risk metrics unavailable for report")
		}
	}

	report.Summary = summarize(report)

	if a.bus != nil {
		a.bus.Broadcast(string(agent.KindReporting), "report-generated", map[string]any{
			"reportId": report.ReportID,
			"address":  address,
			"period":   string(period),
		})
	}
	return report, nil
}

func summarize(r agent.Report) string {
	if r.Portfolio == nil || len(r.Portfolio.Tokens) == 0 {
		return fmt.Sprintf("No tracked positions for %s over the %s period.", r.Address, r.Period)
	}
	top := r.Portfolio.Tokens[0]
	return fmt.Sprintf("%d positions worth $%.2f over the %s period; largest holding %s ($%.2f).",
		len(r.Portfolio.Tokens), r.Portfolio.TotalValue, r.Period, top.Symbol, top.USDValue)
}
