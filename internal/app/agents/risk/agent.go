// Package risk implements the risk-assessment agent.
package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/marketdata"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// Agent evaluates portfolio risk from positions and market prices.
type Agent struct {
	aggregator *marketdata.Aggregator
	bus        *bus.Bus
	log        *logger.Logger

	mu          sync.Mutex
	started     bool
	unsubscribe func()
}

// New creates a risk agent backed by the given aggregator and bus.
func New(aggregator *marketdata.Aggregator, b *bus.Bus, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.NewDefault("risk-agent")
	}
	return &Agent{aggregator: aggregator, bus: b, log: log}
}

// Kind reports the agent variant identity.
func (a *Agent) Kind() agent.Kind { return agent.KindRisk }

// Capabilities lists the operations this agent answers for.
func (a *Agent) Capabilities() []string {
	return []string{"assess-risk", "health-score", "liquidation-risk"}
}

// Start subscribes the agent on the bus. Calling it again is a no-op.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}
	a.started = true

	if a.bus != nil {
		a.unsubscribe = a.bus.SubscribeRecipient(string(agent.KindRisk), func(msg agent.Message) {
			a.log.WithField("from", msg.From).WithField("type", msg.Type).Debug("risk agent received message")
		})
		a.bus.Broadcast(string(agent.KindRisk), "agent-started", map[string]any{
			"agent":        string(agent.KindRisk),
			"capabilities": a.Capabilities(),
		})
	}
	return nil
}

// Stop releases the bus subscription.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	a.started = false
	return nil
}

// Assess computes risk metrics for the given address. Empty inputs are
// filled from the aggregator's cached portfolio; when nothing is available
// the result falls back to conservative placeholder metrics.
func (a *Agent) Assess(ctx context.Context, address string, positions []market.Position, prices map[string]market.Price) (agent.RiskAssessment, error) {
	if len(positions) == 0 && a.aggregator != nil && address != "" {
		portfolio, err := a.aggregator.GetPortfolioData(ctx, address)
		if err == nil {
			for _, tok := range portfolio.Tokens {
				positions = append(positions, market.Position{
					WalletAddress: address,
					Symbol:        tok.Symbol,
					Chain:         tok.Chain,
					Balance:       tok.Balance,
					BalanceUSD:    tok.USDValue,
					Price:         tok.Price,
					Change24h:     tok.Change24h,
				})
			}
		}
	}
	if len(prices) == 0 && a.aggregator != nil && len(positions) > 0 {
		symbols := make([]string, 0, len(positions))
		for _, pos := range positions {
			symbols = append(symbols, pos.Symbol)
		}
		prices = a.aggregator.GetMultiplePrices(ctx, symbols)
	}

	if len(positions) == 0 {
		return placeholderAssessment(), nil
	}

	assessment := a.assess(positions, prices)
	if a.bus != nil {
		a.bus.Broadcast(string(agent.KindRisk), "risk-assessed", map[string]any{
			"address":     address,
			"healthScore": assessment.HealthScore,
		})
	}
	return assessment, nil
}

// AssessAddress assesses an address from cached portfolio data only.
func (a *Agent) AssessAddress(ctx context.Context, address string) (agent.RiskAssessment, error) {
	return a.Assess(ctx, address, nil, nil)
}

func (a *Agent) assess(positions []market.Position, prices map[string]market.Price) agent.RiskAssessment {
	var totalValue float64
	var weightedChange float64
	changes := make([]float64, 0, len(positions))

	for _, pos := range positions {
		value := pos.BalanceUSD
		if value == 0 {
			price := pos.Price
			if p, ok := prices[market.NormalizeSymbol(pos.Symbol)]; ok {
				price = p.Price
			}
			value = pos.Balance * price
		}
		change := pos.Change24h
		if p, ok := prices[market.NormalizeSymbol(pos.Symbol)]; ok && p.Change24h != 0 {
			change = p.Change24h
		}
		totalValue += value
		weightedChange += value * change
		changes = append(changes, change)
	}

	if totalValue <= 0 {
		return placeholderAssessment()
	}

	avgChange := weightedChange / totalValue
	volatility := stddev(changes)
	if volatility == 0 {
		volatility = math.Abs(avgChange) / 2
	}

	// Parametric one-day VaR at 95% confidence.
	varPct := 1.645 * volatility / 100
	valueAtRisk := totalValue * varPct

	sharpe := 0.0
	if volatility > 0 {
		sharpe = avgChange / volatility
	}

	concentration := concentrationShare(positions, totalValue, prices)

	liquidationRisk := clamp(volatility/50+concentration/4, 0, 1)
	healthScore := clamp(100-volatility*2-concentration*30, 0, 100)

	return agent.RiskAssessment{
		VaR:             round2(valueAtRisk),
		Volatility:      round2(volatility),
		SharpeRatio:     round2(sharpe),
		LiquidationRisk: round2(liquidationRisk),
		HealthScore:     round2(healthScore),
		Recommendations: recommendations(healthScore, liquidationRisk, concentration, volatility),
	}
}

// placeholderAssessment is the conservative answer when no data is available.
func placeholderAssessment() agent.RiskAssessment {
	return agent.RiskAssessment{
		VaR:             0,
		Volatility:      0,
		SharpeRatio:     0,
		LiquidationRisk: 0.5,
		HealthScore:     50,
		Recommendations: []string{
			"No portfolio data available; connect a wallet or refresh market data for a full assessment.",
		},
	}
}

func recommendations(health, liquidation, concentration, volatility float64) []string {
	var recs []string
	if health < 40 {
		recs = append(recs, "Portfolio health is low; consider reducing leveraged or volatile positions.")
	}
	if liquidation > 0.6 {
		recs = append(recs, "Liquidation risk is elevated; add collateral or close the riskiest positions.")
	}
	if concentration > 0.5 {
		recs = append(recs, fmt.Sprintf("Largest position holds %.0f%% of portfolio value; diversify to reduce concentration risk.", concentration*100))
	}
	if volatility > 10 {
		recs = append(recs, "Recent volatility is high; consider hedging with stable assets.")
	}
	if len(recs) == 0 {
		recs = append(recs, "Portfolio risk is within normal bounds; no action required.")
	}
	return recs
}

// concentrationShare returns the largest single position's share of total value.
func concentrationShare(positions []market.Position, totalValue float64, prices map[string]market.Price) float64 {
	values := make([]float64, 0, len(positions))
	for _, pos := range positions {
		value := pos.BalanceUSD
		if value == 0 {
			price := pos.Price
			if p, ok := prices[market.NormalizeSymbol(pos.Symbol)]; ok {
				price = p.Price
			}
			value = pos.Balance * price
		}
		values = append(values, value)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(values)))
	if len(values) == 0 || totalValue <= 0 {
		return 0
	}
	return values[0] / totalValue
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
