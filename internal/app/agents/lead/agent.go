// Package lead implements the coordinating agent. It carries no domain
// logic of its own; it assigns tasks to the specialist agents over the
// bus and collects their results.
package lead

import (
	"context"
	"fmt"
	"sync"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// Invoker dispatches a request to the agent matching its kind. The
// orchestrator satisfies this interface.
type Invoker interface {
	Invoke(ctx context.Context, req agent.Request) agent.TaskResult
}

// Agent coordinates the specialist agents toward a caller-supplied objective.
type Agent struct {
	invoker Invoker
	bus     *bus.Bus
	log     *logger.Logger

	mu      sync.Mutex
	started bool
}

// New creates a lead agent that dispatches through the given invoker.
func New(invoker Invoker, b *bus.Bus, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.NewDefault("lead-agent")
	}
	return &Agent{invoker: invoker, bus: b, log: log}
}

// Kind reports the agent variant identity.
func (a *Agent) Kind() agent.Kind { return agent.KindLead }

// Capabilities lists the operations this agent answers for.
func (a *Agent) Capabilities() []string {
	return []string{"coordinate", "delegate-task"}
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
		a.bus.Broadcast(string(agent.KindLead), "agent-started", map[string]any{
			"agent":        string(agent.KindLead),
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

// Coordinate assigns one task per target kind and gathers the results.
// Targets defaults to risk, settlement and reporting when empty. A failing
// target is recorded in the summary, not propagated.
func (a *Agent) Coordinate(ctx context.Context, objective, address string, targets []agent.Kind) (agent.CoordinationSummary, error) {
	if a.invoker == nil {
		return agent.CoordinationSummary{}, fmt.Errorf("lead agent has no invoker")
	}
	if len(targets) == 0 {
		targets = []agent.Kind{agent.KindRisk, agent.KindSettlement, agent.KindReporting}
	}

	summary := agent.CoordinationSummary{
		Objective: objective,
		Results:   make(map[agent.Kind]agent.TaskResult, len(targets)),
	}

	for _, target := range targets {
		if target == agent.KindLead {
			continue
		}
		req := requestFor(target, address)
		if req == nil {
			summary.Results[target] = agent.TaskResult{
				Success: false,
				Error:   fmt.Sprintf("unknown agent kind %q", target),
				AgentID: target,
			}
			continue
		}

		if a.bus != nil {
			a.bus.Send(string(agent.KindLead), string(target), "task-assignment", map[string]any{
				"objective": objective,
				"address":   address,
			})
		}

		result := a.invoker.Invoke(ctx, req)
		summary.Results[target] = result
		if result.Success {
			summary.Completed++
		} else {
			summary.Failed++
			a.log.WithField("target", string(target)).WithField("error", result.Error).Warn("delegated task failed")
		}
	}

	if a.bus != nil {
		a.bus.Broadcast(string(agent.KindLead), "coordination-completed", map[string]any{
			"objective": objective,
			"completed": summary.Completed,
			"failed":    summary.Failed,
		})
	}
	return summary, nil
}

func requestFor(kind agent.Kind, address string) agent.Request {
	switch kind {
	case agent.KindRisk:
		return agent.RiskRequest{Address: address}
	case agent.KindSettlement:
		return agent.SettlementRequest{}
	case agent.KindReporting:
		return agent.ReportRequest{Address: address, Period: agent.PeriodDaily}
	default:
		return nil
	}
}
