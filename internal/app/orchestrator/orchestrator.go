// Package orchestrator owns the agent slots and dispatches capability
// requests to them. Slots are constructed lazily with single-flight
// initialization so concurrent callers never duplicate an agent.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mrarejimmyz/zkvanguard/internal/app/agents/lead"
	"github.com/mrarejimmyz/zkvanguard/internal/app/agents/reporting"
	"github.com/mrarejimmyz/zkvanguard/internal/app/agents/risk"
	"github.com/mrarejimmyz/zkvanguard/internal/app/agents/settlement"
	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/internal/app/marketdata"
	"github.com/mrarejimmyz/zkvanguard/internal/app/metrics"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// Runner is the lifecycle every agent variant implements.
type Runner interface {
	Kind() agent.Kind
	Capabilities() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type slotState int

const (
	slotUninitialized slotState = iota
	slotInitializing
	slotReady
	slotUnavailable
)

type slot struct {
	state slotState
	agent Runner
	err   error
	done  chan struct{}
}

// AgentStatus describes one slot in a status read.
type AgentStatus struct {
	Available    bool     `json:"available"`
	Capabilities []string `json:"capabilities"`
}

// Status is a point-in-time read of the orchestrator.
type Status struct {
	Initialized     bool                       `json:"initialized"`
	SignerAvailable bool                       `json:"signerAvailable"`
	Agents          map[agent.Kind]AgentStatus `json:"agents"`
}

// Orchestrator constructs and dispatches to the agent variants.
type Orchestrator struct {
	aggregator      *marketdata.Aggregator
	bus             *bus.Bus
	signerAvailable bool
	log             *logger.Logger

	mu          sync.Mutex
	slots       map[agent.Kind]*slot
	initialized bool
}

// New creates an orchestrator. Agents are constructed lazily on first use
// or eagerly via Initialize.
func New(aggregator *marketdata.Aggregator, b *bus.Bus, signerAvailable bool, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewDefault("orchestrator")
	}
	o := &Orchestrator{
		aggregator:      aggregator,
		bus:             b,
		signerAvailable: signerAvailable,
		log:             log,
		slots:           make(map[agent.Kind]*slot, len(agent.Kinds())),
	}
	for _, kind := range agent.Kinds() {
		o.slots[kind] = &slot{state: slotUninitialized}
	}
	return o
}

// Initialize brings every agent slot to a settled state. With force set it
// tears down existing agents first and reconstructs them all. Without force
// it is idempotent; slots already Ready or Unavailable are left as they are.
func (o *Orchestrator) Initialize(ctx context.Context, force bool) error {
	if force {
		o.teardown(ctx)
	}

	var firstErr error
	for _, kind := range agent.Kinds() {
		if _, err := o.ensure(ctx, kind); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("agent %s: %w", kind, err)
		}
	}

	o.mu.Lock()
	o.initialized = true
	o.mu.Unlock()
	return firstErr
}

// teardown stops all Ready agents and resets every slot to Uninitialized.
// An in-flight construction is not waited for; its constructor detects the
// replaced slot on completion and stops its own agent.
func (o *Orchestrator) teardown(ctx context.Context) {
	o.mu.Lock()
	agents := make([]Runner, 0, len(o.slots))
	for _, s := range o.slots {
		if s.state == slotReady && s.agent != nil {
			agents = append(agents, s.agent)
		}
	}
	for kind := range o.slots {
		o.slots[kind] = &slot{state: slotUninitialized}
	}
	o.initialized = false
	o.mu.Unlock()

	for _, a := range agents {
		if err := a.Stop(ctx); err != nil {
			o.log.WithError(err).WithField("agent", string(a.Kind())).Warn("agent stop failed during teardown")
		}
	}
}

// Shutdown stops all running agents.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.teardown(ctx)
}

// ensure returns the Ready agent for kind, constructing it single-flight if
// the slot is Uninitialized. Unavailable is sticky until a forced Initialize.
func (o *Orchestrator) ensure(ctx context.Context, kind agent.Kind) (Runner, error) {
	for {
		o.mu.Lock()
		s, ok := o.slots[kind]
		if !ok {
			o.mu.Unlock()
			return nil, fmt.Errorf("unknown agent kind %q", kind)
		}

		switch s.state {
		case slotReady:
			a := s.agent
			o.mu.Unlock()
			return a, nil

		case slotUnavailable:
			err := s.err
			o.mu.Unlock()
			return nil, err

		case slotInitializing:
			done := s.done
			o.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			// Re-read the slot; a forced re-initialize may have replaced it
			// while this caller was waiting.
			continue
		}

		// Uninitialized: this caller constructs; concurrent callers wait on
		// the done channel.
		s.state = slotInitializing
		s.done = make(chan struct{})
		o.mu.Unlock()

		a, settled, err := o.initializeSlot(ctx, kind, s)
		if settled {
			return a, err
		}
		// The claimed slot was replaced mid-construction; retry against its
		// successor.
	}
}

// initializeSlot constructs and starts the agent for kind and installs the
// result on the claimed slot s. It reports settled=false when s was
// superseded by a forced re-initialize while the construction ran; the
// orphaned agent is stopped and the result discarded so the kind is never
// served by two live agents.
func (o *Orchestrator) initializeSlot(ctx context.Context, kind agent.Kind, s *slot) (Runner, bool, error) {
	a, err := o.construct(kind)
	if err == nil {
		err = a.Start(ctx)
	}

	o.mu.Lock()
	if o.slots[kind] != s {
		o.mu.Unlock()
		close(s.done)
		if err == nil {
			if stopErr := a.Stop(ctx); stopErr != nil {
				o.log.WithError(stopErr).WithField("agent", string(kind)).Warn("superseded agent stop failed")
			}
		}
		return nil, false, nil
	}
	if err != nil {
		s.state = slotUnavailable
		s.err = fmt.Errorf("initialization failed: %w", err)
		s.agent = nil
		o.log.WithError(err).WithField("agent", string(kind)).Error("agent initialization failed")
	} else {
		s.state = slotReady
		s.agent = a
		s.err = nil
	}
	close(s.done)
	s.done = nil
	resultErr := s.err
	o.mu.Unlock()

	if resultErr != nil {
		return nil, true, resultErr
	}
	return a, true, nil
}

func (o *Orchestrator) construct(kind agent.Kind) (Runner, error) {
	switch kind {
	case agent.KindRisk:
		return risk.New(o.aggregator, o.bus, o.log.WithField("agent", "risk")), nil
	case agent.KindSettlement:
		return settlement.New(o.bus, o.signerAvailable, o.log.WithField("agent", "settlement")), nil
	case agent.KindReporting:
		return reporting.New(o.aggregator, riskAssessor{o: o}, o.bus, o.log.WithField("agent", "reporting")), nil
	case agent.KindLead:
		return lead.New(o, o.bus, o.log.WithField("agent", "lead")), nil
	default:
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
}

// riskAssessor lets the reporting agent pull metrics through the
// orchestrator's risk slot without holding a direct reference.
type riskAssessor struct {
	o *Orchestrator
}

func (r riskAssessor) AssessAddress(ctx context.Context, address string) (agent.RiskAssessment, error) {
	runner, err := r.o.ensure(ctx, agent.KindRisk)
	if err != nil {
		return agent.RiskAssessment{}, err
	}
	ra, ok := runner.(*risk.Agent)
	if !ok {
		return agent.RiskAssessment{}, fmt.Errorf("risk slot holds unexpected type %T", runner)
	}
	return ra.AssessAddress(ctx, address)
}

// Status reads the current slot states. It never constructs agents.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	agents := make(map[agent.Kind]AgentStatus, len(o.slots))
	for kind, s := range o.slots {
		st := AgentStatus{Available: s.state == slotReady}
		if s.agent != nil {
			st.Capabilities = s.agent.Capabilities()
		}
		agents[kind] = st
	}
	return Status{
		Initialized:     o.initialized,
		SignerAvailable: o.signerAvailable,
		Agents:          agents,
	}
}

// Invoke dispatches a capability request to its agent. An unavailable agent
// yields a failed TaskResult with a reason, never an error.
func (o *Orchestrator) Invoke(ctx context.Context, req agent.Request) agent.TaskResult {
	kind := req.AgentKind()
	start := time.Now()

	runner, err := o.ensure(ctx, kind)
	if err != nil {
		result := agent.TaskResult{
			Success:       false,
			Error:         fmt.Sprintf("agent %s unavailable: %v", kind, err),
			ExecutionTime: time.Since(start),
			AgentID:       kind,
		}
		metrics.RecordAgentInvocation(string(kind), result.ExecutionTime, false)
		return result
	}

	data, err := o.dispatch(ctx, runner, req)
	result := agent.TaskResult{
		Success:       err == nil,
		Data:          data,
		ExecutionTime: time.Since(start),
		AgentID:       kind,
	}
	if err != nil {
		result.Error = err.Error()
		result.Data = nil
	}
	metrics.RecordAgentInvocation(string(kind), result.ExecutionTime, result.Success)
	return result
}

func (o *Orchestrator) dispatch(ctx context.Context, runner Runner, req agent.Request) (any, error) {
	switch r := req.(type) {
	case agent.RiskRequest:
		a, ok := runner.(*risk.Agent)
		if !ok {
			return nil, fmt.Errorf("risk slot holds unexpected type %T", runner)
		}
		return a.Assess(ctx, r.Address, r.Positions, r.Prices)

	case agent.SettlementRequest:
		a, ok := runner.(*settlement.Agent)
		if !ok {
			return nil, fmt.Errorf("settlement slot holds unexpected type %T", runner)
		}
		return a.BatchSettle(ctx, r.Transactions, r.UseProofOfValidity)

	case agent.ReportRequest:
		a, ok := runner.(*reporting.Agent)
		if !ok {
			return nil, fmt.Errorf("reporting slot holds unexpected type %T", runner)
		}
		return a.Generate(ctx, r.Address, r.Period, r.IncludeMetrics)

	case agent.CoordinationRequest:
		a, ok := runner.(*lead.Agent)
		if !ok {
			return nil, fmt.Errorf("lead slot holds unexpected type %T", runner)
		}
		return a.Coordinate(ctx, r.Objective, r.Address, r.Targets)

	default:
		return nil, fmt.Errorf("unsupported request type %T", req)
	}
}
