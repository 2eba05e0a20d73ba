package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/internal/app/marketdata"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/memory"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *bus.Bus) {
	t.Helper()
	b := bus.New(100, nil)
	agg := marketdata.New(memory.New(), nil, marketdata.Options{MaxAge: time.Minute}, nil)
	return New(agg, b, false, nil), b
}

func TestInitializeBringsAllAgentsUp(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	if err := o.Initialize(context.Background(), false); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	status := o.Status()
	if !status.Initialized {
		t.Fatal("expected initialized status")
	}
	for _, kind := range agent.Kinds() {
		st, ok := status.Agents[kind]
		if !ok || !st.Available {
			t.Fatalf("agent %s not available: %+v", kind, st)
		}
		if len(st.Capabilities) == 0 {
			t.Fatalf("agent %s reports no capabilities", kind)
		}
	}
}

func TestConcurrentInitializeConstructsEachAgentOnce(t *testing.T) {
	o, b := newTestOrchestrator(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = o.Initialize(ctx, false)
		}()
	}
	wg.Wait()

	// Every agent announces itself once on Start; duplicate construction
	// would show up as extra announcements.
	stats := b.Stats()
	if got := stats.ByType["agent-started"]; got != len(agent.Kinds()) {
		t.Fatalf("expected %d startup announcements, got %d", len(agent.Kinds()), got)
	}
}

func TestForceInitializeReconstructs(t *testing.T) {
	o, b := newTestOrchestrator(t)
	ctx := context.Background()

	if err := o.Initialize(ctx, false); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := o.Initialize(ctx, true); err != nil {
		t.Fatalf("force initialize: %v", err)
	}

	stats := b.Stats()
	if got := stats.ByType["agent-started"]; got != 2*len(agent.Kinds()) {
		t.Fatalf("expected reconstruction announcements, got %d", got)
	}

	status := o.Status()
	for _, kind := range agent.Kinds() {
		if !status.Agents[kind].Available {
			t.Fatalf("agent %s unavailable after forced re-init", kind)
		}
	}
}

func TestInvokeLazyInitializes(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	result := o.Invoke(context.Background(), agent.RiskRequest{Address: "0xabc"})
	if !result.Success {
		t.Fatalf("invoke failed: %s", result.Error)
	}
	if result.AgentID != agent.KindRisk {
		t.Fatalf("expected risk agent id, got %s", result.AgentID)
	}
	if result.ExecutionTime < 0 {
		t.Fatalf("execution time must be non-negative, got %v", result.ExecutionTime)
	}

	assessment, ok := result.Data.(agent.RiskAssessment)
	if !ok {
		t.Fatalf("unexpected data type %T", result.Data)
	}
	if assessment.HealthScore < 0 || assessment.HealthScore > 100 {
		t.Fatalf("health score out of range: %v", assessment.HealthScore)
	}
}

type bogusRequest struct{}

func (bogusRequest) AgentKind() agent.Kind { return agent.Kind("bogus") }

func TestInvokeUnknownKindFailsSoftly(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	result := o.Invoke(context.Background(), bogusRequest{})
	if result.Success {
		t.Fatal("expected failed result for unknown kind")
	}
	if result.Error == "" {
		t.Fatal("expected a reason string")
	}
}

func TestInvokeSettlementEmptyBatch(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	result := o.Invoke(context.Background(), agent.SettlementRequest{Transactions: []agent.SettlementTx{}})
	if !result.Success {
		t.Fatalf("invoke failed: %s", result.Error)
	}
	batch, ok := result.Data.(agent.SettlementBatch)
	if !ok {
		t.Fatalf("unexpected data type %T", result.Data)
	}
	if batch.TransactionCount != 0 {
		t.Fatalf("expected empty batch, got %d", batch.TransactionCount)
	}
}

func TestInvokeCoordinationFansOut(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	result := o.Invoke(context.Background(), agent.CoordinationRequest{Objective: "health check", Address: "0xabc"})
	if !result.Success {
		t.Fatalf("invoke failed: %s", result.Error)
	}
	summary, ok := result.Data.(agent.CoordinationSummary)
	if !ok {
		t.Fatalf("unexpected data type %T", result.Data)
	}
	if summary.Completed != 3 {
		t.Fatalf("expected 3 completed tasks, got %d", summary.Completed)
	}
}

func TestStatusBeforeInitialize(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	status := o.Status()
	if status.Initialized {
		t.Fatal("expected uninitialized status")
	}
	for kind, st := range status.Agents {
		if st.Available {
			t.Fatalf("agent %s should not be available before initialize", kind)
		}
	}
}

func TestSignerAvailabilityReflectsConfig(t *testing.T) {
	b := bus.New(10, nil)
	agg := marketdata.New(memory.New(), nil, marketdata.Options{}, nil)

	withSigner := New(agg, b, true, nil)
	if !withSigner.Status().SignerAvailable {
		t.Fatal("expected signer available")
	}
	withoutSigner := New(agg, b, false, nil)
	if withoutSigner.Status().SignerAvailable {
		t.Fatal("expected signer unavailable")
	}
}

func TestForceInitializeSupersedesInFlightConstruction(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()

	// Claim the risk slot the way a constructing caller does, leaving the
	// construction in flight.
	o.mu.Lock()
	stale := o.slots[agent.KindRisk]
	stale.state = slotInitializing
	stale.done = make(chan struct{})
	o.mu.Unlock()

	// A forced re-initialize replaces every slot, including the claimed one,
	// and installs a fresh agent on the successor.
	if err := o.Initialize(ctx, true); err != nil {
		t.Fatalf("force initialize: %v", err)
	}
	o.mu.Lock()
	installed := o.slots[agent.KindRisk].agent
	o.mu.Unlock()
	if installed == nil {
		t.Fatal("expected a fresh risk agent after forced initialize")
	}

	// The abandoned construction completes afterwards; it must discard its
	// result instead of stomping the successor slot.
	a, settled, err := o.initializeSlot(ctx, agent.KindRisk, stale)
	if settled {
		t.Fatal("superseded construction must not settle the slot")
	}
	if a != nil || err != nil {
		t.Fatalf("superseded construction returned %v, %v", a, err)
	}

	o.mu.Lock()
	s := o.slots[agent.KindRisk]
	state, current := s.state, s.agent
	o.mu.Unlock()
	if state != slotReady || current != installed {
		t.Fatalf("successor slot was stomped: state=%d agent=%p want=%p", state, current, installed)
	}

	// Waiters parked on the abandoned claim were released.
	select {
	case <-stale.done:
	default:
		t.Fatal("superseded construction did not release its waiters")
	}

	// The kind still dispatches through the surviving agent.
	result := o.Invoke(ctx, agent.RiskRequest{Address: "0xabc"})
	if !result.Success {
		t.Fatalf("invoke after supersession failed: %s", result.Error)
	}
}
