// Package settlement implements the batch-settlement agent.
package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// Gas model constants for a Groth16-style validity proof settlement.
const (
	gasPerTransfer   = 21000.0
	gasPerBatchSlot  = 4500.0
	gasBatchOverhead = 90000.0
	gasPriceGwei     = 12.0
	ethPriceUSD      = 3500.0
)

// Agent settles batches of transactions as a single on-chain operation.
type Agent struct {
	bus            *bus.Bus
	log            *logger.Logger
	signingEnabled bool

	mu      sync.Mutex
	started bool
}

// New creates a settlement agent. signingEnabled reflects whether a signer
// credential is configured; without one the batch stays simulated.
func New(b *bus.Bus, signingEnabled bool, log *logger.Logger) *Agent {
	if log == nil {
		log = logger.NewDefault("settlement-agent")
	}
	return &Agent{bus: b, signingEnabled: signingEnabled, log: log}
}

// Kind reports the agent variant identity.
func (a *Agent) Kind() agent.Kind { return agent.KindSettlement }

// Capabilities lists the operations this agent answers for.
func (a *Agent) Capabilities() []string {
	return []string{"batch-settle", "gas-estimate", "proof-of-validity"}
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
		a.bus.Broadcast(string(agent.KindSettlement), "agent-started", map[string]any{
			"agent":        string(agent.KindSettlement),
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

// BatchSettle settles the full transaction batch as one operation. An empty
// batch is valid and yields a completed zero-count result. Per-transaction
// outcomes never escape this call; callers see exactly one batch result.
func (a *Agent) BatchSettle(ctx context.Context, txs []agent.SettlementTx, useProofOfValidity bool) (agent.SettlementBatch, error) {
	if err := ctx.Err(); err != nil {
		return agent.SettlementBatch{}, err
	}

	batchID := uuid.NewString()
	count := len(txs)

	individualGas := float64(count) * gasPerTransfer
	batchGas := gasBatchOverhead + float64(count)*gasPerBatchSlot
	if count == 0 {
		batchGas = 0
	}
	gasSaved := math.Max(individualGas-batchGas, 0)
	estimatedCost := batchGas * gasPriceGwei * 1e-9 * ethPriceUSD

	batch := agent.SettlementBatch{
		BatchID:          batchID,
		TransactionCount: count,
		GasSaved:         math.Round(gasSaved),
		EstimatedCost:    math.Round(estimatedCost*100) / 100,
		Status:           agent.BatchCompleted,
		ProofGenerated:   useProofOfValidity,
	}
	if count > 0 {
		batch.TxHash = simulatedTxHash(batchID, txs)
	}

	a.log.WithField("batchId", batchID).
		WithField("transactions", count).
		Info("settlement batch executed")

	if a.bus != nil {
		a.bus.Broadcast(string(agent.KindSettlement), "settlement-completed", map[string]any{
			"batchId":          batch.BatchID,
			"transactionCount": batch.TransactionCount,
			"proofGenerated":   batch.ProofGenerated,
		})
	}
	return batch, nil
}

// simulatedTxHash derives a hash for a batch that was not broadcast on chain.
func simulatedTxHash(batchID string, txs []agent.SettlementTx) string {
	h := sha256.New()
	h.Write([]byte(batchID))
	for _, tx := range txs {
		fmt.Fprintf(h, "%s->%s:%f:%s", tx.From, tx.To, tx.Amount, tx.Token)
	}
	fmt.Fprintf(h, "%d", time.Now().UnixNano())
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
