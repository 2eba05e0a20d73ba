// Package agent defines the inter-agent coordination models: message and
// task result envelopes, the closed set of agent kinds, and the typed
// capability requests the orchestrator dispatches on.
package agent

import (
	"time"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
)

// Kind identifies an agent variant.
type Kind string

const (
	KindRisk       Kind = "risk"
	KindSettlement Kind = "settlement"
	KindReporting  Kind = "reporting"
	KindLead       Kind = "lead"
)

// Kinds lists every agent kind in dispatch order.
func Kinds() []Kind {
	return []Kind{KindRisk, KindSettlement, KindReporting, KindLead}
}

// Broadcast is the recipient value for messages addressed to every agent.
const Broadcast = "broadcast"

// Message is one bus message between agents. Immutable once published; the
// bus owns the history copy.
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// TaskResult is the uniform envelope produced by one agent invocation.
type TaskResult struct {
	Success       bool          `json:"success"`
	Data          any           `json:"data,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"executionTime"`
	AgentID       Kind          `json:"agentId"`
}

// ReportPeriod enumerates supported report windows.
type ReportPeriod string

const (
	PeriodDaily  ReportPeriod = "daily"
	PeriodWeekly ReportPeriod = "weekly"
	PeriodCustom ReportPeriod = "custom"
)

// Normalize maps unknown or empty periods to the daily default.
func (p ReportPeriod) Normalize() ReportPeriod {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodCustom:
		return p
	default:
		return PeriodDaily
	}
}

// SettlementTx is one transaction submitted for batch settlement.
type SettlementTx struct {
	ID     string  `json:"id,omitempty"`
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Token  string  `json:"token,omitempty"`
	Data   string  `json:"data,omitempty"`
}

// BatchStatus enumerates settlement batch outcomes.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// RiskAssessment is the risk agent's result. HealthScore is clamped to
// [0,100] and LiquidationRisk to [0,1]; Recommendations always holds at
// least one entry.
type RiskAssessment struct {
	VaR             float64  `json:"var"`
	Volatility      float64  `json:"volatility"`
	SharpeRatio     float64  `json:"sharpeRatio"`
	LiquidationRisk float64  `json:"liquidationRisk"`
	HealthScore     float64  `json:"healthScore"`
	Recommendations []string `json:"recommendations"`
}

// SettlementBatch is the settlement agent's result for one batch call.
type SettlementBatch struct {
	BatchID          string      `json:"batchId"`
	TransactionCount int         `json:"transactionCount"`
	GasSaved         float64     `json:"gasSaved"`
	EstimatedCost    float64     `json:"estimatedCost"`
	Status           BatchStatus `json:"status"`
	ProofGenerated   bool        `json:"proofGenerated"`
	TxHash           string      `json:"txHash,omitempty"`
}

// Report is the reporting agent's result.
type Report struct {
	ReportID    string            `json:"reportId"`
	Address     string            `json:"address"`
	Period      ReportPeriod      `json:"period"`
	GeneratedAt time.Time         `json:"generatedAt"`
	Portfolio   *market.Portfolio `json:"portfolio,omitempty"`
	Metrics     *RiskAssessment   `json:"metrics,omitempty"`
	Summary     string            `json:"summary"`
}

// CoordinationSummary is the lead agent's result: the collected outcome of
// the tasks it assigned.
type CoordinationSummary struct {
	Objective string              `json:"objective"`
	Results   map[Kind]TaskResult `json:"results"`
	Completed int                 `json:"completed"`
	Failed    int                 `json:"failed"`
}

// Request is the closed union of capability requests. The orchestrator
// dispatches by exhaustive type switch; there is no string-keyed lookup.
type Request interface {
	AgentKind() Kind
}

// RiskRequest asks the risk agent for an assessment. Positions and Prices
// may be empty, in which case the agent loads them itself.
type RiskRequest struct {
	Address   string
	Positions []market.Position
	Prices    map[string]market.Price
}

func (RiskRequest) AgentKind() Kind { return KindRisk }

// SettlementRequest asks the settlement agent to settle a batch.
type SettlementRequest struct {
	Transactions       []SettlementTx
	UseProofOfValidity bool
}

func (SettlementRequest) AgentKind() Kind { return KindSettlement }

// ReportRequest asks the reporting agent for a portfolio report.
type ReportRequest struct {
	Address        string
	Period         ReportPeriod
	IncludeMetrics bool
}

func (ReportRequest) AgentKind() Kind { return KindReporting }

// CoordinationRequest asks the lead agent to fan a task out to other agents.
type CoordinationRequest struct {
	Objective string
	Address   string
	Targets   []Kind
}

func (CoordinationRequest) AgentKind() Kind { return KindLead }
