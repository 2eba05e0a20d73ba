package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "github.com/mrarejimmyz/zkvanguard/internal/app"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/memory"
	"github.com/mrarejimmyz/zkvanguard/internal/config"
)

func newTestApp(t *testing.T) (*app.Application, *memory.Store) {
	t.Helper()

	store := memory.New()
	cfg := config.Config{
		BusCapacity:     100,
		PriceMaxAge:     time.Minute,
		SourceTimeout:   time.Second,
		RefreshSchedule: "@every 1h",
	}
	application, err := app.New(cfg, app.Stores{Market: store}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Orchestrator.Initialize(context.Background(), false); err != nil {
		t.Fatalf("initialize agents: %v", err)
	}
	t.Cleanup(func() { application.Orchestrator.Shutdown(context.Background()) })
	return application, store
}

func marshal(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(data)
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body *bytes.Reader) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return out
}

func TestRiskAssessNoPortfolioData(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/risk/assess", marshal(t, map[string]any{"address": "0xabc"}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	out := decode(t, resp)
	assessment, ok := out["assessment"].(map[string]any)
	if !ok {
		t.Fatalf("missing assessment: %v", out)
	}
	health, ok := assessment["healthScore"].(float64)
	if !ok || health < 0 || health > 100 {
		t.Fatalf("healthScore out of range: %v", assessment["healthScore"])
	}
	recs, ok := assessment["recommendations"].([]any)
	if !ok || len(recs) == 0 {
		t.Fatalf("expected at least one recommendation, got %v", assessment["recommendations"])
	}
}

func TestRiskAssessMissingAddress(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/risk/assess", marshal(t, map[string]any{}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRiskAssessFallbackWhenRealAgentDeclined(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/risk/assess", marshal(t, map[string]any{
		"address":      "0xabc",
		"useRealAgent": false,
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	out := decode(t, resp)
	if out["realAgent"] != false {
		t.Fatalf("expected realAgent=false, got %v", out["realAgent"])
	}
}

func TestSettlementExecuteEmptyBatch(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/settlement/execute", marshal(t, map[string]any{
		"transactions": []any{},
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	out := decode(t, resp)
	batch, ok := out["batch"].(map[string]any)
	if !ok {
		t.Fatalf("missing batch: %v", out)
	}
	if batch["transactionCount"] != float64(0) {
		t.Fatalf("expected transactionCount 0, got %v", batch["transactionCount"])
	}
}

func TestSettlementExecuteMissingTransactions(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/settlement/execute", marshal(t, map[string]any{}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestReportingGenerateDefaultsPeriod(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/reporting/generate", marshal(t, map[string]any{
		"address": "0xabc",
	}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	out := decode(t, resp)
	report, ok := out["report"].(map[string]any)
	if !ok {
		t.Fatalf("missing report: %v", out)
	}
	if report["period"] != "daily" {
		t.Fatalf("expected daily default, got %v", report["period"])
	}
}

func TestReportingGenerateMissingAddress(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/reporting/generate", marshal(t, map[string]any{}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestOrchestratorStatus(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodGet, "/agents/orchestrator/status", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	out := decode(t, resp)
	orch, ok := out["orchestrator"].(map[string]any)
	if !ok {
		t.Fatalf("missing orchestrator block: %v", out)
	}
	if orch["initialized"] != true {
		t.Fatalf("expected initialized, got %v", orch["initialized"])
	}
	if orch["signerAvailable"] != false {
		t.Fatalf("expected signer unavailable, got %v", orch["signerAvailable"])
	}
	agents, ok := out["agents"].(map[string]any)
	if !ok || len(agents) != 4 {
		t.Fatalf("expected 4 agents, got %v", out["agents"])
	}
	if _, ok := out["integrations"].(map[string]any); !ok {
		t.Fatalf("missing integrations block: %v", out)
	}
}

func TestOrchestratorReinitWithForce(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/orchestrator/status", marshal(t, map[string]any{"force": true}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	out := decode(t, resp)
	if out["success"] != true {
		t.Fatalf("expected success, got %v", out)
	}
}

func TestMarketDataDemoModeFlag(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodGet, "/market-data?symbols=BTC,ETH", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	out := decode(t, resp)
	if out["demoMode"] != true {
		t.Fatalf("no live sources configured, expected demoMode=true, got %v", out["demoMode"])
	}
	prices, ok := out["prices"].(map[string]any)
	if !ok || len(prices) != 2 {
		t.Fatalf("expected 2 prices, got %v", out["prices"])
	}
}

func TestPositionsMissingAddress(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodGet, "/positions", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPositionsSortedByValue(t *testing.T) {
	application, store := newTestApp(t)
	handler := NewHandler(application, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.UpsertPositions(ctx, []market.Position{
		{WalletAddress: "0xabc", Symbol: "ETH", Chain: "ethereum", Balance: 2},
		{WalletAddress: "0xabc", Symbol: "BTC", Chain: "bitcoin", Balance: 0.1},
	}); err != nil {
		t.Fatalf("seed positions: %v", err)
	}
	if err := store.UpsertPrices(ctx, []market.Price{
		{Symbol: "ETH", Price: 3500, UpdatedAt: now},
		{Symbol: "BTC", Price: 65000, UpdatedAt: now},
	}); err != nil {
		t.Fatalf("seed prices: %v", err)
	}

	resp := doRequest(t, handler, http.MethodGet, "/positions?address=0xabc", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	out := decode(t, resp)
	tokens, ok := out["tokens"].([]any)
	if !ok || len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %v", out["tokens"])
	}
	first := tokens[0].(map[string]any)
	if first["symbol"] != "ETH" {
		t.Fatalf("tokens not sorted by usdValue descending: %v", tokens)
	}
	if out["livePrices"] != false {
		t.Fatalf("expected livePrices=false without live sources, got %v", out["livePrices"])
	}
}

func TestHealthz(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodGet, "/healthz", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	application, _ := newTestApp(t)
	handler := NewHandler(application, nil)

	resp := doRequest(t, handler, http.MethodPost, "/agents/risk/assess", marshal(t, map[string]any{
		"address": "0xabc",
		"bogus":   true,
	}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.Code)
	}
}
