// Package httpapi exposes the portfolio core over HTTP.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	app "github.com/mrarejimmyz/zkvanguard/internal/app"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/agent"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/marketdata"
	"github.com/mrarejimmyz/zkvanguard/internal/app/metrics"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// handler bundles the HTTP endpoints for the application.
type handler struct {
	app *app.Application
	log *logger.Logger
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log}

	r := chi.NewRouter()
	r.Use(h.recoverer)

	r.Route("/agents", func(r chi.Router) {
		r.Post("/risk/assess", h.riskAssess)
		r.Post("/settlement/execute", h.settlementExecute)
		r.Post("/reporting/generate", h.reportingGenerate)
		r.Post("/lead/coordinate", h.leadCoordinate)
		r.Get("/orchestrator/status", h.orchestratorStatus)
		r.Post("/orchestrator/status", h.orchestratorReinit)
	})
	r.Get("/market-data", h.marketData)
	r.Post("/market-data", h.marketData)
	r.Get("/positions", h.positions)
	r.Get("/market-data/stream", h.streamPrices)
	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", metrics.Handler())

	return r
}

// recoverer converts panics into a 500 with a short description. Internal
// stack detail never reaches the client.
func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithField("panic", fmt.Sprint(rec)).WithField("path", r.URL.Path).Error("handler panic")
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error":   "internal server error",
					"details": fmt.Sprint(rec),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) riskAssess(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Address       string `json:"address"`
		PortfolioData *struct {
			Positions []market.Position       `json:"positions"`
			Prices    map[string]market.Price `json:"prices"`
		} `json:"portfolioData"`
		UseRealAgent *bool `json:"useRealAgent"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Address) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("address is required"))
		return
	}

	useReal := payload.UseRealAgent == nil || *payload.UseRealAgent
	req := agent.RiskRequest{Address: payload.Address}
	if payload.PortfolioData != nil {
		req.Positions = payload.PortfolioData.Positions
		req.Prices = payload.PortfolioData.Prices
	}

	if useReal {
		result := h.app.Orchestrator.Invoke(r.Context(), req)
		if result.Success {
			writeJSON(w, http.StatusOK, map[string]any{
				"assessment": result.Data,
				"realAgent":  true,
				"agentId":    result.AgentID,
			})
			return
		}
		h.log.WithField("error", result.Error).Warn("risk agent unavailable; serving fallback assessment")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"assessment": fallbackAssessment(),
		"realAgent":  false,
	})
}

// fallbackAssessment is served when the risk agent cannot answer. The
// response always carries at least one recommendation.
func fallbackAssessment() agent.RiskAssessment {
	return agent.RiskAssessment{
		LiquidationRisk: 0.5,
		HealthScore:     50,
		Recommendations: []string{
			"Risk agent unavailable; metrics are conservative defaults, retry once agents are initialized.",
		},
	}
}

func (h *handler) settlementExecute(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Transactions       *[]agent.SettlementTx `json:"transactions"`
		UseProofOfValidity bool                  `json:"useProofOfValidity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Transactions == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("transactions is required"))
		return
	}

	result := h.app.Orchestrator.Invoke(r.Context(), agent.SettlementRequest{
		Transactions:       *payload.Transactions,
		UseProofOfValidity: payload.UseProofOfValidity,
	})
	if !result.Success {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   result.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"batch":   result.Data,
	})
}

func (h *handler) reportingGenerate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Address        string `json:"address"`
		Period         string `json:"period"`
		IncludeMetrics bool   `json:"includeMetrics"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Address) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("address is required"))
		return
	}

	result := h.app.Orchestrator.Invoke(r.Context(), agent.ReportRequest{
		Address:        payload.Address,
		Period:         agent.ReportPeriod(payload.Period),
		IncludeMetrics: payload.IncludeMetrics,
	})
	if !result.Success {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   result.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"report":  result.Data,
	})
}

func (h *handler) leadCoordinate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Objective string   `json:"objective"`
		Address   string   `json:"address"`
		Targets   []string `json:"targets"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Objective) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("objective is required"))
		return
	}

	targets := make([]agent.Kind, 0, len(payload.Targets))
	for _, t := range payload.Targets {
		targets = append(targets, agent.Kind(t))
	}

	result := h.app.Orchestrator.Invoke(r.Context(), agent.CoordinationRequest{
		Objective: payload.Objective,
		Address:   payload.Address,
		Targets:   targets,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success": result.Success,
		"summary": result.Data,
		"error":   result.Error,
	})
}

func (h *handler) orchestratorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statusPayload())
}

func (h *handler) orchestratorReinit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Force bool `json:"force"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	err := h.app.Orchestrator.Initialize(r.Context(), payload.Force)
	body := h.statusPayload()
	body["success"] = err == nil
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) statusPayload() map[string]any {
	status := h.app.Orchestrator.Status()
	return map[string]any{
		"orchestrator": map[string]any{
			"initialized":     status.Initialized,
			"signerAvailable": status.SignerAvailable,
		},
		"agents":       status.Agents,
		"integrations": h.app.Config.Integrations(),
	}
}

func (h *handler) marketData(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	switch r.Method {
	case http.MethodGet:
		if raw := r.URL.Query().Get("symbols"); raw != "" {
			symbols = strings.Split(raw, ",")
		} else if sym := r.URL.Query().Get("symbol"); sym != "" {
			symbols = []string{sym}
		}
	case http.MethodPost:
		var payload struct {
			Symbols []string `json:"symbols"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		symbols = payload.Symbols
	}
	if len(symbols) == 0 {
		symbols = h.app.Market.TrackedSymbols(r.Context())
	}
	if len(symbols) == 0 {
		symbols = []string{"BTC", "ETH"}
	}

	prices := h.app.Market.GetMultiplePrices(r.Context(), symbols)

	demoMode := h.app.Market.DemoMode()
	for _, p := range prices {
		if p.Source == marketdata.SyntheticSourceName {
			demoMode = true
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prices":   prices,
		"demoMode": demoMode,
	})
}

func (h *handler) positions(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("address is required"))
		return
	}

	portfolio, err := h.app.Market.GetPortfolioData(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"address":    portfolio.WalletAddress,
		"tokens":     portfolio.Tokens,
		"totalValue": portfolio.TotalValue,
		"livePrices": h.app.Market.PrimaryLive(r.Context()),
	})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
