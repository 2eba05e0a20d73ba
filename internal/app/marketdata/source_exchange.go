package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// ExchangeSource quotes prices from an OKX-style exchange ticker endpoint.
// It is the primary live source.
type ExchangeSource struct {
	client  *http.Client
	baseURL *url.URL
	apiKey  string
	quote   string
	log     *logger.Logger
}

// NewExchangeSource constructs the exchange source. The endpoint is the API
// base URL; instruments are quoted against USDT.
func NewExchangeSource(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*ExchangeSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("exchange endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse exchange endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("exchange-source")
	}
	return &ExchangeSource{
		client:  client,
		baseURL: parsed,
		apiKey:  strings.TrimSpace(apiKey),
		quote:   "USDT",
		log:     log,
	}, nil
}

func (s *ExchangeSource) Name() string { return "exchange" }

func (s *ExchangeSource) Quote(ctx context.Context, symbol string) (market.Price, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return market.Price{}, fmt.Errorf("symbol required")
	}

	requestURL := *s.baseURL
	requestURL.Path = strings.TrimRight(requestURL.Path, "/") + "/api/v5/market/ticker"
	q := requestURL.Query()
	q.Set("instId", symbol+"-"+s.quote)
	requestURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return market.Price{}, fmt.Errorf("build exchange request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("OK-ACCESS-KEY", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return market.Price{}, fmt.Errorf("exchange request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return market.Price{}, fmt.Errorf("exchange status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return market.Price{}, fmt.Errorf("read exchange response: %w", err)
	}

	ticker := gjson.GetBytes(body, "data.0")
	if !ticker.Exists() {
		return market.Price{}, fmt.Errorf("exchange response missing ticker for %s", symbol)
	}

	last := ticker.Get("last").Float()
	if last <= 0 {
		return market.Price{}, fmt.Errorf("exchange returned non-positive price for %s", symbol)
	}
	open := ticker.Get("open24h").Float()
	change := 0.0
	if open > 0 {
		change = (last - open) / open * 100
	}

	return market.Price{
		Symbol:    symbol,
		Price:     last,
		Change24h: change,
		Volume24h: ticker.Get("vol24h").Float(),
		High24h:   ticker.Get("high24h").Float(),
		Low24h:    ticker.Get("low24h").Float(),
	}, nil
}
