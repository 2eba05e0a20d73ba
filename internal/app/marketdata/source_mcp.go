package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
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

// MCPSource quotes prices through an MCP-style tool gateway: a POST of a
// tool-call body to the gateway, which proxies whatever data provider it has
// configured. It is the secondary live source.
type MCPSource struct {
	client   *http.Client
	endpoint *url.URL
	log      *logger.Logger
}

// NewMCPSource constructs the gateway source.
func NewMCPSource(client *http.Client, endpoint string, log *logger.Logger) (*MCPSource, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("mcp gateway endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse mcp gateway endpoint: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("mcp-source")
	}
	return &MCPSource{client: client, endpoint: parsed, log: log}, nil
}

func (s *MCPSource) Name() string { return "mcp" }

func (s *MCPSource) Quote(ctx context.Context, symbol string) (market.Price, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return market.Price{}, fmt.Errorf("symbol required")
	}

	body, err := json.Marshal(map[string]any{
		"tool":      "get_token_price",
		"arguments": map[string]string{"symbol": symbol},
	})
	if err != nil {
		return market.Price{}, fmt.Errorf("encode mcp request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return market.Price{}, fmt.Errorf("build mcp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return market.Price{}, fmt.Errorf("mcp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return market.Price{}, fmt.Errorf("mcp gateway status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return market.Price{}, fmt.Errorf("read mcp response: %w", err)
	}

	price := gjson.GetBytes(raw, "result.price").Float()
	if price <= 0 {
		price = gjson.GetBytes(raw, "price").Float()
	}
	if price <= 0 {
		return market.Price{}, fmt.Errorf("mcp gateway returned no price for %s", symbol)
	}

	return market.Price{
		Symbol:    symbol,
		Price:     price,
		Change24h: gjson.GetBytes(raw, "result.change24h").Float(),
		Volume24h: gjson.GetBytes(raw, "result.volume24h").Float(),
	}, nil
}
