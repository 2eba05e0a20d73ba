package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

// getAmountsOut(uint256,address[]) selector on a Uniswap-V2-style router.
const getAmountsOutSelector = "0xd06ca61f"

// stablecoin quote decimals used to scale the router's answer.
const quoteDecimals = 6

// DEXSource quotes prices from an on-chain DEX router via a JSON-RPC
// eth_call. It is the tertiary live source, used when both the exchange API
// and the MCP gateway are down.
type DEXSource struct {
	client *http.Client
	rpcURL *url.URL
	router string
	// tokens maps symbol to (token address, decimals) for the swap path.
	tokens map[string]TokenRef
	stable string
	log    *logger.Logger
}

// TokenRef identifies an ERC-20 token on the quoted chain.
type TokenRef struct {
	Address  string
	Decimals int
}

// NewDEXSource constructs the on-chain source. tokens may be nil, in which
// case only the built-in token table is quoted.
func NewDEXSource(client *http.Client, rpcURL, router string, tokens map[string]TokenRef, log *logger.Logger) (*DEXSource, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("dex rpc url required")
	}
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("parse dex rpc url: %w", err)
	}
	router = strings.TrimSpace(router)
	if router == "" {
		return nil, fmt.Errorf("dex router address required")
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("dex-source")
	}
	if tokens == nil {
		tokens = defaultTokens()
	}
	return &DEXSource{
		client: client,
		rpcURL: parsed,
		router: router,
		tokens: tokens,
		stable: "0xdAC17F958D2ee523a2206206994597C13D831ec7", // USDT
		log:    log,
	}, nil
}

func defaultTokens() map[string]TokenRef {
	return map[string]TokenRef{
		"ETH":  {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18}, // WETH
		"WBTC": {Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
		"BTC":  {Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
		"LINK": {Address: "0x514910771AF9Ca656af840dff83E8264EcF986CA", Decimals: 18},
		"UNI":  {Address: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", Decimals: 18},
	}
}

func (s *DEXSource) Name() string { return "dex" }

func (s *DEXSource) Quote(ctx context.Context, symbol string) (market.Price, error) {
	symbol = market.NormalizeSymbol(symbol)
	token, ok := s.tokens[symbol]
	if !ok {
		return market.Price{}, fmt.Errorf("no dex route for %s", symbol)
	}

	data, err := encodeGetAmountsOut(token, s.stable)
	if err != nil {
		return market.Price{}, err
	}

	rpcBody, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_call",
		"params": []any{
			map[string]string{"to": s.router, "data": data},
			"latest",
		},
	})
	if err != nil {
		return market.Price{}, fmt.Errorf("encode dex call: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.rpcURL.String(), bytes.NewReader(rpcBody))
	if err != nil {
		return market.Price{}, fmt.Errorf("build dex request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return market.Price{}, fmt.Errorf("dex request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return market.Price{}, fmt.Errorf("dex rpc status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return market.Price{}, fmt.Errorf("read dex response: %w", err)
	}
	if rpcErr := gjson.GetBytes(raw, "error.message"); rpcErr.Exists() {
		return market.Price{}, fmt.Errorf("dex rpc error: %s", rpcErr.String())
	}

	result := gjson.GetBytes(raw, "result").String()
	price, err := decodeAmountsOut(result)
	if err != nil {
		return market.Price{}, err
	}
	if price <= 0 {
		return market.Price{}, fmt.Errorf("dex quote for %s is zero", symbol)
	}

	return market.Price{Symbol: symbol, Price: price}, nil
}

// encodeGetAmountsOut ABI-encodes getAmountsOut(1 token unit, [token, stable]).
func encodeGetAmountsOut(token TokenRef, stable string) (string, error) {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token.Decimals)), nil)

	var buf strings.Builder
	buf.WriteString(getAmountsOutSelector)
	buf.WriteString(fmt.Sprintf("%064x", unit))         // amountIn
	buf.WriteString(fmt.Sprintf("%064x", 0x40))         // offset of path array
	buf.WriteString(fmt.Sprintf("%064x", 2))            // path length
	for _, addr := range []string{token.Address, stable} {
		clean := strings.TrimPrefix(strings.ToLower(addr), "0x")
		if len(clean) != 40 {
			return "", fmt.Errorf("bad token address %q", addr)
		}
		buf.WriteString(strings.Repeat("0", 24))
		buf.WriteString(clean)
	}
	return buf.String(), nil
}

// decodeAmountsOut pulls the final path amount out of the ABI-encoded
// uint256[] return value and scales it to a float price. The call asks for
// the output of one whole token, so the scaled amount is already per-token.
func decodeAmountsOut(result string) (float64, error) {
	hexData := strings.TrimPrefix(result, "0x")
	// offset word + length word + at least two amounts
	if len(hexData) < 64*4 {
		return 0, fmt.Errorf("short dex return data")
	}
	words := len(hexData) / 64
	last := hexData[(words-1)*64 : words*64]
	amount, ok := new(big.Int).SetString(last, 16)
	if !ok {
		return 0, fmt.Errorf("parse dex amount %q", last)
	}

	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(quoteDecimals), nil))
	price, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), scale).Float64()
	return price, nil
}
