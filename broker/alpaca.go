package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ALPACA EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// REST client for the Alpaca trading API. Supports a dry-run mode that
// synthesizes order ids and fills so the engine can run without an account.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	DefaultPaperURL = "https://paper-api.alpaca.markets"
	DefaultDataURL  = "https://data.alpaca.markets"
)

// ClientConfig holds connection settings for the Alpaca client.
type ClientConfig struct {
	BaseURL   string
	DataURL   string
	APIKey    string
	APISecret string
	DryRun    bool
}

// Client talks to the Alpaca trading and market-data APIs.
type Client struct {
	baseURL    string
	dataURL    string
	apiKey     string
	apiSecret  string
	dryRun     bool
	httpClient *http.Client

	// Dry-run order book, so GetOrder/CancelOrder behave consistently
	mu        sync.Mutex
	dryOrders map[string]Order
	drySeq    int64
}

// NewClient creates a new Alpaca client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultPaperURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}

	c := &Client{
		baseURL:    cfg.BaseURL,
		dataURL:    cfg.DataURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		dryRun:     cfg.DryRun,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		dryOrders:  make(map[string]Order),
	}

	mode := "LIVE"
	if c.dryRun {
		mode = "DRY RUN"
	}
	log.Info().
		Str("mode", mode).
		Str("base_url", c.baseURL).
		Msg("🚀 Broker client initialized")

	return c
}

// IsDryRun returns true if in dry run mode
func (c *Client) IsDryRun() bool {
	return c.dryRun
}

// ═══════════════════════════════════════════════════════════════════════════════
// ACCOUNT & POSITIONS
// ═══════════════════════════════════════════════════════════════════════════════

type wirePosition struct {
	Symbol       string          `json:"symbol"`
	Qty          decimal.Decimal `json:"qty"`
	MarketValue  decimal.Decimal `json:"market_value"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPC decimal.Decimal `json:"unrealized_plpc"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// ListPositions returns all open positions.
func (c *Client) ListPositions(ctx context.Context) ([]Position, error) {
	if c.dryRun {
		return nil, nil
	}

	body, err := c.get(ctx, c.baseURL+"/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	var wire []wirePosition
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}

	positions := make([]Position, 0, len(wire))
	for _, w := range wire {
		positions = append(positions, Position{
			Symbol:              w.Symbol,
			Qty:                 w.Qty.IntPart(),
			MarketValue:         w.MarketValue,
			CostBasis:           w.CostBasis,
			UnrealizedPL:        w.UnrealizedPL,
			UnrealizedPLPercent: w.UnrealizedPC.Mul(decimal.NewFromInt(100)),
			CurrentPrice:        w.CurrentPrice,
		})
	}
	return positions, nil
}

type wireAccount struct {
	Equity           decimal.Decimal `json:"equity"`
	LastEquity       decimal.Decimal `json:"last_equity"`
	BuyingPower      decimal.Decimal `json:"buying_power"`
	Cash             decimal.Decimal `json:"cash"`
	LongMarketValue  decimal.Decimal `json:"long_market_value"`
	ShortMarketValue decimal.Decimal `json:"short_market_value"`
}

// GetAccount returns the account snapshot.
func (c *Client) GetAccount(ctx context.Context) (Account, error) {
	if c.dryRun {
		// Simulated paper account
		bp := decimal.NewFromInt(100000)
		return Account{
			Equity:      decimal.NewFromInt(100000),
			LastEquity:  decimal.NewFromInt(100000),
			BuyingPower: bp,
			Cash:        bp,
		}, nil
	}

	body, err := c.get(ctx, c.baseURL+"/v2/account")
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}

	var w wireAccount
	if err := json.Unmarshal(body, &w); err != nil {
		return Account{}, fmt.Errorf("parse account: %w", err)
	}

	return Account{
		Equity:           w.Equity,
		LastEquity:       w.LastEquity,
		BuyingPower:      w.BuyingPower,
		Cash:             w.Cash,
		LongMarketValue:  w.LongMarketValue,
		ShortMarketValue: w.ShortMarketValue,
	}, nil
}

// GetLatestPrice returns the latest trade price for a symbol.
func (c *Client) GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if c.dryRun {
		return decimal.NewFromInt(100), nil // Simulated price
	}

	body, err := c.get(ctx, c.dataURL+"/v2/stocks/"+symbol+"/trades/latest")
	if err != nil {
		return decimal.Zero, fmt.Errorf("latest price %s: %w", symbol, err)
	}

	var result struct {
		Trade struct {
			Price decimal.Decimal `json:"p"`
		} `json:"trade"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("parse latest trade %s: %w", symbol, err)
	}
	if !result.Trade.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("latest price %s: no trade data", symbol)
	}

	return result.Trade.Price, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDERS
// ═══════════════════════════════════════════════════════════════════════════════

type wireOrder struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Qty            decimal.Decimal `json:"qty"`
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}

func (w wireOrder) toOrder() Order {
	return Order{
		ID:             w.ID,
		Symbol:         w.Symbol,
		Side:           OrderSide(w.Side),
		Type:           OrderType(w.Type),
		Status:         OrderStatus(w.Status),
		Qty:            w.Qty.IntPart(),
		FilledQty:      w.FilledQty.IntPart(),
		FilledAvgPrice: w.FilledAvgPrice,
		SubmittedAt:    w.SubmittedAt,
	}
}

// SubmitOrder places an order.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if req.Type == TypeLimit && req.LimitPrice == nil {
		return Order{}, fmt.Errorf("submit order %s: limit order requires a limit price", req.Symbol)
	}
	if req.Type == TypeStop && req.StopPrice == nil {
		return Order{}, fmt.Errorf("submit order %s: stop order requires a stop price", req.Symbol)
	}

	if c.dryRun {
		return c.submitDry(req), nil
	}

	payload := map[string]any{
		"symbol":        req.Symbol,
		"qty":           fmt.Sprintf("%d", req.Qty),
		"side":          string(req.Side),
		"type":          string(req.Type),
		"time_in_force": string(req.TimeInForce),
	}
	if req.LimitPrice != nil {
		payload["limit_price"] = req.LimitPrice.String()
	}
	if req.StopPrice != nil {
		payload["stop_price"] = req.StopPrice.String()
	}

	body, err := c.post(ctx, c.baseURL+"/v2/orders", payload)
	if err != nil {
		return Order{}, fmt.Errorf("submit order %s: %w", req.Symbol, err)
	}

	var w wireOrder
	if err := json.Unmarshal(body, &w); err != nil {
		return Order{}, fmt.Errorf("parse order response: %w", err)
	}

	log.Info().
		Str("order_id", w.ID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Int64("qty", req.Qty).
		Msg("✅ Order submitted")

	return w.toOrder(), nil
}

// GetOrder fetches current order state.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if c.dryRun {
		c.mu.Lock()
		defer c.mu.Unlock()
		if o, ok := c.dryOrders[orderID]; ok {
			return o, nil
		}
		return Order{}, fmt.Errorf("get order %s: not found", orderID)
	}

	body, err := c.get(ctx, c.baseURL+"/v2/orders/"+orderID)
	if err != nil {
		return Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}

	var w wireOrder
	if err := json.Unmarshal(body, &w); err != nil {
		return Order{}, fmt.Errorf("parse order %s: %w", orderID, err)
	}
	return w.toOrder(), nil
}

// CancelOrder cancels an order. Canceling an already-terminal or unknown
// order is a no-op.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if c.dryRun {
		c.mu.Lock()
		defer c.mu.Unlock()
		if o, ok := c.dryOrders[orderID]; ok && !o.Status.Terminal() {
			o.Status = StatusCanceled
			c.dryOrders[orderID] = o
		}
		return nil
	}

	_, err := c.delete(ctx, c.baseURL+"/v2/orders/"+orderID)
	if err != nil {
		var httpErr *httpError
		// 404: unknown order; 422: already in a terminal state
		if errors.As(err, &httpErr) && (httpErr.status == http.StatusNotFound || httpErr.status == http.StatusUnprocessableEntity) {
			log.Debug().Str("order_id", orderID).Msg("Cancel skipped, order already terminal")
			return nil
		}
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// CancelAllOrders cancels every open order.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if c.dryRun {
		c.mu.Lock()
		defer c.mu.Unlock()
		for id, o := range c.dryOrders {
			if !o.Status.Terminal() {
				o.Status = StatusCanceled
				c.dryOrders[id] = o
			}
		}
		return nil
	}

	if _, err := c.delete(ctx, c.baseURL+"/v2/orders"); err != nil {
		return fmt.Errorf("cancel all orders: %w", err)
	}
	return nil
}

// submitDry synthesizes an immediately-filled order.
func (c *Client) submitDry(req OrderRequest) Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drySeq++
	price := decimal.NewFromInt(100)
	if req.LimitPrice != nil {
		price = *req.LimitPrice
	} else if req.StopPrice != nil {
		price = *req.StopPrice
	}

	order := Order{
		ID:             fmt.Sprintf("DRY_%d_%d", time.Now().UnixNano(), c.drySeq),
		Symbol:         req.Symbol,
		Side:           req.Side,
		Type:           req.Type,
		Status:         StatusFilled,
		Qty:            req.Qty,
		FilledQty:      req.Qty,
		FilledAvgPrice: price,
		SubmittedAt:    time.Now(),
	}
	// Resting exit legs stay open in dry-run, only entries fill instantly
	if req.Type != TypeMarket {
		order.Status = StatusAccepted
		order.FilledQty = 0
		order.FilledAvgPrice = decimal.Zero
	}
	c.dryOrders[order.ID] = order

	log.Info().
		Str("order_id", order.ID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("type", string(req.Type)).
		Int64("qty", req.Qty).
		Msg("📝 DRY RUN: Order would be placed")

	return order
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.doRequest(req)
}

func (c *Client) post(ctx context.Context, url string, body any) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req)
}

func (c *Client) delete(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	return c.doRequest(req)
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, body: string(body)}
	}

	return body, nil
}
