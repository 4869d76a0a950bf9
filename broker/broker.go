package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BROKER BOUNDARY - The only gateway to account and order state
// ═══════════════════════════════════════════════════════════════════════════════
//
// Everything above this interface is broker-agnostic. The engine takes a
// Broker at construction time so tests run against a double and no package
// holds a hidden shared client.
//
// ═══════════════════════════════════════════════════════════════════════════════

// OrderSide is the broker-level order direction
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType selects the order pricing mode
type OrderType string

const (
	TypeMarket OrderType = "market"
	TypeLimit  OrderType = "limit"
	TypeStop   OrderType = "stop"
)

// TimeInForce controls order lifetime
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
)

// OrderStatus is the broker-reported order lifecycle state
type OrderStatus string

const (
	StatusNew             OrderStatus = "new"
	StatusAccepted        OrderStatus = "accepted"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
	StatusExpired         OrderStatus = "expired"
)

// HasFill reports whether any quantity has executed.
func (s OrderStatus) HasFill() bool {
	return s == StatusFilled || s == StatusPartiallyFilled
}

// Terminal reports whether the order can no longer change state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Position is a holding as reported by the broker.
type Position struct {
	Symbol              string
	Qty                 int64 // signed: positive long, negative short
	MarketValue         decimal.Decimal
	CostBasis           decimal.Decimal
	UnrealizedPL        decimal.Decimal
	UnrealizedPLPercent decimal.Decimal
	CurrentPrice        decimal.Decimal
}

// Account is the broker account snapshot.
type Account struct {
	Equity           decimal.Decimal
	LastEquity       decimal.Decimal
	BuyingPower      decimal.Decimal
	Cash             decimal.Decimal
	LongMarketValue  decimal.Decimal
	ShortMarketValue decimal.Decimal
}

// OrderRequest describes an order to submit.
type OrderRequest struct {
	Symbol      string
	Qty         int64
	Side        OrderSide
	Type        OrderType
	TimeInForce TimeInForce
	LimitPrice  *decimal.Decimal // required for limit orders
	StopPrice   *decimal.Decimal // required for stop orders
}

// Order is the broker's view of a submitted order.
type Order struct {
	ID             string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Status         OrderStatus
	Qty            int64
	FilledQty      int64
	FilledAvgPrice decimal.Decimal
	SubmittedAt    time.Time
}

// Broker is the external brokerage collaborator. Cancel operations are
// idempotent: canceling an already-terminal or unknown order is a no-op.
type Broker interface {
	ListPositions(ctx context.Context) ([]Position, error)
	GetAccount(ctx context.Context) (Account, error)
	GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context) error
}
