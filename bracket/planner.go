package bracket

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BRACKET PLANNER - Pure TP/SL math, no I/O
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the bracket percentages for one trade.
type Config struct {
	TakeProfit1Pct decimal.Decimal // e.g. 0.30 = +30%
	TakeProfit2Pct decimal.Decimal // e.g. 0.75 = +75%
	StopLossPct    decimal.Decimal // negative, e.g. -0.20 = -20%

	// Fraction of the position sold at the first tier. The remainder,
	// including any rounding residue, always goes to the second tier.
	TP1QuantityFraction decimal.Decimal
}

// DefaultTP1Fraction is the stock first-tier share fraction.
var DefaultTP1Fraction = decimal.NewFromFloat(0.3)

// Plan is the derived bracket order set for a filled entry.
type Plan struct {
	Symbol        string
	TotalQuantity int64

	TP1Price  decimal.Decimal
	TP2Price  decimal.Decimal
	StopPrice decimal.Decimal

	TP1Quantity int64
	TP2Quantity int64
}

// Build computes the take-profit and stop-loss specifications from the actual
// entry fill price. A percentage set that would stop out at or above entry,
// or take profit at or below entry, is a configuration error: it must never
// silently produce an order set.
func Build(symbol string, entryPrice decimal.Decimal, quantity int64, cfg Config) (Plan, error) {
	if quantity <= 0 {
		return Plan{}, fmt.Errorf("bracket %s: quantity must be positive, got %d", symbol, quantity)
	}
	if !entryPrice.IsPositive() {
		return Plan{}, fmt.Errorf("bracket %s: entry price must be positive, got %s", symbol, entryPrice)
	}

	one := decimal.NewFromInt(1)
	tp1 := entryPrice.Mul(one.Add(cfg.TakeProfit1Pct)).Round(2)
	tp2 := entryPrice.Mul(one.Add(cfg.TakeProfit2Pct)).Round(2)
	stop := entryPrice.Mul(one.Add(cfg.StopLossPct)).Round(2)

	if stop.GreaterThanOrEqual(entryPrice) {
		return Plan{}, fmt.Errorf("bracket %s: stop price %s not below entry %s (stop loss pct %s)",
			symbol, stop, entryPrice, cfg.StopLossPct)
	}
	if tp1.LessThanOrEqual(entryPrice) {
		return Plan{}, fmt.Errorf("bracket %s: tp1 price %s not above entry %s (tp1 pct %s)",
			symbol, tp1, entryPrice, cfg.TakeProfit1Pct)
	}
	if tp2.LessThan(tp1) {
		return Plan{}, fmt.Errorf("bracket %s: tp2 price %s below tp1 price %s", symbol, tp2, tp1)
	}

	frac := cfg.TP1QuantityFraction
	if frac.IsZero() {
		frac = DefaultTP1Fraction
	}
	if frac.IsNegative() || frac.GreaterThan(one) {
		return Plan{}, fmt.Errorf("bracket %s: tp1 quantity fraction %s outside [0,1]", symbol, frac)
	}

	tp1Qty := decimal.NewFromInt(quantity).Mul(frac).Floor().IntPart()
	tp2Qty := quantity - tp1Qty // remainder to tier two, quantity exactly conserved

	return Plan{
		Symbol:        symbol,
		TotalQuantity: quantity,
		TP1Price:      tp1,
		TP2Price:      tp2,
		StopPrice:     stop,
		TP1Quantity:   tp1Qty,
		TP2Quantity:   tp2Qty,
	}, nil
}
