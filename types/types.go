package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Action is the direction of a proposed trade
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// RiskLevel classifies a recommendation's risk appetite
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Status is the terminal outcome of one trade attempt
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// ProposedTrade is a candidate action from the upstream recommendation feed.
// It is a value object: adjustments produce a new record (see WithSize) so the
// originally proposed trade survives for auditing.
type ProposedTrade struct {
	Ticker              string          `json:"ticker"`
	Action              Action          `json:"action"`
	PositionSizeDollars decimal.Decimal `json:"position_size_dollars"`
	RiskLevel           RiskLevel       `json:"risk_level"`
	ConfidenceScore     float64         `json:"confidence_score"`

	// Bracket configuration. StopLossPct must be negative for BUY entries.
	TakeProfit1Pct decimal.Decimal `json:"take_profit_1_pct"`
	TakeProfit2Pct decimal.Decimal `json:"take_profit_2_pct"`
	StopLossPct    decimal.Decimal `json:"stop_loss_pct"`
}

// Validate rejects malformed trades at the input boundary, before anything
// reaches the risk gate or the broker.
func (t ProposedTrade) Validate() error {
	if t.Ticker == "" {
		return fmt.Errorf("proposed trade: ticker is required")
	}
	if t.Action != ActionBuy && t.Action != ActionSell {
		return fmt.Errorf("proposed trade %s: action must be BUY or SELL, got %q", t.Ticker, t.Action)
	}
	if !t.PositionSizeDollars.IsPositive() {
		return fmt.Errorf("proposed trade %s: position size must be positive, got %s", t.Ticker, t.PositionSizeDollars)
	}
	if t.ConfidenceScore < 0 || t.ConfidenceScore > 1 {
		return fmt.Errorf("proposed trade %s: confidence score must be in [0,1], got %f", t.Ticker, t.ConfidenceScore)
	}
	if t.Action == ActionBuy {
		if !t.StopLossPct.IsNegative() {
			return fmt.Errorf("proposed trade %s: stop loss pct must be negative for BUY, got %s", t.Ticker, t.StopLossPct)
		}
		if !t.TakeProfit1Pct.IsPositive() {
			return fmt.Errorf("proposed trade %s: take profit 1 pct must be positive for BUY, got %s", t.Ticker, t.TakeProfit1Pct)
		}
		if t.TakeProfit2Pct.LessThan(t.TakeProfit1Pct) {
			return fmt.Errorf("proposed trade %s: take profit 2 pct %s below take profit 1 pct %s",
				t.Ticker, t.TakeProfit2Pct, t.TakeProfit1Pct)
		}
	}
	return nil
}

// WithSize returns a copy with an adjusted dollar size. The receiver is
// untouched so the proposed-vs-approved audit trail survives.
func (t ProposedTrade) WithSize(size decimal.Decimal) ProposedTrade {
	t.PositionSizeDollars = size
	return t
}

// ExecutionResult is the immutable outcome of one trade attempt.
type ExecutionResult struct {
	Ticker          string          `json:"ticker"`
	Action          Action          `json:"action"`
	Status          Status          `json:"status"`
	Quantity        int64           `json:"quantity"`
	ExecutedPrice   decimal.Decimal `json:"executed_price"`
	OrderID         string          `json:"order_id,omitempty"`
	BracketOrderIDs []string        `json:"bracket_order_ids,omitempty"`
	Error           string          `json:"error,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Unprotected reports whether the trade left a filled entry without the full
// set of bracket legs. These results are high-severity: a human or the next
// scheduled run must remediate.
func (r ExecutionResult) Unprotected() bool {
	return r.Action == ActionBuy && r.Status == StatusFailed && r.Quantity > 0 && len(r.BracketOrderIDs) < 3
}

// ExecutionReport is the complete outcome of one execution session. Every
// proposed trade appears in exactly one of the three lists.
type ExecutionReport struct {
	Successful []ExecutionResult `json:"successful"`
	Failed     []ExecutionResult `json:"failed"`
	Skipped    []ExecutionResult `json:"skipped"`

	TotalExposure        decimal.Decimal `json:"total_exposure"`
	RemainingBuyingPower decimal.Decimal `json:"remaining_buying_power"`
}

// All returns every result in the report, successful first.
func (r ExecutionReport) All() []ExecutionResult {
	out := make([]ExecutionResult, 0, len(r.Successful)+len(r.Failed)+len(r.Skipped))
	out = append(out, r.Successful...)
	out = append(out, r.Failed...)
	out = append(out, r.Skipped...)
	return out
}
