package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantfall/tradepilot/bracket"
	"github.com/quantfall/tradepilot/broker"
	"github.com/quantfall/tradepilot/portfolio"
	"github.com/quantfall/tradepilot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER EXECUTOR - Per-trade order state machine
// ═══════════════════════════════════════════════════════════════════════════════
//
// State flow per trade:
//
//   Pending → EntrySubmitted → EntryFilled → BracketSubmitted → Complete
//                 ↓                ↓               ↓
//           EntryRejected    EntryTimedOut   BracketPartial
//
// Trades execute strictly sequentially in descending confidence order with a
// pacing delay between them. A later trade never starts before the prior
// trade reaches a terminal state, so exposure accounting is deterministic.
//
// ═══════════════════════════════════════════════════════════════════════════════

// TradeState is the lifecycle state of one trade attempt
type TradeState string

const (
	StatePending          TradeState = "PENDING"
	StateEntrySubmitted   TradeState = "ENTRY_SUBMITTED"
	StateEntryFilled      TradeState = "ENTRY_FILLED"
	StateBracketSubmitted TradeState = "BRACKET_SUBMITTED"
	StateComplete         TradeState = "COMPLETE"
	StateEntryRejected    TradeState = "ENTRY_REJECTED"
	StateEntryTimedOut    TradeState = "ENTRY_TIMED_OUT"
	StateBracketPartial   TradeState = "BRACKET_PARTIAL"
)

// ErrFillTimeout signals that an entry order did not fill within the
// configured timeout.
var ErrFillTimeout = errors.New("entry fill timeout")

// Config holds executor settings.
type Config struct {
	FillTimeout  time.Duration // Wait for entry fill (default: 30s)
	PollInterval time.Duration // Order status poll interval (default: 1s)
	PacingDelay  time.Duration // Delay between sequential trades (default: 2s)

	TradingHoursOnly  bool
	AvoidFirstMinutes int
	AvoidLastMinutes  int

	TP1QuantityFraction decimal.Decimal
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FillTimeout:         30 * time.Second,
		PollInterval:        time.Second,
		PacingDelay:         2 * time.Second,
		TradingHoursOnly:    true,
		AvoidFirstMinutes:   0,
		AvoidLastMinutes:    0,
		TP1QuantityFraction: bracket.DefaultTP1Fraction,
	}
}

// Executor turns approved trades into broker orders and manages the bracket
// order set through the order lifecycle.
type Executor struct {
	broker broker.Broker
	store  *portfolio.Store
	cfg    Config

	now func() time.Time // injectable clock for the trading-window guard
}

// New creates an order executor.
func New(b broker.Broker, store *portfolio.Store, cfg Config) *Executor {
	log.Info().
		Dur("fill_timeout", cfg.FillTimeout).
		Dur("poll_interval", cfg.PollInterval).
		Dur("pacing_delay", cfg.PacingDelay).
		Bool("trading_hours_only", cfg.TradingHoursOnly).
		Msg("⚡ Executor initialized")

	return &Executor{
		broker: b,
		store:  store,
		cfg:    cfg,
		now:    time.Now,
	}
}

// ExecuteApproved executes an approved batch strictly sequentially and
// returns a complete report: every input trade lands in exactly one of
// successful, failed, or skipped. Per-trade failures never abort the batch;
// the timing guard short-circuits it before any broker mutation.
func (e *Executor) ExecuteApproved(ctx context.Context, trades []types.ProposedTrade, buyingPower decimal.Decimal) types.ExecutionReport {
	report := types.ExecutionReport{
		TotalExposure:        decimal.Zero,
		RemainingBuyingPower: buyingPower,
	}

	if len(trades) == 0 {
		return report
	}

	if e.cfg.TradingHoursOnly {
		if reason := checkTradingWindow(e.now(), e.cfg.AvoidFirstMinutes, e.cfg.AvoidLastMinutes); reason != "" {
			log.Warn().Str("reason", reason).Msg("⏰ Outside trading window, batch skipped")
			for _, t := range trades {
				report.Skipped = append(report.Skipped, e.skippedResult(t, reason))
			}
			return report
		}
	}

	// Highest conviction first. Stable sort keeps input order among ties so
	// identical batches always execute identically.
	ordered := make([]types.ProposedTrade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ConfidenceScore > ordered[j].ConfidenceScore
	})

	for i, trade := range ordered {
		if err := ctx.Err(); err != nil {
			report.Skipped = append(report.Skipped, e.skippedResult(trade, "session cancelled"))
			continue
		}

		result := e.executeTrade(ctx, trade)
		if result.Status == types.StatusSuccess {
			report.Successful = append(report.Successful, result)
		} else {
			report.Failed = append(report.Failed, result)
		}

		if result.Quantity > 0 && result.ExecutedPrice.IsPositive() {
			spent := result.ExecutedPrice.Mul(decimal.NewFromInt(result.Quantity))
			if trade.Action == types.ActionBuy {
				report.TotalExposure = report.TotalExposure.Add(spent)
				report.RemainingBuyingPower = report.RemainingBuyingPower.Sub(spent)
			} else {
				report.RemainingBuyingPower = report.RemainingBuyingPower.Add(spent)
			}
		}

		if i < len(ordered)-1 {
			e.pace(ctx)
		}
	}

	log.Info().
		Int("successful", len(report.Successful)).
		Int("failed", len(report.Failed)).
		Int("skipped", len(report.Skipped)).
		Str("exposure", report.TotalExposure.StringFixed(2)).
		Msg("📊 Batch execution complete")

	return report
}

// executeTrade drives one trade through the state machine to a terminal
// state.
func (e *Executor) executeTrade(ctx context.Context, trade types.ProposedTrade) types.ExecutionResult {
	state := StatePending

	log.Info().
		Str("ticker", trade.Ticker).
		Str("action", string(trade.Action)).
		Str("size", trade.PositionSizeDollars.StringFixed(2)).
		Float64("confidence", trade.ConfidenceScore).
		Msg("🎯 Executing trade")

	if trade.Action == types.ActionSell {
		return e.executeSell(ctx, trade)
	}

	// Size the dollar amount into whole shares off the latest trade price.
	price, err := e.broker.GetLatestPrice(ctx, trade.Ticker)
	if err != nil {
		return e.failedResult(trade, state, fmt.Errorf("latest price: %w", err))
	}
	qty := trade.PositionSizeDollars.Div(price).Floor().IntPart()
	if qty < 1 {
		return e.failedResult(trade, state,
			fmt.Errorf("position size %s buys less than one share at %s",
				trade.PositionSizeDollars.StringFixed(2), price.StringFixed(2)))
	}

	entry, err := e.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:      trade.Ticker,
		Qty:         qty,
		Side:        broker.SideBuy,
		Type:        broker.TypeMarket,
		TimeInForce: broker.TIFDay,
	})
	if err != nil {
		state = StateEntryRejected
		return e.failedResult(trade, state, fmt.Errorf("entry order rejected: %w", err))
	}
	state = StateEntrySubmitted

	filled, err := e.waitForFill(ctx, entry.ID)
	if err != nil {
		if errors.Is(err, ErrFillTimeout) {
			state = StateEntryTimedOut
			// Cancel the resting entry so it cannot fill untracked after the
			// session ends. Best effort: the trade is already terminal.
			if cancelErr := e.broker.CancelOrder(ctx, entry.ID); cancelErr != nil {
				log.Error().Err(cancelErr).Str("order_id", entry.ID).Msg("Failed to cancel timed-out entry")
			}
			return e.failedResult(trade, state,
				fmt.Errorf("%w after %s, no brackets attempted", ErrFillTimeout, e.cfg.FillTimeout))
		}
		state = StateEntryRejected
		return e.failedResult(trade, state, fmt.Errorf("entry order: %w", err))
	}
	state = StateEntryFilled

	log.Info().
		Str("ticker", trade.Ticker).
		Str("order_id", filled.ID).
		Int64("filled_qty", filled.FilledQty).
		Str("fill_price", filled.FilledAvgPrice.StringFixed(2)).
		Msg("✅ Entry filled")

	// Brackets are planned from the actual fill, not the pre-trade estimate.
	plan, err := bracket.Build(trade.Ticker, filled.FilledAvgPrice, filled.FilledQty, bracket.Config{
		TakeProfit1Pct:      trade.TakeProfit1Pct,
		TakeProfit2Pct:      trade.TakeProfit2Pct,
		StopLossPct:         trade.StopLossPct,
		TP1QuantityFraction: e.cfg.TP1QuantityFraction,
	})
	if err != nil {
		res := e.failedResult(trade, state, fmt.Errorf("bracket plan: %w", err))
		res.Quantity = filled.FilledQty
		res.ExecutedPrice = filled.FilledAvgPrice
		res.OrderID = filled.ID
		return res
	}

	bracketIDs, err := e.submitBrackets(ctx, plan)
	if err != nil {
		state = StateBracketPartial
		log.Error().
			Err(err).
			Str("ticker", trade.Ticker).
			Strs("placed_legs", bracketIDs).
			Msg("🚨 Partial bracket: filled entry is unprotected")

		res := e.failedResult(trade, state, fmt.Errorf("bracket partial (%d/3 legs placed): %w", len(bracketIDs), err))
		res.Quantity = filled.FilledQty
		res.ExecutedPrice = filled.FilledAvgPrice
		res.OrderID = filled.ID
		res.BracketOrderIDs = bracketIDs
		return res
	}
	log.Info().
		Str("ticker", trade.Ticker).
		Str("state", string(StateComplete)).
		Str("tp1", plan.TP1Price.StringFixed(2)).
		Str("tp2", plan.TP2Price.StringFixed(2)).
		Str("stop", plan.StopPrice.StringFixed(2)).
		Msg("✅ Bracket placed")

	return types.ExecutionResult{
		Ticker:          trade.Ticker,
		Action:          trade.Action,
		Status:          types.StatusSuccess,
		Quantity:        filled.FilledQty,
		ExecutedPrice:   filled.FilledAvgPrice,
		OrderID:         filled.ID,
		BracketOrderIDs: bracketIDs,
		Timestamp:       e.now(),
	}
}

// executeSell liquidates the currently held quantity. No brackets: a SELL
// recommendation closes exposure rather than opening it.
func (e *Executor) executeSell(ctx context.Context, trade types.ProposedTrade) types.ExecutionResult {
	pos, found, err := e.store.Find(ctx, trade.Ticker)
	if err != nil {
		return e.failedResult(trade, StatePending, fmt.Errorf("position lookup: %w", err))
	}
	if !found || pos.Quantity <= 0 {
		return e.failedResult(trade, StatePending, fmt.Errorf("no long position in %s to sell", trade.Ticker))
	}

	order, err := e.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:      trade.Ticker,
		Qty:         pos.Quantity,
		Side:        broker.SideSell,
		Type:        broker.TypeMarket,
		TimeInForce: broker.TIFDay,
	})
	if err != nil {
		return e.failedResult(trade, StateEntryRejected, fmt.Errorf("sell order rejected: %w", err))
	}

	filled, err := e.waitForFill(ctx, order.ID)
	if err != nil {
		if errors.Is(err, ErrFillTimeout) {
			if cancelErr := e.broker.CancelOrder(ctx, order.ID); cancelErr != nil {
				log.Error().Err(cancelErr).Str("order_id", order.ID).Msg("Failed to cancel timed-out sell")
			}
			return e.failedResult(trade, StateEntryTimedOut,
				fmt.Errorf("%w after %s", ErrFillTimeout, e.cfg.FillTimeout))
		}
		return e.failedResult(trade, StateEntryRejected, fmt.Errorf("sell order: %w", err))
	}

	// The held snapshot changed; the next risk check must re-fetch.
	e.store.Invalidate()

	log.Info().
		Str("ticker", trade.Ticker).
		Int64("qty", filled.FilledQty).
		Str("price", filled.FilledAvgPrice.StringFixed(2)).
		Msg("✅ Position sold")

	return types.ExecutionResult{
		Ticker:        trade.Ticker,
		Action:        trade.Action,
		Status:        types.StatusSuccess,
		Quantity:      filled.FilledQty,
		ExecutedPrice: filled.FilledAvgPrice,
		OrderID:       filled.ID,
		Timestamp:     e.now(),
	}
}

// waitForFill polls order status until filled or partially filled, with a
// monotonic deadline and cooperative cancellation checked every iteration.
func (e *Executor) waitForFill(ctx context.Context, orderID string) (broker.Order, error) {
	deadline := time.Now().Add(e.cfg.FillTimeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return broker.Order{}, fmt.Errorf("fill wait cancelled: %w", ctx.Err())
		case <-ticker.C:
			order, err := e.broker.GetOrder(ctx, orderID)
			if err != nil {
				log.Warn().Err(err).Str("order_id", orderID).Msg("Order status poll failed")
			} else {
				if order.Status.HasFill() && order.FilledQty > 0 {
					return order, nil
				}
				if order.Status.Terminal() {
					return broker.Order{}, fmt.Errorf("order %s terminal without fill: %s", orderID, order.Status)
				}
			}
			if time.Now().After(deadline) {
				return broker.Order{}, ErrFillTimeout
			}
		}
	}
}

// submitBrackets places the three resting exit legs. The returned ids are the
// legs that were accepted, even when a later leg fails.
func (e *Executor) submitBrackets(ctx context.Context, plan bracket.Plan) ([]string, error) {
	ids := make([]string, 0, 3)

	type leg struct {
		name string
		req  broker.OrderRequest
	}

	legs := []leg{}
	if plan.TP1Quantity > 0 {
		legs = append(legs, leg{"tp1", broker.OrderRequest{
			Symbol: plan.Symbol, Qty: plan.TP1Quantity, Side: broker.SideSell,
			Type: broker.TypeLimit, TimeInForce: broker.TIFGTC, LimitPrice: &plan.TP1Price,
		}})
	}
	if plan.TP2Quantity > 0 {
		legs = append(legs, leg{"tp2", broker.OrderRequest{
			Symbol: plan.Symbol, Qty: plan.TP2Quantity, Side: broker.SideSell,
			Type: broker.TypeLimit, TimeInForce: broker.TIFGTC, LimitPrice: &plan.TP2Price,
		}})
	}
	legs = append(legs, leg{"stop", broker.OrderRequest{
		Symbol: plan.Symbol, Qty: plan.TotalQuantity, Side: broker.SideSell,
		Type: broker.TypeStop, TimeInForce: broker.TIFGTC, StopPrice: &plan.StopPrice,
	}})

	for _, l := range legs {
		order, err := e.broker.SubmitOrder(ctx, l.req)
		if err != nil {
			return ids, fmt.Errorf("%s leg: %w", l.name, err)
		}
		ids = append(ids, order.ID)
	}

	return ids, nil
}

// pace waits the configured delay between trades, exiting early on
// cancellation.
func (e *Executor) pace(ctx context.Context) {
	if e.cfg.PacingDelay <= 0 {
		return
	}
	timer := time.NewTimer(e.cfg.PacingDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (e *Executor) failedResult(trade types.ProposedTrade, state TradeState, err error) types.ExecutionResult {
	log.Error().
		Err(err).
		Str("ticker", trade.Ticker).
		Str("state", string(state)).
		Msg("❌ Trade failed")

	return types.ExecutionResult{
		Ticker:    trade.Ticker,
		Action:    trade.Action,
		Status:    types.StatusFailed,
		Error:     fmt.Sprintf("[%s] %s", strings.ToLower(string(state)), err.Error()),
		Timestamp: e.now(),
	}
}

func (e *Executor) skippedResult(trade types.ProposedTrade, reason string) types.ExecutionResult {
	return types.ExecutionResult{
		Ticker:    trade.Ticker,
		Action:    trade.Action,
		Status:    types.StatusSkipped,
		Error:     reason,
		Timestamp: e.now(),
	}
}
