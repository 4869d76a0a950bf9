package risk

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantfall/tradepilot/portfolio"
	"github.com/quantfall/tradepilot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GATE - Central pre-execution approval
// ═══════════════════════════════════════════════════════════════════════════════
//
// Recommendation feed asks → Risk approves/filters/rejects → Executor executes
//
// This enforces ALL portfolio-level capital limits in ONE place, before any
// order reaches the broker.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the portfolio-level limits.
type Config struct {
	MaxPositionSize          decimal.Decimal // Per-trade dollar cap
	MaxDailyExposureFraction decimal.Decimal // Max batch exposure as a fraction of buying power
	MaxPositions             int             // Max concurrent positions (held + approved)
	MaxSinglePositionPercent decimal.Decimal // Per-trade cap as a fraction of equity
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxPositionSize:          decimal.NewFromInt(2000),
		MaxDailyExposureFraction: decimal.NewFromFloat(0.5),
		MaxPositions:             10,
		MaxSinglePositionPercent: decimal.NewFromFloat(0.10),
	}
}

// DroppedTrade is a trade filtered out of a batch, with the reason.
type DroppedTrade struct {
	Trade  types.ProposedTrade
	Reason string
}

// Decision is the gate's verdict on a batch.
type Decision struct {
	Approved bool
	Reason   string
	Filtered []types.ProposedTrade
	Dropped  []DroppedTrade

	TotalExposure decimal.Decimal
}

// Gate filters proposed trades against configured limits. It is stateless:
// exposure comes from the caller's portfolio snapshot, never from hidden
// internal state.
type Gate struct {
	cfg Config
}

// NewGate creates the risk gate.
func NewGate(cfg Config) *Gate {
	log.Info().
		Str("max_position_size", cfg.MaxPositionSize.StringFixed(2)).
		Str("max_daily_exposure_fraction", cfg.MaxDailyExposureFraction.String()).
		Int("max_positions", cfg.MaxPositions).
		Str("max_single_position_pct", cfg.MaxSinglePositionPercent.String()).
		Msg("🛡️ Risk Gate initialized")
	return &Gate{cfg: cfg}
}

// PreExecutionCheck filters a batch against the configured limits given the
// current portfolio state. Trades over a per-trade cap or past available
// buying power are dropped; if the surviving exposure still exceeds the
// daily-exposure fraction the entire batch is rejected rather than partially
// executed. A trade with non-positive size is invalid input and returns an
// error, never a silent drop.
func (g *Gate) PreExecutionCheck(proposed []types.ProposedTrade, summary portfolio.PortfolioSummary) (Decision, error) {
	for _, t := range proposed {
		if err := t.Validate(); err != nil {
			return Decision{}, fmt.Errorf("risk gate: %w", err)
		}
	}

	if len(proposed) == 0 {
		return Decision{Approved: true, TotalExposure: decimal.Zero}, nil
	}

	perTradeCap := g.perTradeCap(summary.Equity)
	openSlots := g.cfg.MaxPositions - summary.PositionCount
	runningExposure := decimal.Zero

	decision := Decision{
		Filtered: make([]types.ProposedTrade, 0, len(proposed)),
	}

	drop := func(t types.ProposedTrade, reason string) {
		log.Debug().
			Str("ticker", t.Ticker).
			Str("size", t.PositionSizeDollars.StringFixed(2)).
			Str("reason", reason).
			Msg("🚫 Trade dropped")
		decision.Dropped = append(decision.Dropped, DroppedTrade{Trade: t, Reason: reason})
	}

	for _, t := range proposed {
		switch {
		case t.PositionSizeDollars.GreaterThan(perTradeCap):
			drop(t, fmt.Sprintf("position size %s exceeds per-trade cap %s",
				t.PositionSizeDollars.StringFixed(2), perTradeCap.StringFixed(2)))

		case runningExposure.Add(t.PositionSizeDollars).GreaterThan(summary.BuyingPower):
			drop(t, fmt.Sprintf("would exceed buying power %s", summary.BuyingPower.StringFixed(2)))

		case t.Action == types.ActionBuy && len(decision.Filtered) >= openSlots:
			drop(t, fmt.Sprintf("max positions reached (%d)", g.cfg.MaxPositions))

		default:
			decision.Filtered = append(decision.Filtered, t)
			runningExposure = runningExposure.Add(t.PositionSizeDollars)
		}
	}

	decision.TotalExposure = runningExposure

	// All-or-nothing daily exposure guard: never partially execute a batch
	// that collectively over-deploys capital.
	exposureLimit := summary.BuyingPower.Mul(g.cfg.MaxDailyExposureFraction)
	if runningExposure.GreaterThan(exposureLimit) {
		decision.Approved = false
		decision.Filtered = nil
		decision.Reason = fmt.Sprintf("batch exposure %s exceeds daily limit %s (%s of buying power %s)",
			runningExposure.StringFixed(2), exposureLimit.StringFixed(2),
			g.cfg.MaxDailyExposureFraction.String(), summary.BuyingPower.StringFixed(2))

		log.Warn().
			Str("exposure", runningExposure.StringFixed(2)).
			Str("limit", exposureLimit.StringFixed(2)).
			Msg("🚨 Batch rejected by Risk Gate")

		return decision, nil
	}

	decision.Approved = true

	log.Info().
		Int("approved", len(decision.Filtered)).
		Int("dropped", len(decision.Dropped)).
		Str("exposure", runningExposure.StringFixed(2)).
		Msg("✅ Batch approved by Risk Gate")

	return decision, nil
}

// perTradeCap is the tighter of the absolute dollar cap and the
// percent-of-equity cap.
func (g *Gate) perTradeCap(equity decimal.Decimal) decimal.Decimal {
	limit := g.cfg.MaxPositionSize
	if g.cfg.MaxSinglePositionPercent.IsPositive() && equity.IsPositive() {
		pctCap := equity.Mul(g.cfg.MaxSinglePositionPercent)
		if pctCap.LessThan(limit) {
			limit = pctCap
		}
	}
	return limit
}
