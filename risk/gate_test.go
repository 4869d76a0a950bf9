package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/tradepilot/portfolio"
	"github.com/quantfall/tradepilot/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func buyTrade(ticker, size string, confidence float64) types.ProposedTrade {
	return types.ProposedTrade{
		Ticker:              ticker,
		Action:              types.ActionBuy,
		PositionSizeDollars: dec(size),
		RiskLevel:           types.RiskMedium,
		ConfidenceScore:     confidence,
		TakeProfit1Pct:      dec("0.30"),
		TakeProfit2Pct:      dec("0.75"),
		StopLossPct:         dec("-0.20"),
	}
}

func summary(buyingPower, equity string, positions int) portfolio.PortfolioSummary {
	return portfolio.PortfolioSummary{
		Equity:        dec(equity),
		BuyingPower:   dec(buyingPower),
		Cash:          dec(buyingPower),
		PositionCount: positions,
	}
}

func TestPreExecutionCheck_EmptyBatchTriviallyApproved(t *testing.T) {
	gate := NewGate(DefaultConfig())

	decision, err := gate.PreExecutionCheck(nil, summary("1000", "100000", 0))
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Empty(t, decision.Filtered)
	assert.True(t, decision.TotalExposure.IsZero())
}

func TestPreExecutionCheck_RejectsWholeBatchOverDailyExposure(t *testing.T) {
	// $1000 buying power, two $700 trades: the first survives filtering but
	// $700 exceeds the 50% daily exposure limit, so the whole batch must be
	// rejected rather than the first executing and the second dropping.
	gate := NewGate(DefaultConfig())

	decision, err := gate.PreExecutionCheck([]types.ProposedTrade{
		buyTrade("AAA", "700", 0.9),
		buyTrade("BBB", "700", 0.8),
	}, summary("1000", "100000", 0))
	require.NoError(t, err)

	assert.False(t, decision.Approved)
	assert.Empty(t, decision.Filtered)
	assert.NotEmpty(t, decision.Reason)
}

func TestPreExecutionCheck_DropsOversizedTrade(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSize = dec("500")
	gate := NewGate(cfg)

	decision, err := gate.PreExecutionCheck([]types.ProposedTrade{
		buyTrade("BIG", "800", 0.9),
		buyTrade("OK", "400", 0.8),
	}, summary("10000", "100000", 0))
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	require.Len(t, decision.Filtered, 1)
	assert.Equal(t, "OK", decision.Filtered[0].Ticker)
	require.Len(t, decision.Dropped, 1)
	assert.Equal(t, "BIG", decision.Dropped[0].Trade.Ticker)
	assert.Contains(t, decision.Dropped[0].Reason, "per-trade cap")
}

func TestPreExecutionCheck_DropsTradePastBuyingPower(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyExposureFraction = dec("1") // isolate the buying-power check
	gate := NewGate(cfg)

	decision, err := gate.PreExecutionCheck([]types.ProposedTrade{
		buyTrade("AAA", "600", 0.9),
		buyTrade("BBB", "600", 0.8),
	}, summary("1000", "100000", 0))
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	require.Len(t, decision.Filtered, 1)
	assert.Equal(t, "AAA", decision.Filtered[0].Ticker)
	require.Len(t, decision.Dropped, 1)
	assert.Contains(t, decision.Dropped[0].Reason, "buying power")
}

func TestPreExecutionCheck_EnforcesMaxPositions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositions = 3
	cfg.MaxDailyExposureFraction = dec("1")
	gate := NewGate(cfg)

	// Two slots already held, so only one new BUY fits.
	decision, err := gate.PreExecutionCheck([]types.ProposedTrade{
		buyTrade("AAA", "100", 0.9),
		buyTrade("BBB", "100", 0.8),
	}, summary("10000", "100000", 2))
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	require.Len(t, decision.Filtered, 1)
	assert.Equal(t, "AAA", decision.Filtered[0].Ticker)
	require.Len(t, decision.Dropped, 1)
	assert.Contains(t, decision.Dropped[0].Reason, "max positions")
}

func TestPreExecutionCheck_PercentOfEquityCapTighterThanDollarCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSize = dec("2000")
	cfg.MaxSinglePositionPercent = dec("0.05") // 5% of $10k equity = $500
	cfg.MaxDailyExposureFraction = dec("1")
	gate := NewGate(cfg)

	decision, err := gate.PreExecutionCheck([]types.ProposedTrade{
		buyTrade("AAA", "600", 0.9),
	}, summary("10000", "10000", 0))
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Empty(t, decision.Filtered)
	require.Len(t, decision.Dropped, 1)
}

func TestPreExecutionCheck_InvalidTradeIsErrorNotDrop(t *testing.T) {
	gate := NewGate(DefaultConfig())

	bad := buyTrade("AAA", "100", 0.9)
	bad.PositionSizeDollars = dec("0")

	_, err := gate.PreExecutionCheck([]types.ProposedTrade{bad}, summary("1000", "100000", 0))
	assert.Error(t, err)
}

func TestPreExecutionCheck_ApprovedExposureWithinDailyLimit(t *testing.T) {
	// Invariant: whenever a batch is approved, the surviving exposure never
	// exceeds buyingPower * maxDailyExposureFraction.
	tests := []struct {
		name  string
		sizes []string
		bp    string
	}{
		{"all fit", []string{"100", "200", "150"}, "1000"},
		{"oversized dropped", []string{"3000", "400"}, "1000"},
		{"single large", []string{"499"}, "1000"},
	}

	cfg := DefaultConfig()
	gate := NewGate(cfg)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var proposed []types.ProposedTrade
			for i, size := range tt.sizes {
				proposed = append(proposed, buyTrade(string(rune('A'+i))+"AA", size, 0.9))
			}

			decision, err := gate.PreExecutionCheck(proposed, summary(tt.bp, "100000", 0))
			require.NoError(t, err)

			if decision.Approved {
				limit := dec(tt.bp).Mul(cfg.MaxDailyExposureFraction)
				total := decimal.Zero
				for _, tr := range decision.Filtered {
					total = total.Add(tr.PositionSizeDollars)
				}
				assert.True(t, total.LessThanOrEqual(limit),
					"approved exposure %s exceeds limit %s", total, limit)
				assert.True(t, decision.TotalExposure.Equal(total))

				// No trade disappears: filtered + dropped covers the input.
				assert.Equal(t, len(proposed), len(decision.Filtered)+len(decision.Dropped))
			}
		})
	}
}
