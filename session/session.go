package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantfall/tradepilot/executor"
	"github.com/quantfall/tradepilot/portfolio"
	"github.com/quantfall/tradepilot/risk"
	"github.com/quantfall/tradepilot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION SESSION - Top-level orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Batch → validate → Position Store (exposure) → Risk Gate → Executor → report
//
// All collaborators are injected at construction: no package-level clients,
// no hidden shared state.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Journal receives every execution result as a structured record. The session
// owns nothing persistent; this is the external logging collaborator.
type Journal interface {
	SaveResult(result types.ExecutionResult) error
}

// Notifier receives the finished report and high-severity alerts.
type Notifier interface {
	NotifyReport(report types.ExecutionReport)
	NotifyUnprotected(result types.ExecutionResult)
}

// Session drives one batch of proposed trades through risk gating and
// execution. It exclusively owns the execution log for its run.
type Session struct {
	store *portfolio.Store
	gate  *risk.Gate
	exec  *executor.Executor

	journal  Journal  // optional
	notifier Notifier // optional
}

// New creates an execution session with injected collaborators.
func New(store *portfolio.Store, gate *risk.Gate, exec *executor.Executor) *Session {
	return &Session{store: store, gate: gate, exec: exec}
}

// WithJournal attaches a result journal.
func (s *Session) WithJournal(j Journal) *Session {
	s.journal = j
	return s
}

// WithNotifier attaches a notifier.
func (s *Session) WithNotifier(n Notifier) *Session {
	s.notifier = n
	return s
}

// Run consumes one batch of proposed trades and returns a complete execution
// report: every trade appears in exactly one of successful/failed/skipped.
// Malformed input returns an error before anything reaches the broker. A
// broker read failure means exposure is unknown; the session fails closed and
// skips the whole batch, returning both the report and the error.
func (s *Session) Run(ctx context.Context, proposed []types.ProposedTrade) (types.ExecutionReport, error) {
	for _, t := range proposed {
		if err := t.Validate(); err != nil {
			return types.ExecutionReport{}, fmt.Errorf("session: %w", err)
		}
	}

	log.Info().Int("proposed", len(proposed)).Msg("🚀 Execution session started")

	if len(proposed) == 0 {
		return s.finish(types.ExecutionReport{
			TotalExposure:        decimal.Zero,
			RemainingBuyingPower: decimal.Zero,
		}), nil
	}

	summary, err := s.store.GetPortfolioSummary(ctx)
	if err != nil {
		// Exposure unknown: fail closed, never approve blind.
		log.Error().Err(err).Msg("❌ Exposure unknown, failing closed")
		report := types.ExecutionReport{
			TotalExposure:        decimal.Zero,
			RemainingBuyingPower: decimal.Zero,
		}
		for _, t := range proposed {
			report.Skipped = append(report.Skipped, s.skipped(t, fmt.Sprintf("exposure unknown: %v", err)))
		}
		return s.finish(report), fmt.Errorf("session: %w", err)
	}

	decision, err := s.gate.PreExecutionCheck(proposed, summary)
	if err != nil {
		return types.ExecutionReport{}, fmt.Errorf("session: %w", err)
	}

	if !decision.Approved {
		report := types.ExecutionReport{
			TotalExposure:        decimal.Zero,
			RemainingBuyingPower: summary.BuyingPower,
		}
		for _, t := range proposed {
			report.Skipped = append(report.Skipped, s.skipped(t, decision.Reason))
		}
		return s.finish(report), nil
	}

	report := s.exec.ExecuteApproved(ctx, decision.Filtered, summary.BuyingPower)

	for _, d := range decision.Dropped {
		report.Skipped = append(report.Skipped, s.skipped(d.Trade, d.Reason))
	}

	return s.finish(report), nil
}

// finish hands results to the journal and notifier and returns the report.
func (s *Session) finish(report types.ExecutionReport) types.ExecutionReport {
	if s.journal != nil {
		for _, r := range report.All() {
			if err := s.journal.SaveResult(r); err != nil {
				log.Error().Err(err).Str("ticker", r.Ticker).Msg("Failed to journal result")
			}
		}
	}

	if s.notifier != nil {
		for _, r := range report.Failed {
			if r.Unprotected() {
				s.notifier.NotifyUnprotected(r)
			}
		}
		s.notifier.NotifyReport(report)
	}

	log.Info().
		Int("successful", len(report.Successful)).
		Int("failed", len(report.Failed)).
		Int("skipped", len(report.Skipped)).
		Msg("🏁 Execution session finished")

	return report
}

func (s *Session) skipped(t types.ProposedTrade, reason string) types.ExecutionResult {
	return types.ExecutionResult{
		Ticker:    t.Ticker,
		Action:    t.Action,
		Status:    types.StatusSkipped,
		Error:     reason,
		Timestamp: time.Now(),
	}
}
