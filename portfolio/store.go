package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantfall/tradepilot/broker"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION STORE - Cached read-only view of current holdings
// ═══════════════════════════════════════════════════════════════════════════════
//
// Snapshots are immutable: a refresh builds a new slice and swaps it in under
// the lock, so concurrent readers never observe a torn snapshot. Within the
// TTL, repeated calls return the cached snapshot without a broker round-trip.
//
// ═══════════════════════════════════════════════════════════════════════════════

const DefaultCacheTTL = 30 * time.Second

// Position is a currently held instrument.
type Position struct {
	Symbol              string
	Quantity            int64 // signed: positive long, negative short
	MarketValue         decimal.Decimal
	CostBasis           decimal.Decimal
	UnrealizedPL        decimal.Decimal
	UnrealizedPLPercent decimal.Decimal
	CurrentPrice        decimal.Decimal
}

// Side labels the position from the sign of its quantity.
func (p Position) Side() string {
	if p.Quantity < 0 {
		return "short"
	}
	return "long"
}

// PortfolioSummary is the aggregate account state, recomputed on demand.
type PortfolioSummary struct {
	Equity           decimal.Decimal
	BuyingPower      decimal.Decimal
	Cash             decimal.Decimal
	TotalPL          decimal.Decimal
	DayPL            decimal.Decimal
	PositionCount    int
	LongMarketValue  decimal.Decimal
	ShortMarketValue decimal.Decimal
}

// Store caches position snapshots with a short TTL to bound broker calls.
type Store struct {
	mu     sync.RWMutex
	broker broker.Broker
	ttl    time.Duration

	snapshot  []Position
	fetchedAt time.Time

	now func() time.Time // injectable clock for tests
}

// NewStore creates a position store backed by the given broker.
func NewStore(b broker.Broker, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{
		broker: b,
		ttl:    ttl,
		now:    time.Now,
	}
}

// GetPositions returns the current holdings. Within the TTL the cached
// snapshot is returned; forceRefresh or expiry triggers a broker fetch.
// A broker failure is returned as-is: callers must treat it as unknown
// exposure and fail closed.
func (s *Store) GetPositions(ctx context.Context, forceRefresh bool) ([]Position, error) {
	if !forceRefresh {
		s.mu.RLock()
		if s.snapshot != nil && s.now().Sub(s.fetchedAt) < s.ttl {
			snap := s.snapshot
			s.mu.RUnlock()
			return snap, nil
		}
		s.mu.RUnlock()
	}

	return s.refresh(ctx)
}

// refresh fetches a fresh snapshot and swaps it in atomically.
func (s *Store) refresh(ctx context.Context) ([]Position, error) {
	brokerPositions, err := s.broker.ListPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("position store refresh: %w", err)
	}

	snap := make([]Position, 0, len(brokerPositions))
	for _, bp := range brokerPositions {
		snap = append(snap, Position{
			Symbol:              bp.Symbol,
			Quantity:            bp.Qty,
			MarketValue:         bp.MarketValue,
			CostBasis:           bp.CostBasis,
			UnrealizedPL:        bp.UnrealizedPL,
			UnrealizedPLPercent: bp.UnrealizedPLPercent,
			CurrentPrice:        bp.CurrentPrice,
		})
	}

	s.mu.Lock()
	s.snapshot = snap
	s.fetchedAt = s.now()
	s.mu.Unlock()

	log.Debug().Int("positions", len(snap)).Msg("📥 Position snapshot refreshed")

	return snap, nil
}

// Invalidate discards the cached snapshot so the next read hits the broker.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
}

// Find returns the held position for a symbol, if any.
func (s *Store) Find(ctx context.Context, symbol string) (Position, bool, error) {
	positions, err := s.GetPositions(ctx, false)
	if err != nil {
		return Position{}, false, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, true, nil
		}
	}
	return Position{}, false, nil
}

// GetPortfolioSummary recomputes the aggregate account state from the account
// endpoint and the current position snapshot.
func (s *Store) GetPortfolioSummary(ctx context.Context) (PortfolioSummary, error) {
	account, err := s.broker.GetAccount(ctx)
	if err != nil {
		return PortfolioSummary{}, fmt.Errorf("portfolio summary: %w", err)
	}

	positions, err := s.GetPositions(ctx, false)
	if err != nil {
		return PortfolioSummary{}, err
	}

	totalPL := decimal.Zero
	for _, p := range positions {
		totalPL = totalPL.Add(p.UnrealizedPL)
	}

	return PortfolioSummary{
		Equity:           account.Equity,
		BuyingPower:      account.BuyingPower,
		Cash:             account.Cash,
		TotalPL:          totalPL,
		DayPL:            account.Equity.Sub(account.LastEquity),
		PositionCount:    len(positions),
		LongMarketValue:  account.LongMarketValue,
		ShortMarketValue: account.ShortMarketValue,
	}, nil
}
