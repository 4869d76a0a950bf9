package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quantfall/tradepilot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION JOURNAL - Structured record of every trade attempt
// ═══════════════════════════════════════════════════════════════════════════════
//
// The engine owns no persistent state; this is the external logging
// collaborator. SQLite by default, Postgres when the URL says so.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ExecutionRecord is the persisted form of one ExecutionResult.
type ExecutionRecord struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"`
	Ticker          string          `gorm:"index"`
	Action          string
	Status          string          `gorm:"index"`
	Quantity        int64
	Price           decimal.Decimal `gorm:"type:decimal(18,8)"`
	OrderID         string
	BracketOrderIDs string // comma-separated leg ids
	Error           string
	ExecutedAt      time.Time
	CreatedAt       time.Time
}

// Journal persists execution results.
type Journal struct {
	db *gorm.DB
}

// OpenJournal connects to the journal database. A postgres:// URL selects
// Postgres; anything else is treated as a SQLite path.
func OpenJournal(databaseURL string) (*Journal, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.AutoMigrate(&ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	log.Info().Str("url", databaseURL).Msg("💾 Execution journal connected")

	return &Journal{db: db}, nil
}

// SaveResult appends one execution result to the journal.
func (j *Journal) SaveResult(result types.ExecutionResult) error {
	record := ExecutionRecord{
		Ticker:          result.Ticker,
		Action:          string(result.Action),
		Status:          string(result.Status),
		Quantity:        result.Quantity,
		Price:           result.ExecutedPrice,
		OrderID:         result.OrderID,
		BracketOrderIDs: strings.Join(result.BracketOrderIDs, ","),
		Error:           result.Error,
		ExecutedAt:      result.Timestamp,
	}

	if err := j.db.Create(&record).Error; err != nil {
		return fmt.Errorf("save execution record: %w", err)
	}
	return nil
}

// RecentResults returns the latest execution records, newest first.
func (j *Journal) RecentResults(limit int) ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := j.db.Order("executed_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("recent results: %w", err)
	}
	return records, nil
}

// UnprotectedPositions returns failed BUY records that left a filled entry
// without a full bracket, for remediation by the next run.
func (j *Journal) UnprotectedPositions() ([]ExecutionRecord, error) {
	var records []ExecutionRecord
	err := j.db.
		Where("action = ? AND status = ? AND quantity > 0", "BUY", string(types.StatusFailed)).
		Order("executed_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("unprotected positions: %w", err)
	}
	return records, nil
}

// Close closes the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
