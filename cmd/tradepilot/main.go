// Tradepilot - Risk-Gated Bracket Trading Engine
//
// Consumes a batch of proposed trades from the upstream recommendation feed,
// enforces portfolio-level risk limits, submits entry orders, and manages the
// resulting take-profit/stop-loss bracket set through the order lifecycle.
//
// Usage:
//
//	tradepilot trades.json
//
// The file holds a JSON array of proposed trades. The engine runs exactly one
// execution session over the batch, prints the report, and exits non-zero if
// any trade failed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantfall/tradepilot/bot"
	"github.com/quantfall/tradepilot/broker"
	"github.com/quantfall/tradepilot/executor"
	"github.com/quantfall/tradepilot/internal/config"
	"github.com/quantfall/tradepilot/portfolio"
	"github.com/quantfall/tradepilot/risk"
	"github.com/quantfall/tradepilot/session"
	"github.com/quantfall/tradepilot/storage"
	"github.com/quantfall/tradepilot/types"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tradepilot <trades.json>")
		os.Exit(2)
	}

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("version", version).Bool("dry_run", cfg.DryRun).Msg("Tradepilot starting")

	proposed, err := loadTrades(os.Args[1])
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load proposed trades")
	}

	// Wire collaborators
	client := broker.NewClient(broker.ClientConfig{
		BaseURL:   cfg.BrokerBaseURL,
		DataURL:   cfg.BrokerDataURL,
		APIKey:    cfg.BrokerAPIKey,
		APISecret: cfg.BrokerAPISecret,
		DryRun:    cfg.DryRun,
	})

	store := portfolio.NewStore(client, cfg.CacheTTL)

	gate := risk.NewGate(risk.Config{
		MaxPositionSize:          cfg.MaxPositionSize,
		MaxDailyExposureFraction: cfg.MaxDailyExposureFraction,
		MaxPositions:             cfg.MaxPositions,
		MaxSinglePositionPercent: cfg.MaxSinglePositionPercent,
	})

	exec := executor.New(client, store, executor.Config{
		FillTimeout:         cfg.FillTimeout,
		PollInterval:        cfg.PollInterval,
		PacingDelay:         cfg.PacingDelay,
		TradingHoursOnly:    cfg.TradingHoursOnly,
		AvoidFirstMinutes:   cfg.AvoidFirstMinutes,
		AvoidLastMinutes:    cfg.AvoidLastMinutes,
		TP1QuantityFraction: cfg.TP1QuantityFraction,
	})

	sess := session.New(store, gate, exec)

	if journal, err := storage.OpenJournal(cfg.DatabaseURL); err != nil {
		log.Warn().Err(err).Msg("Journal unavailable, running without persistence")
	} else {
		defer journal.Close()
		sess = sess.WithJournal(journal)
	}

	if notifier, err := bot.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID); err != nil {
		log.Warn().Err(err).Msg("Telegram unavailable, running without notifications")
	} else {
		sess = sess.WithNotifier(notifier)
	}

	// Cancel the session cleanly on SIGINT/SIGTERM; the fill-poll loop checks
	// the context every iteration.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := sess.Run(ctx, proposed)
	if err != nil {
		log.Error().Err(err).Msg("Session error")
	}

	printReport(report)

	if err != nil || len(report.Failed) > 0 {
		os.Exit(1)
	}
}

func loadTrades(path string) ([]types.ProposedTrade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var trades []types.ProposedTrade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return trades, nil
}

func printReport(report types.ExecutionReport) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode report")
		return
	}
	fmt.Println(string(out))
}
