package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/quantfall/tradepilot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER - Execution reports & high-severity alerts
// ═══════════════════════════════════════════════════════════════════════════════

// TelegramNotifier pushes execution outcomes to a Telegram chat. With no
// token configured it degrades to a no-op so the engine runs headless.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier creates a notifier. An empty token yields a disabled
// notifier, not an error.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	if token == "" {
		log.Warn().Msg("Telegram token not set, notifications disabled")
		return &TelegramNotifier{}, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	log.Info().Str("bot", api.Self.UserName).Msg("🤖 Telegram notifier connected")

	return &TelegramNotifier{api: api, chatID: chatID}, nil
}

// NotifyReport sends a session summary.
func (t *TelegramNotifier) NotifyReport(report types.ExecutionReport) {
	t.send(formatReport(report))
}

// NotifyUnprotected sends a high-severity alert for a filled entry left
// without a full bracket. These need a human or the next scheduled run.
func (t *TelegramNotifier) NotifyUnprotected(result types.ExecutionResult) {
	t.send(fmt.Sprintf(`🚨 *UNPROTECTED POSITION*

%s %s, %d shares @ $%s
Entry order: %s
Bracket legs placed: %d/3

%s

Manual remediation required.`,
		result.Ticker, result.Action,
		result.Quantity, result.ExecutedPrice.StringFixed(2),
		result.OrderID,
		len(result.BracketOrderIDs),
		result.Error,
	))
}

func (t *TelegramNotifier) send(text string) {
	if t.api == nil {
		return
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func formatReport(report types.ExecutionReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, `📊 *Execution Report*

✅ Successful: %d
❌ Failed: %d
⏭ Skipped: %d

💵 Deployed: $%s
💰 Buying power left: $%s
`,
		len(report.Successful), len(report.Failed), len(report.Skipped),
		report.TotalExposure.StringFixed(2),
		report.RemainingBuyingPower.StringFixed(2),
	)

	for _, r := range report.Successful {
		fmt.Fprintf(&b, "\n✅ %s %s %d @ $%s", r.Ticker, r.Action, r.Quantity, r.ExecutedPrice.StringFixed(2))
	}
	for _, r := range report.Failed {
		fmt.Fprintf(&b, "\n❌ %s %s: %s", r.Ticker, r.Action, r.Error)
	}

	return b.String()
}
