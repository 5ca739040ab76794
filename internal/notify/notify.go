package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/le-tueur/chatvc/internal/config"
	"github.com/le-tueur/chatvc/pkg/logger"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

const sendTimeout = 5 * time.Second

// Notifier records admin actions. Implementations must not block.
type Notifier interface {
	Notify(format string, args ...any)
}

// LogNotifier writes the audit trail to the server log.
type LogNotifier struct{}

func (LogNotifier) Notify(format string, args ...any) {
	logger.Info("[audit] "+format, args...)
}

// TelegramNotifier mirrors the audit trail to a Telegram channel.
type TelegramNotifier struct {
	bot       *bot.Bot
	channelID int64
	local     Notifier
}

func NewTelegramNotifier(token string, channelID int64) (*TelegramNotifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, channelID: channelID, local: LogNotifier{}}, nil
}

func (n *TelegramNotifier) Notify(format string, args ...any) {
	n.local.Notify(format, args...)

	text := html.EscapeString(fmt.Sprintf(format, args...))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    n.channelID,
			Text:      "<b>chat audit</b>\n" + text,
			ParseMode: tgmodels.ParseModeHTML,
		})
		if err != nil {
			logger.Error("Error sending audit entry to Telegram: %v", err)
		}
	}()
}

// New picks the Telegram mirror when it is configured and falls back to
// the log otherwise.
func New(cfg config.TelegramConfig) Notifier {
	if cfg.Token == "" || cfg.ChannelID == 0 {
		logger.Info("Telegram audit channel not configured, auditing to log only")
		return LogNotifier{}
	}
	n, err := NewTelegramNotifier(cfg.Token, cfg.ChannelID)
	if err != nil {
		logger.Error("Telegram audit disabled: %v", err)
		return LogNotifier{}
	}
	logger.Info("Auditing to Telegram channel %d", cfg.ChannelID)
	return n
}
