package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"concierge/internal/domain/handoff"
	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

// Compile-time check
var _ handoff.Notifier = (*OperatorNotifier)(nil)

// OperatorNotifier pushes handoff alerts to the operator Telegram chats.
// Fire-and-forget from the caller's perspective; a failed send is the
// caller's to log and swallow.
type OperatorNotifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewOperatorNotifier creates a Telegram-backed handoff notifier
func NewOperatorNotifier(botToken string, chatIDs []int64) (*OperatorNotifier, error) {
	if botToken == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram bot token not configured")
	}
	if len(chatIDs) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "no operator chat ids configured")
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, errors.Wrap(err, "create telegram bot")
	}

	return &OperatorNotifier{
		bot:     bot,
		chatIDs: chatIDs,
		// Telegram allows ~30 messages/second per bot
		limiter: rate.NewLimiter(rate.Limit(25), 5),
		log:     logger.Get().With("component", "operator_notifier"),
	}, nil
}

// NotifyHandoff alerts every operator chat about a new escalation
func (n *OperatorNotifier) NotifyHandoff(ctx context.Context, request *handoff.Request) error {
	text := formatHandoffAlert(request)

	var lastErr error
	for _, chatID := range n.chatIDs {
		if err := n.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Warnw("Failed to send handoff alert",
				"chat_id", chatID,
				"session_id", request.SessionID,
				"error", err,
			)
			lastErr = err
		}
	}
	return lastErr
}

func formatHandoffAlert(request *handoff.Request) string {
	var b strings.Builder

	header := "🙋 Handoff requested"
	if request.Priority == handoff.PriorityHigh {
		header = "🚨 Urgent handoff requested"
	}

	fmt.Fprintf(&b, "<b>%s</b>\n\n", header)
	fmt.Fprintf(&b, "Workspace: <code>%s</code>\n", request.WorkspaceID)
	fmt.Fprintf(&b, "Session: <code>%s</code>\n", request.SessionID)
	fmt.Fprintf(&b, "Trigger: %s\n", request.Trigger)
	if request.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", request.Reason)
	}
	fmt.Fprintf(&b, "Opened: %s", humanize.Time(request.CreatedAt))

	return b.String()
}
