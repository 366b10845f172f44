package notifier

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/notification"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

// TelegramNotifier はTelegram Botを使った通知実装
// トークン未設定の場合は無効モードで動作し、送信を黙ってスキップする
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	if token == "" {
		logger.Warn("Telegramトークンが未設定のため通知は無効です")
		return &TelegramNotifier{bot: nil}, nil
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("Telegram Botの作成に失敗: %w", err)
	}
	return &TelegramNotifier{bot: bot}, nil
}

// SendIfEnabled は通知が有効なユーザーにのみメッセージを送信する
// 通知先未連携・通知無効のユーザーはスキップし、エラーにはしない
func (n *TelegramNotifier) SendIfEnabled(ctx context.Context, u *user.User, subject, body string) error {
	if n.bot == nil {
		logger.Debug("通知をスキップ（Bot無効）", zap.String("subject", subject))
		return nil
	}
	if u == nil || !u.CanReceiveNotifications() {
		logger.Debug("通知をスキップ（ユーザー側で無効）",
			zap.String("subject", subject))
		return nil
	}

	text := fmt.Sprintf("*%s*\n\n%s", subject, body)
	msg := tgbotapi.NewMessage(*u.TelegramChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("通知送信に失敗: %w", err)
	}
	return nil
}

var _ notification.Notifier = (*TelegramNotifier)(nil)
