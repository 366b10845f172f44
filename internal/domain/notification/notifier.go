package notification

import (
	"context"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

// Notifier はベストエフォートの通知インターフェース
// 契約: 送信失敗は呼び出し元の主処理の結果に一切影響させない
// 呼び出し側はエラーをログに記録したうえで握りつぶす
type Notifier interface {
	// SendIfEnabled は通知が有効なユーザーにのみメッセージを送信する
	SendIfEnabled(ctx context.Context, u *user.User, subject, body string) error
}
