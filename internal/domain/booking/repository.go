package booking

import (
	"context"
	"time"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（在庫確保と同一トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByUserID はユーザーIDから予約一覧を取得する
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*Booking, error)

	// Update は予約のステータス・決済情報を更新する
	Update(ctx context.Context, tx transaction.Tx, b *Booking) error

	// ConfirmPending はpending状態の予約のみを確定へ更新する
	// 行がpendingでなくなっていた場合はErrConcurrentUpdateを返す
	ConfirmPending(ctx context.Context, tx transaction.Tx, b *Booking) error

	// GetExpiredPending は作成からolderThan以上経過した保留中予約を取得する
	GetExpiredPending(ctx context.Context, olderThan time.Duration) ([]*Booking, error)

	// CountTicketsByEventID はイベントの販売済みチケット枚数を返す
	// pending / confirmed の予約のみを集計する
	CountTicketsByEventID(ctx context.Context, eventID string) (int, error)
}
