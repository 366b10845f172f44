package event

import (
	"context"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// Repository はイベントリポジトリのインターフェース
type Repository interface {
	// Create は新しいイベントを作成する
	Create(ctx context.Context, event *Event) error

	// GetByID はIDからイベントを取得する
	GetByID(ctx context.Context, id string) (*Event, error)

	// List はイベント一覧を取得する
	List(ctx context.Context, limit, offset int) ([]*Event, error)

	// Update はイベントを更新する（楽観的ロック）
	Update(ctx context.Context, event *Event) error

	// ReserveTickets は空席カウンターを条件付きでアトミックに減算する
	// 空席不足の場合はErrInsufficientTicketsを返し、状態を変更しない
	// check-then-actの競合を避けるため、読み取り＋書き込みの分離は禁止
	ReserveTickets(ctx context.Context, tx transaction.Tx, eventID string, quantity int) error

	// ReleaseTickets は空席カウンターを加算する
	// 最大収容数を超えないようクランプする
	ReleaseTickets(ctx context.Context, tx transaction.Tx, eventID string, quantity int) error
}
