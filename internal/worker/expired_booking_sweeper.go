package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

// BookingSweeper は期限切れ予約をキャンセルするインターフェース
type BookingSweeper interface {
	CancelExpiredBookings(ctx context.Context, olderThan time.Duration) (int, error)
}

// ExpiredBookingSweeper は決済されないまま放置されたpending予約を
// 定期的に自動キャンセルするワーカー
// ユーザー起点のリクエストと並行して動作する
type ExpiredBookingSweeper struct {
	bookingService BookingSweeper
	interval       time.Duration
	olderThan      time.Duration
	stopCh         chan struct{}
	doneCh         chan struct{}
}

// NewExpiredBookingSweeper は新しいスイーパーを作成
func NewExpiredBookingSweeper(
	bs BookingSweeper,
	interval time.Duration,
	olderThan time.Duration,
) *ExpiredBookingSweeper {
	return &ExpiredBookingSweeper{
		bookingService: bs,
		interval:       interval,
		olderThan:      olderThan,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (s *ExpiredBookingSweeper) Start(ctx context.Context) {
	logger.Info("期限切れ予約スイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("older_than", s.olderThan),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ予約スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("期限切れ予約スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *ExpiredBookingSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// sweep は期限切れ予約を自動キャンセルする
// 個々の予約の失敗はサービス側で局所化されるため、ここでは件数のみ扱う
func (s *ExpiredBookingSweeper) sweep(ctx context.Context) {
	log := logger.Get()
	log.Debug("期限切れ予約のスイープ開始")

	count, err := s.bookingService.CancelExpiredBookings(ctx, s.olderThan)
	if err != nil {
		log.Error("期限切れ予約のスイープ失敗", zap.Error(err))
		return
	}

	if count > 0 {
		log.Info("期限切れ予約を自動キャンセル", zap.Int("count", count))
	} else {
		log.Debug("期限切れ予約なし")
	}
}
