package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/event"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/notification"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/payment"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
	redisinfra "github.com/sanosuguru/go-ticket-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
)

// ErrBookingBusy は同一予約への操作が競合した場合のエラー
var ErrBookingBusy = errors.New("予約は他の処理によって操作中です。しばらくしてから再度お試しください")

// AutoCancelReasonExpired は期限切れ自動キャンセルのシステム生成事由
const AutoCancelReasonExpired = "予約の有効期限が切れました"

// 決済ゲートウェイ呼び出しのデフォルトタイムアウト
const defaultPaymentTimeout = 15 * time.Second

// ロックTTLの余裕分。クリティカルセクション内で最も長いのは決済呼び出しであり、
// ロックが決済タイムアウトより先に失効すると同一予約への並行遷移を許してしまう
const lockTTLMargin = 5 * time.Second

// BookingService は予約ライフサイクル（pending → confirmed → cancelled/refunded）を管理する
// 同一予約に対する状態遷移は分散ロックで直列化する
type BookingService struct {
	txManager      transaction.Manager
	bookingRepo    booking.Repository
	eventRepo      event.Repository
	userRepo       user.Repository
	gateway        payment.Gateway
	notifier       notification.Notifier
	lockManager    *redisinfra.LockManager
	cache          *redisinfra.BookingCache
	paymentTimeout time.Duration
	lockTTL        time.Duration
}

func NewBookingService(
	txManager transaction.Manager,
	bookingRepo booking.Repository,
	eventRepo event.Repository,
	userRepo user.Repository,
	gateway payment.Gateway,
	notifier notification.Notifier,
	lockManager *redisinfra.LockManager,
	cache *redisinfra.BookingCache,
	paymentTimeout time.Duration,
) *BookingService {
	if paymentTimeout <= 0 {
		paymentTimeout = defaultPaymentTimeout
	}
	return &BookingService{
		txManager:      txManager,
		bookingRepo:    bookingRepo,
		eventRepo:      eventRepo,
		userRepo:       userRepo,
		gateway:        gateway,
		notifier:       notifier,
		lockManager:    lockManager,
		cache:          cache,
		paymentTimeout: paymentTimeout,
		lockTTL:        paymentTimeout + lockTTLMargin,
	}
}

type CreateBookingInput struct {
	EventID         string
	UserID          string
	NumberOfTickets int
}

// CreateBooking は在庫を確保してpending状態の予約を作成する
// 在庫減算と予約作成は単一トランザクション。どちらかが失敗すれば
// ロールバックにより在庫は元に戻り、在庫のリークは起きない
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*booking.Booking, error) {
	if _, err := s.userRepo.GetByID(ctx, input.UserID); err != nil {
		return nil, err
	}
	ev, err := s.eventRepo.GetByID(ctx, input.EventID)
	if err != nil {
		return nil, err
	}
	if ev.HasStarted() {
		return nil, event.ErrEventAlreadyStarted
	}

	b := booking.NewBooking(ev.ID, input.UserID, input.NumberOfTickets, ev.TicketPrice)
	if err := b.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	// 条件付きアトミック減算。空席不足は終端の業務エラーでありリトライしない
	if err := s.eventRepo.ReserveTickets(ctx, tx, ev.ID, input.NumberOfTickets); err != nil {
		if errors.Is(err, event.ErrInsufficientTickets) {
			s.countBooking("insufficient")
		}
		return nil, err
	}
	if err := s.bookingRepo.Create(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.invalidateCaches(ctx, ev.ID, b.UserID)
	s.countBooking("created")
	return b, nil
}

// MarkAsPaid は決済を実行して予約を確定する
// 冪等性ガード: 決済済みの場合はゲートウェイを呼ばずに成功を返す（重複課金防止）
func (s *BookingService) MarkAsPaid(ctx context.Context, bookingID, callerID string) (*booking.Booking, error) {
	lock, err := s.acquireBookingLock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsOwnedBy(callerID) {
		return nil, booking.ErrForbidden
	}
	if b.IsPaid() {
		return b, nil
	}
	if b.IsTerminal() {
		return nil, booking.ErrBookingTerminal
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	result, err := s.gateway.Charge(chargeCtx, b.ID, b.UserID, b.TotalAmount)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrPaymentDeclined):
			// 予約はpendingのまま。ユーザーは再試行できる
			s.countPayment("declined")
			s.notifyOwner(ctx, b, "決済失敗のお知らせ",
				fmt.Sprintf("予約 %s の決済が完了しませんでした。お手数ですが再度お試しください。", b.ID))
			return nil, fmt.Errorf("決済処理に失敗しました: %w", err)
		case errors.Is(err, payment.ErrServiceUnavailable):
			// 一時的なインフラ障害。ユーザー起因の決済結果ではないため通知しない
			s.countPayment("unavailable")
			return nil, fmt.Errorf("決済サービス呼び出しに失敗しました: %w", err)
		default:
			// 結果が不明な障害も一時障害として扱う（課金が成立している可能性があるためログに残す）
			s.countPayment("unavailable")
			logger.Warn("決済結果が不明です。ゲートウェイとの照合が必要です",
				zap.String("booking_id", b.ID), zap.Error(err))
			return nil, fmt.Errorf("決済サービス呼び出しに失敗しました: %w", payment.ErrServiceUnavailable)
		}
	}

	if err := b.MarkPaid(result.PaymentRef); err != nil {
		return nil, err
	}
	if err := s.confirmBooking(ctx, b); err != nil {
		if errors.Is(err, booking.ErrConcurrentUpdate) {
			// 課金は成立しているが予約は既にpendingではない（ロック失効とキャンセルの競合など）
			// 自動では確定せず、返金照合の対象としてログに残す
			logger.Error("決済は成立しましたが予約が別状態に遷移していました。返金照合が必要です",
				zap.String("booking_id", b.ID), zap.String("payment_ref", result.PaymentRef))
		}
		return nil, err
	}

	s.invalidateCaches(ctx, b.EventID, b.UserID)
	s.countPayment("success")
	s.notifyOwner(ctx, b, "決済完了のお知らせ",
		fmt.Sprintf("予約 %s の決済が完了しました。合計金額: %d円", b.ID, b.TotalAmount))
	return b, nil
}

// CancelBooking はユーザー自身によるキャンセル
// 確定済みかつイベント開始24時間前までの予約のみ対象
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, callerID, reason string) (*booking.Booking, error) {
	lock, err := s.acquireBookingLock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.IsOwnedBy(callerID) {
		return nil, booking.ErrForbidden
	}
	ev, err := s.eventRepo.GetByID(ctx, b.EventID)
	if err != nil {
		return nil, err
	}
	if !b.CanBeCancelledBefore(ev.StartAt) {
		return nil, booking.ErrNotCancellable
	}

	if err := s.applyCancellation(ctx, b, reason); err != nil {
		return nil, err
	}
	s.countBooking("cancelled")
	s.notifyOwner(ctx, b, "キャンセル完了のお知らせ",
		fmt.Sprintf("予約 %s をキャンセルしました。", b.ID))
	return b, nil
}

// AdminCancelBooking は管理者によるキャンセル
// 所有者チェックと24時間前チェックを行わない特権パス
func (s *BookingService) AdminCancelBooking(ctx context.Context, bookingID, reason string) (*booking.Booking, error) {
	lock, err := s.acquireBookingLock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.applyCancellation(ctx, b, reason); err != nil {
		return nil, err
	}
	s.countBooking("cancelled")
	s.notifyOwner(ctx, b, "キャンセルのお知らせ",
		fmt.Sprintf("予約 %s は運営によりキャンセルされました。事由: %s", b.ID, reason))
	return b, nil
}

// AutoCancelBooking はシステムによる自動キャンセル
// 決済に到達しなかったpending予約の回収に使う。前提条件チェックは行わない
func (s *BookingService) AutoCancelBooking(ctx context.Context, bookingID, reason string) (*booking.Booking, error) {
	lock, err := s.acquireBookingLock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	// 一覧取得からロック取得までの間に決済が完了している場合がある
	// ロック下で再取得した状態がpendingでなければ何もしない
	if b.Status != booking.StatusPending {
		return b, nil
	}
	if err := s.applyCancellation(ctx, b, reason); err != nil {
		return nil, err
	}
	s.countBooking("auto_cancelled")
	s.notifyOwner(ctx, b, "予約期限切れのお知らせ",
		fmt.Sprintf("予約 %s は期限内に決済されなかったためキャンセルされました。", b.ID))
	return b, nil
}

// RefundBooking は決済済み予約を返金する
// 冪等性ガード: 返金済みの場合はゲートウェイを呼ばずに成功を返す
// ゲートウェイ障害時は予約状態を変更せず、元のエラーを返す
func (s *BookingService) RefundBooking(ctx context.Context, bookingID string) (*booking.Booking, error) {
	lock, err := s.acquireBookingLock(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer lock.Release(ctx)
	}

	b, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status == booking.StatusRefunded {
		return b, nil
	}
	if b.PaymentRef == nil {
		return nil, booking.ErrNothingToRefund
	}

	refundCtx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
	defer cancel()

	if err := s.gateway.Refund(refundCtx, *b.PaymentRef, b.TotalAmount); err != nil {
		// 通知の成否が返金失敗エラーを上書きしてはならない
		s.countRefund("failed")
		s.notifyOwner(ctx, b, "返金失敗のお知らせ",
			fmt.Sprintf("予約 %s の返金処理に失敗しました。サポートへお問い合わせください。", b.ID))
		if errors.Is(err, payment.ErrPaymentDeclined) || errors.Is(err, payment.ErrServiceUnavailable) {
			return nil, fmt.Errorf("返金処理に失敗しました: %w", err)
		}
		return nil, fmt.Errorf("返金処理に失敗しました: %w", payment.ErrServiceUnavailable)
	}

	// 確定済みから直接返金する場合は在庫も解放する
	// （キャンセル済み予約は既に解放されている）
	releaseInventory := b.HoldsInventory()
	if err := b.Refund(); err != nil {
		return nil, err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if releaseInventory {
		if err := s.eventRepo.ReleaseTickets(ctx, tx, b.EventID, b.NumberOfTickets); err != nil {
			return nil, err
		}
	}
	if err := s.bookingRepo.Update(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.invalidateCaches(ctx, b.EventID, b.UserID)
	s.countRefund("success")
	s.notifyOwner(ctx, b, "返金完了のお知らせ",
		fmt.Sprintf("予約 %s の返金が完了しました。返金額: %d円", b.ID, b.TotalAmount))
	return b, nil
}

// CancelExpiredBookings は期限切れのpending予約を自動キャンセルする
// 1件の失敗が他の予約の処理を妨げないよう、1件ずつ処理してエラーを局所化する
func (s *BookingService) CancelExpiredBookings(ctx context.Context, olderThan time.Duration) (int, error) {
	expired, err := s.bookingRepo.GetExpiredPending(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("期限切れ予約の取得に失敗: %w", err)
	}

	cancelled := 0
	for _, b := range expired {
		res, err := s.AutoCancelBooking(ctx, b.ID, AutoCancelReasonExpired)
		if err != nil {
			logger.Error("期限切れ予約の自動キャンセルに失敗",
				zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		// 一覧取得後に決済された予約はスキップされるため、実際にキャンセルされた件数のみ数える
		if res.Status == booking.StatusCancelled {
			cancelled++
		}
	}
	return cancelled, nil
}

// GetBooking はIDから予約を取得する
func (s *BookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

// GetUserBookings はユーザーの予約一覧を取得する（キャッシュあり）
func (s *BookingService) GetUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	// キャッシュは先頭ページのみ対象
	cacheable := s.cache != nil && offset == 0
	if cacheable {
		if cached, err := s.cache.GetUserBookings(ctx, userID); err == nil {
			return cached, nil
		}
	}

	bookings, err := s.bookingRepo.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.SetUserBookings(ctx, userID, bookings); err != nil {
			logger.Warn("予約一覧キャッシュの保存に失敗", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return bookings, nil
}

// GetBookingsForUsername はユーザー名から予約一覧を取得する（管理者用）
func (s *BookingService) GetBookingsForUsername(ctx context.Context, username string, limit, offset int) ([]*booking.Booking, error) {
	u, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.GetUserBookings(ctx, u.ID, limit, offset)
}

// GetExpiredPendingBookings は作成からolderThan以上経過した保留中予約を返す
func (s *BookingService) GetExpiredPendingBookings(ctx context.Context, olderThan time.Duration) ([]*booking.Booking, error) {
	return s.bookingRepo.GetExpiredPending(ctx, olderThan)
}

// CountTicketsForEvent はイベントの販売済みチケット枚数を返す
func (s *BookingService) CountTicketsForEvent(ctx context.Context, eventID string) (int, error) {
	return s.bookingRepo.CountTicketsByEventID(ctx, eventID)
}

// applyCancellation はキャンセルの共通処理
// 在庫を保持している予約（pending / confirmed）の場合のみ在庫を解放する
func (s *BookingService) applyCancellation(ctx context.Context, b *booking.Booking, reason string) error {
	releaseInventory := b.HoldsInventory()
	if err := b.Cancel(reason); err != nil {
		return err
	}

	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if releaseInventory {
		if err := s.eventRepo.ReleaseTickets(ctx, tx, b.EventID, b.NumberOfTickets); err != nil {
			return err
		}
	}
	if err := s.bookingRepo.Update(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	s.invalidateCaches(ctx, b.EventID, b.UserID)
	return nil
}

// confirmBooking は決済成立後の予約確定をトランザクションで永続化する
// pending行のみを更新する条件付きUPDATEを使い、キャンセルとの競合を検出する
func (s *BookingService) confirmBooking(ctx context.Context, b *booking.Booking) error {
	tx, err := s.txManager.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.bookingRepo.ConfirmPending(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// acquireBookingLock は予約単位の分散ロックを取得する
// 同一予約へのMarkAsPaidとCancelBookingの競合による二重在庫操作を防ぐ
func (s *BookingService) acquireBookingLock(ctx context.Context, bookingID string) (*redisinfra.DistributedLock, error) {
	if s.lockManager == nil {
		return nil, nil
	}
	start := time.Now()
	lock, err := s.lockManager.AcquireLockWithRetry(ctx, "booking:"+bookingID, s.lockTTL, 3, 100*time.Millisecond)
	s.observeLock("acquire", time.Since(start), err == nil)
	if err != nil {
		if errors.Is(err, redisinfra.ErrLockNotAcquired) {
			return nil, ErrBookingBusy
		}
		return nil, fmt.Errorf("ロック取得に失敗: %w", err)
	}
	return lock, nil
}

// notifyOwner は予約の所有者にベストエフォート通知を送る
// 通知の失敗は呼び出し元の結果に影響させず、ログに記録するのみ
func (s *BookingService) notifyOwner(ctx context.Context, b *booking.Booking, subject, body string) {
	if s.notifier == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, b.UserID)
	if err != nil {
		logger.Warn("通知先ユーザーの取得に失敗",
			zap.String("booking_id", b.ID), zap.String("user_id", b.UserID), zap.Error(err))
		return
	}
	if err := s.notifier.SendIfEnabled(ctx, u, subject, body); err != nil {
		logger.Warn("通知送信に失敗（主処理の結果には影響しません）",
			zap.String("booking_id", b.ID), zap.String("subject", subject), zap.Error(err))
	}
}

// invalidateCaches はライフサイクル遷移に伴うキャッシュの明示的な無効化を行う
func (s *BookingService) invalidateCaches(ctx context.Context, eventID, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailability(ctx, eventID); err != nil {
		logger.Warn("空席数キャッシュの無効化に失敗", zap.String("event_id", eventID), zap.Error(err))
	}
	if err := s.cache.InvalidateUserBookings(ctx, userID); err != nil {
		logger.Warn("予約一覧キャッシュの無効化に失敗", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *BookingService) countBooking(status string) {
	if m := metrics.Get(); m != nil {
		m.BookingsTotal.WithLabelValues(status).Inc()
	}
}

func (s *BookingService) countPayment(result string) {
	if m := metrics.Get(); m != nil {
		m.PaymentsTotal.WithLabelValues(result).Inc()
	}
}

func (s *BookingService) countRefund(result string) {
	if m := metrics.Get(); m != nil {
		m.RefundsTotal.WithLabelValues(result).Inc()
	}
}

func (s *BookingService) observeLock(operation string, d time.Duration, ok bool) {
	m := metrics.Get()
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failed"
	}
	m.DistributedLockDuration.WithLabelValues(operation, status).Observe(d.Seconds())
}
