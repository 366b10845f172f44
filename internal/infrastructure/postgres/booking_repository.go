package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

type bookingRow struct {
	ID                 string     `db:"id"`
	EventID            string     `db:"event_id"`
	UserID             string     `db:"user_id"`
	NumberOfTickets    int        `db:"number_of_tickets"`
	TotalAmount        int        `db:"total_amount"`
	Status             string     `db:"status"`
	PaymentRef         *string    `db:"payment_ref"`
	CancellationReason *string    `db:"cancellation_reason"`
	BookedAt           time.Time  `db:"booked_at"`
	PaymentCompletedAt *time.Time `db:"payment_completed_at"`
	CancelledAt        *time.Time `db:"cancelled_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

func (r *bookingRow) toEntity() *booking.Booking {
	var reason string
	if r.CancellationReason != nil {
		reason = *r.CancellationReason
	}
	return &booking.Booking{
		ID:                 r.ID,
		EventID:            r.EventID,
		UserID:             r.UserID,
		NumberOfTickets:    r.NumberOfTickets,
		TotalAmount:        r.TotalAmount,
		Status:             booking.Status(r.Status),
		PaymentRef:         r.PaymentRef,
		CancellationReason: reason,
		BookedAt:           r.BookedAt,
		PaymentCompletedAt: r.PaymentCompletedAt,
		CancelledAt:        r.CancelledAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

const bookingColumns = `id, event_id, user_id, number_of_tickets, total_amount, status, payment_ref, cancellation_reason, booked_at, payment_completed_at, cancelled_at, updated_at`

// BookingRepository は予約リポジトリのPostgreSQL実装
type BookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create は新しい予約を作成する（在庫確保と同一トランザクション必須）
func (r *BookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}

	query := `
		INSERT INTO bookings (event_id, user_id, number_of_tickets, total_amount, status, booked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if err := sqlxTx.QueryRowContext(ctx, query,
		b.EventID, b.UserID, b.NumberOfTickets, b.TotalAmount, string(b.Status), b.BookedAt, b.UpdatedAt,
	).Scan(&b.ID); err != nil {
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	return nil
}

// GetByID はIDから予約を取得する
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// GetByUserID はユーザーIDから予約一覧を取得する
func (r *BookingRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1 ORDER BY booked_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result, nil
}

// Update は予約のステータス・決済情報を更新する
func (r *BookingRepository) Update(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}

	var reason *string
	if b.CancellationReason != "" {
		reason = &b.CancellationReason
	}

	query := `
		UPDATE bookings
		SET status = $1, payment_ref = $2, cancellation_reason = $3, payment_completed_at = $4, cancelled_at = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := sqlxTx.ExecContext(ctx, query,
		string(b.Status), b.PaymentRef, reason, b.PaymentCompletedAt, b.CancelledAt, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return booking.ErrBookingNotFound
	}
	return nil
}

// ConfirmPending はpending状態の予約のみを確定へ更新する
// ロックのTTL切れ等でキャンセルと競合した場合、行は既にpendingではなく
// 更新は0行となる。このときはErrConcurrentUpdateを返し、呼び出し側が照合する
func (r *BookingRepository) ConfirmPending(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}

	query := `
		UPDATE bookings
		SET status = $1, payment_ref = $2, payment_completed_at = $3, updated_at = $4
		WHERE id = $5 AND status = 'pending'
	`
	result, err := sqlxTx.ExecContext(ctx, query,
		string(b.Status), b.PaymentRef, b.PaymentCompletedAt, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("予約確定に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return booking.ErrConcurrentUpdate
	}
	return nil
}

// GetExpiredPending は作成からolderThan以上経過した保留中予約を取得する
func (r *BookingRepository) GetExpiredPending(ctx context.Context, olderThan time.Duration) ([]*booking.Booking, error) {
	var rows []bookingRow
	cutoff := time.Now().Add(-olderThan)
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status = 'pending' AND booked_at < $1 ORDER BY booked_at`
	if err := r.db.SelectContext(ctx, &rows, query, cutoff); err != nil {
		return nil, fmt.Errorf("期限切れ予約取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i := range rows {
		result[i] = rows[i].toEntity()
	}
	return result, nil
}

// CountTicketsByEventID はイベントの販売済みチケット枚数を返す
// 在庫を保持するpending / confirmedの予約のみを集計する
func (r *BookingRepository) CountTicketsByEventID(ctx context.Context, eventID string) (int, error) {
	var count int
	query := `SELECT COALESCE(SUM(number_of_tickets), 0) FROM bookings WHERE event_id = $1 AND status IN ('pending', 'confirmed')`
	if err := r.db.GetContext(ctx, &count, query, eventID); err != nil {
		return 0, fmt.Errorf("チケット枚数集計に失敗: %w", err)
	}
	return count, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
