package booking

import "time"

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// チケット枚数の上限（1回の予約あたり）
const (
	MinTicketsPerBooking = 1
	MaxTicketsPerBooking = 10
)

// CancellationDeadline はセルフキャンセル可能な締切（イベント開始の24時間前まで）
const CancellationDeadline = 24 * time.Hour

// Booking は予約エンティティを表す
// ステータスによるソフトライフサイクルで管理し、物理削除は行わない
type Booking struct {
	ID                 string
	EventID            string
	UserID             string
	NumberOfTickets    int
	TotalAmount        int // 合計金額（円）
	Status             Status
	PaymentRef         *string // 外部決済サービスの決済ID（決済成功時に一度だけ設定）
	CancellationReason string
	BookedAt           time.Time
	PaymentCompletedAt *time.Time
	CancelledAt        *time.Time
	UpdatedAt          time.Time
}

// NewBooking は新しい予約をpending状態で作成する
func NewBooking(eventID, userID string, numberOfTickets, ticketPrice int) *Booking {
	now := time.Now()
	return &Booking{
		EventID:         eventID,
		UserID:          userID,
		NumberOfTickets: numberOfTickets,
		TotalAmount:     ticketPrice * numberOfTickets,
		Status:          StatusPending,
		BookedAt:        now,
		UpdatedAt:       now,
	}
}

// IsOwnedBy は指定ユーザーが予約の所有者かを返す
func (b *Booking) IsOwnedBy(userID string) bool {
	return b.UserID == userID
}

// IsPaid は決済が完了しているかを返す
// 冪等性ガード: trueの場合、重複課金を防ぐため再決済してはならない
func (b *Booking) IsPaid() bool {
	return b.PaymentRef != nil || b.Status == StatusConfirmed
}

// IsTerminal は終端状態（cancelled / refunded）かを返す
func (b *Booking) IsTerminal() bool {
	return b.Status == StatusCancelled || b.Status == StatusRefunded
}

// HoldsInventory は予約が在庫を保持しているかを返す
// pending / confirmed の予約のみが空席カウンターを消費している
func (b *Booking) HoldsInventory() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// MarkPaid は決済成功を記録し予約を確定する
// paymentRef は一度だけ設定される
func (b *Booking) MarkPaid(paymentRef string) error {
	if b.IsTerminal() {
		return ErrBookingTerminal
	}
	if b.IsPaid() {
		return ErrAlreadyPaid
	}
	now := time.Now()
	b.PaymentRef = &paymentRef
	b.Status = StatusConfirmed
	b.PaymentCompletedAt = &now
	b.UpdatedAt = now
	return nil
}

// CanBeCancelledBefore はセルフキャンセル可能かを返す
// 確定済みかつイベント開始まで24時間以上ある場合のみ許可
func (b *Booking) CanBeCancelledBefore(eventStartAt time.Time) bool {
	if b.Status != StatusConfirmed {
		return false
	}
	return eventStartAt.After(time.Now().Add(CancellationDeadline))
}

// Cancel は予約をキャンセルする
// 終端状態からの遷移は拒否する（管理者・自動キャンセルの前提条件は呼び出し側が制御）
func (b *Booking) Cancel(reason string) error {
	if b.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if b.Status == StatusRefunded {
		return ErrBookingTerminal
	}
	now := time.Now()
	b.Status = StatusCancelled
	b.CancelledAt = &now
	b.CancellationReason = reason
	b.UpdatedAt = now
	return nil
}

// Refund は予約を返金済みにする
// PaymentRef が未設定の場合は返金対象が存在しない
func (b *Booking) Refund() error {
	if b.Status == StatusRefunded {
		return ErrAlreadyRefunded
	}
	if b.PaymentRef == nil {
		return ErrNothingToRefund
	}
	b.Status = StatusRefunded
	b.UpdatedAt = time.Now()
	return nil
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.EventID == "" {
		return ErrEventIDRequired
	}
	if b.UserID == "" {
		return ErrUserIDRequired
	}
	if b.NumberOfTickets < MinTicketsPerBooking || b.NumberOfTickets > MaxTicketsPerBooking {
		return ErrInvalidTicketCount
	}
	if b.TotalAmount < 0 {
		return ErrInvalidTotalAmount
	}
	return nil
}
