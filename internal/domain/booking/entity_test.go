package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBooking(t *testing.T) {
	tests := []struct {
		name            string
		eventID         string
		userID          string
		numberOfTickets int
		ticketPrice     int
		wantErr         bool
		errExpected     error
	}{
		{
			name: "正常な予約作成", eventID: "event-456", userID: "user-123",
			numberOfTickets: 3, ticketPrice: 5000,
			wantErr: false,
		},
		{
			name: "イベントID未指定", eventID: "", userID: "user-123",
			numberOfTickets: 1, ticketPrice: 5000,
			wantErr: true, errExpected: ErrEventIDRequired,
		},
		{
			name: "ユーザーID未指定", eventID: "event-456", userID: "",
			numberOfTickets: 1, ticketPrice: 5000,
			wantErr: true, errExpected: ErrUserIDRequired,
		},
		{
			name: "チケット枚数が0枚", eventID: "event-456", userID: "user-123",
			numberOfTickets: 0, ticketPrice: 5000,
			wantErr: true, errExpected: ErrInvalidTicketCount,
		},
		{
			name: "チケット枚数が上限超過", eventID: "event-456", userID: "user-123",
			numberOfTickets: 11, ticketPrice: 5000,
			wantErr: true, errExpected: ErrInvalidTicketCount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBooking(tt.eventID, tt.userID, tt.numberOfTickets, tt.ticketPrice)
			err := b.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.errExpected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.eventID, b.EventID)
			assert.Equal(t, tt.userID, b.UserID)
			assert.Equal(t, StatusPending, b.Status)
			assert.Equal(t, tt.ticketPrice*tt.numberOfTickets, b.TotalAmount)
			assert.Nil(t, b.PaymentRef)
		})
	}
}

func TestBooking_MarkPaid(t *testing.T) {
	b := createTestBooking(t)
	err := b.MarkPaid("pay-abc")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
	require.NotNil(t, b.PaymentRef)
	assert.Equal(t, "pay-abc", *b.PaymentRef)
	assert.NotNil(t, b.PaymentCompletedAt)
}

func TestBooking_MarkPaid_AlreadyPaid(t *testing.T) {
	b := createTestBooking(t)
	require.NoError(t, b.MarkPaid("pay-abc"))
	err := b.MarkPaid("pay-xyz")
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	// 最初の決済IDが保持されること
	assert.Equal(t, "pay-abc", *b.PaymentRef)
}

func TestBooking_MarkPaid_Terminal(t *testing.T) {
	b := createTestBooking(t)
	b.Status = StatusCancelled
	err := b.MarkPaid("pay-abc")
	assert.ErrorIs(t, err, ErrBookingTerminal)
}

func TestBooking_IsPaid(t *testing.T) {
	b := createTestBooking(t)
	assert.False(t, b.IsPaid())
	require.NoError(t, b.MarkPaid("pay-abc"))
	assert.True(t, b.IsPaid())
}

func TestBooking_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		wantErr error
	}{
		{"Pending状態からキャンセル", StatusPending, nil},
		{"Confirmed状態からキャンセル", StatusConfirmed, nil},
		{"Cancelled状態からキャンセル", StatusCancelled, ErrAlreadyCancelled},
		{"Refunded状態からキャンセル", StatusRefunded, ErrBookingTerminal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := createTestBooking(t)
			b.Status = tt.status
			err := b.Cancel("都合によりキャンセル")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, StatusCancelled, b.Status)
				assert.NotNil(t, b.CancelledAt)
				assert.Equal(t, "都合によりキャンセル", b.CancellationReason)
			}
		})
	}
}

func TestBooking_Refund(t *testing.T) {
	b := createTestBooking(t)
	require.NoError(t, b.MarkPaid("pay-abc"))
	err := b.Refund()
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, b.Status)
}

func TestBooking_Refund_NothingToRefund(t *testing.T) {
	b := createTestBooking(t)
	err := b.Refund()
	assert.ErrorIs(t, err, ErrNothingToRefund)
}

func TestBooking_Refund_AlreadyRefunded(t *testing.T) {
	b := createTestBooking(t)
	require.NoError(t, b.MarkPaid("pay-abc"))
	require.NoError(t, b.Refund())
	err := b.Refund()
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
}

func TestBooking_CanBeCancelledBefore(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		startAt time.Time
		want    bool
	}{
		{"開始48時間前の確定済み予約", StatusConfirmed, time.Now().Add(48 * time.Hour), true},
		{"開始12時間前の確定済み予約", StatusConfirmed, time.Now().Add(12 * time.Hour), false},
		{"開始48時間前の未決済予約", StatusPending, time.Now().Add(48 * time.Hour), false},
		{"開始済みイベントの確定済み予約", StatusConfirmed, time.Now().Add(-1 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := createTestBooking(t)
			b.Status = tt.status
			assert.Equal(t, tt.want, b.CanBeCancelledBefore(tt.startAt))
		})
	}
}

func TestBooking_HoldsInventory(t *testing.T) {
	b := createTestBooking(t)
	assert.True(t, b.HoldsInventory())
	b.Status = StatusConfirmed
	assert.True(t, b.HoldsInventory())
	b.Status = StatusCancelled
	assert.False(t, b.HoldsInventory())
	b.Status = StatusRefunded
	assert.False(t, b.HoldsInventory())
}

func TestBooking_IsOwnedBy(t *testing.T) {
	b := createTestBooking(t)
	assert.True(t, b.IsOwnedBy("user-123"))
	assert.False(t, b.IsOwnedBy("user-999"))
}

func createTestBooking(t *testing.T) *Booking {
	b := NewBooking("event-456", "user-123", 2, 5000)
	require.NoError(t, b.Validate())
	return b
}
