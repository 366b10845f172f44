package handler

import (
	"context"
	"time"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/event"
)

// EventServiceInterface はイベントサービスのインターフェース
type EventServiceInterface interface {
	CreateEvent(ctx context.Context, input application.CreateEventInput) (*event.Event, error)
	GetEvent(ctx context.Context, id string) (*event.Event, error)
	ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error)
	UpdateEvent(ctx context.Context, input application.UpdateEventInput) (*event.Event, error)
	CountAvailableTickets(ctx context.Context, eventID string) (int, error)
}

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	CreateBooking(ctx context.Context, input application.CreateBookingInput) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	GetUserBookings(ctx context.Context, userID string, limit, offset int) ([]*booking.Booking, error)
	GetBookingsForUsername(ctx context.Context, username string, limit, offset int) ([]*booking.Booking, error)
	MarkAsPaid(ctx context.Context, bookingID, callerID string) (*booking.Booking, error)
	CancelBooking(ctx context.Context, bookingID, callerID, reason string) (*booking.Booking, error)
	AdminCancelBooking(ctx context.Context, bookingID, reason string) (*booking.Booking, error)
	RefundBooking(ctx context.Context, bookingID string) (*booking.Booking, error)
	CountTicketsForEvent(ctx context.Context, eventID string) (int, error)
	CancelExpiredBookings(ctx context.Context, olderThan time.Duration) (int, error)
}
