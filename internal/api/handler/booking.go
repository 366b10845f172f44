package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/event"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/payment"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type CreateBookingRequest struct {
	EventID         string `json:"event_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	NumberOfTickets int    `json:"number_of_tickets" validate:"required,min=1,max=10" example:"2"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" example:"予定が合わなくなったため"`
}

type BookingResponse struct {
	ID                 string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventID            string     `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID             string     `json:"user_id" example:"user-123"`
	NumberOfTickets    int        `json:"number_of_tickets" example:"2"`
	TotalAmount        int        `json:"total_amount" example:"30000"`
	Status             string     `json:"status" example:"pending"`
	PaymentRef         *string    `json:"payment_ref,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	BookedAt           time.Time  `json:"booked_at"`
	PaymentCompletedAt *time.Time `json:"payment_completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, EventID: b.EventID, UserID: b.UserID,
		NumberOfTickets: b.NumberOfTickets, TotalAmount: b.TotalAmount,
		Status: string(b.Status), PaymentRef: b.PaymentRef,
		CancellationReason: b.CancellationReason,
		BookedAt:           b.BookedAt,
		PaymentCompletedAt: b.PaymentCompletedAt,
		CancelledAt:        b.CancelledAt,
	}
}

// bookingHTTPError はドメインエラーをHTTPエラーに変換する
func bookingHTTPError(err error) error {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, event.ErrEventNotFound),
		errors.Is(err, user.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, payment.ErrPaymentDeclined):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, payment.ErrServiceUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, application.ErrBookingBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, event.ErrInsufficientTickets),
		errors.Is(err, booking.ErrConcurrentUpdate):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrNotCancellable),
		errors.Is(err, booking.ErrNothingToRefund),
		errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrBookingTerminal),
		errors.Is(err, booking.ErrInvalidTicketCount),
		errors.Is(err, event.ErrEventAlreadyStarted):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Create godoc
// @Summary 予約を作成
// @Description 在庫を確保してpending状態の予約を作成します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string "空席不足"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	b, err := h.service.CreateBooking(c.Request().Context(), application.CreateBookingInput{
		EventID: req.EventID, UserID: userID, NumberOfTickets: req.NumberOfTickets,
	})
	if err != nil {
		return bookingHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	b, err := h.service.GetBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return bookingHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetUserBookings godoc
// @Summary ユーザーの予約一覧を取得
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 401 {object} map[string]string
// @Router /bookings [get]
func (h *BookingHandler) GetUserBookings(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.GetUserBookings(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return bookingHTTPError(err)
	}
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return c.JSON(http.StatusOK, resp)
}

// Pay godoc
// @Summary 予約の決済を実行
// @Description 外部決済サービスで課金し、予約を確定します。決済済みの場合は何もせず成功を返します
// @Tags bookings
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 402 {object} map[string]string "決済拒否"
// @Failure 403 {object} map[string]string
// @Failure 503 {object} map[string]string "決済サービス利用不可"
// @Router /bookings/{id}/pay [post]
func (h *BookingHandler) Pay(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	b, err := h.service.MarkAsPaid(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return bookingHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 確定済みかつイベント開始24時間前までの予約をキャンセルし、在庫を解放します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-User-ID header string true "ユーザーID"
// @Param id path string true "予約ID"
// @Param request body CancelBookingRequest false "キャンセル事由"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /bookings/{id}/cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID := c.Request().Header.Get("X-User-ID")
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "ユーザーIDが必要です")
	}
	var req CancelBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	b, err := h.service.CancelBooking(c.Request().Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		return bookingHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// AdminCancel godoc
// @Summary 予約を管理者キャンセル
// @Description 所有者チェック・24時間前チェックを行わない特権キャンセル
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param request body CancelBookingRequest false "キャンセル事由"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /admin/bookings/{id}/cancel [post]
func (h *BookingHandler) AdminCancel(c echo.Context) error {
	var req CancelBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	b, err := h.service.AdminCancelBooking(c.Request().Context(), c.Param("id"), req.Reason)
	if err != nil {
		return bookingHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// Refund godoc
// @Summary 予約を返金
// @Description 決済済み予約を返金します。返金済みの場合は何もせず成功を返します
// @Tags admin
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} map[string]string "返金対象なし"
// @Failure 503 {object} map[string]string "決済サービス利用不可"
// @Router /admin/bookings/{id}/refund [post]
func (h *BookingHandler) Refund(c echo.Context) error {
	b, err := h.service.RefundBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return bookingHTTPError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetBookingsForUsername godoc
// @Summary 指定ユーザーの予約一覧を取得（管理者用）
// @Tags admin
// @Produce json
// @Param username path string true "ユーザー名"
// @Success 200 {array} BookingResponse
// @Failure 404 {object} map[string]string
// @Router /admin/users/{username}/bookings [get]
func (h *BookingHandler) GetBookingsForUsername(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.GetBookingsForUsername(c.Request().Context(), c.Param("username"), limit, offset)
	if err != nil {
		return bookingHTTPError(err)
	}
	resp := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		resp[i] = toBookingResponse(b)
	}
	return c.JSON(http.StatusOK, resp)
}
