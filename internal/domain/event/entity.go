package event

import "time"

// Event はイベントエンティティを表す
// AvailableTickets は予約のライフサイクルに連動して増減する共有カウンター
type Event struct {
	ID               string
	Name             string
	Description      string
	Venue            string
	StartAt          time.Time
	EndAt            time.Time
	TicketPrice      int // チケット単価（円）
	MaxCapacity      int
	AvailableTickets int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int // 楽観的ロック用
}

// NewEvent は新しいイベントを作成する
// 空席数は最大収容数で初期化される
func NewEvent(name, description, venue string, startAt, endAt time.Time, ticketPrice, maxCapacity int) *Event {
	now := time.Now()
	return &Event{
		Name:             name,
		Description:      description,
		Venue:            venue,
		StartAt:          startAt,
		EndAt:            endAt,
		TicketPrice:      ticketPrice,
		MaxCapacity:      maxCapacity,
		AvailableTickets: maxCapacity,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          0,
	}
}

// SoldTickets は販売済みチケット枚数を返す
func (e *Event) SoldTickets() int {
	return e.MaxCapacity - e.AvailableTickets
}

// HasStarted はイベントが開始済みかを返す
func (e *Event) HasStarted() bool {
	return time.Now().After(e.StartAt)
}

// ChangeCapacity は最大収容数を変更する
// 販売済み枚数を下回る縮小は拒否し、空席数を差分調整する
func (e *Event) ChangeCapacity(newCapacity int) error {
	if newCapacity <= 0 {
		return ErrInvalidCapacity
	}
	sold := e.SoldTickets()
	if newCapacity < sold {
		return ErrCapacityBelowSold
	}
	e.AvailableTickets = newCapacity - sold
	e.MaxCapacity = newCapacity
	e.UpdatedAt = time.Now()
	return nil
}

// Validate はイベントの検証を行う
func (e *Event) Validate() error {
	if e.Name == "" {
		return ErrEventNameRequired
	}
	if e.MaxCapacity <= 0 {
		return ErrInvalidCapacity
	}
	if e.TicketPrice < 0 {
		return ErrInvalidTicketPrice
	}
	if e.EndAt.Before(e.StartAt) {
		return ErrInvalidEventTime
	}
	if e.AvailableTickets < 0 || e.AvailableTickets > e.MaxCapacity {
		return ErrInvalidAvailableTickets
	}
	return nil
}
