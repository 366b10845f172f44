package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/event"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/transaction"
)

// eventRow はDBの行を表す構造体
type eventRow struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	Description      *string   `db:"description"`
	Venue            *string   `db:"venue"`
	StartAt          time.Time `db:"start_at"`
	EndAt            time.Time `db:"end_at"`
	TicketPrice      int       `db:"ticket_price"`
	MaxCapacity      int       `db:"max_capacity"`
	AvailableTickets int       `db:"available_tickets"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
	Version          int       `db:"version"`
}

// toEntity はeventRowをEventエンティティに変換する
func (r *eventRow) toEntity() *event.Event {
	var desc, venue string
	if r.Description != nil {
		desc = *r.Description
	}
	if r.Venue != nil {
		venue = *r.Venue
	}
	return &event.Event{
		ID:               r.ID,
		Name:             r.Name,
		Description:      desc,
		Venue:            venue,
		StartAt:          r.StartAt,
		EndAt:            r.EndAt,
		TicketPrice:      r.TicketPrice,
		MaxCapacity:      r.MaxCapacity,
		AvailableTickets: r.AvailableTickets,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Version:          r.Version,
	}
}

const eventColumns = `id, name, description, venue, start_at, end_at, ticket_price, max_capacity, available_tickets, created_at, updated_at, version`

// EventRepository はイベントリポジトリのPostgreSQL実装
// 空席カウンターの増減は条件付きUPDATEで行い、check-then-actの競合を作らない
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository はEventRepositoryを作成する
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create は新しいイベントを作成する
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	query := `
		INSERT INTO events (name, description, venue, start_at, end_at, ticket_price, max_capacity, available_tickets, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var desc, venue *string
	if e.Description != "" {
		desc = &e.Description
	}
	if e.Venue != "" {
		venue = &e.Venue
	}

	err := r.db.QueryRowContext(ctx, query,
		e.Name, desc, venue, e.StartAt, e.EndAt, e.TicketPrice, e.MaxCapacity, e.AvailableTickets, e.CreatedAt, e.UpdatedAt, e.Version,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	return nil
}

// GetByID はIDからイベントを取得する
func (r *EventRepository) GetByID(ctx context.Context, id string) (*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	var row eventRow
	err := r.db.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, event.ErrEventNotFound
		}
		return nil, fmt.Errorf("イベント取得に失敗しました: %w", err)
	}
	return row.toEntity(), nil
}

// List はイベント一覧を取得する
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY start_at DESC LIMIT $1 OFFSET $2`

	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧取得に失敗しました: %w", err)
	}

	events := make([]*event.Event, len(rows))
	for i, row := range rows {
		events[i] = row.toEntity()
	}
	return events, nil
}

// Update はイベントを更新する（楽観的ロック）
func (r *EventRepository) Update(ctx context.Context, e *event.Event) error {
	query := `
		UPDATE events
		SET name = $1, description = $2, venue = $3, start_at = $4, end_at = $5,
		    ticket_price = $6, max_capacity = $7, available_tickets = $8, updated_at = $9, version = version + 1
		WHERE id = $10 AND version = $11
	`

	var desc, venue *string
	if e.Description != "" {
		desc = &e.Description
	}
	if e.Venue != "" {
		venue = &e.Venue
	}

	result, err := r.db.ExecContext(ctx, query,
		e.Name, desc, venue, e.StartAt, e.EndAt, e.TicketPrice, e.MaxCapacity, e.AvailableTickets, time.Now(), e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("イベント更新に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return event.ErrOptimisticLockConflict
	}

	e.Version++
	return nil
}

// ReserveTickets は空席カウンターを条件付きでアトミックに減算する
// WHERE句の available_tickets >= $2 により、同時予約で最後の席を
// 取り合っても負け側はErrInsufficientTicketsを受け取るだけで、
// カウンターが負になったり二重減算されることはない
func (r *EventRepository) ReserveTickets(ctx context.Context, tx transaction.Tx, eventID string, quantity int) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}

	query := `
		UPDATE events
		SET available_tickets = available_tickets - $2, updated_at = NOW(), version = version + 1
		WHERE id = $1 AND available_tickets >= $2
	`
	result, err := sqlxTx.ExecContext(ctx, query, eventID, quantity)
	if err != nil {
		return fmt.Errorf("在庫確保に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("在庫確保結果の確認に失敗: %w", err)
	}
	if rows == 0 {
		// 対象行なし: イベント不存在か空席不足かを判別する
		var exists bool
		if err := sqlxTx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, eventID); err != nil {
			return fmt.Errorf("イベント確認に失敗: %w", err)
		}
		if !exists {
			return event.ErrEventNotFound
		}
		return event.ErrInsufficientTickets
	}
	return nil
}

// ReleaseTickets は空席カウンターを加算する
// 不変条件が保たれている限り到達しないが、最大収容数でクランプする
func (r *EventRepository) ReleaseTickets(ctx context.Context, tx transaction.Tx, eventID string, quantity int) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションが不正です")
	}

	query := `
		UPDATE events
		SET available_tickets = LEAST(available_tickets + $2, max_capacity), updated_at = NOW(), version = version + 1
		WHERE id = $1
	`
	result, err := sqlxTx.ExecContext(ctx, query, eventID, quantity)
	if err != nil {
		return fmt.Errorf("在庫解放に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("在庫解放結果の確認に失敗: %w", err)
	}
	if rows == 0 {
		return event.ErrEventNotFound
	}
	return nil
}

// インターフェースを満たしているか確認
var _ event.Repository = (*EventRepository)(nil)
