package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/user"
)

type userRow struct {
	ID                   string    `db:"id"`
	Username             string    `db:"username"`
	Email                string    `db:"email"`
	DisplayName          *string   `db:"display_name"`
	TelegramChatID       *int64    `db:"telegram_chat_id"`
	NotificationsEnabled bool      `db:"notifications_enabled"`
	CreatedAt            time.Time `db:"created_at"`
}

func (r *userRow) toEntity() *user.User {
	var displayName string
	if r.DisplayName != nil {
		displayName = *r.DisplayName
	}
	return &user.User{
		ID:                   r.ID,
		Username:             r.Username,
		Email:                r.Email,
		DisplayName:          displayName,
		TelegramChatID:       r.TelegramChatID,
		NotificationsEnabled: r.NotificationsEnabled,
		CreatedAt:            r.CreatedAt,
	}
}

const userColumns = `id, username, email, display_name, telegram_chat_id, notifications_enabled, created_at`

// UserRepository はユーザーリポジトリのPostgreSQL実装
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID はIDからユーザーを取得する
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

// GetByUsername はユーザー名からユーザーを取得する
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	if err := r.db.GetContext(ctx, &row, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

var _ user.Repository = (*UserRepository)(nil)
