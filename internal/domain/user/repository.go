package user

import "context"

// Repository はユーザーリポジトリのインターフェース
type Repository interface {
	// GetByID はIDからユーザーを取得する
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByUsername はユーザー名からユーザーを取得する
	GetByUsername(ctx context.Context, username string) (*User, error)
}
