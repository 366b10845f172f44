package user

import "time"

// User はユーザーエンティティを表す
// 認証・セッション管理は外部コンポーネントの責務であり、ここでは参照のみ
type User struct {
	ID                   string
	Username             string
	Email                string
	DisplayName          string
	TelegramChatID       *int64 // 通知先チャットID（未連携の場合はnil）
	NotificationsEnabled bool
	CreatedAt            time.Time
}

// CanReceiveNotifications は通知を受け取れる状態かを返す
func (u *User) CanReceiveNotifications() bool {
	return u.NotificationsEnabled && u.TelegramChatID != nil
}
