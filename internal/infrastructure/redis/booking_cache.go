package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/booking"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// キャッシュTTL。ライフサイクル遷移時に明示的に無効化されるため短めで十分
const (
	availabilityTTL = 30 * time.Second
	userBookingsTTL = 60 * time.Second
)

// BookingCache は空席数とユーザー予約一覧のキャッシュを管理する
// フレームワークのキャッシュアノテーションではなく、
// 予約のライフサイクル遷移をトリガーとした明示的な無効化で整合性を保つ
type BookingCache struct {
	client *redis.Client
}

// NewBookingCache は新しいBookingCacheインスタンスを作成する
func NewBookingCache(client *redis.Client) *BookingCache {
	return &BookingCache{client: client}
}

// GetAvailability はイベントの空席数をキャッシュから取得する
func (c *BookingCache) GetAvailability(ctx context.Context, eventID string) (int, error) {
	val, err := c.client.Get(ctx, c.availabilityKey(eventID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailability はイベントの空席数をキャッシュに保存する
func (c *BookingCache) SetAvailability(ctx context.Context, eventID string, count int) error {
	if err := c.client.Set(ctx, c.availabilityKey(eventID), count, availabilityTTL).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// InvalidateAvailability はイベントの空席数キャッシュを無効化する
func (c *BookingCache) InvalidateAvailability(ctx context.Context, eventID string) error {
	if err := c.client.Del(ctx, c.availabilityKey(eventID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

// GetUserBookings はユーザーの予約一覧をキャッシュから取得する
func (c *BookingCache) GetUserBookings(ctx context.Context, userID string) ([]*booking.Booking, error) {
	data, err := c.client.Get(ctx, c.userBookingsKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var bookings []*booking.Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return nil, fmt.Errorf("キャッシュのデコードに失敗: %w", err)
	}
	return bookings, nil
}

// SetUserBookings はユーザーの予約一覧をキャッシュに保存する
func (c *BookingCache) SetUserBookings(ctx context.Context, userID string, bookings []*booking.Booking) error {
	data, err := json.Marshal(bookings)
	if err != nil {
		return fmt.Errorf("キャッシュのエンコードに失敗: %w", err)
	}
	if err := c.client.Set(ctx, c.userBookingsKey(userID), data, userBookingsTTL).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// InvalidateUserBookings はユーザーの予約一覧キャッシュを無効化する
func (c *BookingCache) InvalidateUserBookings(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.userBookingsKey(userID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *BookingCache) availabilityKey(eventID string) string {
	return fmt.Sprintf("tickets:available:%s", eventID)
}

func (c *BookingCache) userBookingsKey(userID string) string {
	return fmt.Sprintf("bookings:user:%s", userID)
}
