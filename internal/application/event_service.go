package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/domain/event"
	redisinfra "github.com/sanosuguru/go-ticket-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

// EventService はイベントのCRUDと空席照会を提供する
type EventService struct {
	eventRepo event.Repository
	cache     *redisinfra.BookingCache
}

func NewEventService(eventRepo event.Repository, cache *redisinfra.BookingCache) *EventService {
	return &EventService{eventRepo: eventRepo, cache: cache}
}

type CreateEventInput struct {
	Name        string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	TicketPrice int
	MaxCapacity int
}

func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*event.Event, error) {
	e := event.NewEvent(input.Name, input.Description, input.Venue, input.StartAt, input.EndAt, input.TicketPrice, input.MaxCapacity)
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.eventRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("イベント作成に失敗しました: %w", err)
	}
	return e, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (*event.Event, error) {
	return s.eventRepo.GetByID(ctx, id)
}

func (s *EventService) ListEvents(ctx context.Context, limit, offset int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.eventRepo.List(ctx, limit, offset)
}

type UpdateEventInput struct {
	ID          string
	Name        string
	Description string
	Venue       string
	StartAt     time.Time
	EndAt       time.Time
	TicketPrice int
	MaxCapacity int
}

// UpdateEvent はイベント情報を更新する
// 最大収容数の変更は販売済み枚数を下限とする
func (s *EventService) UpdateEvent(ctx context.Context, input UpdateEventInput) (*event.Event, error) {
	e, err := s.eventRepo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	e.Name = input.Name
	e.Description = input.Description
	e.Venue = input.Venue
	e.StartAt = input.StartAt
	e.EndAt = input.EndAt
	e.TicketPrice = input.TicketPrice
	if input.MaxCapacity != e.MaxCapacity {
		if err := e.ChangeCapacity(input.MaxCapacity); err != nil {
			return nil, err
		}
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("バリデーションエラー: %w", err)
	}
	if err := s.eventRepo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.invalidateAvailability(ctx, e.ID)
	return e, nil
}

// CountAvailableTickets はイベントの空席数を返す（キャッシュあり）
func (s *EventService) CountAvailableTickets(ctx context.Context, eventID string) (int, error) {
	if s.cache != nil {
		if count, err := s.cache.GetAvailability(ctx, eventID); err == nil {
			return count, nil
		}
	}
	e, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, eventID, e.AvailableTickets); err != nil {
			logger.Warn("空席数キャッシュの保存に失敗", zap.String("event_id", eventID), zap.Error(err))
		}
	}
	return e.AvailableTickets, nil
}

func (s *EventService) invalidateAvailability(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAvailability(ctx, eventID); err != nil {
		logger.Warn("空席数キャッシュの無効化に失敗", zap.String("event_id", eventID), zap.Error(err))
	}
}
