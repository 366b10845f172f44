package event

import "errors"

// Event ドメインのエラー定義
var (
	ErrEventNotFound           = errors.New("イベントが見つかりません")
	ErrEventNameRequired       = errors.New("イベント名は必須です")
	ErrInvalidCapacity         = errors.New("最大収容数は1以上である必要があります")
	ErrCapacityBelowSold       = errors.New("最大収容数を販売済み枚数より小さくすることはできません")
	ErrInvalidTicketPrice      = errors.New("チケット価格は0以上である必要があります")
	ErrInvalidEventTime        = errors.New("終了時刻は開始時刻より後である必要があります")
	ErrInvalidAvailableTickets = errors.New("空席数は0以上かつ最大収容数以下である必要があります")
	ErrInsufficientTickets     = errors.New("空席が不足しています")
	ErrEventAlreadyStarted     = errors.New("イベントは既に開始しているため予約できません")
	ErrOptimisticLockConflict  = errors.New("楽観的ロックの競合が発生しました")
)
