package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound    = errors.New("予約が見つかりません")
	ErrForbidden          = errors.New("この予約を操作する権限がありません")
	ErrNotCancellable     = errors.New("この予約はキャンセルできません（確定済みかつイベント開始24時間前までが対象です）")
	ErrAlreadyPaid        = errors.New("予約は既に決済済みです")
	ErrAlreadyCancelled   = errors.New("予約は既にキャンセルされています")
	ErrAlreadyRefunded    = errors.New("予約は既に返金済みです")
	ErrBookingTerminal    = errors.New("予約は終端状態のため操作できません")
	ErrConcurrentUpdate   = errors.New("予約は別の処理によって更新されています")
	ErrNothingToRefund    = errors.New("返金対象の決済がありません")
	ErrEventIDRequired    = errors.New("イベントIDは必須です")
	ErrUserIDRequired     = errors.New("ユーザーIDは必須です")
	ErrInvalidTicketCount = errors.New("チケット枚数は1〜10枚で指定してください")
	ErrInvalidTotalAmount = errors.New("合計金額は0以上である必要があります")
)
