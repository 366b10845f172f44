package payment

import "errors"

// Payment ドメインのエラー定義
// ErrPaymentDeclined はゲートウェイによる明示的な拒否（この試行については終端）
// ErrServiceUnavailable は一時的なインフラ障害（後で再試行可能）
var (
	ErrPaymentDeclined    = errors.New("決済が拒否されました。別の決済手段でお試しください")
	ErrServiceUnavailable = errors.New("決済サービスが一時的に利用できません。しばらくしてから再度お試しください")
)
