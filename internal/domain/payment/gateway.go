package payment

import "context"

// ChargeResult は決済成功時のレスポンスを表す
// 決済自体の台帳は外部決済サービスが所有し、ここでは参照IDのみを保持する
type ChargeResult struct {
	PaymentRef string
	Status     string
}

// Gateway は外部決済サービスのクライアントインターフェース
// 呼び出しは同期的なブロッキングI/Oであり、呼び出し側がタイムアウトを設定する
// タイムアウトを含むトランスポート障害はErrServiceUnavailableとして扱う
type Gateway interface {
	// Charge は予約に対する課金を行う
	Charge(ctx context.Context, bookingID, userID string, amount int) (*ChargeResult, error)

	// Refund は決済済みの予約を返金する
	Refund(ctx context.Context, paymentRef string, amount int) error
}
