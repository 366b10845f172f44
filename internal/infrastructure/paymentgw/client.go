package paymentgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/config"
	"github.com/sanosuguru/go-ticket-booking/internal/domain/payment"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
)

// Client は外部決済サービスのHTTPクライアント
// エラーの区分:
//   - 4xx（402/422等）およびレスポンスのdeclined → payment.ErrPaymentDeclined（この試行については終端）
//   - トランスポート障害・タイムアウト・5xx → payment.ErrServiceUnavailable（再試行可能）
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg *config.PaymentConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chargeRequest struct {
	BookingID string `json:"booking_id"`
	UserID    string `json:"user_id"`
	Amount    int    `json:"amount"`
}

type chargeResponse struct {
	PaymentRef string `json:"payment_ref"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

type refundRequest struct {
	PaymentRef string `json:"payment_ref"`
	Amount     int    `json:"amount"`
}

type refundResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Charge は予約に対する課金を行う
func (c *Client) Charge(ctx context.Context, bookingID, userID string, amount int) (*payment.ChargeResult, error) {
	var resp chargeResponse
	err := c.post(ctx, "/api/v1/charges", chargeRequest{
		BookingID: bookingID,
		UserID:    userID,
		Amount:    amount,
	}, &resp)
	if err != nil {
		// タイムアウト時は課金が成立している可能性がある。照合用にログへ残す
		logger.Warn("決済リクエストが失敗しました",
			zap.String("booking_id", bookingID), zap.Error(err))
		return nil, err
	}
	if resp.Status == "declined" {
		return nil, fmt.Errorf("ゲートウェイが決済を拒否: %s: %w", resp.Message, payment.ErrPaymentDeclined)
	}
	if resp.PaymentRef == "" {
		return nil, fmt.Errorf("決済IDが返却されませんでした: %w", payment.ErrServiceUnavailable)
	}
	return &payment.ChargeResult{PaymentRef: resp.PaymentRef, Status: resp.Status}, nil
}

// Refund は決済済みの予約を返金する
func (c *Client) Refund(ctx context.Context, paymentRef string, amount int) error {
	var resp refundResponse
	err := c.post(ctx, "/api/v1/refunds", refundRequest{
		PaymentRef: paymentRef,
		Amount:     amount,
	}, &resp)
	if err != nil {
		logger.Warn("返金リクエストが失敗しました",
			zap.String("payment_ref", paymentRef), zap.Error(err))
		return err
	}
	if resp.Status == "declined" {
		return fmt.Errorf("ゲートウェイが返金を拒否: %s: %w", resp.Message, payment.ErrPaymentDeclined)
	}
	return nil
}

// post はJSONリクエストを送信しステータスコードをエラー区分に変換する
func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("リクエストのエンコードに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// タイムアウト・接続拒否などのトランスポート障害
		return fmt.Errorf("決済サービスへの接続に失敗（%s経過）: %w", time.Since(start).Round(time.Millisecond), payment.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("レスポンスのデコードに失敗: %w", payment.ErrServiceUnavailable)
		}
		return nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		// ゲートウェイによる業務的な拒否
		_ = json.NewDecoder(resp.Body).Decode(respBody)
		return payment.ErrPaymentDeclined
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("決済リクエストが不正です（status=%d）: %w", resp.StatusCode, payment.ErrPaymentDeclined)
	default:
		return fmt.Errorf("決済サービスがエラーを返しました（status=%d）: %w", resp.StatusCode, payment.ErrServiceUnavailable)
	}
}

var _ payment.Gateway = (*Client)(nil)
