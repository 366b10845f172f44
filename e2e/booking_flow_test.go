package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServer はE2Eテスト用のサーバー
type TestServer struct {
	Echo *echo.Echo
}

// Request はHTTPリクエストを実行
func (s *TestServer) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// createTestEvent はイベントを作成してIDを返す
func createTestEvent(t *testing.T, server *TestServer, name string, price, capacity int) string {
	t.Helper()
	body := map[string]interface{}{
		"name":         name,
		"venue":        "テスト会場",
		"start_at":     time.Now().Add(14 * 24 * time.Hour).Format(time.RFC3339),
		"end_at":       time.Now().Add(14*24*time.Hour + 3*time.Hour).Format(time.RFC3339),
		"ticket_price": price,
		"max_capacity": capacity,
	}
	rec := server.Request("POST", "/api/v1/events", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	eventID := resp["id"].(string)
	require.NotEmpty(t, eventID)
	return eventID
}

// availableTickets は空席数を取得する
func availableTickets(t *testing.T, server *TestServer, eventID string) float64 {
	t.Helper()
	path := fmt.Sprintf("/api/v1/events/%s/availability", eventID)
	rec := server.Request("GET", path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	return resp["available_tickets"].(float64)
}

// TestE2E_HealthCheck はヘルスチェックをテスト
func TestE2E_HealthCheck(t *testing.T) {
	server := getTestServer(t)

	rec := server.Request("GET", "/api/v1/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp["status"])
}

// TestE2E_CompleteBookingJourney は予約から決済完了までの完全なジャーニーをテスト
func TestE2E_CompleteBookingJourney(t *testing.T) {
	server := getTestServer(t)

	userID := seedUser(t, "e2e-yamada")
	var eventID, bookingID string

	// 1. イベント作成
	t.Run("イベント作成", func(t *testing.T) {
		eventID = createTestEvent(t, server, "武道館ライブ 2026", 15000, 100)
	})

	// 2. 空席数確認
	t.Run("空席数確認", func(t *testing.T) {
		assert.Equal(t, float64(100), availableTickets(t, server, eventID))
	})

	// 3. 予約作成
	t.Run("予約作成", func(t *testing.T) {
		body := map[string]interface{}{
			"event_id":          eventID,
			"number_of_tickets": 2,
		}
		rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		bookingID = resp["id"].(string)
		assert.Equal(t, "pending", resp["status"])
		assert.Equal(t, float64(30000), resp["total_amount"])
	})

	// 4. 空席数が減っていることを確認
	t.Run("空席数減少確認", func(t *testing.T) {
		assert.Equal(t, float64(98), availableTickets(t, server, eventID))
	})

	// 5. 決済実行
	t.Run("決済実行", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/pay", bookingID)
		rec := server.Request("POST", path, nil, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "confirmed", resp["status"])
		assert.NotEmpty(t, resp["payment_ref"])
	})

	// 6. 決済の冪等性確認（二重決済されない）
	t.Run("決済の冪等性確認", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/pay", bookingID)
		rec := server.Request("POST", path, nil, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "confirmed", resp["status"])
	})

	// 7. 予約詳細確認
	t.Run("予約詳細確認", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s", bookingID)
		rec := server.Request("GET", path, nil, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, bookingID, resp["id"])
		assert.Equal(t, "confirmed", resp["status"])
	})

	// 8. 予約一覧確認
	t.Run("予約一覧確認", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/bookings", nil, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		require.Len(t, resp, 1)
		assert.Equal(t, bookingID, resp[0]["id"])
	})

	// 9. 管理者がユーザー名で予約を照会
	t.Run("ユーザー名での予約照会", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/admin/users/e2e-yamada/bookings", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		require.Len(t, resp, 1)
		assert.Equal(t, bookingID, resp[0]["id"])
	})
}

// TestE2E_PaymentDeclined は決済拒否時の挙動をテスト
func TestE2E_PaymentDeclined(t *testing.T) {
	server := getTestServer(t)

	userID := seedUser(t, "e2e-declined")
	// 決済スタブが拒否する金額になるイベントを作成
	eventID := createTestEvent(t, server, "決済拒否テスト", declinedAmount, 10)

	body := map[string]interface{}{
		"event_id":          eventID,
		"number_of_tickets": 1,
	}
	rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
		"X-User-ID": userID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &created)
	bookingID := created["id"].(string)

	t.Run("決済が拒否される", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/pay", bookingID)
		rec := server.Request("POST", path, nil, map[string]string{
			"X-User-ID": userID,
		})
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("予約はpendingのまま再試行できる", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s", bookingID)
		rec := server.Request("GET", path, nil, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "pending", resp["status"])
	})
}

// TestE2E_CancelAndRebook はキャンセル後の再予約をテスト
func TestE2E_CancelAndRebook(t *testing.T) {
	server := getTestServer(t)

	userA := seedUser(t, "e2e-cancel-a")
	userB := seedUser(t, "e2e-cancel-b")
	eventID := createTestEvent(t, server, "キャンセル再予約テスト", 10000, 1)

	var bookingID string

	t.Run("ユーザーAが予約して決済", func(t *testing.T) {
		body := map[string]interface{}{
			"event_id":          eventID,
			"number_of_tickets": 1,
		}
		rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
			"X-User-ID": userA,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		bookingID = resp["id"].(string)

		path := fmt.Sprintf("/api/v1/bookings/%s/pay", bookingID)
		rec = server.Request("POST", path, nil, map[string]string{
			"X-User-ID": userA,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ユーザーBは在庫不足で予約できない", func(t *testing.T) {
		body := map[string]interface{}{
			"event_id":          eventID,
			"number_of_tickets": 1,
		}
		rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
			"X-User-ID": userB,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("ユーザーAがキャンセル", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/cancel", bookingID)
		body := map[string]interface{}{"reason": "予定が変わったため"}
		rec := server.Request("POST", path, body, map[string]string{
			"X-User-ID": userA,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "cancelled", resp["status"])
	})

	t.Run("在庫が解放されユーザーBが予約できる", func(t *testing.T) {
		assert.Equal(t, float64(1), availableTickets(t, server, eventID))

		body := map[string]interface{}{
			"event_id":          eventID,
			"number_of_tickets": 1,
		}
		rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
			"X-User-ID": userB,
		})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

// TestE2E_AdminCancelPending は管理者キャンセルをテスト
func TestE2E_AdminCancelPending(t *testing.T) {
	server := getTestServer(t)

	userID := seedUser(t, "e2e-admin-cancel")
	eventID := createTestEvent(t, server, "管理者キャンセルテスト", 8000, 10)

	body := map[string]interface{}{
		"event_id":          eventID,
		"number_of_tickets": 3,
	}
	rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
		"X-User-ID": userID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &created)
	bookingID := created["id"].(string)

	t.Run("未決済の予約はユーザー自身ではキャンセルできない", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/bookings/%s/cancel", bookingID)
		rec := server.Request("POST", path, map[string]interface{}{"reason": "気が変わった"}, map[string]string{
			"X-User-ID": userID,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("管理者はキャンセルできる", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/admin/bookings/%s/cancel", bookingID)
		rec := server.Request("POST", path, map[string]interface{}{"reason": "イベント中止"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "cancelled", resp["status"])
	})

	t.Run("在庫が解放される", func(t *testing.T) {
		assert.Equal(t, float64(10), availableTickets(t, server, eventID))
	})
}

// TestE2E_RefundFlow は返金フローをテスト
func TestE2E_RefundFlow(t *testing.T) {
	server := getTestServer(t)

	userID := seedUser(t, "e2e-refund")
	eventID := createTestEvent(t, server, "返金テスト", 12000, 20)

	body := map[string]interface{}{
		"event_id":          eventID,
		"number_of_tickets": 2,
	}
	rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
		"X-User-ID": userID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &created)
	bookingID := created["id"].(string)

	payPath := fmt.Sprintf("/api/v1/bookings/%s/pay", bookingID)
	rec = server.Request("POST", payPath, nil, map[string]string{
		"X-User-ID": userID,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("未決済の予約は返金できない", func(t *testing.T) {
		// 別の未決済予約を作成
		rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
			"X-User-ID": userID,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		var pending map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &pending)

		path := fmt.Sprintf("/api/v1/admin/bookings/%s/refund", pending["id"].(string))
		rec = server.Request("POST", path, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("決済済みの予約を返金できる", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/admin/bookings/%s/refund", bookingID)
		rec := server.Request("POST", path, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "refunded", resp["status"])
	})

	t.Run("返金の冪等性確認", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/admin/bookings/%s/refund", bookingID)
		rec := server.Request("POST", path, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "refunded", resp["status"])
	})
}

// TestE2E_EventCRUD はイベントのCRUD操作をテスト
func TestE2E_EventCRUD(t *testing.T) {
	server := getTestServer(t)

	var eventID string

	t.Run("イベント作成", func(t *testing.T) {
		eventID = createTestEvent(t, server, "CRUDテストイベント", 5000, 50)
	})

	t.Run("イベント取得", func(t *testing.T) {
		path := fmt.Sprintf("/api/v1/events/%s", eventID)
		rec := server.Request("GET", path, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "CRUDテストイベント", resp["name"])
		assert.Equal(t, float64(50), resp["available_tickets"])
	})

	t.Run("イベント一覧取得", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/events", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp []map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.GreaterOrEqual(t, len(resp), 1)
	})

	t.Run("イベント更新", func(t *testing.T) {
		body := map[string]interface{}{
			"name":         "更新後のイベント名",
			"venue":        "新会場",
			"start_at":     time.Now().Add(15 * 24 * time.Hour).Format(time.RFC3339),
			"end_at":       time.Now().Add(15*24*time.Hour + 2*time.Hour).Format(time.RFC3339),
			"ticket_price": 6000,
			"max_capacity": 60,
		}
		path := fmt.Sprintf("/api/v1/events/%s", eventID)
		rec := server.Request("PUT", path, body, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		json.Unmarshal(rec.Body.Bytes(), &resp)
		assert.Equal(t, "更新後のイベント名", resp["name"])
		assert.Equal(t, float64(60), resp["max_capacity"])
		// 増席分は空席に反映される
		assert.Equal(t, float64(60), resp["available_tickets"])
	})

	t.Run("存在しないイベントは404", func(t *testing.T) {
		rec := server.Request("GET", "/api/v1/events/00000000-0000-0000-0000-000000000000", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// TestE2E_ConcurrentBookingLastSeats は残席を超える並行予約が在庫を適切に配分することをテスト
func TestE2E_ConcurrentBookingLastSeats(t *testing.T) {
	server := getTestServer(t)

	const capacity = 2
	const contenders = 4

	eventID := createTestEvent(t, server, "残席競争テスト", 8000, capacity)

	userIDs := make([]string, contenders)
	for i := range userIDs {
		userIDs[i] = seedUser(t, fmt.Sprintf("e2e-race-%d", i))
	}

	// 残席2のイベントへ4ユーザーが同時に1枚ずつ予約する
	codes := make([]int, contenders)
	var wg sync.WaitGroup
	for i, userID := range userIDs {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			body := map[string]interface{}{
				"event_id":          eventID,
				"number_of_tickets": 1,
			}
			rec := server.Request("POST", "/api/v1/bookings", body, map[string]string{
				"X-User-ID": userID,
			})
			codes[i] = rec.Code
		}(i, userID)
	}
	wg.Wait()

	// 残席分だけが成功し、残りは在庫不足で409になる
	created, conflicted := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicted++
		default:
			t.Errorf("想定外のステータスコード: %d", code)
		}
	}
	assert.Equal(t, capacity, created)
	assert.Equal(t, contenders-capacity, conflicted)

	// 空席はゼロになり、負にはならない
	assert.Equal(t, float64(0), availableTickets(t, server, eventID))

	// 在庫保存則: 確保された枚数と空席数の合計が定員と一致する
	var booked, available int
	err := testDB.QueryRow(
		`SELECT COALESCE(SUM(number_of_tickets), 0) FROM bookings WHERE event_id = $1 AND status IN ('pending', 'confirmed')`,
		eventID,
	).Scan(&booked)
	require.NoError(t, err)
	err = testDB.QueryRow(`SELECT available_tickets FROM events WHERE id = $1`, eventID).Scan(&available)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, available, 0)
	assert.Equal(t, capacity, booked+available)
}
