package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-ticket-booking/internal/api"
	"github.com/sanosuguru/go-ticket-booking/internal/api/handler"
	custommw "github.com/sanosuguru/go-ticket-booking/internal/api/middleware"
	"github.com/sanosuguru/go-ticket-booking/internal/application"
	"github.com/sanosuguru/go-ticket-booking/internal/config"
	"github.com/sanosuguru/go-ticket-booking/internal/infrastructure/notifier"
	"github.com/sanosuguru/go-ticket-booking/internal/infrastructure/paymentgw"
	"github.com/sanosuguru/go-ticket-booking/internal/infrastructure/postgres"
	redisinfra "github.com/sanosuguru/go-ticket-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-ticket-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-ticket-booking/internal/worker"
)

func main() {
	cfg := config.Load()

	if env := os.Getenv("APP_ENV"); env != "" {
		logger.Set(logger.NewLogger(env))
	}
	defer logger.Sync()

	// PostgreSQL接続
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	// マイグレーション
	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		if err := postgres.RunMigrations(db.DB, path); err != nil {
			logger.Fatal("マイグレーションに失敗", zap.Error(err))
		}
	}

	// Redis接続
	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		pingCancel()
		logger.Fatal("Redis接続に失敗", zap.Error(err))
	}
	pingCancel()
	defer redisClient.Close()

	// メトリクス初期化
	m := metrics.Init()

	// インフラ層
	lockManager := redisinfra.NewLockManager(redisClient)
	bookingCache := redisinfra.NewBookingCache(redisClient)
	txManager := postgres.NewTxManager(db)
	eventRepo := postgres.NewEventRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	userRepo := postgres.NewUserRepository(db)
	gateway := paymentgw.NewClient(&cfg.Payment)

	tgNotifier, err := notifier.NewTelegramNotifier(cfg.Notifier.TelegramToken)
	if err != nil {
		logger.Fatal("通知サービスの初期化に失敗", zap.Error(err))
	}

	// アプリケーション層
	eventService := application.NewEventService(eventRepo, bookingCache)
	bookingService := application.NewBookingService(
		txManager, bookingRepo, eventRepo, userRepo,
		gateway, tgNotifier, lockManager, bookingCache,
		cfg.Payment.Timeout,
	)

	// 期限切れ予約スイーパー
	sweeper := worker.NewExpiredBookingSweeper(bookingService, cfg.Sweeper.Interval, cfg.Sweeper.OlderThan)
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	go sweeper.Start(sweeperCtx)

	// Echoサーバー
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	custommw.SetupMiddleware(e)
	e.Use(custommw.PrometheusMiddleware(m))

	healthHandler := handler.NewHealthHandler()
	eventHandler := handler.NewEventHandler(eventService)
	bookingHandler := handler.NewBookingHandler(bookingService)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), custommw.MetricsBasicAuth())

	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)

	v1.POST("/events", eventHandler.Create)
	v1.GET("/events", eventHandler.List)
	v1.GET("/events/:id", eventHandler.GetByID)
	v1.PUT("/events/:id", eventHandler.Update)
	v1.GET("/events/:id/availability", eventHandler.Availability)

	v1.POST("/bookings", bookingHandler.Create)
	v1.GET("/bookings", bookingHandler.GetUserBookings)
	v1.GET("/bookings/:id", bookingHandler.GetByID)
	v1.POST("/bookings/:id/pay", bookingHandler.Pay)
	v1.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	admin := v1.Group("/admin")
	admin.POST("/bookings/:id/cancel", bookingHandler.AdminCancel)
	admin.POST("/bookings/:id/refund", bookingHandler.Refund)
	admin.GET("/users/:username/bookings", bookingHandler.GetBookingsForUsername)

	// サーバー起動
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// スイーパーを先に止めてからHTTPを閉じる
	sweeperCancel()
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
