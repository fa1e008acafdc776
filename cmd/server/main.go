package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/app"
	"github.com/iliyamo/property-booking/internal/config"
	"github.com/iliyamo/property-booking/internal/database"
	"github.com/iliyamo/property-booking/internal/handler"
	"github.com/iliyamo/property-booking/internal/lock"
	"github.com/iliyamo/property-booking/internal/middleware"
	"github.com/iliyamo/property-booking/internal/payment"
	"github.com/iliyamo/property-booking/internal/queue"
	"github.com/iliyamo/property-booking/internal/repository"
	"github.com/iliyamo/property-booking/internal/router"
	"github.com/iliyamo/property-booking/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("configuration error", zap.Error(err))
	}
	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()
	if cfg.Migrations {
		if err := database.Migrate(ctx, db, logger); err != nil {
			logger.Fatal("database migration failed", zap.Error(err))
		}
	}

	bookings := repository.NewBookingRepo(db)
	properties := repository.NewPropertyRepo(db)
	notifications := repository.NewNotificationRepo(db)

	// Redis is optional: without it the lease is process-local and requests
	// are not rate limited.
	var locker lock.Locker = lock.NewLocalLocker()
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Address()))
	} else {
		logger.Warn("redis unavailable; using in-process property lease")
	}

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Logger:        logger.Named("stripe"),
	})
	reconciler := payment.NewReconciler(gateway, cfg.GatewayTimeout, logger.Named("payments"))

	var notifier service.Notifier
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, logger.Named("publisher"))
		defer pub.Close()
		notifier = pub
		consumer := queue.NewConsumer(cfg.RabbitMQURL, notifications, logger.Named("consumer"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	} else {
		notifier = queue.NewInline(notifications, logger.Named("notifications"))
	}

	svc := service.NewBookingService(service.Deps{
		Bookings:   bookings,
		Properties: properties,
		Payments:   reconciler,
		Locker:     locker,
		Notifier:   notifier,
		Logger:     logger.Named("bookings"),
	})

	scheduler := app.NewScheduler(svc, cfg.CompletionInterval, logger.Named("scheduler"))
	scheduler.Start(ctx)
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger.Named("http")))

	var webhook *handler.WebhookHandler
	if cfg.Stripe.WebhookSecret != "" {
		webhook = handler.NewWebhookHandler(gateway, svc, logger)
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; payment outcomes will not be applied")
	}
	router.RegisterRoutes(e, db, webhook)
	router.RegisterBookings(e, handler.NewBookingHandler(svc, logger), cfg.JWTSecret,
		middleware.RateLimit(cfg.RateLimit, rdb, logger.Named("ratelimit")))
	router.RegisterNotifications(e, handler.NewNotificationHandler(notifications, logger), cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
}
