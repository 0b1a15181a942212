package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/photovault/photovault/app/controllers"
	"github.com/photovault/photovault/internal/pkg/archive"
	"github.com/photovault/photovault/internal/pkg/billing"
	"github.com/photovault/photovault/internal/pkg/cache"
	"github.com/photovault/photovault/internal/pkg/database"
	"github.com/photovault/photovault/internal/pkg/env"
	"github.com/photovault/photovault/internal/pkg/eventbus"
	"github.com/photovault/photovault/internal/pkg/jobqueue"
	"github.com/photovault/photovault/internal/pkg/mail"
	"github.com/photovault/photovault/internal/pkg/metrics/counter"
	"github.com/photovault/photovault/internal/pkg/router"
)

func main() {
	app, shutdown := NewApplication()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[PhotoVault] Shutting down...")
	if err := app.ShutdownWithTimeout(20 * time.Second); err != nil {
		log.Errorf("[PhotoVault] HTTP shutdown error: %v", err)
	}
	shutdown()
}

// NewApplication wires the billing service into a fiber app. The returned
// function stops background workers and closes connections.
func NewApplication() (*fiber.App, func()) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	gateway, err := billing.NewStripeGatewayFromEnv()
	if err != nil {
		panic(err)
	}

	publisher, err := eventbus.New(env.GetEnv("AMQP_URL", ""))
	if err != nil {
		log.Warnf("[PhotoVault] RabbitMQ unavailable, billing events will only be logged: %v", err)
		publisher = eventbus.NoopPublisher{}
	}

	svc := billing.NewService(billing.NewRepository(database.GetDB()), gateway, billing.Options{
		Publisher:      publisher,
		Notifier:       mail.NewPayoutNotifier(env.GetEnv("APP_DASHBOARD_URL", "")),
		PayoutCurrency: env.GetEnv("STRIPE_PAYOUT_CURRENCY", "usd"),
	})

	queue := jobqueue.NewQueue(cache.GetClient(), env.GetEnvInt("JOBQUEUE_WORKERS", 3))
	queue.SetPayoutRetrier(svc)
	svc.SetPayoutScheduler(queue)
	manager := jobqueue.NewManager(queue, svc, jobqueue.ManagerConfig{
		SweepInterval: env.GetEnvDuration("PAYOUT_SWEEP_INTERVAL", 15*time.Minute),
		SweepBatch:    env.GetEnvInt("PAYOUT_SWEEP_BATCH", 100),
	})
	manager.Start()

	var archiver controllers.PayloadArchiver
	archiveCfg, err := archive.LoadConfig()
	if err != nil {
		log.Warnf("[PhotoVault] Webhook archive misconfigured, disabled: %v", err)
	} else if archiveCfg.IsEnabled() {
		client, err := archive.NewClient(context.Background(), archiveCfg)
		if err != nil {
			log.Warnf("[PhotoVault] Webhook archive unavailable: %v", err)
		} else {
			archiver = client
		}
	}

	app := fiber.New(fiber.Config{
		AppName:   "PhotoVault",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	counters := counter.New(cache.GetClient())
	webhookController := controllers.NewStripeWebhookController(
		svc,
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		archiver,
		env.GetEnvDuration("WEBHOOK_TIMEOUT", 15*time.Second),
	)
	webhookController.SetCounter(counters)

	healthController := controllers.NewHealthController(map[string]controllers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := database.GetDB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"cache": cache.Ping,
	}, queue)
	healthController.SetWebhookCounts(counters)

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Webhook:          webhookController,
		Health:           healthController,
		MetricsUser:      env.GetEnv("METRICS_USER", ""),
		MetricsPassword:  env.GetEnv("METRICS_PASSWORD", ""),
		WebhookRateLimit: env.GetEnvInt("WEBHOOK_RATE_LIMIT", 300),
		LimiterStorage: redisstorage.New(redisstorage.Config{
			Host:     env.GetEnv("CACHE_HOST", "localhost"),
			Port:     env.GetEnvInt("CACHE_PORT", 6379),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			Database: env.GetEnvInt("LIMITER_CACHE_DB", 2),
			Reset:    false,
		}),
	})

	shutdown := func() {
		manager.Stop()
		if err := publisher.Close(); err != nil {
			log.Warnf("[PhotoVault] Closing event bus: %v", err)
		}
		if err := cache.Close(); err != nil {
			log.Warnf("[PhotoVault] Closing cache: %v", err)
		}
		if sqlDB, err := database.GetDB().DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return app, shutdown
}
