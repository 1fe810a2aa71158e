package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/hseguard/syncd/internal/client"
	"github.com/hseguard/syncd/internal/config"
	"github.com/hseguard/syncd/internal/handler"
	"github.com/hseguard/syncd/internal/imaging"
	"github.com/hseguard/syncd/internal/middleware"
	"github.com/hseguard/syncd/internal/queue"
	"github.com/hseguard/syncd/internal/service"
	"github.com/hseguard/syncd/internal/store"
	"github.com/hseguard/syncd/internal/worker"
	ws "github.com/hseguard/syncd/internal/websocket"
	"github.com/hseguard/syncd/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(&logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	})

	// Redis backs the broker, the rate counters and the token cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logg.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	queueManager := queue.NewManager(redisOpt, cfg.Queue.Fallback, logg)
	defer queueManager.Close()

	db, err := store.Connect(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	deviationStore := store.NewDeviationStore(db, cfg.Database.QueryLog, logg)
	sjaStore := store.NewSJAStore(db, cfg.Database.QueryLog, logg)
	syncRecordStore := store.NewSyncRecordStore(db, cfg.Database.QueryLog, logg)

	tokenCache := client.NewTokenCache(&cfg.Dalux, redisClient, logg)
	daluxClient := client.NewDaluxClient(&cfg.Dalux, tokenCache, logg)

	// Object storage is optional; derivatives stay on local disk without it
	var storage client.StorageClient
	if cfg.Storage.Endpoint != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			logg.Warn("storage client not initialized", "error", err)
		} else {
			storage = s3Client
		}
	} else {
		logg.Info("object storage not configured, keeping derivatives local")
	}

	hub := ws.NewHub(logg)
	go hub.Run()

	validate := validator.New()

	syncService := service.NewSyncService(deviationStore, sjaStore, syncRecordStore, daluxClient, queueManager, logg)
	pipeline := imaging.NewPipeline(filepath.Join(os.TempDir(), "hseguard-derivatives"), logg)

	handlers := &worker.Handlers{
		Sync:  worker.NewSyncWorker(syncService, daluxClient, hub, validate, logg),
		Image: worker.NewImageWorker(pipeline, storage, hub, validate, logg),
		File:  worker.NewFileWorker(sjaStore, syncRecordStore, queueManager, hub, validate, logg),
	}

	pool := worker.NewPool(redisOpt, handlers, logg, cfg.Server.LogLevel)
	if cfg.Queue.Fallback {
		logg.Warn("queue fallback enabled, consumers not started")
	} else {
		if err := pool.Start(); err != nil {
			log.Fatalf("Failed to start queue consumers: %v", err)
		}
	}

	// Companion push server: websocket subscriptions plus health
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"broker":  !cfg.Queue.Fallback,
				"dalux":   cfg.Dalux.ClientID != "",
				"storage": storage != nil,
			},
		})
	})

	syncHandler := handler.NewSyncHandler(syncService, syncRecordStore, queueManager, validate)
	api := app.Group("/api", middleware.ServiceAuth(cfg.JWT.Secret))
	api.Post("/sync/deviations/:id", syncHandler.SyncDeviation)
	api.Post("/sync/sjas/:id", syncHandler.SyncSJA)
	api.Post("/sync/batch", syncHandler.SyncBatch)
	api.Get("/sync/records/:entityType/:id", syncHandler.GetRecord)

	app.Use("/ws", middleware.ServiceAuth(cfg.JWT.Secret), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/projects/:projectId", websocket.New(func(c *websocket.Conn) {
		projectID := c.Params("projectId")
		hub.HandleConnection(c, projectID)
	}))

	// Graceful shutdown: stop accepting, drain workers, then exit
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logg.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logg.Error("push server shutdown error", "error", err)
		}
		pool.Shutdown()
		hub.Stop()
	}()

	addr := ":" + cfg.Server.Port
	logg.Info("worker started", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
