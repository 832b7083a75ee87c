package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anhducle99/bluecode/internal/clock"
	"github.com/anhducle99/bluecode/internal/config"
	"github.com/anhducle99/bluecode/internal/database"
	"github.com/anhducle99/bluecode/internal/handlers"
	"github.com/anhducle99/bluecode/internal/hub"
	"github.com/anhducle99/bluecode/internal/logger"
	authmw "github.com/anhducle99/bluecode/internal/middleware"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/anhducle99/bluecode/internal/sse"
	"github.com/anhducle99/bluecode/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Env)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	var ledger services.StatusLedger
	memLedger := services.NewMemoryLedger(clock.Real(), cfg.RouteTTL)
	ledger = memLedger
	if cfg.Redis.Enabled() {
		rdb, err := database.OpenRedis(ctx, database.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		ledger = services.NewRedisLedger(rdb, cfg.RouteTTL)
		log.Info("using redis status ledger", "addr", cfg.Redis.Addr)
	}

	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTAccessExpiry)
	callService := services.NewCallService(db)

	signalHub := hub.NewHub(cfg.RouteTTL, log)
	go signalHub.Run()

	activityHub := sse.NewHub()
	go activityHub.Run()

	signalHandler := handlers.NewSignalHandler(signalHub, callService, ledger, activityHub, jwtService, log)
	callHandler := handlers.NewCallHandler(callService, signalHub, activityHub, log)
	activityHandler := handlers.NewActivityHandler(activityHub)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	api := app.Group("/api/v1")

	protected := api.Group("")
	protected.Use(authmw.Auth(jwtService))

	protected.Post("/call", callHandler.Create)
	protected.Post("/call/:callId/cancel", callHandler.Cancel)
	protected.Get("/history", callHandler.History)
	protected.Get("/presence", signalHandler.Presence)
	protected.Get("/activity", activityHandler.Stream)

	api.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, dto.HealthResponse{Status: "ok", Clients: signalHub.ClientCount()})
	})

	api.Get("/ws", signalHandler.Connect)

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				expired, err := callService.ExpirePending(ctx, time.Now().Add(-cfg.PendingExpiry))
				if err != nil {
					log.Warn("failed to expire pending calls", "error", err)
				} else if expired > 0 {
					log.Info("expired pending calls", "count", expired)
				}
				memLedger.Prune()
			}
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Info("server starting", "addr", addr)
		if err := app.Run(addr); err != nil {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")
}
