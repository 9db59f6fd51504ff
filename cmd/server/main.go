package main

import (
	"context"
	"log"
	"time"

	"timekeeper/backend/internal/config"
	"timekeeper/backend/internal/db"
	"timekeeper/backend/internal/handler"
	"timekeeper/backend/internal/repository"
	"timekeeper/backend/internal/router"
	"timekeeper/backend/internal/service"
	"timekeeper/backend/internal/ws"
)

func main() {
	cfg := config.Load()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	timerRepo := repository.NewTimerRepository(database)

	authService := service.NewAuthService(userRepo, timerRepo, cfg.JWTSecret, cfg.TokenTTL)
	timerService := service.NewTimerService(timerRepo, cfg.MaxGoalMilliseconds, cfg.MinGoalMilliseconds)

	authHandler := handler.NewAuthHandler(authService)

	registry := ws.NewRegistry()
	hub := ws.NewHub(registry, timerService, authService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.RunLiveness(ctx, cfg.HeartbeatInterval)
	go runSnapshotFlush(ctx, timerService, cfg.SnapshotInterval)

	engine := router.New(authService, authHandler, hub, cfg.CORSOrigins)
	log.Printf("backend listening on :%s", cfg.Port)
	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatalf("run server: %v", err)
	}
}

// runSnapshotFlush periodically writes dirty in-memory timers back to the
// store so a crash loses at most one interval of unstopped work.
func runSnapshotFlush(ctx context.Context, timers *service.TimerService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			timers.FlushDirty(ctx)
		}
	}
}
