package main

import (
	"context"
	"flag"
	"log"
	"time"

	"classroom-backend/internal/cache"
	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/realtime"
	"classroom-backend/internal/store"
)

// 오래 방치된 발표 세션을 종료한다. cron 등에서 주기적으로 실행.
func main() {
	cfg := config.Load()
	maxAge := flag.Duration("max-age", cfg.Session.StaleAfter, "end sessions started before now-max-age")
	flag.Parse()

	appLog, err := logger.New(logger.Options{Mode: cfg.Log.Mode})
	if err != nil {
		log.Fatalf("❌ Logger init failed: %v", err)
	}
	defer appLog.Sync()

	db, err := database.ConnectDB(appLog)
	if err != nil {
		appLog.Fatal("database connection failed", "error", err)
	}
	defer database.Close()

	// 서버들이 Redis 버스를 쓰면 같은 채널로 알려 학생 화면도 종료를 받는다
	var bus realtime.Bus = realtime.NewMemoryBus()
	if cfg.Realtime.Bus == "redis" && cfg.Redis.Enabled() {
		rc, err := cache.NewRedisClient(cfg.Redis, appLog)
		if err != nil {
			appLog.Fatal("redis connection failed", "error", err)
		}
		defer rc.Close()
		rb, err := realtime.NewRedisBus(rc.Raw(), cfg.Realtime.Channel, appLog)
		if err != nil {
			appLog.Fatal("redis bus init failed", "error", err)
		}
		bus = rb
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	appLog.Info("ending stale sessions", "max_age", maxAge.String())
	ended, err := store.New(db, bus, appLog).EndStaleSessions(ctx, *maxAge)
	for _, s := range ended {
		appLog.Info("session ended", "session_id", s.ID, "join_code", s.JoinCode, "started_at", s.StartedAt)
	}
	if err != nil {
		appLog.Fatal("end stale sessions failed", "ended", len(ended), "error", err)
	}
	appLog.Info("done", "ended", len(ended))
}
