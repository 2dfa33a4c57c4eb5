package main

import (
	"log"

	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	appLog, err := logger.New(logger.Options{Mode: cfg.Log.Mode, FilePath: cfg.Log.FilePath})
	if err != nil {
		log.Fatalf("❌ Logger init failed: %v", err)
	}
	defer appLog.Sync()

	// 데이터베이스 연결
	db, err := database.ConnectDB(appLog)
	if err != nil {
		appLog.Fatal("database connection failed", "error", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(); err != nil {
		appLog.Fatal("database ping failed", "error", err)
	}

	// DB 버전 확인
	var version string
	db.Raw("SELECT version()").Scan(&version)
	if len(version) > 50 {
		version = version[:50] + "..."
	}
	appLog.Info("database ready", "postgres", version)

	// 서버 생성 및 설정
	srv, err := server.New(cfg, db, appLog)
	if err != nil {
		appLog.Fatal("server init failed", "error", err)
	}
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		appLog.Fatal("server failed to start", "error", err)
	}
}
