package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"classroom-backend/internal/database"
)

var tables = []string{
	"users",
	"presentations",
	"slides",
	"presentation_sessions",
	"session_participants",
	"student_answers",
	"user_settings",
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	// 마이그레이션 없이 접속만 한다
	cfg := database.LoadConfig()
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Printf("✅ Connected to database %s@%s\n", cfg.DBName, cfg.Host)
	fmt.Println()

	missing := 0
	fmt.Println("📊 Tables:")
	for _, name := range tables {
		var exists bool
		query := `
			SELECT EXISTS (
				SELECT 1
				FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = ?
			)
		`
		if err := db.Raw(query, name).Scan(&exists).Error; err != nil {
			log.Fatalf("Failed to check table %s: %v", name, err)
		}
		if !exists {
			missing++
			fmt.Printf("  - %-22s ❌ missing\n", name)
			continue
		}
		var count int64
		if err := db.Table(name).Count(&count).Error; err != nil {
			log.Fatalf("Failed to count %s: %v", name, err)
		}
		fmt.Printf("  - %-22s %d rows\n", name, count)
	}
	fmt.Println()

	if missing > 0 {
		fmt.Println("⚠️  Start the server once so AutoMigrate creates the missing tables")
		return
	}

	// 진행 중 세션 코드 인덱스
	var indexed bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'presentation_sessions'
			AND indexname = 'idx_presentation_sessions_active_code'
		)
	`
	if err := db.Raw(query).Scan(&indexed).Error; err != nil {
		log.Fatal("Failed to check indexes:", err)
	}
	fmt.Printf("📋 Active join-code index present: %v\n", indexed)
	fmt.Println()

	type SessionInfo struct {
		ID           string
		JoinCode     string
		StartedAt    string
		CurrentSlide int
		Participants int64
	}
	var sessions []SessionInfo
	query = `
		SELECT s.id, s.join_code, s.started_at, s.current_slide,
			(SELECT COUNT(*) FROM session_participants p WHERE p.session_id = s.id) AS participants
		FROM presentation_sessions s
		WHERE s.ended_at IS NULL
		ORDER BY s.started_at DESC
		LIMIT 10
	`
	if err := db.Raw(query).Scan(&sessions).Error; err != nil {
		log.Fatal("Failed to get active sessions:", err)
	}

	fmt.Println("🎬 Active Sessions (last 10):")
	if len(sessions) == 0 {
		fmt.Println("  (none)")
	}
	for _, s := range sessions {
		fmt.Printf("  - %s code=%s slide=%d participants=%d started=%s\n",
			s.ID, s.JoinCode, s.CurrentSlide, s.Participants, s.StartedAt)
	}

	// 같은 코드로 진행 중인 세션이 둘 이상이면 참가가 모호해진다
	var dupes int64
	query = `
		SELECT COUNT(*) FROM (
			SELECT join_code FROM presentation_sessions
			WHERE ended_at IS NULL
			GROUP BY join_code HAVING COUNT(*) > 1
		) d
	`
	if err := db.Raw(query).Scan(&dupes).Error; err != nil {
		log.Fatal("Failed to check duplicate codes:", err)
	}
	fmt.Println()
	if dupes > 0 {
		fmt.Printf("❌ %d join codes are shared by more than one active session\n", dupes)
	} else {
		fmt.Println("✅ Active join codes are unique")
	}
}
