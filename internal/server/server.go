package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/cache"
	"classroom-backend/internal/config"
	"classroom-backend/internal/controls"
	"classroom-backend/internal/handler"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/metrics"
	"classroom-backend/internal/middleware"
	"classroom-backend/internal/presence"
	"classroom-backend/internal/progress"
	"classroom-backend/internal/realtime"
	"classroom-backend/internal/service"
	"classroom-backend/internal/storage"
	"classroom-backend/internal/store"
	"classroom-backend/internal/tts"
)

// Server Fiber 서버 래퍼
type Server struct {
	app        *fiber.App
	cfg        *config.Config
	log        *logger.Logger
	jwtManager *auth.JWTManager

	bus    realtime.Bus
	redis  *cache.RedisClient
	cancel context.CancelFunc

	authHandler     *handler.AuthHandler
	lessonHandler   *handler.LessonHandler
	sessionHandler  *handler.SessionHandler
	answerHandler   *handler.AnswerHandler
	settingsHandler *handler.SettingsHandler
	ttsHandler      *handler.TTSHandler
	storageHandler  *handler.StorageHandler
	rowsHandler     *handler.RowsHandler
	realtimeHandler *handler.RealtimeWSHandler
	healthHandler   *handler.HealthHandler
	access          *middleware.AccessMiddleware
}

// New 새 서버 인스턴스 생성. Redis/스토리지는 설정된 경우에만 붙는다.
func New(cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "Classroom Presentation API",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             4 * 1024 * 1024,
		DisableStartupMessage: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{app: app, cfg: cfg, log: log, cancel: cancel}

	// Redis (선택적)
	var (
		codes    handler.CodeCache
		beats    handler.Heartbeater
		online   progress.Presence
		checks   = map[string]handler.HealthChecker{}
		serverID = hostID()
	)
	if cfg.Redis.Enabled() {
		rc, err := cache.NewRedisClient(cfg.Redis, log)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.redis = rc
		pm := presence.NewManager(rc.Raw(), cfg.Session.PresenceTTL, serverID)
		codes, beats, online = rc, pm, pm
		checks["redis"] = rc
	} else {
		log.Info("redis not configured, join-code cache and presence disabled")
	}

	// 변경 이벤트 버스 -> 허브
	hub := realtime.NewHub(log)
	switch cfg.Realtime.Bus {
	case "redis":
		bus, err := realtime.NewRedisBus(s.redis.Raw(), cfg.Realtime.Channel, log)
		if err != nil {
			s.close()
			return nil, err
		}
		s.bus = bus
	default:
		s.bus = realtime.NewMemoryBus()
	}
	if err := s.bus.Start(ctx, func(ev realtime.ChangeEvent) { hub.Dispatch(ev) }); err != nil {
		s.close()
		return nil, fmt.Errorf("realtime bus: %w", err)
	}

	st := store.New(db, s.bus, log)

	// Auth 초기화
	s.jwtManager = auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	var google auth.GoogleVerifier
	if cfg.Auth.GoogleClientID != "" {
		google = auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)
	}

	// 스토리지 초기화 (선택적)
	provider, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Warn("storage initialization failed, image upload disabled", "provider", cfg.Storage.Provider, "error", err)
		provider = nil
	} else if provider == nil {
		log.Info("storage not configured, image upload disabled")
	} else {
		log.Info("storage initialized", "provider", cfg.Storage.Provider, "bucket", cfg.Storage.BucketName)
	}

	ctrl := controls.New(st, log)
	s.authHandler = handler.NewAuthHandler(st, s.jwtManager, google, cfg.Auth.SecureCookie, log)
	s.lessonHandler = handler.NewLessonHandler(st, log)
	s.sessionHandler = handler.NewSessionHandler(st, ctrl, progress.NewLoader(st, online, log), handler.SessionOptions{
		Codes:    codes,
		Presence: beats,
		CodeTTL:  cfg.Session.JoinCodeCacheTTL,
		JoinBase: cfg.Session.JoinBaseURL,
	}, log)
	s.answerHandler = handler.NewAnswerHandler(st, log)
	s.settingsHandler = handler.NewSettingsHandler(st, log)
	s.ttsHandler = handler.NewTTSHandler(st, tts.NewClient(cfg.TTS.DefaultEndpoint, cfg.TTS.Timeout, log), log)
	s.storageHandler = handler.NewStorageHandler(provider, log)
	accessSvc := service.NewAccessService(st)
	s.rowsHandler = handler.NewRowsHandler(st, accessSvc)
	s.realtimeHandler = handler.NewRealtimeWSHandler(hub, accessSvc, handler.RealtimeWSOptions{
		SendBuffer:   cfg.Realtime.SendBufferSize,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
	}, log)
	s.healthHandler = handler.NewHealthHandler(db, checks)
	s.access = middleware.NewAccessMiddleware(accessSvc)

	return s, nil
}

func hostID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}

// App 테스트용 Fiber 앱
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	metrics.Init()

	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
	}))

	s.app.Use(metrics.Middleware())

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)
	s.app.Get("/metrics", metrics.Handler())

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,              // 최대 10회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})
	requireAuth := auth.AuthMiddleware(s.jwtManager)

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/register", authLimiter, s.authHandler.Register)
	authGroup.Post("/login", authLimiter, s.authHandler.Login)
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", s.authHandler.Logout)
	authGroup.Get("/me", requireAuth, s.authHandler.GetMe)

	api := s.app.Group("/api", requireAuth)

	// Lesson 라우트 (조회는 참가 흐름에서도 쓰므로 로그인만 요구)
	api.Get("/lessons", s.lessonHandler.ListLessons)
	api.Post("/lessons", s.lessonHandler.CreateLesson)
	api.Get("/lessons/:id", s.lessonHandler.GetLesson)

	owner := s.access.RequireLessonOwner()
	api.Put("/lessons/:id", owner, s.lessonHandler.RenameLesson)
	api.Delete("/lessons/:id", owner, s.lessonHandler.DeleteLesson)
	api.Post("/lessons/:id/slides", owner, s.lessonHandler.AddSlide)
	api.Put("/lessons/:id/slides/order", owner, s.lessonHandler.ReorderSlides)
	api.Put("/lessons/:id/slides/:slideId", owner, s.lessonHandler.UpdateSlide)
	api.Delete("/lessons/:id/slides/:slideId", owner, s.lessonHandler.RemoveSlide)
	api.Post("/lessons/:id/sessions", owner, s.sessionHandler.Start)
	api.Post("/lessons/:id/images/presign", owner, s.storageHandler.Presign)
	api.Delete("/lessons/:id/images", owner, s.storageHandler.Delete)
	api.Get("/images/url", s.storageHandler.ObjectURL)

	// Session 라우트
	host := s.access.RequireSessionHost()
	member := s.access.RequireSessionMember()
	api.Post("/sessions/join", s.sessionHandler.Join)
	api.Get("/sessions/:id", member, s.sessionHandler.Get)
	api.Put("/sessions/:id/anonymous", host, s.sessionHandler.SetAnonymous)
	api.Put("/sessions/:id/sync", host, s.sessionHandler.SetSync)
	api.Put("/sessions/:id/pacing", host, s.sessionHandler.SetPacing)
	api.Put("/sessions/:id/pause", host, s.sessionHandler.SetPaused)
	api.Put("/sessions/:id/slide", host, s.sessionHandler.GoToSlide)
	api.Post("/sessions/:id/end", host, s.sessionHandler.End)
	api.Get("/sessions/:id/progress", host, s.sessionHandler.Progress)
	api.Put("/sessions/:id/me/slide", member, s.sessionHandler.Navigate)
	api.Post("/sessions/:id/heartbeat", member, s.sessionHandler.Heartbeat)
	api.Post("/sessions/:id/answers", member, s.answerHandler.Submit)
	api.Get("/sessions/:id/answers/me", member, s.answerHandler.ListMine)

	// Settings / TTS
	api.Get("/settings", s.settingsHandler.Get)
	api.Put("/settings", s.settingsHandler.Update)
	api.Post("/tts", s.ttsHandler.Speak)

	// 동기화 훅 초기 조회
	api.Get("/rows/:table", s.rowsHandler.Select)

	// WebSocket 변경 피드 (브라우저는 헤더를 못 붙이므로 ?access_token= 허용)
	s.app.Get("/ws/realtime", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, auth.WSAuthMiddleware(s.jwtManager), websocket.New(s.realtimeHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		s.log.Info("shutting down server")
		if err := s.Shutdown(); err != nil {
			s.log.Error("server shutdown error", "error", err)
		}
	}()

	s.log.Info("classroom API starting", "addr", s.cfg.Server.Port, "bus", s.cfg.Realtime.Bus)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료 후 버스/Redis 정리
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(30 * time.Second)
	s.close()
	return err
}

func (s *Server) close() {
	s.cancel()
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
