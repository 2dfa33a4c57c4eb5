package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Realtime  RealtimeConfig
	TTS       TTSConfig
	Session   SessionConfig
	Log       LogConfig
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	PingInterval    time.Duration
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig 인증 설정
type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	GoogleClientID     string
	SecureCookie       bool
}

// StorageConfig 오브젝트 스토리지 설정 (s3 | minio | 빈 값 = 비활성)
type StorageConfig struct {
	Provider        string
	Region          string
	BucketName      string
	Endpoint        string // MinIO 엔드포인트 (host:port)
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
	PresignExpiry   time.Duration
}

// RedisConfig Redis 설정 (Addr 비우면 비활성)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RealtimeConfig 변경 이벤트 버스 설정
type RealtimeConfig struct {
	Bus            string // memory | redis
	Channel        string
	SendBufferSize int
}

// TTSConfig Text-to-Speech 기본값
type TTSConfig struct {
	DefaultEndpoint string
	Timeout         time.Duration
}

// SessionConfig 발표 세션 설정
type SessionConfig struct {
	JoinCodeCacheTTL time.Duration
	StaleAfter       time.Duration
	PresenceTTL      time.Duration
	JoinBaseURL      string // 참가 링크 앞부분 (예: https://class.example.com/join)
}

// LogConfig 로깅 설정
type LogConfig struct {
	Mode     string
	FilePath string
}

// Enabled Redis 사용 여부
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	// 필수 환경 변수 검증
	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 4096),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			PingInterval:    getDuration("WS_PING_INTERVAL", 30*time.Second),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
			RefreshTokenExpiry: getDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			SecureCookie:       getBool("SECURE_COOKIE", false),
		},
		Storage: StorageConfig{
			Provider:        strings.ToLower(getEnv("STORAGE_PROVIDER", "")),
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			BucketName:      getEnv("STORAGE_BUCKET", ""),
			Endpoint:        getEnv("MINIO_ENDPOINT", ""),
			UseSSL:          getBool("MINIO_USE_SSL", false),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("STORAGE_SECRET_ACCESS_KEY", ""),
			PresignExpiry:   getDuration("STORAGE_PRESIGN_EXPIRY", 15*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Realtime: RealtimeConfig{
			Bus:            strings.ToLower(getEnv("REALTIME_BUS", "memory")),
			Channel:        getEnv("REALTIME_CHANNEL", "classroom:changes"),
			SendBufferSize: getInt("REALTIME_SEND_BUFFER", 64),
		},
		TTS: TTSConfig{
			DefaultEndpoint: getEnv("TTS_DEFAULT_ENDPOINT", "https://api.openai.com/v1"),
			Timeout:         getDuration("TTS_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			JoinCodeCacheTTL: getDuration("JOIN_CODE_CACHE_TTL", 10*time.Minute),
			StaleAfter:       getDuration("SESSION_STALE_AFTER", 12*time.Hour),
			PresenceTTL:      getDuration("PRESENCE_TTL", 60*time.Second),
			JoinBaseURL:      getEnv("JOIN_BASE_URL", "http://localhost:3000/join"),
		},
		Log: LogConfig{
			Mode:     getEnv("LOG_MODE", "development"),
			FilePath: getEnv("LOG_FILE", "logs/app.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("🚨 CRITICAL: invalid configuration: %v", err)
	}
	return cfg
}

// Validate 설정 조합 검증
func (c *Config) Validate() error {
	switch c.Realtime.Bus {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return errors.New("REALTIME_BUS=redis requires REDIS_ADDR")
		}
	default:
		return errors.New("REALTIME_BUS must be memory or redis")
	}

	switch c.Storage.Provider {
	case "":
	case "s3":
		if c.Storage.BucketName == "" {
			return errors.New("STORAGE_PROVIDER=s3 requires STORAGE_BUCKET")
		}
	case "minio":
		if c.Storage.BucketName == "" || c.Storage.Endpoint == "" {
			return errors.New("STORAGE_PROVIDER=minio requires STORAGE_BUCKET and MINIO_ENDPOINT")
		}
	default:
		return errors.New("STORAGE_PROVIDER must be s3, minio or empty")
	}

	if c.Realtime.SendBufferSize <= 0 {
		return errors.New("REALTIME_SEND_BUFFER must be positive")
	}
	return nil
}

// getRequiredEnv 필수 환경 변수 조회 (없으면 Fatal)
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
