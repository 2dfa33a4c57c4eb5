package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"classroom-backend/internal/config"
	"classroom-backend/internal/logger"
)

// CodeEntry 참가 코드 -> 세션 캐시 항목
type CodeEntry struct {
	SessionID      string    `json:"sessionId"`
	PresentationID string    `json:"presentationId"`
	CachedAt       time.Time `json:"cachedAt"`
}

// RedisClient wraps the Redis client for join-code caching
type RedisClient struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig, log *logger.Logger) (*RedisClient, error) {
	if log == nil {
		log = logger.Nop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info("redis connected", "addr", cfg.Addr)
	return &RedisClient{client: client, log: log.With("component", "cache")}, nil
}

// Raw 버스/프레즌스와 공유하는 하위 클라이언트
func (r *RedisClient) Raw() *redis.Client {
	return r.client
}

func codeKey(code string) string {
	return "joincode:" + code
}

// PutCode 활성 세션의 코드 매핑 저장
func (r *RedisClient) PutCode(ctx context.Context, code string, entry CodeEntry, ttl time.Duration) error {
	entry.CachedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, codeKey(code), data, ttl).Err(); err != nil {
		r.log.Warn("cache join code failed", "error", err)
		return err
	}
	return nil
}

// LookupCode 캐시 미스는 (zero, false, nil)
func (r *RedisClient) LookupCode(ctx context.Context, code string) (CodeEntry, bool, error) {
	val, err := r.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return CodeEntry{}, false, nil
	}
	if err != nil {
		return CodeEntry{}, false, err
	}
	var entry CodeEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		// 깨진 항목은 지우고 미스로 처리
		r.client.Del(ctx, codeKey(code))
		return CodeEntry{}, false, nil
	}
	return entry, true, nil
}

// InvalidateCode 세션 종료 시 매핑 삭제
func (r *RedisClient) InvalidateCode(ctx context.Context, code string) error {
	return r.client.Del(ctx, codeKey(code)).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Health checks if Redis is healthy
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
