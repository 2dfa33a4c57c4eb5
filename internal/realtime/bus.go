package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"classroom-backend/internal/logger"
	"classroom-backend/internal/metrics"
)

// Publisher 커밋 후 변경 이벤트 발행
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Bus 변경 이벤트 전송 계층
type Bus interface {
	Publisher
	Start(ctx context.Context, onEvent func(ChangeEvent)) error
	Close() error
}

// MemoryBus 단일 인스턴스용 버스 (Publish가 같은 고루틴에서 전달)
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []func(ChangeEvent)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(_ context.Context, ev ChangeEvent) error {
	metrics.EventsPublished.WithLabelValues(ev.Table.String(), string(ev.Type)).Inc()

	b.mu.RLock()
	handlers := slices.Clone(b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *MemoryBus) Start(_ context.Context, onEvent func(ChangeEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, onEvent)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
	return nil
}

// RedisBus Redis pub/sub 채널로 여러 서버 인스턴스에 팬아웃
type RedisBus struct {
	rdb     *redis.Client
	channel string
	log     *logger.Logger
}

func NewRedisBus(rdb *redis.Client, channel string, log *logger.Logger) (*RedisBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = "classroom:changes"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisBus{rdb: rdb, channel: channel, log: log.With("component", "realtime.redisbus")}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev ChangeEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	metrics.EventsPublished.WithLabelValues(ev.Table.String(), string(ev.Type)).Inc()
	return nil
}

func (b *RedisBus) Start(ctx context.Context, onEvent func(ChangeEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	// 구독이 실제로 시작됐는지 확인
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.log.Warn("bad change event payload", "error", err)
					continue
				}
				onEvent(ev)
			}
		}
	}()

	b.log.Info("forwarding change events", "channel", b.channel)
	return nil
}

// Close 클라이언트는 소유자(cache.RedisClient)가 닫는다
func (b *RedisBus) Close() error {
	return nil
}
