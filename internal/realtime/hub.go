package realtime

import (
	"sync"

	"github.com/google/uuid"

	"classroom-backend/internal/logger"
	"classroom-backend/internal/metrics"
)

// Hub 필터별 구독 레지스트리. 버스에서 받은 이벤트를 맞는 구독으로 전달한다.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscription
	log  *logger.Logger
}

type subscription struct {
	key    string
	filter Filter
	sink   func(ChangeEvent)
}

// NewHub Hub 생성
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		subs: make(map[string]*subscription),
		log:  log.With("component", "realtime.hub"),
	}
}

// Subscribe 필터 검증 후 등록. 반환된 키로 해제한다.
func (h *Hub) Subscribe(f Filter, sink func(ChangeEvent)) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	key := uuid.NewString()

	h.mu.Lock()
	h.subs[key] = &subscription{key: key, filter: f, sink: sink}
	h.mu.Unlock()

	metrics.Subscriptions.Inc()
	h.log.Debug("subscription added", "key", key, "filter", f.String())
	return key, nil
}

// Unsubscribe 구독 해제 (없으면 false)
func (h *Hub) Unsubscribe(key string) bool {
	h.mu.Lock()
	_, ok := h.subs[key]
	delete(h.subs, key)
	h.mu.Unlock()

	if ok {
		metrics.Subscriptions.Dec()
		h.log.Debug("subscription removed", "key", key)
	}
	return ok
}

// Dispatch 매칭되는 구독에 이벤트 전달. 전달된 수를 반환한다.
func (h *Hub) Dispatch(ev ChangeEvent) int {
	h.mu.RLock()
	matched := make([]*subscription, 0, 4)
	for _, s := range h.subs {
		if s.filter.Matches(ev) {
			matched = append(matched, s)
		}
	}
	h.mu.RUnlock()

	// 락 밖에서 호출 (sink가 Unsubscribe를 부를 수 있음)
	for _, s := range matched {
		s.sink(ev)
	}
	if len(matched) > 0 {
		metrics.EventsDelivered.WithLabelValues(ev.Table.String()).Add(float64(len(matched)))
	}
	return len(matched)
}

// Count 활성 구독 수
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
