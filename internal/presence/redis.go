package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceData Redis에 저장될 참가자 상태
type PresenceData struct {
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id"`
	CurrentSlide  int    `json:"current_slide"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	ServerID      string `json:"server_id"`
}

// Manager Presence 관리자. 하트비트가 TTL 안에 오지 않으면 offline.
type Manager struct {
	client   *redis.Client
	ttl      time.Duration
	serverID string
}

// NewManager 생성자 (client는 캐시와 공유)
func NewManager(client *redis.Client, ttl time.Duration, serverID string) *Manager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Manager{client: client, ttl: ttl, serverID: serverID}
}

// Key 생성 유틸
func userKey(sessionID, userID string) string {
	return fmt.Sprintf("presence:session:%s:user:%s", sessionID, userID)
}

// Heartbeat 생존 신고 (값 갱신 + TTL 연장)
func (m *Manager) Heartbeat(ctx context.Context, sessionID, userID string, currentSlide int) error {
	data := PresenceData{
		SessionID:     sessionID,
		UserID:        userID,
		CurrentSlide:  currentSlide,
		LastHeartbeat: time.Now().Unix(),
		ServerID:      m.serverID,
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, userKey(sessionID, userID), jsonData, m.ttl).Err()
}

// Remove 상태 삭제 (Disconnect)
func (m *Manager) Remove(ctx context.Context, sessionID, userID string) error {
	return m.client.Del(ctx, userKey(sessionID, userID)).Err()
}

// Get 상태 조회 (offline이면 nil)
func (m *Manager) Get(ctx context.Context, sessionID, userID string) (*PresenceData, error) {
	val, err := m.client.Get(ctx, userKey(sessionID, userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data PresenceData
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Online 여러 참가자 접속 여부 (MGET 한 번)
func (m *Manager) Online(ctx context.Context, sessionID string, userIDs []string) (map[string]bool, error) {
	online := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = userKey(sessionID, id)
	}

	results, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, result := range results {
		if result != nil {
			online[userIDs[i]] = true
		}
	}
	return online, nil
}
