package handler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"classroom-backend/internal/logger"
	"classroom-backend/internal/metrics"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// 메시지 타입
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgSubscribed  = "subscribed"
	MsgChange      = "change"
	MsgError       = "error"
)

// RealtimeMessage 변경 피드 WebSocket 메시지
type RealtimeMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload 구독 요청 (id는 클라이언트가 정한다)
type SubscribePayload struct {
	ID     string `json:"id"`
	Table  string `json:"table"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

// ChangePayload 구독 id + 이벤트
type ChangePayload struct {
	ID    string               `json:"id"`
	Event realtime.ChangeEvent `json:"event"`
}

// ErrorPayload 구독 에러
type ErrorPayload struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// RealtimeWSHandler /ws/realtime 변경 피드
type RealtimeWSHandler struct {
	hub          *realtime.Hub
	access       FilterAuthorizer
	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration
	log          *logger.Logger
}

// RealtimeWSOptions 연결별 설정
type RealtimeWSOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// NewRealtimeWSHandler RealtimeWSHandler 생성
func NewRealtimeWSHandler(hub *realtime.Hub, access FilterAuthorizer, opts RealtimeWSOptions, log *logger.Logger) *RealtimeWSHandler {
	if log == nil {
		log = logger.Nop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &RealtimeWSHandler{
		hub:          hub,
		access:       access,
		sendBuffer:   opts.SendBuffer,
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		log:          log.With("component", "realtime.ws"),
	}
}

// wsClient 연결 하나. conn에 쓰는 것은 writeLoop뿐이다.
type wsClient struct {
	userID   string
	send     chan []byte
	done     chan struct{}
	dropped  chan struct{}
	dropOnce sync.Once

	mu   sync.Mutex
	subs map[string]string // 클라이언트 구독 id -> hub 키
}

func (h *RealtimeWSHandler) newClient(userID string) *wsClient {
	return &wsClient{
		userID: userID,
		send:   make(chan []byte, h.sendBuffer),
		done:    make(chan struct{}),
		dropped: make(chan struct{}),
		subs:    make(map[string]string),
	}
}

// enqueue 허브 디스패치를 막지 않는다. 버퍼가 차면 메시지를 버리고 연결을 끊는다.
func (cl *wsClient) enqueue(msg []byte) bool {
	select {
	case <-cl.done:
		return false
	case <-cl.dropped:
		return false
	default:
	}
	select {
	case cl.send <- msg:
		return true
	default:
		metrics.EventsDropped.Inc()
		cl.drop()
		return false
	}
}

// drop writeLoop에 연결 종료를 알린다
func (cl *wsClient) drop() {
	cl.dropOnce.Do(func() { close(cl.dropped) })
}

func encode(typ string, payload any) []byte {
	msg := RealtimeMessage{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		msg.Payload = raw
	}
	out, _ := json.Marshal(msg)
	return out
}

// HandleWebSocket WebSocket 연결 처리
func (h *RealtimeWSHandler) HandleWebSocket(c *websocket.Conn) {
	// 패닉 복구 - 서버 크래시 방지
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("realtime websocket panic recovered", "panic", r)
		}
	}()

	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		_ = c.WriteMessage(websocket.TextMessage, encode(MsgError, ErrorPayload{Message: "invalid session"}))
		_ = c.Close()
		return
	}

	cl := h.newClient(userID)
	metrics.WSConnections.Inc()
	h.log.Info("realtime websocket connected", "user_id", userID)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(c, cl)
	}()

	// 연결 해제 시 정리
	defer func() {
		close(cl.done)
		wg.Wait()
		n := h.releaseAll(cl)
		metrics.WSConnections.Dec()
		_ = c.Close()
		h.log.Info("realtime websocket disconnected", "user_id", userID, "released", n)
	}()

	readWait := 2 * h.pingInterval
	_ = c.SetReadDeadline(time.Now().Add(readWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		_ = c.SetReadDeadline(time.Now().Add(readWait))
		h.handleMessage(cl, raw)
	}
}

func (h *RealtimeWSHandler) writeLoop(c *websocket.Conn, cl *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-cl.dropped:
			h.log.Warn("realtime client too slow, dropping", "user_id", cl.userID)
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "send queue full"),
				time.Now().Add(h.writeTimeout))
			_ = c.Close()
			return
		case msg := <-cl.send:
			_ = c.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("realtime write failed", "user_id", cl.userID, "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// handleMessage 클라이언트 메시지 하나 처리
func (h *RealtimeWSHandler) handleMessage(cl *wsClient, raw []byte) {
	var msg RealtimeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		cl.enqueue(encode(MsgError, ErrorPayload{Message: "invalid message"}))
		return
	}

	switch msg.Type {
	case MsgPing:
		cl.enqueue(encode(MsgPong, nil))
	case MsgSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ID == "" {
			cl.enqueue(encode(MsgError, ErrorPayload{ID: p.ID, Message: "subscribe requires an id"}))
			return
		}
		if err := h.subscribe(cl, p); err != nil {
			cl.enqueue(encode(MsgError, ErrorPayload{ID: p.ID, Message: err.Error()}))
			return
		}
		cl.enqueue(encode(MsgSubscribed, map[string]string{"id": p.ID}))
	case MsgUnsubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ID == "" {
			cl.enqueue(encode(MsgError, ErrorPayload{Message: "unsubscribe requires an id"}))
			return
		}
		h.unsubscribe(cl, p.ID)
	default:
		cl.enqueue(encode(MsgError, ErrorPayload{Message: "unknown message type " + msg.Type}))
	}
}

func (h *RealtimeWSHandler) subscribe(cl *wsClient, p SubscribePayload) error {
	table, err := model.ParseTable(p.Table)
	if err != nil {
		return err
	}
	f := realtime.Filter{Table: table, Column: p.Column, Value: p.Value}
	if err := f.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	if err := h.access.AuthorizeFilter(ctx, cl.userID, table, p.Column, p.Value); err != nil {
		return err
	}

	id := p.ID
	key, err := h.hub.Subscribe(f, func(ev realtime.ChangeEvent) {
		cl.enqueue(encode(MsgChange, ChangePayload{ID: id, Event: ev}))
	})
	if err != nil {
		return err
	}

	cl.mu.Lock()
	old, replaced := cl.subs[id]
	cl.subs[id] = key
	cl.mu.Unlock()
	if replaced {
		h.hub.Unsubscribe(old)
	}
	return nil
}

func (h *RealtimeWSHandler) unsubscribe(cl *wsClient, id string) {
	cl.mu.Lock()
	key, ok := cl.subs[id]
	delete(cl.subs, id)
	cl.mu.Unlock()
	if ok {
		h.hub.Unsubscribe(key)
	}
}

// releaseAll 연결 종료 시 남은 구독 전부 해제
func (h *RealtimeWSHandler) releaseAll(cl *wsClient) int {
	cl.mu.Lock()
	keys := make([]string, 0, len(cl.subs))
	for _, key := range cl.subs {
		keys = append(keys, key)
	}
	cl.subs = make(map[string]string)
	cl.mu.Unlock()

	for _, key := range keys {
		h.hub.Unsubscribe(key)
	}
	return len(keys)
}
