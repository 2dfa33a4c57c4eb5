package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/livesync"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// ErrFeedClosed 연결이 끊겨 응답을 받지 못함
var ErrFeedClosed = errors.New("client: realtime feed closed")

const ackTimeout = 10 * time.Second

// 재연결 대기 (시도마다 두 배, 상한까지)
const (
	reconnectMin = 500 * time.Millisecond
	reconnectMax = 30 * time.Second
)

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wireSubscribe struct {
	ID     string      `json:"id"`
	Table  model.Table `json:"table,omitempty"`
	Column string      `json:"column,omitempty"`
	Value  string      `json:"value,omitempty"`
}

type wireChange struct {
	ID    string               `json:"id"`
	Event realtime.ChangeEvent `json:"event"`
}

type wireError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// feed /ws/realtime 연결 하나를 여러 구독이 공유한다.
// 끊기면 구독마다 에러를 알리고, 백오프로 다시 연결해 남은 구독을 복구한다.
type feed struct {
	c      *Client
	dialer *websocket.Dialer

	mu           sync.Mutex
	conn         *websocket.Conn
	subs         map[string]*feedSub
	acks         map[string]chan error
	nextID       uint64
	reconnecting bool
	retryMin     time.Duration
	retryMax     time.Duration
	writeMu      sync.Mutex

	// 핸들러와 상태 알림은 읽기 루프 밖에서 순서대로 호출된다
	qmu      sync.Mutex
	queue    []func()
	wake     chan struct{}
	stop     chan struct{}
	once     sync.Once
	stopOnce sync.Once
}

type feedSub struct {
	f       *feed
	id      string
	filter  realtime.Filter
	handler func(realtime.ChangeEvent)
	once    sync.Once

	smu     sync.Mutex
	status  func(error)
	linkErr error
}

// OnStatus livesync.StatusSubscription 구현
func (s *feedSub) OnStatus(fn func(error)) {
	s.smu.Lock()
	s.status = fn
	last := s.linkErr
	s.smu.Unlock()
	if last != nil {
		fn(last)
	}
}

// setStatus 계속 연결된 상태면 알리지 않는다
func (s *feedSub) setStatus(err error) {
	s.smu.Lock()
	if s.linkErr == nil && err == nil {
		s.smu.Unlock()
		return
	}
	s.linkErr = err
	fn := s.status
	s.smu.Unlock()
	if fn != nil {
		s.f.enqueue(func() { fn(err) })
	}
}

func newFeed(c *Client) *feed {
	return &feed{
		c: c,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		subs:     make(map[string]*feedSub),
		acks:     make(map[string]chan error),
		retryMin: reconnectMin,
		retryMax: reconnectMax,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
}

func (f *feed) wsURL() (string, error) {
	u, err := url.Parse(f.c.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/realtime"
	q := u.Query()
	q.Set("access_token", f.c.Token())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect f.mu를 잡은 상태에서 호출
func (f *feed) connect(ctx context.Context) error {
	if f.conn != nil {
		return nil
	}
	if f.c.Token() == "" {
		return apperr.New(apperr.KindUnauthorized, "sign in before subscribing", nil)
	}
	target, err := f.wsURL()
	if err != nil {
		return apperr.Backend("realtime url", err)
	}
	conn, resp, err := f.dialer.DialContext(ctx, target, http.Header{})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return apperr.New(apperr.KindUnauthorized, "realtime feed rejected the token", err)
		}
		return apperr.Backend("dial realtime feed", err)
	}
	f.conn = conn
	f.once.Do(func() { go f.deliverLoop() })
	go f.readLoop(conn)

	// 재연결이면 남은 구독 복구 (응답은 기다리지 않는다)
	for id, s := range f.subs {
		if err := f.write(conn, "subscribe", subscribePayload(id, s.filter)); err != nil {
			f.c.log.Warn("resubscribe failed", "id", id, "error", err)
			continue
		}
		s.setStatus(nil)
	}
	f.c.log.Debug("realtime feed connected", "restored", len(f.subs))
	return nil
}

func subscribePayload(id string, flt realtime.Filter) wireSubscribe {
	return wireSubscribe{ID: id, Table: flt.Table, Column: flt.Column, Value: flt.Value}
}

func (f *feed) write(conn *websocket.Conn, typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(wireMessage{Type: typ, Payload: raw})
	if err != nil {
		return err
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Subscribe livesync.Source 구현. 서버가 구독을 확인한 뒤 반환한다.
func (f *feed) subscribe(ctx context.Context, flt realtime.Filter, handler func(realtime.ChangeEvent)) (livesync.Subscription, error) {
	if handler == nil {
		return nil, apperr.Invalid("subscription handler is required")
	}
	if err := flt.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	if err := f.connect(ctx); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.nextID++
	id := "sub-" + strconv.FormatUint(f.nextID, 10)
	s := &feedSub{f: f, id: id, filter: flt, handler: handler}
	ack := make(chan error, 1)
	f.subs[id] = s
	f.acks[id] = ack
	conn := f.conn
	f.mu.Unlock()

	if err := f.write(conn, "subscribe", subscribePayload(id, flt)); err != nil {
		f.forget(id)
		return nil, apperr.Backend("send subscribe", err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		if err != nil {
			f.forget(id)
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		s.Unsubscribe()
		return nil, ctx.Err()
	case <-timer.C:
		s.Unsubscribe()
		return nil, apperr.Backend("subscribe timed out", nil)
	}
}

func (f *feed) forget(id string) {
	f.mu.Lock()
	delete(f.subs, id)
	delete(f.acks, id)
	f.mu.Unlock()
}

// Unsubscribe 여러 번 호출해도 한 번만 해제
func (s *feedSub) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		f := s.f
		f.mu.Lock()
		delete(f.subs, s.id)
		delete(f.acks, s.id)
		conn := f.conn
		f.mu.Unlock()
		if conn != nil {
			err = f.write(conn, "unsubscribe", wireSubscribe{ID: s.id})
		}
	})
	return err
}

func (f *feed) readLoop(conn *websocket.Conn) {
	defer f.dropConn(conn)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.c.log.Debug("realtime feed read stopped", "error", err)
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			f.c.log.Warn("bad realtime message", "error", err)
			continue
		}
		f.handle(msg)
	}
}

func (f *feed) handle(msg wireMessage) {
	switch msg.Type {
	case "subscribed":
		var p wireSubscribe
		if json.Unmarshal(msg.Payload, &p) == nil {
			f.resolve(p.ID, nil)
		}
	case "error":
		var p wireError
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if p.ID == "" || !f.resolve(p.ID, apperr.Invalid("%s", p.Message)) {
			f.c.log.Warn("realtime feed error", "id", p.ID, "message", p.Message)
		}
	case "change":
		var p wireChange
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			f.c.log.Warn("bad change payload", "error", err)
			return
		}
		f.mu.Lock()
		s, ok := f.subs[p.ID]
		f.mu.Unlock()
		if ok {
			ev := p.Event
			f.enqueue(func() { s.handler(ev) })
		}
	}
}

func (f *feed) resolve(id string, err error) bool {
	f.mu.Lock()
	ack, ok := f.acks[id]
	delete(f.acks, id)
	f.mu.Unlock()
	if ok {
		ack <- err
	}
	return ok
}

// dropConn 읽기 루프 종료 처리. close()가 아닌 끊김이면 구독에 알리고 재연결을 시작한다.
func (f *feed) dropConn(conn *websocket.Conn) {
	_ = conn.Close()
	f.mu.Lock()
	lost := f.conn == conn
	if lost {
		f.conn = nil
	}
	acks := f.acks
	f.acks = make(map[string]chan error)
	var subs []*feedSub
	if lost {
		for _, s := range f.subs {
			subs = append(subs, s)
		}
	}
	startRetry := len(subs) > 0 && !f.reconnecting
	if startRetry {
		f.reconnecting = true
	}
	f.mu.Unlock()

	for _, ack := range acks {
		ack <- ErrFeedClosed
	}
	if len(subs) == 0 {
		return
	}
	f.c.log.Warn("realtime feed lost", "subscriptions", len(subs))
	down := apperr.Backend("realtime feed disconnected", ErrFeedClosed)
	for _, s := range subs {
		s.setStatus(down)
	}
	if startRetry {
		go f.reconnect()
	}
}

// reconnect 남은 구독이 있는 동안 다시 연결한다. 토큰이 거절되면 멈춘다.
// reconnecting은 f.mu 안에서 내려 새 끊김이 재시도를 놓치지 않게 한다.
func (f *feed) reconnect() {
	wait := f.retryMin
	for attempt := 1; ; attempt++ {
		select {
		case <-f.stop:
			f.mu.Lock()
			f.reconnecting = false
			f.mu.Unlock()
			return
		case <-time.After(jitter(wait)):
		}

		f.mu.Lock()
		if len(f.subs) == 0 || f.conn != nil {
			f.reconnecting = false
			f.mu.Unlock()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), f.dialer.HandshakeTimeout)
		err := f.connect(ctx)
		cancel()
		rejected := apperr.Is(err, apperr.KindUnauthorized)
		var subs []*feedSub
		if err == nil || rejected {
			f.reconnecting = false
		}
		if rejected {
			for _, s := range f.subs {
				subs = append(subs, s)
			}
		}
		f.mu.Unlock()

		switch {
		case err == nil:
			f.c.log.Info("realtime feed reconnected", "attempt", attempt)
			return
		case rejected:
			f.c.log.Warn("realtime reconnect rejected", "error", err)
			for _, s := range subs {
				s.setStatus(err)
			}
			return
		}
		f.c.log.Warn("realtime reconnect failed", "attempt", attempt, "retry_in", wait.String(), "error", err)
		wait *= 2
		if wait > f.retryMax {
			wait = f.retryMax
		}
	}
}

// jitter d의 절반에서 d 사이
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}

func (f *feed) enqueue(d func()) {
	f.qmu.Lock()
	f.queue = append(f.queue, d)
	f.qmu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *feed) deliverLoop() {
	for {
		select {
		case <-f.stop:
			return
		case <-f.wake:
		}
		for {
			f.qmu.Lock()
			if len(f.queue) == 0 {
				f.qmu.Unlock()
				break
			}
			d := f.queue[0]
			f.queue = f.queue[1:]
			f.qmu.Unlock()
			d()
		}
	}
}

// close 연결과 구독을 모두 정리. 이후 Subscribe는 새로 연결한다.
func (f *feed) close() error {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.subs = make(map[string]*feedSub)
	f.mu.Unlock()

	f.qmu.Lock()
	f.queue = nil
	f.qmu.Unlock()

	if conn == nil {
		return nil
	}
	f.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	f.writeMu.Unlock()
	return conn.Close()
}

// shutdown close 후 전달 고루틴까지 멈춘다
func (f *feed) shutdown() error {
	err := f.close()
	f.stopOnce.Do(func() { close(f.stop) })
	return err
}

// --- livesync.Source ---

// FetchOne 최대 한 행. 없으면 (nil, nil).
func (c *Client) FetchOne(ctx context.Context, table model.Table, column, value string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, rowsPath(table, column, value, "", false, true), nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

func (c *Client) FetchMany(ctx context.Context, q livesync.Query) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	if err := c.do(ctx, http.MethodGet, rowsPath(q.Table, q.Column, q.Value, q.OrderBy, q.Desc, false), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Subscribe(ctx context.Context, flt realtime.Filter, handler func(realtime.ChangeEvent)) (livesync.Subscription, error) {
	return c.feed.subscribe(ctx, flt, handler)
}
