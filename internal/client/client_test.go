package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/handler"
	"classroom-backend/internal/livesync"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
	"classroom-backend/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newAPI 로그인/내 정보/rows만 흉내 내는 서버
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "password123" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "invalid email or password", "code": "INVALID_CREDENTIAL"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user":         map[string]string{"id": "u1", "email": in["email"], "first_name": "Ada"},
			"access_token": "good-token",
			"expires_in":   900,
		})
	})
	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token", "code": "UNAUTHORIZED"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "u1", "email": "ada@example.com"})
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
	})
	mux.HandleFunc("/api/rows/user_settings", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("single") != "true" || r.URL.Query().Get("column") != "user_id" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad query", "code": "INVALID_INPUT"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	})
	mux.HandleFunc("/api/rows/slides", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("order") != "position" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad order", "code": "INVALID_INPUT"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "s1"}, {"id": "s2"}})
	})
	mux.HandleFunc("/api/tts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>gateway</html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDecodeError(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   apperr.Kind
	}{
		{http.StatusNotFound, `{"error":"lesson not found","code":"NOT_FOUND"}`, apperr.KindNotFound},
		{http.StatusUnprocessableEntity, `{"error":"bad password","code":"INVALID_CREDENTIAL"}`, apperr.KindInvalidCredential},
		// 상태와 맞지 않는 코드는 무시
		{http.StatusBadRequest, `{"error":"x","code":"FORBIDDEN"}`, apperr.KindInvalidInput},
		{http.StatusBadGateway, `<html>`, apperr.KindBackend},
	}
	for _, tc := range cases {
		err := decodeError(tc.status, []byte(tc.body))
		if got := apperr.KindOf(err); got != tc.want {
			t.Fatalf("status %d: want=%s got=%s", tc.status, tc.want, got)
		}
	}
}

func TestClient_LoginAndMe(t *testing.T) {
	srv := newAPI(t)
	c := New(srv.URL + "/")
	ctx := context.Background()

	if _, err := c.Login(ctx, "ada@example.com", "wrong"); !apperr.Is(err, apperr.KindInvalidCredential) {
		t.Fatalf("wrong password: want=%s got=%v", apperr.KindInvalidCredential, err)
	}
	if c.Token() != "" {
		t.Fatalf("token set after failed login: %q", c.Token())
	}

	u, err := c.Login(ctx, "ada@example.com", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.Token() != "good-token" || u.DisplayName() != "Ada" {
		t.Fatalf("login result: token=%q name=%q", c.Token(), u.DisplayName())
	}
	me, err := c.Me(ctx)
	if err != nil || me.ID != "u1" {
		t.Fatalf("me: %+v %v", me, err)
	}
	if me.DisplayName() != "ada@example.com" {
		t.Fatalf("display name fallback: got=%q", me.DisplayName())
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := c.Me(ctx); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("me after logout: want=%s got=%v", apperr.KindUnauthorized, err)
	}
}

func TestClient_RowsAndSpeak(t *testing.T) {
	srv := newAPI(t)
	c := New(srv.URL, WithToken("good-token"))
	ctx := context.Background()

	row, err := c.FetchOne(ctx, model.TableUserSettings, "user_id", "u1")
	if err != nil || row != nil {
		t.Fatalf("fetch one: want=nil got=%s err=%v", row, err)
	}

	rows, err := c.FetchMany(ctx, livesync.Query{Table: model.TableSlides, Column: "presentation_id", Value: "l1", OrderBy: "position"})
	if err != nil || len(rows) != 2 {
		t.Fatalf("fetch many: rows=%d err=%v", len(rows), err)
	}

	audio, err := c.Speak(ctx, "hello")
	if err != nil || audio != nil {
		t.Fatalf("speak disabled: audio=%v err=%v", audio, err)
	}

	if err := c.do(ctx, http.MethodGet, "/boom", nil, nil); !apperr.Is(err, apperr.KindBackend) {
		t.Fatalf("non-json error: want=%s got=%v", apperr.KindBackend, err)
	}
}

func TestFileTokenStore(t *testing.T) {
	s := NewFileTokenStore(t.TempDir())
	if tok, err := s.Load(); err != nil || tok != "" {
		t.Fatalf("empty load: %q %v", tok, err)
	}
	if err := s.Save("abc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if tok, _ := s.Load(); tok != "abc" {
		t.Fatalf("load: want=abc got=%q", tok)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestAuthState_StartAndSubscribe(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()

	t.Run("rejected token is cleared", func(t *testing.T) {
		store := NewFileTokenStore(t.TempDir())
		_ = store.Save("stale")
		a := NewAuthState(New(srv.URL), store, nil)

		var mu sync.Mutex
		var seen []*User
		a.Subscribe(func(u *User) {
			mu.Lock()
			seen = append(seen, u)
			mu.Unlock()
		})
		if !a.Loading() {
			t.Fatalf("should be loading before Start")
		}
		if err := a.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}
		if a.Loading() || a.Authenticated() {
			t.Fatalf("after start: loading=%v authenticated=%v", a.Loading(), a.Authenticated())
		}
		if tok, _ := store.Load(); tok != "" {
			t.Fatalf("stale token kept: %q", tok)
		}
		mu.Lock()
		defer mu.Unlock()
		if len(seen) != 1 || seen[0] != nil {
			t.Fatalf("subscriber calls: %v", seen)
		}
	})

	t.Run("login persists and notifies", func(t *testing.T) {
		store := NewFileTokenStore(t.TempDir())
		a := NewAuthState(New(srv.URL), store, nil)
		if err := a.Start(ctx); err != nil {
			t.Fatalf("start: %v", err)
		}

		calls := 0
		cancel := a.Subscribe(func(u *User) { calls++ })
		if _, err := a.Login(ctx, "ada@example.com", "password123"); err != nil {
			t.Fatalf("login: %v", err)
		}
		if !a.Authenticated() || a.User().ID != "u1" {
			t.Fatalf("user: %+v", a.User())
		}
		if tok, _ := store.Load(); tok != "good-token" {
			t.Fatalf("stored token: %q", tok)
		}

		// 저장된 토큰으로 새 상태 복원
		b := NewAuthState(New(srv.URL), store, nil)
		if err := b.Start(ctx); err != nil || !b.Authenticated() {
			t.Fatalf("restore: authenticated=%v err=%v", b.Authenticated(), err)
		}

		cancel()
		cancel()
		if err := a.Logout(ctx); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if calls != 1 {
			t.Fatalf("calls after cancel: want=1 got=%d", calls)
		}
		if a.Authenticated() {
			t.Fatalf("still authenticated after logout")
		}
		if tok, _ := store.Load(); tok != "" {
			t.Fatalf("token left after logout: %q", tok)
		}
	})
}

// feedServer 실제 realtime 핸들러를 fiber로 띄운다. 토큰은 곧 사용자 ID.
type feedServer struct {
	base  string
	hub   *realtime.Hub
	conns chan *websocket.Conn

	mu      sync.Mutex
	session model.PresentationSession
}

func (s *feedServer) setSession(sess model.PresentationSession) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func newFeedServer(t *testing.T) *feedServer {
	t.Helper()
	srv := &feedServer{hub: realtime.NewHub(nil), conns: make(chan *websocket.Conn, 8)}
	// 이 테스트의 구독은 세션/설정 테이블뿐이라 저장소 조회가 필요 없다
	h := handler.NewRealtimeWSHandler(srv.hub, service.NewAccessService(nil), handler.RealtimeWSOptions{}, nil)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/api/rows/presentation_sessions", func(c *fiber.Ctx) error {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return c.JSON(srv.session)
	})
	app.Get("/ws/realtime", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		tok := c.Query("access_token")
		if tok == "" {
			return fiber.ErrUnauthorized
		}
		c.Locals("userID", utils.CopyString(tok))
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		select {
		case srv.conns <- c:
		default:
		}
		h.HandleWebSocket(c)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	srv.base = "http://" + ln.Addr().String()
	return srv
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestFeed_SubscribeReceivesChanges(t *testing.T) {
	srv := newFeedServer(t)
	hub := srv.hub
	c := New(srv.base, WithToken("student"))
	t.Cleanup(func() { _ = c.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan realtime.ChangeEvent, 4)
	flt := realtime.Filter{Table: model.TablePresentationSessions, Column: "id", Value: "ses-1"}
	sub, err := c.Subscribe(ctx, flt, func(ev realtime.ChangeEvent) { got <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.Count() == 1 })

	ev, _ := realtime.NewEvent(model.TablePresentationSessions, realtime.Update, map[string]any{"id": "ses-1", "is_paused": true}, nil)
	hub.Dispatch(ev)
	select {
	case recv := <-got:
		if recv.Type != realtime.Update || recv.New["is_paused"] != true {
			t.Fatalf("event: %+v", recv)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no change delivered")
	}

	// 서버가 거절하는 구독은 에러로 돌아온다
	_, err = c.Subscribe(ctx, realtime.Filter{Table: model.TableUserSettings, Column: "user_id", Value: "teacher"}, func(realtime.ChangeEvent) {})
	if err == nil {
		t.Fatalf("foreign settings subscription should fail")
	}

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.Count() == 0 })
}

func TestFeed_RequiresToken(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.Subscribe(context.Background(), realtime.Filter{Table: model.TableSlides, Column: "presentation_id", Value: "l1"}, func(realtime.ChangeEvent) {})
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("want=%s got=%v", apperr.KindUnauthorized, err)
	}
}

func TestFeed_ServerDropSurfacesAndRecovers(t *testing.T) {
	srv := newFeedServer(t)
	srv.setSession(model.PresentationSession{ID: "ses-1", CurrentSlide: 1})

	c := New(srv.base, WithToken("student"))
	c.feed.retryMin = 20 * time.Millisecond
	t.Cleanup(func() { _ = c.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		sawLost bool
	)
	var row *livesync.Row[model.PresentationSession]
	row, err := livesync.NewRow[model.PresentationSession](c, model.TablePresentationSessions, "id",
		livesync.WithListener(func() {
			if st := row.Snapshot(); st.Err != nil && errors.Is(st.Err, ErrFeedClosed) {
				mu.Lock()
				sawLost = true
				mu.Unlock()
			}
		}))
	if err != nil {
		t.Fatalf("NewRow: %v", err)
	}
	defer row.Close()
	if err := row.SetValue(ctx, "ses-1"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if st := row.Snapshot(); st.Data == nil || st.Data.CurrentSlide != 1 {
		t.Fatalf("initial: %+v", st)
	}
	waitFor(t, func() bool { return srv.hub.Count() == 1 })

	var server *websocket.Conn
	select {
	case server = <-srv.conns:
	case <-time.After(3 * time.Second):
		t.Fatalf("no server connection")
	}

	// 끊긴 사이 교사가 슬라이드를 넘긴다
	srv.setSession(model.PresentationSession{ID: "ses-1", CurrentSlide: 3})
	_ = server.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sawLost
	})
	waitFor(t, func() bool {
		st := row.Snapshot()
		return st.Err == nil && st.Data != nil && st.Data.CurrentSlide == 3 && srv.hub.Count() == 1
	})

	// 다시 구독되었으므로 이후 변경도 받는다
	ev, _ := realtime.NewEvent(model.TablePresentationSessions, realtime.Update, model.PresentationSession{ID: "ses-1", CurrentSlide: 4}, nil)
	waitFor(t, func() bool {
		srv.hub.Dispatch(ev)
		st := row.Snapshot()
		return st.Data != nil && st.Data.CurrentSlide == 4
	})
}
