package handler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/controls"
	"classroom-backend/internal/join"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/middleware"
	"classroom-backend/internal/model"
	"classroom-backend/internal/progress"
	"classroom-backend/internal/service"
)

type fakeLoader struct {
	sessionID string
	sortBy    controls.SortKey
}

func (f *fakeLoader) Load(_ context.Context, sessionID string, sortBy controls.SortKey) (progress.Grid, error) {
	f.sessionID, f.sortBy = sessionID, sortBy
	return progress.Grid{SessionID: sessionID}, nil
}

type sessionFixture struct {
	app      *fiber.App
	store    *fakeStore
	codes    *fakeCodes
	presence *fakePresence
	loader   *fakeLoader
}

func slideWith(id string, blocks ...model.Block) model.Slide {
	return model.Slide{ID: id, Blocks: datatypes.NewJSONType(model.Blocks(blocks))}
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	fs := newFakeStore()
	correct := model.NumberValue(4)
	fs.addLesson("l1", "teacher",
		slideWith("s0", &model.TextBlock{ID: "t", Content: "intro"}),
		slideWith("s1", &model.QuestionBlock{ID: "q1", QuestionType: model.QuestionNumeric, Prompt: "2+2?", CorrectAnswer: &correct}),
		slideWith("s2", &model.QuestionBlock{ID: "q2", QuestionType: model.QuestionShortAnswer, Prompt: "Why?"}),
	)

	fx := &sessionFixture{
		store:    fs,
		codes:    newFakeCodes(),
		presence: &fakePresence{},
		loader:   &fakeLoader{},
	}
	h := NewSessionHandler(fs, controls.New(fs, logger.Nop()), fx.loader, SessionOptions{
		Codes:    fx.codes,
		Presence: fx.presence,
		JoinBase: "https://class.example/join",
	}, logger.Nop())
	answers := NewAnswerHandler(fs, logger.Nop())
	mw := middleware.NewAccessMiddleware(service.NewAccessService(fs))

	app := newTestApp()
	app.Use(withUser)
	app.Post("/lessons/:id/sessions", mw.RequireLessonOwner(), h.Start)
	app.Post("/sessions/join", h.Join)
	app.Get("/sessions/:id", mw.RequireSessionMember(), h.Get)
	app.Put("/sessions/:id/sync", mw.RequireSessionHost(), h.SetSync)
	app.Put("/sessions/:id/pause", mw.RequireSessionHost(), h.SetPaused)
	app.Put("/sessions/:id/pacing", mw.RequireSessionHost(), h.SetPacing)
	app.Put("/sessions/:id/slide", mw.RequireSessionHost(), h.GoToSlide)
	app.Post("/sessions/:id/end", mw.RequireSessionHost(), h.End)
	app.Put("/sessions/:id/me/slide", mw.RequireSessionMember(), h.Navigate)
	app.Get("/sessions/:id/progress", mw.RequireSessionHost(), h.Progress)
	app.Post("/sessions/:id/heartbeat", mw.RequireSessionMember(), h.Heartbeat)
	app.Post("/sessions/:id/answers", mw.RequireSessionMember(), answers.Submit)
	fx.app = app
	return fx
}

func (fx *sessionFixture) start(t *testing.T) StartSessionResponse {
	t.Helper()
	r := call(t, fx.app, "POST", "/lessons/l1/sessions", "teacher", nil)
	if r.status != fiber.StatusCreated {
		t.Fatalf("start: status=%d body=%s", r.status, r.body)
	}
	var out StartSessionResponse
	r.decode(t, &out)
	return out
}

func TestSession_StartReturnsJoinLinkAndCachesCode(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)

	if out.JoinLink == "" || !strings.Contains(out.JoinLink, "code="+out.Session.JoinCode) {
		t.Fatalf("join link: %q", out.JoinLink)
	}
	if _, ok := fx.codes.entries[out.Session.JoinCode]; !ok {
		t.Fatalf("join code not cached")
	}

	r := call(t, fx.app, "POST", "/lessons/l1/sessions", "student", nil)
	if r.status != fiber.StatusForbidden {
		t.Fatalf("non-owner start: want=403 got=%d", r.status)
	}
}

func TestSession_Join(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)

	r := call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": "  "})
	if r.status != fiber.StatusBadRequest {
		t.Fatalf("empty code: want=400 got=%d", r.status)
	}

	r = call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": "ZZZZZZ"})
	if r.status != fiber.StatusNotFound || !strings.Contains(string(r.body), join.MsgInvalidCode) {
		t.Fatalf("unknown code: status=%d body=%s", r.status, r.body)
	}

	// 소문자/공백도 같은 코드
	code := " " + strings.ToLower(out.Session.JoinCode) + " "
	r = call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": code})
	if r.status != fiber.StatusOK {
		t.Fatalf("join: status=%d body=%s", r.status, r.body)
	}
	var s model.PresentationSession
	r.decode(t, &s)
	if s.ID != out.Session.ID || s.PresentationID != "l1" {
		t.Fatalf("joined session: %+v", s)
	}
	if _, ok := fx.store.participants[s.ID+"/student"]; !ok {
		t.Fatalf("participant not attached")
	}
	if _, ok := fx.presence.beats[s.ID+"/student"]; !ok {
		t.Fatalf("presence not recorded")
	}

	// 두 번째 참가도 같은 행
	call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": out.Session.JoinCode})
	if len(fx.store.participants) != 1 {
		t.Fatalf("participants: want=1 got=%d", len(fx.store.participants))
	}

	r = call(t, fx.app, "GET", "/sessions/"+s.ID, "student", nil)
	if r.status != fiber.StatusOK {
		t.Fatalf("member get: status=%d", r.status)
	}
	r = call(t, fx.app, "GET", "/sessions/"+s.ID, "stranger", nil)
	if r.status != fiber.StatusForbidden {
		t.Fatalf("stranger get: want=403 got=%d", r.status)
	}
}

func TestSession_EndedCodeIsRejectedAndUncached(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)
	id := out.Session.ID

	r := call(t, fx.app, "POST", "/sessions/"+id+"/end", "teacher", nil)
	if r.status != fiber.StatusOK {
		t.Fatalf("end: status=%d body=%s", r.status, r.body)
	}
	if len(fx.codes.invalidated) == 0 {
		t.Fatalf("code not invalidated on end")
	}

	r = call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": out.Session.JoinCode})
	if r.status != fiber.StatusNotFound {
		t.Fatalf("join ended: want=404 got=%d", r.status)
	}

	r = call(t, fx.app, "PUT", "/sessions/"+id+"/sync", "teacher", map[string]bool{"enabled": false})
	if r.status != fiber.StatusConflict {
		t.Fatalf("control after end: want=409 got=%d body=%s", r.status, r.body)
	}
}

func TestSession_StaleCacheEntryFallsBackToDB(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)

	// 캐시에 없는 코드는 DB에서 찾고 캐시에 채운다
	delete(fx.codes.entries, out.Session.JoinCode)
	r := call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": out.Session.JoinCode})
	if r.status != fiber.StatusOK {
		t.Fatalf("join by db: status=%d body=%s", r.status, r.body)
	}
	if _, ok := fx.codes.entries[out.Session.JoinCode]; !ok {
		t.Fatalf("db hit should populate cache")
	}

	// 종료된 세션을 가리키는 캐시 항목은 지운다
	ended := time.Now()
	fx.store.sessions[out.Session.ID].EndedAt = &ended
	r = call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": out.Session.JoinCode})
	if r.status != fiber.StatusNotFound {
		t.Fatalf("cached ended session: want=404 got=%d", r.status)
	}
	if _, ok := fx.codes.entries[out.Session.JoinCode]; ok {
		t.Fatalf("stale cache entry kept")
	}
}

func TestSession_NavigationGate(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)
	id := out.Session.ID
	call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": out.Session.JoinCode})

	// sync 켜짐: 교사 슬라이드만
	r := call(t, fx.app, "PUT", "/sessions/"+id+"/me/slide", "student", map[string]int{"index": 2})
	if r.status != fiber.StatusForbidden {
		t.Fatalf("sync locked: want=403 got=%d", r.status)
	}

	r = call(t, fx.app, "PUT", "/sessions/"+id+"/slide", "teacher", map[string]int{"index": 2})
	if r.status != fiber.StatusOK {
		t.Fatalf("teacher slide: status=%d body=%s", r.status, r.body)
	}
	r = call(t, fx.app, "PUT", "/sessions/"+id+"/me/slide", "student", map[string]int{"index": 2})
	if r.status != fiber.StatusOK {
		t.Fatalf("follow teacher: status=%d body=%s", r.status, r.body)
	}

	r = call(t, fx.app, "PUT", "/sessions/"+id+"/slide", "teacher", map[string]int{"index": 3})
	if r.status != fiber.StatusBadRequest {
		t.Fatalf("out of range teacher slide: want=400 got=%d", r.status)
	}

	// 진도 제한
	call(t, fx.app, "PUT", "/sessions/"+id+"/sync", "teacher", map[string]bool{"enabled": false})
	r = call(t, fx.app, "PUT", "/sessions/"+id+"/pacing", "teacher", map[string]any{"enabled": true, "allowed_slides": []int{1, 0, 1}})
	if r.status != fiber.StatusOK {
		t.Fatalf("pacing: status=%d body=%s", r.status, r.body)
	}
	var s model.PresentationSession
	r.decode(t, &s)
	if got := []int(s.AllowedSlides); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("allowed slides: %v", got)
	}
	if r := call(t, fx.app, "PUT", "/sessions/"+id+"/me/slide", "student", map[string]int{"index": 2}); r.status != fiber.StatusForbidden {
		t.Fatalf("not allowed slide: want=403 got=%d", r.status)
	}
	if r := call(t, fx.app, "PUT", "/sessions/"+id+"/me/slide", "student", map[string]int{"index": 1}); r.status != fiber.StatusOK {
		t.Fatalf("allowed slide: status=%d body=%s", r.status, r.body)
	}
	if fx.store.participants[id+"/student"].CurrentSlide != 1 {
		t.Fatalf("participant slide not stored")
	}

	// 일시정지
	call(t, fx.app, "PUT", "/sessions/"+id+"/pause", "teacher", map[string]bool{"paused": true})
	if r := call(t, fx.app, "PUT", "/sessions/"+id+"/me/slide", "student", map[string]int{"index": 0}); r.status != fiber.StatusForbidden {
		t.Fatalf("paused: want=403 got=%d", r.status)
	}

	// 호스트는 me/slide를 쓰지 않는다
	if r := call(t, fx.app, "PUT", "/sessions/"+id+"/me/slide", "teacher", map[string]int{"index": 0}); r.status != fiber.StatusForbidden {
		t.Fatalf("host me/slide: want=403 got=%d", r.status)
	}
}

func TestSession_ControlsRequireBody(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)
	r := call(t, fx.app, "PUT", "/sessions/"+out.Session.ID+"/sync", "teacher", map[string]string{})
	if r.status != fiber.StatusBadRequest || r.errorCode(t) != string(apperr.KindInvalidInput) {
		t.Fatalf("missing enabled: status=%d body=%s", r.status, r.body)
	}
	r = call(t, fx.app, "PUT", "/sessions/"+out.Session.ID+"/sync", "student", map[string]bool{"enabled": false})
	if r.status != fiber.StatusForbidden {
		t.Fatalf("student control: want=403 got=%d", r.status)
	}
}

func TestSession_Progress(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)

	r := call(t, fx.app, "GET", "/sessions/"+out.Session.ID+"/progress?sort=joined_at", "teacher", nil)
	if r.status != fiber.StatusOK {
		t.Fatalf("progress: status=%d body=%s", r.status, r.body)
	}
	if fx.loader.sessionID != out.Session.ID || fx.loader.sortBy != controls.SortJoinedAt {
		t.Fatalf("loader called with %q %q", fx.loader.sessionID, fx.loader.sortBy)
	}

	r = call(t, fx.app, "GET", "/sessions/"+out.Session.ID+"/progress?sort=height", "teacher", nil)
	if r.status != fiber.StatusBadRequest {
		t.Fatalf("bad sort: want=400 got=%d", r.status)
	}
}

func TestAnswer_Submit(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)
	id := out.Session.ID
	call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": out.Session.JoinCode})

	r := call(t, fx.app, "POST", "/sessions/"+id+"/answers", "student", map[string]any{"slide_id": "s1", "block_id": "q1", "value": 4})
	if r.status != fiber.StatusCreated {
		t.Fatalf("submit: status=%d body=%s", r.status, r.body)
	}
	var a model.StudentAnswer
	r.decode(t, &a)
	if a.IsCorrect == nil || !*a.IsCorrect || a.StudentID != "student" || a.PresentationID != "l1" {
		t.Fatalf("graded answer: %+v", a)
	}

	// 정답 없는 질문은 미채점
	r = call(t, fx.app, "POST", "/sessions/"+id+"/answers", "student", map[string]any{"slide_id": "s2", "block_id": "q2", "value": "because"})
	r.decode(t, &a)
	if r.status != fiber.StatusCreated || a.IsCorrect != nil {
		t.Fatalf("ungraded: status=%d answer=%+v", r.status, a)
	}

	// 텍스트 블록은 질문이 아님
	r = call(t, fx.app, "POST", "/sessions/"+id+"/answers", "student", map[string]any{"slide_id": "s0", "block_id": "t", "value": "x"})
	if r.status != fiber.StatusNotFound {
		t.Fatalf("non-question block: want=404 got=%d", r.status)
	}

	call(t, fx.app, "PUT", "/sessions/"+id+"/pause", "teacher", map[string]bool{"paused": true})
	r = call(t, fx.app, "POST", "/sessions/"+id+"/answers", "student", map[string]any{"slide_id": "s1", "block_id": "q1", "value": 5})
	if r.status != fiber.StatusForbidden {
		t.Fatalf("paused submit: want=403 got=%d", r.status)
	}

	call(t, fx.app, "PUT", "/sessions/"+id+"/pause", "teacher", map[string]bool{"paused": false})
	call(t, fx.app, "POST", "/sessions/"+id+"/end", "teacher", nil)
	r = call(t, fx.app, "POST", "/sessions/"+id+"/answers", "student", map[string]any{"slide_id": "s1", "block_id": "q1", "value": 5})
	if r.status != fiber.StatusConflict {
		t.Fatalf("ended submit: want=409 got=%d", r.status)
	}
	if len(fx.store.answers) != 2 {
		t.Fatalf("answers stored: want=2 got=%d", len(fx.store.answers))
	}
}

func TestSession_HeartbeatWithoutPresenceTouchesRow(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)
	call(t, fx.app, "POST", "/sessions/join", "student", map[string]string{"code": out.Session.JoinCode})

	delete(fx.presence.beats, out.Session.ID+"/student")
	r := call(t, fx.app, "POST", "/sessions/"+out.Session.ID+"/heartbeat", "student", nil)
	if r.status != fiber.StatusNoContent {
		t.Fatalf("heartbeat: want=204 got=%d", r.status)
	}
	if _, ok := fx.presence.beats[out.Session.ID+"/student"]; !ok {
		t.Fatalf("presence not refreshed")
	}

	// Redis 없이 구성된 핸들러는 last_seen_at을 갱신한다
	fx.store.participants[out.Session.ID+"/student"].LastSeenAt = time.Time{}
	h := NewSessionHandler(fx.store, controls.New(fx.store, logger.Nop()), fx.loader, SessionOptions{}, logger.Nop())
	mw := middleware.NewAccessMiddleware(service.NewAccessService(fx.store))
	app := newTestApp()
	app.Use(withUser)
	app.Post("/sessions/:id/heartbeat", mw.RequireSessionMember(), h.Heartbeat)

	r = call(t, app, "POST", "/sessions/"+out.Session.ID+"/heartbeat", "student", nil)
	if r.status != fiber.StatusNoContent {
		t.Fatalf("fallback heartbeat: want=204 got=%d", r.status)
	}
	if fx.store.participants[out.Session.ID+"/student"].LastSeenAt.IsZero() {
		t.Fatalf("last_seen_at not updated")
	}

	r = call(t, app, "POST", "/sessions/"+out.Session.ID+"/heartbeat", "stranger", nil)
	if r.status != fiber.StatusForbidden {
		t.Fatalf("stranger heartbeat: want=403 got=%d", r.status)
	}
}

func TestSession_StoredIDsSurviveLaterRequests(t *testing.T) {
	fx := newSessionFixture(t)
	out := fx.start(t)

	for _, user := range []string{"student", "someone-else-entirely", "x"} {
		call(t, fx.app, "POST", "/sessions/join", user, map[string]string{"code": out.Session.JoinCode})
		call(t, fx.app, "GET", "/sessions/"+out.Session.ID, user, nil)
	}

	stored, err := fx.store.GetSession(context.Background(), out.Session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.HostID != "teacher" || stored.PresentationID != "l1" {
		t.Fatalf("stored session rewritten by later requests: host=%q lesson=%q", stored.HostID, stored.PresentationID)
	}
	if p, ok := fx.store.participants[out.Session.ID+"/student"]; !ok || p.UserID != "student" {
		t.Fatalf("participant rewritten: %+v", p)
	}
}
