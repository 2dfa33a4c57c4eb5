package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/cache"
	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// fakeStore 핸들러 테스트용 인메모리 저장소
type fakeStore struct {
	mu           sync.Mutex
	users        map[string]*model.User
	lessons      map[string]*model.Lesson
	slides       map[string][]model.Slide
	sessions     map[string]*model.PresentationSession
	participants map[string]*model.SessionParticipant
	answers      []model.StudentAnswer
	settings     map[string]model.UserSettings
	lastQuery    store.Query
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[string]*model.User{},
		lessons:      map[string]*model.Lesson{},
		slides:       map[string][]model.Slide{},
		sessions:     map[string]*model.PresentationSession{},
		participants: map[string]*model.SessionParticipant{},
		settings:     map[string]model.UserSettings{},
	}
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperr.Conflict("duplicate email")
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user %s", email)
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) LessonOwner(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lessons[id]
	if !ok {
		return "", apperr.NotFound("lesson %s", id)
	}
	return l.OwnerID, nil
}

func (f *fakeStore) addLesson(id, owner string, slides ...model.Slide) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lessons[id] = &model.Lesson{ID: id, OwnerID: owner, Title: "Lesson " + id}
	for i := range slides {
		slides[i].PresentationID = id
		slides[i].Position = i
	}
	f.slides[id] = slides
}

func (f *fakeStore) CountSlides(_ context.Context, lessonID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slides[lessonID]), nil
}

func (f *fakeStore) GetSlide(_ context.Context, lessonID, slideID string) (*model.Slide, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.slides[lessonID] {
		if s.ID == slideID {
			cp := s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("slide %s", slideID)
}

func (f *fakeStore) StartSession(_ context.Context, lessonID, hostID string) (*model.PresentationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lessons[lessonID]; !ok {
		return nil, apperr.NotFound("lesson %s", lessonID)
	}
	s := &model.PresentationSession{
		ID:             uuid.NewString(),
		JoinCode:       "ABC234",
		PresentationID: lessonID,
		HostID:         hostID,
		SyncEnabled:    true,
	}
	f.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*model.PresentationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session %s", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetActiveSessionByCode(_ context.Context, code string) (*model.PresentationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.JoinCode == code && s.Active() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("session with code %s", code)
}

func (f *fakeStore) UpdateSession(_ context.Context, id string, p store.SessionPatch) (*model.PresentationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session %s", id)
	}
	if !s.Active() {
		return nil, store.ErrSessionEnded
	}
	if p.CurrentSlide != nil {
		s.CurrentSlide = *p.CurrentSlide
	}
	if p.AnonymousMode != nil {
		s.AnonymousMode = *p.AnonymousMode
	}
	if p.SyncEnabled != nil {
		s.SyncEnabled = *p.SyncEnabled
	}
	if p.StudentPacingEnabled != nil {
		s.StudentPacingEnabled = *p.StudentPacingEnabled
	}
	if p.IsPaused != nil {
		s.IsPaused = *p.IsPaused
	}
	if p.AllowedSlides != nil {
		s.AllowedSlides = *p.AllowedSlides
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) EndSession(_ context.Context, id string) (*model.PresentationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session %s", id)
	}
	if !s.Active() {
		return nil, store.ErrSessionEnded
	}
	now := time.Now()
	s.EndedAt = &now
	cp := *s
	return &cp, nil
}

func (f *fakeStore) AttachParticipant(_ context.Context, s *model.PresentationSession, userID string) (*model.SessionParticipant, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := s.ID + "/" + userID
	if p, ok := f.participants[key]; ok {
		cp := *p
		return &cp, false, nil
	}
	p := &model.SessionParticipant{ID: uuid.NewString(), SessionID: s.ID, UserID: userID, CurrentSlide: s.CurrentSlide, JoinedAt: time.Now()}
	f.participants[key] = p
	cp := *p
	return &cp, true, nil
}

func (f *fakeStore) GetParticipant(_ context.Context, sessionID, userID string) (*model.SessionParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[sessionID+"/"+userID]
	if !ok {
		return nil, apperr.NotFound("participant %s", userID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) SetParticipantSlide(_ context.Context, sessionID, userID string, index int) (*model.SessionParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[sessionID+"/"+userID]
	if !ok {
		return nil, apperr.NotFound("participant %s", userID)
	}
	p.CurrentSlide = index
	cp := *p
	return &cp, nil
}

func (f *fakeStore) TouchParticipant(_ context.Context, sessionID, userID string) (*model.SessionParticipant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[sessionID+"/"+userID]
	if !ok {
		return nil, apperr.NotFound("participant %s", userID)
	}
	p.LastSeenAt = time.Now()
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateAnswer(_ context.Context, a *model.StudentAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.NewString()
	f.answers = append(f.answers, *a)
	return nil
}

func (f *fakeStore) ListStudentAnswers(_ context.Context, sessionID, studentID string) ([]model.StudentAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StudentAnswer
	for _, a := range f.answers {
		if a.SessionID == sessionID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSettings(_ context.Context, userID string) (model.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.settings[userID]; ok {
		return s, nil
	}
	return model.DefaultSettings(userID), nil
}

func (f *fakeStore) SaveSettings(_ context.Context, in model.UserSettings) (model.UserSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[in.UserID] = in
	return in, nil
}

func (f *fakeStore) Select(_ context.Context, q store.Query) ([]model.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	if err := q.Validate(); err != nil {
		return nil, err
	}
	switch q.Table {
	case model.TableSlides:
		list := append([]model.Slide(nil), f.slides[q.Value]...)
		sort.Slice(list, func(i, j int) bool { return list[i].Position < list[j].Position })
		rows := make([]model.Row, 0, len(list))
		for _, s := range list {
			rows = append(rows, s)
		}
		return rows, nil
	case model.TableUserSettings:
		if s, ok := f.settings[q.Value]; ok {
			return []model.Row{s}, nil
		}
		return []model.Row{}, nil
	case model.TableUsers:
		return nil, apperr.Forbidden("table %s cannot be selected", q.Table)
	}
	return []model.Row{}, nil
}

// fakeCodes 참가 코드 캐시
type fakeCodes struct {
	mu          sync.Mutex
	entries     map[string]cache.CodeEntry
	invalidated []string
}

func newFakeCodes() *fakeCodes {
	return &fakeCodes{entries: map[string]cache.CodeEntry{}}
}

func (f *fakeCodes) PutCode(_ context.Context, code string, entry cache.CodeEntry, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[code] = entry
	return nil
}

func (f *fakeCodes) LookupCode(_ context.Context, code string) (cache.CodeEntry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[code]
	return e, ok, nil
}

func (f *fakeCodes) InvalidateCode(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, code)
	f.invalidated = append(f.invalidated, code)
	return nil
}

// fakePresence 하트비트 기록
type fakePresence struct {
	mu    sync.Mutex
	beats map[string]int
}

func (f *fakePresence) Heartbeat(_ context.Context, sessionID, userID string, slide int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beats == nil {
		f.beats = map[string]int{}
	}
	f.beats[sessionID+"/"+userID] = slide
	return nil
}

// newTestApp 가짜 저장소가 요청 문자열을 계속 들고 있으므로 Immutable로 복사한다
func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{Immutable: true})
}

// withUser X-User 헤더를 인증된 사용자로 취급
func withUser(c *fiber.Ctx) error {
	if u := c.Get("X-User"); u != "" {
		c.Locals("userID", utils.CopyString(u))
	}
	return c.Next()
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.body, v); err != nil {
		t.Fatalf("decode %s: %v", r.body, err)
	}
}

func (r response) errorCode(t *testing.T) string {
	t.Helper()
	var out map[string]any
	r.decode(t, &out)
	code, _ := out["code"].(string)
	return code
}

func call(t *testing.T, app *fiber.App, method, path, user string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User", user)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}
