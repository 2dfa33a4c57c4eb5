// Package join drives a student from a join code to the live session view.
package join

import (
	"context"
	"errors"
	"sync"
	"time"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/metrics"
	"classroom-backend/internal/model"
)

// State 참가 흐름 상태
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingSignIn State = "awaiting_sign_in"
	StatePendingCode    State = "pending_code"
	StateJoining        State = "joining"
	StateJoined         State = "joined"
	StateFailed         State = "failed"
)

// 사용자에게 보이는 메시지
const (
	MsgEmptyCode    = "Please enter a join code"
	MsgSignInToJoin = "Please sign in to join the session"
	MsgInvalidCode  = "Invalid code or the session has ended"
	MsgLessonLoad   = "could not load the lesson for this session"
	MsgJoinFailed   = "Could not join the session, please try again"
)

// DefaultSignInDelay 알림이 보인 뒤 로그인으로 넘어가기까지의 지연
const DefaultSignInDelay = 1500 * time.Millisecond

// ErrAlreadyJoining 참가 진행 중에 다시 호출
var ErrAlreadyJoining = errors.New("join: already joining")

// NavigationState 세션 화면이 코드를 다시 조회하지 않도록 넘기는 값
type NavigationState struct {
	SessionID      string `json:"session_id"`
	PresentationID string `json:"presentation_id"`
	JoinCode       string `json:"join_code"`
}

// API 참가에 필요한 백엔드 호출
type API interface {
	// JoinSession 코드로 활성 세션을 찾아 참가자를 등록 (이미 등록돼 있어도 성공)
	JoinSession(ctx context.Context, code string) (*model.PresentationSession, error)
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
}

// Navigator 세션 화면 이동
type Navigator interface {
	Navigate(path string, state NavigationState)
}

// Level 알림 수준
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notifier 블로킹하지 않는 사용자 알림
type Notifier interface {
	Notify(level Level, message string)
}

// Auth 로그인 여부 확인과 로그인 화면 요청
type Auth interface {
	Authenticated() bool
	RequestSignIn()
}

// Option Flow 옵션
type Option func(*Flow)

func WithSignInDelay(d time.Duration) Option {
	return func(f *Flow) { f.signInDelay = d }
}

// WithAfterFunc 지연 실행 함수 교체 (테스트용). 반환값은 취소 함수.
func WithAfterFunc(fn func(d time.Duration, run func()) (stop func() bool)) Option {
	return func(f *Flow) { f.afterFunc = fn }
}

func WithLogger(log *logger.Logger) Option {
	return func(f *Flow) { f.log = log }
}

// Flow 참가 상태기계
type Flow struct {
	api     API
	nav     Navigator
	notify  Notifier
	auth    Auth
	pending PendingStore
	log     *logger.Logger

	signInDelay time.Duration
	afterFunc   func(d time.Duration, run func()) (stop func() bool)

	mu       sync.Mutex
	state    State
	joining  bool
	stop     func() bool
	lastErr  error
	lastNavi *NavigationState
}

func New(api API, nav Navigator, notify Notifier, auth Auth, pending PendingStore, opts ...Option) *Flow {
	f := &Flow{
		api:         api,
		nav:         nav,
		notify:      notify,
		auth:        auth,
		pending:     pending,
		signInDelay: DefaultSignInDelay,
		state:       StateIdle,
		afterFunc: func(d time.Duration, run func()) func() bool {
			return time.AfterFunc(d, run).Stop
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.Nop()
	}
	f.log = f.log.With("component", "join")
	return f
}

// State 현재 상태
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Joining 참가 진행 중 표시
func (f *Flow) Joining() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joining
}

// Err 마지막 실패
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Result 마지막 성공한 참가의 이동 상태
func (f *Flow) Result() (NavigationState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastNavi == nil {
		return NavigationState{}, false
	}
	return *f.lastNavi, true
}

// HandleCode 링크나 직접 입력으로 받은 코드 처리
func (f *Flow) HandleCode(ctx context.Context, raw string) error {
	code := model.NormalizeJoinCode(raw)
	if code == "" {
		f.notify.Notify(LevelError, MsgEmptyCode)
		metrics.JoinAttempts.WithLabelValues("invalid_input").Inc()
		return apperr.Invalid(MsgEmptyCode)
	}

	if f.auth.Authenticated() {
		_, err := f.Join(ctx, code)
		return err
	}

	if err := f.pending.Save(code); err != nil {
		f.log.Error("persist pending code failed", "error", err)
		f.notify.Notify(LevelError, MsgJoinFailed)
		return apperr.Backend("persist pending join code", err)
	}

	f.mu.Lock()
	f.state = StateAwaitingSignIn
	if f.stop != nil {
		f.stop()
	}
	f.stop = f.afterFunc(f.signInDelay, f.auth.RequestSignIn)
	f.mu.Unlock()

	f.log.Info("join code saved until sign-in")
	f.notify.Notify(LevelInfo, MsgSignInToJoin)
	return nil
}

// Resume 로그인 후 보관된 코드가 있으면 한 번만 꺼내 참가한다. 참가를 시도했으면 true.
func (f *Flow) Resume(ctx context.Context) (bool, error) {
	if !f.auth.Authenticated() {
		return false, nil
	}
	code, err := f.pending.Take()
	if err != nil {
		f.log.Error("read pending code failed", "error", err)
		return false, apperr.Backend("read pending join code", err)
	}
	if code == "" {
		return false, nil
	}

	f.mu.Lock()
	f.state = StatePendingCode
	f.mu.Unlock()

	_, err = f.Join(ctx, code)
	return true, err
}

// Join 참가자 등록, 레슨 조회, 세션 화면 이동 순서로 진행
func (f *Flow) Join(ctx context.Context, code string) (NavigationState, error) {
	code = model.NormalizeJoinCode(code)
	if code == "" {
		f.notify.Notify(LevelError, MsgEmptyCode)
		metrics.JoinAttempts.WithLabelValues("invalid_input").Inc()
		return NavigationState{}, apperr.Invalid(MsgEmptyCode)
	}

	f.mu.Lock()
	if f.joining {
		f.mu.Unlock()
		return NavigationState{}, ErrAlreadyJoining
	}
	f.joining = true
	f.state = StateJoining
	f.lastErr = nil
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.joining = false
		f.mu.Unlock()
	}()

	session, err := f.api.JoinSession(ctx, code)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) || apperr.Is(err, apperr.KindConflict) {
			return NavigationState{}, f.fail("invalid_code", apperr.New(apperr.KindNotFound, MsgInvalidCode, err), MsgInvalidCode)
		}
		return NavigationState{}, f.fail("error", err, MsgJoinFailed)
	}

	lesson, err := f.api.GetLesson(ctx, session.PresentationID)
	if err != nil {
		return NavigationState{}, f.fail("lesson_error", apperr.New(apperr.KindOf(err), MsgLessonLoad, err), MsgLessonLoad)
	}

	nav := NavigationState{
		SessionID:      session.ID,
		PresentationID: lesson.ID,
		JoinCode:       session.JoinCode,
	}

	f.mu.Lock()
	f.state = StateJoined
	f.lastNavi = &nav
	f.mu.Unlock()

	metrics.JoinAttempts.WithLabelValues("joined").Inc()
	f.log.Info("joined session", "session_id", session.ID, "presentation_id", lesson.ID)
	f.nav.Navigate("/session/"+session.ID, nav)
	return nav, nil
}

func (f *Flow) fail(outcome string, err error, message string) error {
	f.mu.Lock()
	f.state = StateFailed
	f.lastErr = err
	f.mu.Unlock()

	metrics.JoinAttempts.WithLabelValues(outcome).Inc()
	f.log.Warn("join failed", "outcome", outcome, "error", err)
	f.notify.Notify(LevelError, message)
	return err
}

// Close 대기 중인 로그인 요청 취소
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop != nil {
		f.stop()
		f.stop = nil
	}
}
