package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/auth"
	"classroom-backend/internal/cache"
	"classroom-backend/internal/controls"
	"classroom-backend/internal/join"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/metrics"
	"classroom-backend/internal/middleware"
	"classroom-backend/internal/model"
	"classroom-backend/internal/progress"
)

// SessionStore 발표 세션/참가자 저장소
type SessionStore interface {
	StartSession(ctx context.Context, lessonID, hostID string) (*model.PresentationSession, error)
	GetSession(ctx context.Context, id string) (*model.PresentationSession, error)
	GetActiveSessionByCode(ctx context.Context, code string) (*model.PresentationSession, error)
	AttachParticipant(ctx context.Context, session *model.PresentationSession, userID string) (*model.SessionParticipant, bool, error)
	GetParticipant(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error)
	SetParticipantSlide(ctx context.Context, sessionID, userID string, index int) (*model.SessionParticipant, error)
	TouchParticipant(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error)
	CountSlides(ctx context.Context, lessonID string) (int, error)
}

// CodeCache 참가 코드 캐시 (Redis 미설정 시 nil)
type CodeCache interface {
	PutCode(ctx context.Context, code string, entry cache.CodeEntry, ttl time.Duration) error
	LookupCode(ctx context.Context, code string) (cache.CodeEntry, bool, error)
	InvalidateCode(ctx context.Context, code string) error
}

// Heartbeater 참가자 생존 신고 (Redis 미설정 시 nil)
type Heartbeater interface {
	Heartbeat(ctx context.Context, sessionID, userID string, currentSlide int) error
}

// ProgressLoader 진행 그리드 로더
type ProgressLoader interface {
	Load(ctx context.Context, sessionID string, sortBy controls.SortKey) (progress.Grid, error)
}

// SessionHandler 발표 세션 핸들러
type SessionHandler struct {
	sessions SessionStore
	controls *controls.Service
	progress ProgressLoader
	codes    CodeCache
	presence Heartbeater
	codeTTL  time.Duration
	joinBase string
	log      *logger.Logger
}

// SessionOptions 선택 의존성. 인터페이스 필드에 typed nil을 넣지 않는다.
type SessionOptions struct {
	Codes    CodeCache
	Presence Heartbeater
	CodeTTL  time.Duration
	JoinBase string // 참가 링크 기본 URL
}

// NewSessionHandler SessionHandler 생성
func NewSessionHandler(sessions SessionStore, ctrl *controls.Service, loader ProgressLoader, opts SessionOptions, log *logger.Logger) *SessionHandler {
	if log == nil {
		log = logger.Nop()
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	return &SessionHandler{
		sessions: sessions,
		controls: ctrl,
		progress: loader,
		codes:    opts.Codes,
		presence: opts.Presence,
		codeTTL:  opts.CodeTTL,
		joinBase: opts.JoinBase,
		log:      log.With("component", "session"),
	}
}

// StartSessionResponse 세션 시작 응답
type StartSessionResponse struct {
	Session  *model.PresentationSession `json:"session"`
	JoinLink string                     `json:"join_link"`
}

// JoinRequest 참가 요청
type JoinRequest struct {
	Code string `json:"code"`
}

// ToggleRequest 켜기/끄기 컨트롤
type ToggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// PauseRequest 일시정지 컨트롤
type PauseRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

// PacingRequest 학생 진도 컨트롤. allowed_slides를 생략하면 기존 목록 유지.
type PacingRequest struct {
	Enabled       *bool  `json:"enabled" validate:"required"`
	AllowedSlides *[]int `json:"allowed_slides"`
}

// SlideIndexRequest 슬라이드 이동
type SlideIndexRequest struct {
	Index *int `json:"index" validate:"required"`
}

func (h *SessionHandler) cacheCode(ctx context.Context, s *model.PresentationSession) {
	if h.codes == nil {
		return
	}
	entry := cache.CodeEntry{SessionID: s.ID, PresentationID: s.PresentationID}
	if err := h.codes.PutCode(ctx, s.JoinCode, entry, h.codeTTL); err != nil {
		h.log.Warn("cache join code failed", "session_id", s.ID, "error", err)
	}
}

func (h *SessionHandler) heartbeat(ctx context.Context, sessionID, userID string, slide int) {
	if h.presence == nil {
		return
	}
	if err := h.presence.Heartbeat(ctx, sessionID, userID, slide); err != nil {
		h.log.Warn("presence heartbeat failed", "session_id", sessionID, "user_id", userID, "error", err)
	}
}

// Start 레슨 발표 세션 시작 (레슨 소유자)
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	session, err := h.sessions.StartSession(c.UserContext(), c.Params("id"), auth.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	h.cacheCode(c.UserContext(), session)

	resp := StartSessionResponse{Session: session}
	if h.joinBase != "" {
		resp.JoinLink = join.Link(h.joinBase, session.JoinCode)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// resolveCode 캐시 → DB 순으로 활성 세션 조회
func (h *SessionHandler) resolveCode(ctx context.Context, code string) (*model.PresentationSession, error) {
	if h.codes != nil {
		entry, ok, err := h.codes.LookupCode(ctx, code)
		if err != nil {
			h.log.Warn("join code cache lookup failed", "error", err)
		}
		if ok {
			s, err := h.sessions.GetSession(ctx, entry.SessionID)
			if err == nil && s.Active() {
				return s, nil
			}
			// 종료됐거나 사라진 세션
			_ = h.codes.InvalidateCode(ctx, code)
		}
	}

	s, err := h.sessions.GetActiveSessionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	h.cacheCode(ctx, s)
	return s, nil
}

// Join 참가 코드로 세션 참가 (등록 또는 기존 참가자 연결)
func (h *SessionHandler) Join(c *fiber.Ctx) error {
	var req JoinRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	code := model.NormalizeJoinCode(req.Code)
	if code == "" {
		metrics.JoinAttempts.WithLabelValues("invalid_input").Inc()
		return badRequest(c, join.MsgEmptyCode)
	}

	ctx := c.UserContext()
	session, err := h.resolveCode(ctx, code)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			metrics.JoinAttempts.WithLabelValues("invalid_code").Inc()
			return fail(c, apperr.NotFound(join.MsgInvalidCode))
		}
		metrics.JoinAttempts.WithLabelValues("error").Inc()
		return fail(c, err)
	}

	userID := auth.UserID(c)
	if session.HostID != userID {
		participant, created, err := h.sessions.AttachParticipant(ctx, session, userID)
		if err != nil {
			metrics.JoinAttempts.WithLabelValues("error").Inc()
			return fail(c, err)
		}
		h.heartbeat(ctx, session.ID, userID, participant.CurrentSlide)
		h.log.Info("participant joined", "session_id", session.ID, "user_id", userID, "new", created)
	}

	metrics.JoinAttempts.WithLabelValues("joined").Inc()
	return c.JSON(session)
}

// Get 세션 조회 (참가자/호스트)
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	return c.JSON(middleware.Session(c))
}

func (h *SessionHandler) slideCount(c *fiber.Ctx, s *model.PresentationSession) (int, error) {
	return h.sessions.CountSlides(c.UserContext(), s.PresentationID)
}

// SetAnonymous 익명 모드
func (h *SessionHandler) SetAnonymous(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	s, err := h.controls.SetAnonymous(c.UserContext(), c.Params("id"), *req.Enabled)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(s)
}

// SetSync 교사 슬라이드 동기화
func (h *SessionHandler) SetSync(c *fiber.Ctx) error {
	var req ToggleRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	s, err := h.controls.SetSync(c.UserContext(), c.Params("id"), *req.Enabled)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(s)
}

// SetPaused 일시정지
func (h *SessionHandler) SetPaused(c *fiber.Ctx) error {
	var req PauseRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	s, err := h.controls.SetPaused(c.UserContext(), c.Params("id"), *req.Paused)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(s)
}

// SetPacing 학생 진도 허용 슬라이드
func (h *SessionHandler) SetPacing(c *fiber.Ctx) error {
	var req PacingRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	count, err := h.slideCount(c, middleware.Session(c))
	if err != nil {
		return fail(c, err)
	}
	var allowed []int
	if req.AllowedSlides != nil {
		allowed = *req.AllowedSlides
	}
	s, err := h.controls.SetPacing(c.UserContext(), c.Params("id"), *req.Enabled, allowed, count)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(s)
}

// GoToSlide 교사 현재 슬라이드
func (h *SessionHandler) GoToSlide(c *fiber.Ctx) error {
	var req SlideIndexRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	count, err := h.slideCount(c, middleware.Session(c))
	if err != nil {
		return fail(c, err)
	}
	s, err := h.controls.GoToSlide(c.UserContext(), c.Params("id"), *req.Index, count)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(s)
}

// End 세션 종료 (이후 변경은 거부)
func (h *SessionHandler) End(c *fiber.Ctx) error {
	s, err := h.controls.End(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	if h.codes != nil {
		if err := h.codes.InvalidateCode(c.UserContext(), s.JoinCode); err != nil {
			h.log.Warn("invalidate join code failed", "session_id", s.ID, "error", err)
		}
	}
	return c.JSON(s)
}

// Navigate 학생 자신의 슬라이드 이동 (세션 규칙 검사)
func (h *SessionHandler) Navigate(c *fiber.Ctx) error {
	if middleware.IsHost(c) {
		return fail(c, apperr.Forbidden("hosts move the session with the slide control"))
	}
	var req SlideIndexRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	session := middleware.Session(c)
	count, err := h.slideCount(c, session)
	if err != nil {
		return fail(c, err)
	}
	if err := controls.CanNavigate(session, count, *req.Index); err != nil {
		return fail(c, err)
	}

	userID := auth.UserID(c)
	p, err := h.sessions.SetParticipantSlide(c.UserContext(), session.ID, userID, *req.Index)
	if err != nil {
		return fail(c, err)
	}
	h.heartbeat(c.UserContext(), session.ID, userID, p.CurrentSlide)
	return c.JSON(p)
}

// Heartbeat 학생 접속 유지 신고
func (h *SessionHandler) Heartbeat(c *fiber.Ctx) error {
	session := middleware.Session(c)
	if middleware.IsHost(c) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	userID := auth.UserID(c)
	if h.presence == nil {
		// Redis가 없으면 last_seen_at만 갱신
		if _, err := h.sessions.TouchParticipant(c.UserContext(), session.ID, userID); err != nil {
			return fail(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
	p, err := h.sessions.GetParticipant(c.UserContext(), session.ID, userID)
	if err != nil {
		return fail(c, err)
	}
	h.heartbeat(c.UserContext(), session.ID, userID, controls.EffectiveSlide(session, p))
	return c.SendStatus(fiber.StatusNoContent)
}

// Progress 학생별 진행 그리드 (호스트)
func (h *SessionHandler) Progress(c *fiber.Ctx) error {
	key, err := controls.ParseSortKey(c.Query("sort"))
	if err != nil {
		return fail(c, err)
	}
	grid, err := h.progress.Load(c.UserContext(), c.Params("id"), key)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(grid)
}
