// Package controls implements the teacher-side session controls and the
// student navigation gate that the controls imply.
package controls

import (
	"context"
	"slices"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// ErrSessionEnded 종료된 세션 변경
var ErrSessionEnded = store.ErrSessionEnded

// SessionStore 세션 행 접근
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*model.PresentationSession, error)
	UpdateSession(ctx context.Context, id string, p store.SessionPatch) (*model.PresentationSession, error)
	EndSession(ctx context.Context, id string) (*model.PresentationSession, error)
}

// Service 교사용 세션 제어. 상태는 세션 행에만 있고, 변경은 변경 피드로 관찰된다.
type Service struct {
	sessions SessionStore
	log      *logger.Logger
}

func New(sessions SessionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{sessions: sessions, log: log.With("component", "controls")}
}

// SetAnonymous 익명 표시 모드
func (s *Service) SetAnonymous(ctx context.Context, sessionID string, on bool) (*model.PresentationSession, error) {
	return s.update(ctx, sessionID, "anonymous", store.SessionPatch{AnonymousMode: &on})
}

// SetSync 동기화 잠금 (학생 슬라이드가 교사를 따라감)
func (s *Service) SetSync(ctx context.Context, sessionID string, on bool) (*model.PresentationSession, error) {
	return s.update(ctx, sessionID, "sync", store.SessionPatch{SyncEnabled: &on})
}

// SetPaused 일시정지
func (s *Service) SetPaused(ctx context.Context, sessionID string, paused bool) (*model.PresentationSession, error) {
	return s.update(ctx, sessionID, "pause", store.SessionPatch{IsPaused: &paused})
}

// SetPacing 학생 이동을 허용 슬라이드로 제한.
// 켜면서 목록이 비어 있으면 현재 슬라이드만 허용한다. 끌 때 allowed가 nil이면 목록은 유지.
func (s *Service) SetPacing(ctx context.Context, sessionID string, enabled bool, allowed []int, slideCount int) (*model.PresentationSession, error) {
	patch := store.SessionPatch{StudentPacingEnabled: &enabled}

	if enabled && len(allowed) == 0 {
		session, err := s.sessions.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !session.Active() {
			return nil, ErrSessionEnded
		}
		allowed = []int{session.CurrentSlide}
	}
	if allowed != nil {
		list, err := NormalizeAllowed(allowed, slideCount)
		if err != nil {
			return nil, err
		}
		patch.AllowedSlides = &list
	}
	return s.update(ctx, sessionID, "pacing", patch)
}

// GoToSlide 교사 현재 슬라이드 변경
func (s *Service) GoToSlide(ctx context.Context, sessionID string, index, slideCount int) (*model.PresentationSession, error) {
	if err := checkIndex(index, slideCount); err != nil {
		return nil, err
	}
	return s.update(ctx, sessionID, "slide", store.SessionPatch{CurrentSlide: &index})
}

// End 세션 종료. 이후 변경은 ErrSessionEnded.
func (s *Service) End(ctx context.Context, sessionID string) (*model.PresentationSession, error) {
	session, err := s.sessions.EndSession(ctx, sessionID)
	if err != nil {
		s.log.Warn("end session failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	return session, nil
}

func (s *Service) update(ctx context.Context, sessionID, control string, patch store.SessionPatch) (*model.PresentationSession, error) {
	session, err := s.sessions.UpdateSession(ctx, sessionID, patch)
	if err != nil {
		s.log.Warn("session control failed", "control", control, "session_id", sessionID, "error", err)
		return nil, err
	}
	s.log.Debug("session control applied", "control", control, "session_id", sessionID)
	return session, nil
}

// NormalizeAllowed 중복 제거, 정렬, 범위 확인
func NormalizeAllowed(allowed []int, slideCount int) ([]int, error) {
	out := make([]int, 0, len(allowed))
	for _, idx := range allowed {
		if err := checkIndex(idx, slideCount); err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func checkIndex(index, slideCount int) error {
	if slideCount <= 0 {
		return apperr.Invalid("lesson has no slides")
	}
	if index < 0 || index >= slideCount {
		return apperr.Invalid("slide index %d out of range [0, %d)", index, slideCount)
	}
	return nil
}
