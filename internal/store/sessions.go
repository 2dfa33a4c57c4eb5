package store

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

const maxJoinCodeAttempts = 5

// SessionPatch 세션 행 부분 수정 (nil 필드는 유지)
type SessionPatch struct {
	CurrentSlide         *int
	AnonymousMode        *bool
	SyncEnabled          *bool
	StudentPacingEnabled *bool
	IsPaused             *bool
	AllowedSlides        *[]int
}

func (p SessionPatch) columns() map[string]any {
	m := map[string]any{}
	if p.CurrentSlide != nil {
		m["current_slide"] = *p.CurrentSlide
	}
	if p.AnonymousMode != nil {
		m["anonymous_mode"] = *p.AnonymousMode
	}
	if p.SyncEnabled != nil {
		m["sync_enabled"] = *p.SyncEnabled
	}
	if p.StudentPacingEnabled != nil {
		m["student_pacing_enabled"] = *p.StudentPacingEnabled
	}
	if p.IsPaused != nil {
		m["is_paused"] = *p.IsPaused
	}
	if p.AllowedSlides != nil {
		m["allowed_slides"] = datatypes.JSONSlice[int](*p.AllowedSlides)
	}
	return m
}

func (p SessionPatch) apply(s *model.PresentationSession) {
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
		s.AllowedSlides = datatypes.JSONSlice[int](*p.AllowedSlides)
	}
}

// GenerateJoinCode 혼동 문자 없는 6자리 코드
func GenerateJoinCode() (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(model.JoinCodeAlphabet)))
	for i := 0; i < model.JoinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b.WriteByte(model.JoinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// StartSession 레슨 발표 세션 시작 (코드 충돌 시 재시도)
func (s *Store) StartSession(ctx context.Context, lessonID, hostID string) (*model.PresentationSession, error) {
	if err := checkID("lesson", lessonID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Select("id").First(&model.Lesson{}, "id = ?", lessonID).Error; err != nil {
		return nil, wrap("lesson "+lessonID, err)
	}

	for attempt := 1; attempt <= maxJoinCodeAttempts; attempt++ {
		code, err := GenerateJoinCode()
		if err != nil {
			return nil, apperr.Backend("generate join code", err)
		}
		session := &model.PresentationSession{
			JoinCode:       code,
			PresentationID: lessonID,
			HostID:         hostID,
			SyncEnabled:    true,
			AllowedSlides:  datatypes.JSONSlice[int]{},
		}
		err = s.db.WithContext(ctx).Create(session).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.log.Warn("join code collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			s.log.Error("start session failed", "lesson_id", lessonID, "error", err)
			return nil, wrap("start session", err)
		}
		s.publish(ctx, model.TablePresentationSessions, realtime.Insert, session, nil)
		s.log.Info("session started", "session_id", session.ID, "lesson_id", lessonID, "join_code", code)
		return session, nil
	}
	return nil, apperr.Conflict("could not allocate a unique join code")
}

// GetSession ID로 세션 조회 (종료된 세션 포함)
func (s *Store) GetSession(ctx context.Context, id string) (*model.PresentationSession, error) {
	if err := checkID("session", id); err != nil {
		return nil, err
	}
	var session model.PresentationSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error; err != nil {
		return nil, wrap("session "+id, err)
	}
	return &session, nil
}

// GetActiveSessionByCode 진행 중인 세션만 조회
func (s *Store) GetActiveSessionByCode(ctx context.Context, code string) (*model.PresentationSession, error) {
	code = model.NormalizeJoinCode(code)
	if code == "" {
		return nil, apperr.Invalid("join code is required")
	}
	var session model.PresentationSession
	if err := s.db.WithContext(ctx).
		Where("join_code = ? AND ended_at IS NULL", code).
		First(&session).Error; err != nil {
		return nil, wrap("session code "+code, err)
	}
	return &session, nil
}

// ListSessions 레슨의 세션 목록 (최근 순)
func (s *Store) ListSessions(ctx context.Context, lessonID string) ([]model.PresentationSession, error) {
	if err := checkID("lesson", lessonID); err != nil {
		return nil, err
	}
	var sessions []model.PresentationSession
	if err := s.db.WithContext(ctx).
		Where("presentation_id = ?", lessonID).
		Order("started_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, wrap("list sessions", err)
	}
	return sessions, nil
}

// UpdateSession 진행 중인 세션 행 수정. 종료된 세션이면 ErrSessionEnded.
func (s *Store) UpdateSession(ctx context.Context, id string, p SessionPatch) (*model.PresentationSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		return nil, ErrSessionEnded
	}
	cols := p.columns()
	if len(cols) == 0 {
		return session, nil
	}
	old := *session
	cols["updated_at"] = time.Now()

	res := s.db.WithContext(ctx).Model(&model.PresentationSession{}).
		Where("id = ? AND ended_at IS NULL", id).
		Updates(cols)
	if res.Error != nil {
		s.log.Error("update session failed", "session_id", id, "error", res.Error)
		return nil, wrap("update session", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionEnded
	}
	p.apply(session)
	session.UpdatedAt = cols["updated_at"].(time.Time)

	s.publish(ctx, model.TablePresentationSessions, realtime.Update, session, old)
	return session, nil
}

// EndSession 종료 시각 기록 (이미 종료됐으면 ErrSessionEnded)
func (s *Store) EndSession(ctx context.Context, id string) (*model.PresentationSession, error) {
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		return nil, ErrSessionEnded
	}
	return s.endSession(ctx, session)
}

func (s *Store) endSession(ctx context.Context, session *model.PresentationSession) (*model.PresentationSession, error) {
	old := *session
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&model.PresentationSession{}).
		Where("id = ? AND ended_at IS NULL", session.ID).
		Updates(map[string]any{"ended_at": now, "updated_at": now})
	if res.Error != nil {
		s.log.Error("end session failed", "session_id", session.ID, "error", res.Error)
		return nil, wrap("end session", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionEnded
	}
	session.EndedAt = &now
	session.UpdatedAt = now

	s.publish(ctx, model.TablePresentationSessions, realtime.Update, session, old)
	s.log.Info("session ended", "session_id", session.ID)
	return session, nil
}

// EndStaleSessions maxAge보다 오래 진행 중인 세션 종료. 종료된 세션을 반환한다.
func (s *Store) EndStaleSessions(ctx context.Context, maxAge time.Duration) ([]model.PresentationSession, error) {
	var stale []model.PresentationSession
	if err := s.db.WithContext(ctx).
		Where("ended_at IS NULL AND started_at < ?", time.Now().Add(-maxAge)).
		Find(&stale).Error; err != nil {
		s.log.Error("find stale sessions failed", "error", err)
		return nil, wrap("find stale sessions", err)
	}

	ended := make([]model.PresentationSession, 0, len(stale))
	for i := range stale {
		out, err := s.endSession(ctx, &stale[i])
		if errors.Is(err, ErrSessionEnded) {
			continue
		}
		if err != nil {
			return ended, err
		}
		ended = append(ended, *out)
	}
	return ended, nil
}
