package store

import (
	"context"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// CreateAnswer 응답 기록 (수정/삭제 없음)
func (s *Store) CreateAnswer(ctx context.Context, a *model.StudentAnswer) error {
	if a.Value.IsZero() {
		return apperr.Invalid("answer value is required")
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		s.log.Error("create answer failed", "session_id", a.SessionID, "student_id", a.StudentID, "error", err)
		return wrap("create answer", err)
	}
	s.publish(ctx, model.TableStudentAnswers, realtime.Insert, a, nil)
	return nil
}

// ListAnswers 세션 응답 전체 (시간 순)
func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]model.StudentAnswer, error) {
	if err := checkID("session", sessionID); err != nil {
		return nil, err
	}
	var rows []model.StudentAnswer
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		s.log.Error("list answers failed", "session_id", sessionID, "error", err)
		return nil, wrap("list answers", err)
	}
	return rows, nil
}

// ListStudentAnswers 한 학생의 세션 응답
func (s *Store) ListStudentAnswers(ctx context.Context, sessionID, studentID string) ([]model.StudentAnswer, error) {
	if err := checkID("session", sessionID); err != nil {
		return nil, err
	}
	var rows []model.StudentAnswer
	if err := s.db.WithContext(ctx).
		Where("session_id = ? AND student_id = ?", sessionID, studentID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, wrap("list student answers", err)
	}
	return rows, nil
}
