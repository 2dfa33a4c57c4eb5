package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// AttachParticipant 참가자 등록 또는 기존 행 반환 (멱등). created는 새로 등록됐는지.
func (s *Store) AttachParticipant(ctx context.Context, session *model.PresentationSession, userID string) (*model.SessionParticipant, bool, error) {
	p := &model.SessionParticipant{
		SessionID:    session.ID,
		UserID:       userID,
		CurrentSlide: session.CurrentSlide,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		s.log.Error("attach participant failed", "session_id", session.ID, "user_id", userID, "error", res.Error)
		return nil, false, wrap("attach participant", res.Error)
	}
	created := res.RowsAffected > 0

	var row model.SessionParticipant
	if err := s.db.WithContext(ctx).
		First(&row, "session_id = ? AND user_id = ?", session.ID, userID).Error; err != nil {
		return nil, false, wrap("load participant", err)
	}
	if created {
		s.publish(ctx, model.TableSessionParticipants, realtime.Insert, row, nil)
	}
	return &row, created, nil
}

// GetParticipant 세션의 특정 참가자
func (s *Store) GetParticipant(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error) {
	if err := checkID("session", sessionID); err != nil {
		return nil, err
	}
	var row model.SessionParticipant
	if err := s.db.WithContext(ctx).
		First(&row, "session_id = ? AND user_id = ?", sessionID, userID).Error; err != nil {
		return nil, wrap("participant "+userID, err)
	}
	return &row, nil
}

// SetParticipantSlide 참가자 현재 슬라이드 변경
func (s *Store) SetParticipantSlide(ctx context.Context, sessionID, userID string, index int) (*model.SessionParticipant, error) {
	return s.updateParticipant(ctx, sessionID, userID, func(p *model.SessionParticipant) map[string]any {
		now := time.Now()
		p.CurrentSlide = index
		p.LastSeenAt = now
		return map[string]any{"current_slide": index, "last_seen_at": now}
	})
}

// TouchParticipant 마지막 활동 시각 갱신
func (s *Store) TouchParticipant(ctx context.Context, sessionID, userID string) (*model.SessionParticipant, error) {
	return s.updateParticipant(ctx, sessionID, userID, func(p *model.SessionParticipant) map[string]any {
		now := time.Now()
		p.LastSeenAt = now
		return map[string]any{"last_seen_at": now}
	})
}

func (s *Store) updateParticipant(ctx context.Context, sessionID, userID string, change func(*model.SessionParticipant) map[string]any) (*model.SessionParticipant, error) {
	p, err := s.GetParticipant(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	old := *p
	cols := change(p)
	if err := s.db.WithContext(ctx).Model(&model.SessionParticipant{}).
		Where("id = ?", p.ID).
		Updates(cols).Error; err != nil {
		s.log.Error("update participant failed", "participant_id", p.ID, "error", err)
		return nil, wrap("update participant", err)
	}
	s.publish(ctx, model.TableSessionParticipants, realtime.Update, *p, old)
	return p, nil
}

// ListParticipants 세션 참가자 (사용자 포함, 입장 순)
func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]model.SessionParticipant, error) {
	if err := checkID("session", sessionID); err != nil {
		return nil, err
	}
	var rows []model.SessionParticipant
	if err := s.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select("id", "email", "first_name", "last_name", "provider", "created_at") }).
		Where("session_id = ?", sessionID).
		Order("joined_at ASC").
		Find(&rows).Error; err != nil {
		s.log.Error("list participants failed", "session_id", sessionID, "error", err)
		return nil, wrap("list participants", err)
	}
	return rows, nil
}
