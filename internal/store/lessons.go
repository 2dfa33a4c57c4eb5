package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// CreateLesson 빈 레슨 생성
func (s *Store) CreateLesson(ctx context.Context, ownerID, title string) (*model.Lesson, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Invalid("title is required")
	}
	lesson := &model.Lesson{Title: title, OwnerID: ownerID}
	if err := s.db.WithContext(ctx).Create(lesson).Error; err != nil {
		s.log.Error("create lesson failed", "owner_id", ownerID, "error", err)
		return nil, wrap("create lesson", err)
	}
	s.publish(ctx, model.TablePresentations, realtime.Insert, lesson, nil)
	return lesson, nil
}

// GetLesson 슬라이드(position 순) 포함 조회
func (s *Store) GetLesson(ctx context.Context, id string) (*model.Lesson, error) {
	if err := checkID("lesson", id); err != nil {
		return nil, err
	}
	var lesson model.Lesson
	err := s.db.WithContext(ctx).
		Preload("Slides", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&lesson, "id = ?", id).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("get lesson failed", "lesson_id", id, "error", err)
		}
		return nil, wrap("lesson "+id, err)
	}
	return &lesson, nil
}

// LessonOwner 소유자 ID만 조회
func (s *Store) LessonOwner(ctx context.Context, id string) (string, error) {
	if err := checkID("lesson", id); err != nil {
		return "", err
	}
	var lesson model.Lesson
	if err := s.db.WithContext(ctx).Select("id", "owner_id").First(&lesson, "id = ?", id).Error; err != nil {
		return "", wrap("lesson "+id, err)
	}
	return lesson.OwnerID, nil
}

// CountSlides 레슨 슬라이드 수
func (s *Store) CountSlides(ctx context.Context, lessonID string) (int, error) {
	if err := checkID("lesson", lessonID); err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Slide{}).Where("presentation_id = ?", lessonID).Count(&n).Error; err != nil {
		return 0, wrap("count slides", err)
	}
	return int(n), nil
}

// ListLessons 소유자의 레슨 목록 (최근 수정 순)
func (s *Store) ListLessons(ctx context.Context, ownerID string) ([]model.Lesson, error) {
	var lessons []model.Lesson
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&lessons).Error; err != nil {
		s.log.Error("list lessons failed", "owner_id", ownerID, "error", err)
		return nil, wrap("list lessons", err)
	}
	return lessons, nil
}

// RenameLesson 제목 변경
func (s *Store) RenameLesson(ctx context.Context, id, title string) (*model.Lesson, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Invalid("title is required")
	}
	if err := checkID("lesson", id); err != nil {
		return nil, err
	}
	var lesson model.Lesson
	if err := s.db.WithContext(ctx).First(&lesson, "id = ?", id).Error; err != nil {
		return nil, wrap("lesson "+id, err)
	}
	old := lesson
	if err := s.db.WithContext(ctx).Model(&lesson).Update("title", title).Error; err != nil {
		s.log.Error("rename lesson failed", "lesson_id", id, "error", err)
		return nil, wrap("rename lesson", err)
	}
	lesson.Title = title
	s.publish(ctx, model.TablePresentations, realtime.Update, lesson, old)
	return &lesson, nil
}

// DeleteLesson 레슨과 슬라이드 삭제
func (s *Store) DeleteLesson(ctx context.Context, id string) error {
	if err := checkID("lesson", id); err != nil {
		return err
	}
	var (
		lesson model.Lesson
		slides []model.Slide
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&lesson, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Where("presentation_id = ?", id).Find(&slides).Error; err != nil {
			return err
		}
		if err := tx.Where("presentation_id = ?", id).Delete(&model.Slide{}).Error; err != nil {
			return err
		}
		return tx.Delete(&lesson).Error
	})
	if err != nil {
		s.log.Error("delete lesson failed", "lesson_id", id, "error", err)
		return wrap("delete lesson", err)
	}

	for i := range slides {
		s.publish(ctx, model.TableSlides, realtime.Delete, nil, slides[i])
	}
	s.publish(ctx, model.TablePresentations, realtime.Delete, nil, lesson)
	return nil
}
