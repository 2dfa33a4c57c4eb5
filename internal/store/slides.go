package store

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// SlideInput 새 슬라이드 내용
type SlideInput struct {
	Title  string
	Blocks model.Blocks
	Layout *model.Layout
}

// SlidePatch 슬라이드 부분 수정 (nil 필드는 유지)
type SlidePatch struct {
	Title       *string
	Blocks      *model.Blocks
	Layout      *model.Layout
	ClearLayout bool
}

func validateSlide(blocks model.Blocks, layout *model.Layout) error {
	if err := blocks.Validate(); err != nil {
		return err
	}
	return layout.Validate()
}

// AddSlide 레슨 끝에 슬라이드 추가
func (s *Store) AddSlide(ctx context.Context, lessonID string, in SlideInput) (*model.Slide, error) {
	if err := checkID("lesson", lessonID); err != nil {
		return nil, err
	}
	if err := validateSlide(in.Blocks, in.Layout); err != nil {
		return nil, err
	}

	slide := &model.Slide{
		PresentationID: lessonID,
		Title:          strings.TrimSpace(in.Title),
		Blocks:         datatypes.NewJSONType(in.Blocks),
		Layout:         datatypes.NewJSONType(in.Layout),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&model.Lesson{}, "id = ?", lessonID).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&model.Slide{}).Where("presentation_id = ?", lessonID).Count(&count).Error; err != nil {
			return err
		}
		slide.Position = int(count)
		return tx.Create(slide).Error
	})
	if err != nil {
		s.log.Error("add slide failed", "lesson_id", lessonID, "error", err)
		return nil, wrap("add slide", err)
	}
	s.publish(ctx, model.TableSlides, realtime.Insert, slide, nil)
	return slide, nil
}

// GetSlide 레슨에 속한 슬라이드 조회
func (s *Store) GetSlide(ctx context.Context, lessonID, slideID string) (*model.Slide, error) {
	if err := checkID("slide", slideID); err != nil {
		return nil, err
	}
	var slide model.Slide
	if err := s.db.WithContext(ctx).
		First(&slide, "id = ? AND presentation_id = ?", slideID, lessonID).Error; err != nil {
		return nil, wrap("slide "+slideID, err)
	}
	return &slide, nil
}

// ListSlides 레슨 슬라이드 (position 순)
func (s *Store) ListSlides(ctx context.Context, lessonID string) ([]model.Slide, error) {
	if err := checkID("lesson", lessonID); err != nil {
		return nil, err
	}
	var slides []model.Slide
	if err := s.db.WithContext(ctx).
		Where("presentation_id = ?", lessonID).
		Order("position ASC").
		Find(&slides).Error; err != nil {
		s.log.Error("list slides failed", "lesson_id", lessonID, "error", err)
		return nil, wrap("list slides", err)
	}
	return slides, nil
}

// UpdateSlide 제목/블록/배치 수정
func (s *Store) UpdateSlide(ctx context.Context, lessonID, slideID string, p SlidePatch) (*model.Slide, error) {
	slide, err := s.GetSlide(ctx, lessonID, slideID)
	if err != nil {
		return nil, err
	}
	old := *slide

	updates := map[string]any{}
	if p.Title != nil {
		slide.Title = strings.TrimSpace(*p.Title)
		updates["title"] = slide.Title
	}
	if p.Blocks != nil {
		slide.Blocks = datatypes.NewJSONType(*p.Blocks)
		updates["blocks"] = slide.Blocks
	}
	switch {
	case p.ClearLayout:
		slide.Layout = datatypes.NewJSONType[*model.Layout](nil)
		updates["layout"] = slide.Layout
	case p.Layout != nil:
		slide.Layout = datatypes.NewJSONType(p.Layout)
		updates["layout"] = slide.Layout
	}
	if len(updates) == 0 {
		return slide, nil
	}
	if err := validateSlide(slide.BlockList(), slide.LayoutDef()); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(slide).Updates(updates).Error; err != nil {
		s.log.Error("update slide failed", "slide_id", slideID, "error", err)
		return nil, wrap("update slide", err)
	}
	s.publish(ctx, model.TableSlides, realtime.Update, slide, old)
	return slide, nil
}

// RemoveSlide 삭제 후 뒤 슬라이드 위치를 당긴다
func (s *Store) RemoveSlide(ctx context.Context, lessonID, slideID string) error {
	slide, err := s.GetSlide(ctx, lessonID, slideID)
	if err != nil {
		return err
	}

	var shifted []model.Slide
	var before []model.Slide
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(slide).Error; err != nil {
			return err
		}
		if err := tx.Where("presentation_id = ? AND position > ?", lessonID, slide.Position).
			Order("position ASC").Find(&before).Error; err != nil {
			return err
		}
		// 오름차순으로 하나씩 당긴다 (바로 앞 자리가 항상 비어 있음)
		for _, sl := range before {
			next := sl
			next.Position = sl.Position - 1
			if err := tx.Model(&model.Slide{}).Where("id = ?", sl.ID).Update("position", next.Position).Error; err != nil {
				return err
			}
			shifted = append(shifted, next)
		}
		return nil
	})
	if err != nil {
		s.log.Error("remove slide failed", "slide_id", slideID, "error", err)
		return wrap("remove slide", err)
	}

	s.publish(ctx, model.TableSlides, realtime.Delete, nil, *slide)
	for i := range shifted {
		s.publish(ctx, model.TableSlides, realtime.Update, shifted[i], before[i])
	}
	return nil
}

// ReorderSlides 슬라이드 ID 순서대로 position 재배치 (레슨 슬라이드의 순열이어야 함)
func (s *Store) ReorderSlides(ctx context.Context, lessonID string, order []string) ([]model.Slide, error) {
	current, err := s.ListSlides(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if len(order) != len(current) {
		return nil, apperr.Invalid("order must list all %d slides", len(current))
	}
	byID := make(map[string]model.Slide, len(current))
	for _, sl := range current {
		byID[sl.ID] = sl
	}
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if _, ok := byID[id]; !ok {
			return nil, apperr.Invalid("slide %s does not belong to lesson %s", id, lessonID)
		}
		if _, dup := seen[id]; dup {
			return nil, apperr.Invalid("slide %s listed twice", id)
		}
		seen[id] = struct{}{}
	}

	var changed []int
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 유니크 인덱스 충돌을 피하려고 먼저 음수 자리로 옮긴다
		for i, id := range order {
			if byID[id].Position == i {
				continue
			}
			if err := tx.Model(&model.Slide{}).Where("id = ?", id).Update("position", -(i + 1)).Error; err != nil {
				return err
			}
			changed = append(changed, i)
		}
		for _, i := range changed {
			if err := tx.Model(&model.Slide{}).Where("id = ?", order[i]).Update("position", i).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("reorder slides failed", "lesson_id", lessonID, "error", err)
		return nil, wrap("reorder slides", err)
	}

	out := make([]model.Slide, len(order))
	for i, id := range order {
		out[i] = byID[id]
		out[i].Position = i
	}
	for _, i := range changed {
		s.publish(ctx, model.TableSlides, realtime.Update, out[i], byID[order[i]])
	}
	return out, nil
}
