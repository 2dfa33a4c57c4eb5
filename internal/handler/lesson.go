package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/auth"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// LessonStore 레슨/슬라이드 저장소
type LessonStore interface {
	CreateLesson(ctx context.Context, ownerID, title string) (*model.Lesson, error)
	GetLesson(ctx context.Context, id string) (*model.Lesson, error)
	ListLessons(ctx context.Context, ownerID string) ([]model.Lesson, error)
	RenameLesson(ctx context.Context, id, title string) (*model.Lesson, error)
	DeleteLesson(ctx context.Context, id string) error

	AddSlide(ctx context.Context, lessonID string, in store.SlideInput) (*model.Slide, error)
	UpdateSlide(ctx context.Context, lessonID, slideID string, p store.SlidePatch) (*model.Slide, error)
	RemoveSlide(ctx context.Context, lessonID, slideID string) error
	ReorderSlides(ctx context.Context, lessonID string, order []string) ([]model.Slide, error)
}

// LessonHandler 레슨 편집 핸들러. 라우트는 RequireLessonOwner 뒤에 둔다.
type LessonHandler struct {
	lessons LessonStore
	log     *logger.Logger
}

// NewLessonHandler LessonHandler 생성
func NewLessonHandler(lessons LessonStore, log *logger.Logger) *LessonHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &LessonHandler{lessons: lessons, log: log.With("component", "lesson")}
}

// LessonRequest 레슨 생성/이름 변경
type LessonRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

// SlideRequest 슬라이드 추가/수정. layout에 null을 보내면 배치를 지운다.
type SlideRequest struct {
	Title  *string         `json:"title" validate:"omitempty,max=200"`
	Blocks *model.Blocks   `json:"blocks"`
	Layout json.RawMessage `json:"layout"`
}

// ReorderRequest 새 슬라이드 순서
type ReorderRequest struct {
	Order []string `json:"order" validate:"required"`
}

// ListLessons 내 레슨 목록
func (h *LessonHandler) ListLessons(c *fiber.Ctx) error {
	lessons, err := h.lessons.ListLessons(c.UserContext(), auth.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(lessons)
}

// CreateLesson 레슨 생성
func (h *LessonHandler) CreateLesson(c *fiber.Ctx) error {
	var req LessonRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	lesson, err := h.lessons.CreateLesson(c.UserContext(), auth.UserID(c), strings.TrimSpace(req.Title))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(lesson)
}

// GetLesson 레슨 + 슬라이드
func (h *LessonHandler) GetLesson(c *fiber.Ctx) error {
	lesson, err := h.lessons.GetLesson(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(lesson)
}

// RenameLesson 레슨 이름 변경
func (h *LessonHandler) RenameLesson(c *fiber.Ctx) error {
	var req LessonRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	lesson, err := h.lessons.RenameLesson(c.UserContext(), c.Params("id"), strings.TrimSpace(req.Title))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(lesson)
}

// DeleteLesson 레슨 삭제 (슬라이드 포함)
func (h *LessonHandler) DeleteLesson(c *fiber.Ctx) error {
	if err := h.lessons.DeleteLesson(c.UserContext(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func decodeLayout(raw json.RawMessage) (layout *model.Layout, reset bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, nil
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, true, nil
	}
	var l model.Layout
	if err := json.Unmarshal(trimmed, &l); err != nil {
		return nil, false, apperr.Invalid("invalid layout: %v", err)
	}
	return &l, false, nil
}

// AddSlide 슬라이드 추가 (맨 뒤)
func (h *LessonHandler) AddSlide(c *fiber.Ctx) error {
	var req SlideRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	layout, _, err := decodeLayout(req.Layout)
	if err != nil {
		return fail(c, err)
	}

	in := store.SlideInput{Layout: layout}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Blocks != nil {
		in.Blocks = *req.Blocks
	}
	slide, err := h.lessons.AddSlide(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(slide)
}

// UpdateSlide 슬라이드 부분 수정
func (h *LessonHandler) UpdateSlide(c *fiber.Ctx) error {
	var req SlideRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	layout, reset, err := decodeLayout(req.Layout)
	if err != nil {
		return fail(c, err)
	}

	slide, err := h.lessons.UpdateSlide(c.UserContext(), c.Params("id"), c.Params("slideId"), store.SlidePatch{
		Title:       req.Title,
		Blocks:      req.Blocks,
		Layout:      layout,
		ClearLayout: reset,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(slide)
}

// RemoveSlide 슬라이드 삭제
func (h *LessonHandler) RemoveSlide(c *fiber.Ctx) error {
	if err := h.lessons.RemoveSlide(c.UserContext(), c.Params("id"), c.Params("slideId")); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ReorderSlides 슬라이드 순서 변경
func (h *LessonHandler) ReorderSlides(c *fiber.Ctx) error {
	var req ReorderRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	slides, err := h.lessons.ReorderSlides(c.UserContext(), c.Params("id"), req.Order)
	if err != nil {
		return fail(c, err)
	}
	h.log.Debug("slides reordered", "lesson_id", c.Params("id"), "count", len(slides))
	return c.JSON(slides)
}
