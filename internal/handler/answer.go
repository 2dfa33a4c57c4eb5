package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/auth"
	"classroom-backend/internal/controls"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/middleware"
	"classroom-backend/internal/model"
)

// AnswerStore 응답 저장소
type AnswerStore interface {
	GetSlide(ctx context.Context, lessonID, slideID string) (*model.Slide, error)
	CreateAnswer(ctx context.Context, a *model.StudentAnswer) error
	ListStudentAnswers(ctx context.Context, sessionID, studentID string) ([]model.StudentAnswer, error)
}

// AnswerHandler 학생 응답 핸들러
type AnswerHandler struct {
	answers AnswerStore
	log     *logger.Logger
}

// NewAnswerHandler AnswerHandler 생성
func NewAnswerHandler(answers AnswerStore, log *logger.Logger) *AnswerHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AnswerHandler{answers: answers, log: log.With("component", "answer")}
}

// SubmitAnswerRequest 응답 제출
type SubmitAnswerRequest struct {
	SlideID string            `json:"slide_id" validate:"required"`
	BlockID string            `json:"block_id" validate:"required"`
	Value   model.AnswerValue `json:"value"`
}

// Submit 질문 블록에 응답 제출. 채점 결과가 함께 저장된다.
func (h *AnswerHandler) Submit(c *fiber.Ctx) error {
	if middleware.IsHost(c) {
		return fail(c, apperr.Forbidden("hosts cannot submit answers"))
	}
	session := middleware.Session(c)
	if !session.Active() {
		return fail(c, controls.ErrSessionEnded)
	}
	if session.IsPaused {
		return fail(c, controls.ErrPaused)
	}

	var req SubmitAnswerRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	if req.Value.IsZero() {
		return badRequest(c, "answer value is required")
	}

	slide, err := h.answers.GetSlide(c.UserContext(), session.PresentationID, req.SlideID)
	if err != nil {
		return fail(c, err)
	}
	question, ok := slide.BlockList().Find(req.BlockID).(*model.QuestionBlock)
	if !ok {
		return fail(c, apperr.NotFound("question %s not found on slide", req.BlockID))
	}

	answer := &model.StudentAnswer{
		SessionID:      session.ID,
		StudentID:      auth.UserID(c),
		PresentationID: session.PresentationID,
		SlideID:        slide.ID,
		BlockID:        question.ID,
		Value:          req.Value,
		IsCorrect:      question.Evaluate(req.Value),
	}
	if err := h.answers.CreateAnswer(c.UserContext(), answer); err != nil {
		return fail(c, err)
	}
	h.log.Debug("answer recorded", "session_id", session.ID, "block_id", question.ID, "graded", answer.IsCorrect != nil)
	return c.Status(fiber.StatusCreated).JSON(answer)
}

// ListMine 내 응답 목록
func (h *AnswerHandler) ListMine(c *fiber.Ctx) error {
	list, err := h.answers.ListStudentAnswers(c.UserContext(), c.Params("id"), auth.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(list)
}
