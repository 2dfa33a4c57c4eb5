package middleware

import (
	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/auth"
	"classroom-backend/internal/model"
	"classroom-backend/internal/service"
)

const (
	localsSession = "session"
	localsIsHost  = "isHost"
)

// AccessMiddleware 레슨/세션 권한 미들웨어
type AccessMiddleware struct {
	access *service.AccessService
}

// NewAccessMiddleware AccessMiddleware 생성
func NewAccessMiddleware(access *service.AccessService) *AccessMiddleware {
	return &AccessMiddleware{access: access}
}

func deny(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindBackend {
		msg = "internal error"
	}
	return c.Status(apperr.HTTPStatus(kind)).JSON(fiber.Map{
		"error": msg,
		"code":  kind,
	})
}

// RequireLessonOwner :id 레슨 소유자 필수
func (m *AccessMiddleware) RequireLessonOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		if userID == "" {
			return deny(c, apperr.New(apperr.KindUnauthorized, "unauthorized", nil))
		}
		if err := m.access.RequireLessonOwner(c.UserContext(), c.Params("id"), userID); err != nil {
			return deny(c, err)
		}
		return c.Next()
	}
}

// RequireSessionHost :id 세션 호스트 필수
func (m *AccessMiddleware) RequireSessionHost() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		if userID == "" {
			return deny(c, apperr.New(apperr.KindUnauthorized, "unauthorized", nil))
		}
		session, err := m.access.RequireSessionHost(c.UserContext(), c.Params("id"), userID)
		if err != nil {
			return deny(c, err)
		}
		c.Locals(localsSession, session)
		c.Locals(localsIsHost, true)
		return c.Next()
	}
}

// RequireSessionMember :id 세션 호스트 또는 참가자 필수
func (m *AccessMiddleware) RequireSessionMember() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		if userID == "" {
			return deny(c, apperr.New(apperr.KindUnauthorized, "unauthorized", nil))
		}
		session, isHost, err := m.access.RequireSessionMember(c.UserContext(), c.Params("id"), userID)
		if err != nil {
			return deny(c, err)
		}
		c.Locals(localsSession, session)
		c.Locals(localsIsHost, isHost)
		return c.Next()
	}
}

// Session 미들웨어가 확인한 세션
func Session(c *fiber.Ctx) *model.PresentationSession {
	s, _ := c.Locals(localsSession).(*model.PresentationSession)
	return s
}

// IsHost 현재 사용자가 세션 호스트인지
func IsHost(c *fiber.Ctx) bool {
	v, _ := c.Locals(localsIsHost).(bool)
	return v
}
