package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
)

var validate = validator.New()

// fail 분류 에러를 {"error","code"} JSON으로 응답. Backend 에러 메시지는 숨긴다.
func fail(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	msg := err.Error()
	if kind == apperr.KindBackend {
		msg = "internal server error"
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Message != "" {
			msg = ae.Message
		}
	}
	return c.Status(apperr.HTTPStatus(kind)).JSON(fiber.Map{
		"error": msg,
		"code":  string(kind),
	})
}

// badRequest 입력 오류 응답
func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  string(apperr.KindInvalidInput),
	})
}

// parseBody 요청 바디 파싱 + validate 태그 검사
func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperr.Invalid("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
			}
			return apperr.Invalid("invalid request: %s", strings.Join(fields, ", "))
		}
		return apperr.Invalid("invalid request body")
	}
	return nil
}
