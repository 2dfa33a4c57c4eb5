package handler

import (
	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/storage"
)

// StorageHandler 슬라이드 이미지 업로드/조회
type StorageHandler struct {
	provider storage.Provider
	log      *logger.Logger
}

// NewStorageHandler StorageHandler 생성 (provider가 nil이면 503)
func NewStorageHandler(provider storage.Provider, log *logger.Logger) *StorageHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StorageHandler{provider: provider, log: log.With("component", "storage")}
}

// PresignRequest Presigned URL 요청
type PresignRequest struct {
	FileName    string `json:"file_name" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
}

func (h *StorageHandler) unavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": storage.ErrNotConfigured.Error(),
		"code":  string(apperr.KindBackend),
	})
}

// Presign 레슨 이미지 업로드용 Presigned URL 생성 (레슨 소유자)
func (h *StorageHandler) Presign(c *fiber.Ctx) error {
	if h.provider == nil {
		return h.unavailable(c)
	}

	var req PresignRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	key, err := storage.ImageKey(c.Params("id"), req.FileName, req.ContentType)
	if err != nil {
		return badRequest(c, err.Error())
	}

	upload, err := h.provider.PresignUpload(c.UserContext(), key, req.ContentType)
	if err != nil {
		h.log.Error("presign upload failed", "key", key, "error", err)
		return fail(c, apperr.Backend("failed to generate presigned URL", err))
	}
	return c.JSON(upload)
}

// ObjectURL 이미지 읽기용 임시 URL
func (h *StorageHandler) ObjectURL(c *fiber.Ctx) error {
	if h.provider == nil {
		return h.unavailable(c)
	}
	key := c.Query("path")
	if storage.LessonOf(key) == "" {
		return badRequest(c, "path must be a lesson image key")
	}

	url, err := h.provider.ObjectURL(c.UserContext(), key)
	if err != nil {
		h.log.Error("object url failed", "key", key, "error", err)
		return fail(c, apperr.Backend("failed to generate object URL", err))
	}
	return c.JSON(fiber.Map{"url": url, "path": key})
}

// Delete 레슨 이미지 삭제 (레슨 소유자, 다른 레슨 키는 거부)
func (h *StorageHandler) Delete(c *fiber.Ctx) error {
	if h.provider == nil {
		return h.unavailable(c)
	}
	key := c.Query("path")
	if storage.LessonOf(key) != c.Params("id") {
		return fail(c, apperr.Forbidden("image does not belong to this lesson"))
	}
	if err := h.provider.Delete(c.UserContext(), key); err != nil {
		h.log.Error("delete object failed", "key", key, "error", err)
		return fail(c, apperr.Backend("failed to delete image", err))
	}
	return c.SendStatus(fiber.StatusNoContent)
}
