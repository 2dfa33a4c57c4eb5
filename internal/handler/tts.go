package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
	"classroom-backend/internal/tts"
)

// Synthesizer TTS 합성기
type Synthesizer interface {
	Synthesize(ctx context.Context, settings model.UserSettings, text string) (*tts.Audio, error)
}

// TTSHandler 슬라이드 읽어주기 핸들러
type TTSHandler struct {
	settings SettingsStore
	synth    Synthesizer
	log      *logger.Logger
}

// NewTTSHandler TTSHandler 생성
func NewTTSHandler(settings SettingsStore, synth Synthesizer, log *logger.Logger) *TTSHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TTSHandler{settings: settings, synth: synth, log: log.With("component", "tts")}
}

// SpeakRequest 읽을 텍스트
type SpeakRequest struct {
	Text string `json:"text" validate:"required"`
}

// Speak 호출자 설정으로 음성 합성. 비활성/키 없음이면 204.
func (h *TTSHandler) Speak(c *fiber.Ctx) error {
	var req SpeakRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	userID := auth.UserID(c)
	settings, err := h.settings.GetSettings(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}

	audio, err := h.synth.Synthesize(c.UserContext(), settings, req.Text)
	if err != nil {
		h.log.Warn("tts failed", "user_id", userID, "error", err)
		return fail(c, err)
	}
	if audio == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}

	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Send(audio.Data)
}
