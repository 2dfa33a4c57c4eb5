package handler

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
)

// SettingsStore 사용자 설정 저장소
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (model.UserSettings, error)
	SaveSettings(ctx context.Context, in model.UserSettings) (model.UserSettings, error)
}

// SettingsHandler 사용자 설정 핸들러
type SettingsHandler struct {
	settings SettingsStore
	log      *logger.Logger
}

// NewSettingsHandler SettingsHandler 생성
func NewSettingsHandler(settings SettingsStore, log *logger.Logger) *SettingsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SettingsHandler{settings: settings, log: log.With("component", "settings")}
}

// UpdateSettingsRequest 설정 수정. 생략한 필드는 유지한다.
// openai_api_key에 마스킹된 값을 다시 보내면 기존 키를 유지하고, 빈 문자열은 키 삭제.
type UpdateSettingsRequest struct {
	LLMModel     *string `json:"llm_model" validate:"omitempty,max=100"`
	LLMEndpoint  *string `json:"llm_endpoint" validate:"omitempty,max=255"`
	OpenAIAPIKey *string `json:"openai_api_key"`
	TTSEnabled   *bool   `json:"tts_enabled"`
	TTSVoice     *string `json:"tts_voice" validate:"omitempty,max=50"`
	TTSAutoPlay  *bool   `json:"tts_auto_play"`
	TTSModel     *string `json:"tts_model" validate:"omitempty,max=50"`
}

// Get 내 설정 (없으면 기본값)
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	userID := auth.UserID(c)
	s, err := h.settings.GetSettings(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}
	h.log.Debug("settings read", "user_id", userID, "tts_enabled", s.TTSEnabled, "has_api_key", s.OpenAIAPIKey != "")
	return c.JSON(s)
}

// Update 내 설정 수정
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req UpdateSettingsRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	userID := auth.UserID(c)
	current, err := h.settings.GetSettings(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}

	next, changed := applySettings(current, req)
	if len(changed) == 0 {
		return c.JSON(current)
	}

	saved, err := h.settings.SaveSettings(c.UserContext(), next)
	if err != nil {
		return fail(c, err)
	}
	h.log.Info("settings updated", "user_id", userID, "fields", changed, "has_api_key", saved.OpenAIAPIKey != "")
	return c.JSON(saved)
}

// applySettings 요청을 현재 설정에 덮어쓴다. 바뀐 필드 이름을 함께 반환.
func applySettings(cur model.UserSettings, req UpdateSettingsRequest) (model.UserSettings, []string) {
	var changed []string
	setString := func(name string, dst *string, v *string) {
		if v == nil {
			return
		}
		val := strings.TrimSpace(*v)
		if val != *dst {
			*dst = val
			changed = append(changed, name)
		}
	}
	setBool := func(name string, dst *bool, v *bool) {
		if v != nil && *v != *dst {
			*dst = *v
			changed = append(changed, name)
		}
	}

	setString("llm_model", &cur.LLMModel, req.LLMModel)
	setString("llm_endpoint", &cur.LLMEndpoint, req.LLMEndpoint)
	if req.OpenAIAPIKey != nil {
		key := strings.TrimSpace(*req.OpenAIAPIKey)
		if cur.OpenAIAPIKey == "" || key != model.MaskSecret(cur.OpenAIAPIKey) {
			setString("openai_api_key", &cur.OpenAIAPIKey, &key)
		}
	}
	setBool("tts_enabled", &cur.TTSEnabled, req.TTSEnabled)
	setString("tts_voice", &cur.TTSVoice, req.TTSVoice)
	setBool("tts_auto_play", &cur.TTSAutoPlay, req.TTSAutoPlay)
	setString("tts_model", &cur.TTSModel, req.TTSModel)

	if cur.TTSVoice == "" {
		cur.TTSVoice = model.DefaultTTSVoice
	}
	if cur.TTSModel == "" {
		cur.TTSModel = model.DefaultTTSModel
	}
	return cur, changed
}
