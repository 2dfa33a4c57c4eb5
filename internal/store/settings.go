package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"classroom-backend/internal/model"
	"classroom-backend/internal/realtime"
)

// GetSettings 사용자 설정 (행이 없으면 기본값)
func (s *Store) GetSettings(ctx context.Context, userID string) (model.UserSettings, error) {
	var row model.UserSettings
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Debug("settings not found, using defaults", "user_id", userID)
		return model.DefaultSettings(userID), nil
	}
	if err != nil {
		s.log.Error("load settings failed", "user_id", userID, "error", err)
		return model.UserSettings{}, wrap("load settings", err)
	}
	s.log.Debug("settings loaded", "user_id", userID, "tts_enabled", row.TTSEnabled, "has_api_key", row.OpenAIAPIKey != "")
	return row, nil
}

// settingsUpsert user_id 충돌 시 설정 컬럼만 덮어쓴다
var settingsUpsert = clause.OnConflict{
	Columns: []clause.Column{{Name: "user_id"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"llm_model", "llm_endpoint", "openai_api_key",
		"tts_enabled", "tts_voice", "tts_auto_play", "tts_model", "updated_at",
	}),
}

// SaveSettings 설정 저장 (upsert)
func (s *Store) SaveSettings(ctx context.Context, in model.UserSettings) (model.UserSettings, error) {
	var old model.UserSettings
	err := s.db.WithContext(ctx).First(&old, "user_id = ?", in.UserID).Error
	existed := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Error("load settings failed", "user_id", in.UserID, "error", err)
		return model.UserSettings{}, wrap("load settings", err)
	}

	if err := s.db.WithContext(ctx).
		Clauses(settingsUpsert).
		Create(&in).Error; err != nil {
		s.log.Error("save settings failed", "user_id", in.UserID, "error", err)
		return model.UserSettings{}, wrap("save settings", err)
	}

	s.log.Info("settings saved",
		"user_id", in.UserID,
		"llm_model", in.LLMModel,
		"tts_enabled", in.TTSEnabled,
		"tts_voice", in.TTSVoice,
		"has_api_key", in.OpenAIAPIKey != "",
	)

	if existed {
		s.publish(ctx, model.TableUserSettings, realtime.Update, in, old)
	} else {
		s.publish(ctx, model.TableUserSettings, realtime.Insert, in, nil)
	}
	return in, nil
}
