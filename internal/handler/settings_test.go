package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
	"classroom-backend/internal/tts"
)

func ptr[T any](v T) *T { return &v }

func TestApplySettings(t *testing.T) {
	cur := model.DefaultSettings("u1")
	cur.OpenAIAPIKey = "sk-abcdefghijklmnop"

	// 마스킹된 값 재전송은 변경 없음
	next, changed := applySettings(cur, UpdateSettingsRequest{OpenAIAPIKey: ptr(model.MaskSecret(cur.OpenAIAPIKey))})
	if len(changed) != 0 || next.OpenAIAPIKey != cur.OpenAIAPIKey {
		t.Fatalf("masked key: changed=%v key=%q", changed, next.OpenAIAPIKey)
	}

	next, changed = applySettings(cur, UpdateSettingsRequest{OpenAIAPIKey: ptr("")})
	if next.OpenAIAPIKey != "" || len(changed) != 1 || changed[0] != "openai_api_key" {
		t.Fatalf("clear key: changed=%v key=%q", changed, next.OpenAIAPIKey)
	}

	next, changed = applySettings(cur, UpdateSettingsRequest{TTSEnabled: ptr(true), TTSVoice: ptr("  "), TTSModel: ptr("tts-1-hd")})
	if !next.TTSEnabled || next.TTSVoice != model.DefaultTTSVoice || next.TTSModel != "tts-1-hd" {
		t.Fatalf("tts fields: %+v", next)
	}
	if len(changed) != 3 {
		t.Fatalf("changed: want=3 got=%v", changed)
	}

	// 같은 값은 변경으로 치지 않는다
	_, changed = applySettings(next, UpdateSettingsRequest{TTSEnabled: ptr(true)})
	if len(changed) != 0 {
		t.Fatalf("unchanged: got=%v", changed)
	}
}

func newSettingsApp(fs *fakeStore, synth Synthesizer) *fiber.App {
	settings := NewSettingsHandler(fs, logger.Nop())
	speak := NewTTSHandler(fs, synth, logger.Nop())
	app := newTestApp()
	app.Use(withUser)
	app.Get("/api/settings", settings.Get)
	app.Put("/api/settings", settings.Update)
	app.Post("/api/tts", speak.Speak)
	return app
}

func TestSettings_GetAndUpdate(t *testing.T) {
	fs := newFakeStore()
	app := newSettingsApp(fs, nil)

	r := call(t, app, "GET", "/api/settings", "u1", nil)
	var got map[string]any
	r.decode(t, &got)
	if r.status != fiber.StatusOK || got["tts_voice"] != model.DefaultTTSVoice || got["has_api_key"] != false {
		t.Fatalf("defaults: status=%d body=%s", r.status, r.body)
	}

	r = call(t, app, "PUT", "/api/settings", "u1", map[string]any{"openai_api_key": "sk-abcdefghijklmnop", "tts_enabled": true})
	if r.status != fiber.StatusOK {
		t.Fatalf("update: status=%d body=%s", r.status, r.body)
	}
	r.decode(t, &got)
	if got["openai_api_key"] != "sk-...mnop" || got["has_api_key"] != true {
		t.Fatalf("api key should be masked: %s", r.body)
	}
	if fs.settings["u1"].OpenAIAPIKey != "sk-abcdefghijklmnop" {
		t.Fatalf("stored key: %q", fs.settings["u1"].OpenAIAPIKey)
	}

	// 마스킹된 키를 그대로 돌려보내도 유지
	call(t, app, "PUT", "/api/settings", "u1", map[string]any{"openai_api_key": "sk-...mnop", "tts_voice": "nova"})
	if s := fs.settings["u1"]; s.OpenAIAPIKey != "sk-abcdefghijklmnop" || s.TTSVoice != "nova" {
		t.Fatalf("masked round trip: %+v", s)
	}

	// 다른 사용자 설정은 분리
	r = call(t, app, "GET", "/api/settings", "u2", nil)
	r.decode(t, &got)
	if got["user_id"] != "u2" || got["has_api_key"] != false {
		t.Fatalf("other user: %s", r.body)
	}
}

type fakeSynth struct {
	audio *tts.Audio
	err   error
	text  string
}

func (f *fakeSynth) Synthesize(_ context.Context, s model.UserSettings, text string) (*tts.Audio, error) {
	f.text = text
	if !s.TTSEnabled {
		return nil, nil
	}
	return f.audio, f.err
}

func TestTTS_Speak(t *testing.T) {
	fs := newFakeStore()
	synth := &fakeSynth{audio: &tts.Audio{Data: []byte("mp3")}}
	app := newSettingsApp(fs, synth)

	r := call(t, app, "POST", "/api/tts", "u1", map[string]string{"text": "hello class"})
	if r.status != fiber.StatusNoContent {
		t.Fatalf("disabled: want=204 got=%d", r.status)
	}

	fs.settings["u1"] = model.UserSettings{UserID: "u1", TTSEnabled: true}
	r = call(t, app, "POST", "/api/tts", "u1", map[string]string{"text": "hello class"})
	if r.status != fiber.StatusOK || string(r.body) != "mp3" || r.header.Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("speak: status=%d type=%q body=%s", r.status, r.header.Get("Content-Type"), r.body)
	}
	if synth.text != "hello class" {
		t.Fatalf("text: want=%q got=%q", "hello class", synth.text)
	}

	r = call(t, app, "POST", "/api/tts", "u1", map[string]string{"text": ""})
	if r.status != fiber.StatusBadRequest {
		t.Fatalf("empty text: want=400 got=%d", r.status)
	}

	synth.err = errors.New("upstream down")
	r = call(t, app, "POST", "/api/tts", "u1", map[string]string{"text": "again"})
	if r.status != fiber.StatusInternalServerError || r.errorCode(t) != "BACKEND" {
		t.Fatalf("upstream error: status=%d body=%s", r.status, r.body)
	}
}
