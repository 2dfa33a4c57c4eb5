// Package tts converts slide text to speech through an OpenAI-compatible API
// using the caller's own settings and credential.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
)

// maxInputChars API 입력 한도
const maxInputChars = 4096

// Audio 합성 결과
type Audio struct {
	Data        []byte
	ContentType string
}

// Client TTS 클라이언트
type Client struct {
	httpClient      *http.Client
	defaultEndpoint string
	log             *logger.Logger
}

// NewClient endpoint는 설정에 LLMEndpoint가 없을 때 쓰는 기본값
func NewClient(defaultEndpoint string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient:      &http.Client{Timeout: timeout},
		defaultEndpoint: strings.TrimRight(defaultEndpoint, "/"),
		log:             log.With("component", "tts"),
	}
}

type speechRequest struct {
	Model  string `json:"model"`
	Voice  string `json:"voice"`
	Input  string `json:"input"`
	Format string `json:"response_format"`
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("tts http %d: %s", e.StatusCode, e.Body)
}

// Synthesize 비활성이거나 키가 없으면 네트워크 호출 없이 (nil, nil)
func (c *Client) Synthesize(ctx context.Context, settings model.UserSettings, text string) (*Audio, error) {
	if !settings.TTSEnabled {
		return nil, nil
	}
	if strings.TrimSpace(settings.OpenAIAPIKey) == "" {
		c.log.Debug("tts skipped: no api key", "user_id", settings.UserID)
		return nil, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if len([]rune(text)) > maxInputChars {
		text = string([]rune(text)[:maxInputChars])
	}

	body := speechRequest{
		Model:  orDefault(settings.TTSModel, model.DefaultTTSModel),
		Voice:  orDefault(settings.TTSVoice, model.DefaultTTSVoice),
		Input:  text,
		Format: "mp3",
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, apperr.Backend("encode speech request", err)
	}

	endpoint := c.defaultEndpoint
	if e := strings.TrimSpace(settings.LLMEndpoint); e != "" {
		endpoint = strings.TrimRight(e, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/audio/speech", &buf)
	if err != nil {
		return nil, apperr.Backend("build speech request", err)
	}
	req.Header.Set("Authorization", "Bearer "+settings.OpenAIAPIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("tts request failed", "user_id", settings.UserID, "error", err)
		return nil, apperr.Backend("tts request", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, apperr.Backend("read tts response", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &httpError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 300)}
		c.log.Warn("tts api error", "user_id", settings.UserID, "status", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, apperr.New(apperr.KindInvalidCredential, "tts credential rejected", herr)
		}
		return nil, apperr.Backend("tts api", herr)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}
	c.log.Debug("tts synthesized", "user_id", settings.UserID, "bytes", len(raw), "took", time.Since(start))
	return &Audio{Data: raw, ContentType: ct}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
