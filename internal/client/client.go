// Package client is the Go SDK for the classroom API: REST calls, the realtime
// change feed, and the signed-in user state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
	"classroom-backend/internal/progress"
)

// Client REST + WebSocket 클라이언트
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger

	mu    sync.RWMutex
	token string

	feed *feed
}

// Option Client 옵션
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New baseURL 예: http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	c.log = c.log.With("component", "client")
	c.feed = newFeed(c)
	return c
}

// SetToken 액세스 토큰 교체 (빈 값이면 비로그인)
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token 현재 액세스 토큰
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Close 변경 피드 연결 종료. 이후 Subscribe의 이벤트는 전달되지 않는다.
func (c *Client) Close() error {
	return c.feed.shutdown()
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeError(status int, raw []byte) error {
	kind := apperr.FromHTTPStatus(status)
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return apperr.New(kind, fmt.Sprintf("http %d", status), nil)
	}
	if k := apperr.Kind(body.Code); k != "" && apperr.HTTPStatus(k) == status {
		kind = k
	}
	return apperr.New(kind, body.Error, nil)
}

// do JSON 요청. out이 nil이면 응답 바디를 버린다.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return apperr.Backend("encode request", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Backend("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Backend(method+" "+path, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return apperr.Backend("read response", readErr)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := decodeError(resp.StatusCode, raw)
		c.log.Debug("request failed", "method", method, "path", path, "status", resp.StatusCode, "error", err)
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Backend("decode response", err)
	}
	return nil
}

// --- auth ---

// User 로그인한 사용자
type User struct {
	ID        string             `json:"id"`
	Email     string             `json:"email"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Provider  model.AuthProvider `json:"provider"`
}

// DisplayName 이름이 없으면 이메일
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

type authResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) authenticate(ctx context.Context, path string, in any) (*User, error) {
	var out authResponse
	if err := c.do(ctx, http.MethodPost, path, in, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out.User, nil
}

// Register 가입 후 토큰 설정
func (c *Client) Register(ctx context.Context, email, password, firstName, lastName string) (*User, error) {
	return c.authenticate(ctx, "/auth/register", map[string]string{
		"email": email, "password": password, "first_name": firstName, "last_name": lastName,
	})
}

// Login 로그인 후 토큰 설정
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Me 토큰의 사용자
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout 서버 쿠키 정리 후 토큰 삭제. 서버 실패와 무관하게 로컬 토큰은 지운다.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.SetToken("")
	_ = c.feed.close()
	return err
}

// --- lessons ---

func (c *Client) ListLessons(ctx context.Context) ([]model.Lesson, error) {
	var out []model.Lesson
	return out, c.do(ctx, http.MethodGet, "/api/lessons", nil, &out)
}

func (c *Client) CreateLesson(ctx context.Context, title string) (*model.Lesson, error) {
	var out model.Lesson
	if err := c.do(ctx, http.MethodPost, "/api/lessons", map[string]string{"title": title}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLesson 레슨 (슬라이드 포함)
func (c *Client) GetLesson(ctx context.Context, id string) (*model.Lesson, error) {
	var out model.Lesson
	if err := c.do(ctx, http.MethodGet, "/api/lessons/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddSlide 슬라이드 추가
func (c *Client) AddSlide(ctx context.Context, lessonID, title string, blocks model.Blocks) (*model.Slide, error) {
	var out model.Slide
	in := map[string]any{"title": title, "blocks": blocks}
	if err := c.do(ctx, http.MethodPost, "/api/lessons/"+url.PathEscape(lessonID)+"/slides", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- sessions ---

// StartResult 세션 시작 결과
type StartResult struct {
	Session  model.PresentationSession `json:"session"`
	JoinLink string                    `json:"join_link"`
}

func (c *Client) StartSession(ctx context.Context, lessonID string) (*StartResult, error) {
	var out StartResult
	if err := c.do(ctx, http.MethodPost, "/api/lessons/"+url.PathEscape(lessonID)+"/sessions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinSession 코드로 참가 (이미 참가자여도 성공)
func (c *Client) JoinSession(ctx context.Context, code string) (*model.PresentationSession, error) {
	var out model.PresentationSession
	if err := c.do(ctx, http.MethodPost, "/api/sessions/join", map[string]string{"code": code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*model.PresentationSession, error) {
	var out model.PresentationSession
	if err := c.do(ctx, http.MethodGet, sessionPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func sessionPath(id, suffix string) string {
	return "/api/sessions/" + url.PathEscape(id) + suffix
}

func (c *Client) control(ctx context.Context, method, id, suffix string, in any) (*model.PresentationSession, error) {
	var out model.PresentationSession
	if err := c.do(ctx, method, sessionPath(id, suffix), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetAnonymous(ctx context.Context, id string, on bool) (*model.PresentationSession, error) {
	return c.control(ctx, http.MethodPut, id, "/anonymous", map[string]bool{"enabled": on})
}

func (c *Client) SetSync(ctx context.Context, id string, on bool) (*model.PresentationSession, error) {
	return c.control(ctx, http.MethodPut, id, "/sync", map[string]bool{"enabled": on})
}

func (c *Client) SetPaused(ctx context.Context, id string, paused bool) (*model.PresentationSession, error) {
	return c.control(ctx, http.MethodPut, id, "/pause", map[string]bool{"paused": paused})
}

// SetPacing allowed가 nil이면 서버가 현재 슬라이드로 채운다
func (c *Client) SetPacing(ctx context.Context, id string, enabled bool, allowed []int) (*model.PresentationSession, error) {
	in := map[string]any{"enabled": enabled}
	if allowed != nil {
		in["allowed_slides"] = allowed
	}
	return c.control(ctx, http.MethodPut, id, "/pacing", in)
}

func (c *Client) GoToSlide(ctx context.Context, id string, index int) (*model.PresentationSession, error) {
	return c.control(ctx, http.MethodPut, id, "/slide", map[string]int{"index": index})
}

func (c *Client) EndSession(ctx context.Context, id string) (*model.PresentationSession, error) {
	return c.control(ctx, http.MethodPost, id, "/end", nil)
}

// Navigate 학생 본인 슬라이드 이동
func (c *Client) Navigate(ctx context.Context, id string, index int) (*model.SessionParticipant, error) {
	var out model.SessionParticipant
	if err := c.do(ctx, http.MethodPut, sessionPath(id, "/me/slide"), map[string]int{"index": index}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Heartbeat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, sessionPath(id, "/heartbeat"), nil, nil)
}

// Progress 진행 그리드 (호스트)
func (c *Client) Progress(ctx context.Context, id string, sortBy string) (*progress.Grid, error) {
	path := sessionPath(id, "/progress")
	if sortBy != "" {
		path += "?sort=" + url.QueryEscape(sortBy)
	}
	var out progress.Grid
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAnswer 질문 블록 응답 제출
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, slideID, blockID string, value model.AnswerValue) (*model.StudentAnswer, error) {
	in := map[string]any{"slide_id": slideID, "block_id": blockID, "value": value}
	var out model.StudentAnswer
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/answers"), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyAnswers 이 세션에서 내가 낸 응답 (오래된 순)
func (c *Client) MyAnswers(ctx context.Context, sessionID string) ([]model.StudentAnswer, error) {
	var out []model.StudentAnswer
	return out, c.do(ctx, http.MethodGet, sessionPath(sessionID, "/answers/me"), nil, &out)
}

// --- settings / tts ---

func (c *Client) Settings(ctx context.Context) (*model.UserSettings, error) {
	var out model.UserSettings
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Speak 음성 데이터. TTS가 꺼져 있으면 nil.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	raw, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, apperr.Backend("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tts", bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Backend("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Backend("POST /api/tts", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Backend("read response", err)
	}
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

// --- rows (livesync.Source) ---

func rowsPath(table model.Table, column, value, orderBy string, desc, single bool) string {
	q := url.Values{}
	q.Set("column", column)
	q.Set("value", value)
	if orderBy != "" {
		q.Set("order", orderBy)
	}
	if desc {
		q.Set("desc", "true")
	}
	if single {
		q.Set("single", strconv.FormatBool(single))
	}
	return "/api/rows/" + url.PathEscape(table.String()) + "?" + q.Encode()
}
