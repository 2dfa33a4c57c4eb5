package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/logger"
)

// TokenStore 액세스 토큰 보관소
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

const tokenFileName = "token"

// FileTokenStore 사용자 설정 디렉터리의 토큰 파일 (0600)
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

func NewFileTokenStore(dir string) *FileTokenStore {
	return &FileTokenStore{path: filepath.Join(dir, tokenFileName)}
}

// DefaultFileTokenStore 예: ~/.config/classroom/token
func DefaultFileTokenStore() (*FileTokenStore, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("user config dir: %w", err)
	}
	return NewFileTokenStore(filepath.Join(base, "classroom")), nil
}

func (s *FileTokenStore) Path() string { return s.path }

// Load 파일이 없으면 빈 문자열
func (s *FileTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *FileTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// AuthState 현재 로그인 사용자. 바뀔 때마다 구독자에게 알린다.
type AuthState struct {
	c      *Client
	tokens TokenStore
	log    *logger.Logger

	mu      sync.RWMutex
	user    *User
	loading bool
	subs    map[int]func(*User)
	nextSub int
}

// NewAuthState tokens가 nil이면 토큰을 저장하지 않는다
func NewAuthState(c *Client, tokens TokenStore, log *logger.Logger) *AuthState {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthState{
		c:       c,
		tokens:  tokens,
		log:     log.With("component", "auth_state"),
		loading: true,
		subs:    make(map[int]func(*User)),
	}
}

// Start 저장된 토큰으로 세션을 복원한다. 거절된 토큰은 지운다.
func (a *AuthState) Start(ctx context.Context) error {
	defer a.finishLoading()

	token := a.c.Token()
	if token == "" && a.tokens != nil {
		stored, err := a.tokens.Load()
		if err != nil {
			a.log.Warn("token load failed", "error", err)
		}
		token = stored
	}
	if token == "" {
		a.set(nil)
		return nil
	}

	a.c.SetToken(token)
	u, err := a.c.Me(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthorized) {
			a.log.Info("stored token rejected")
			a.c.SetToken("")
			a.clearStored()
			a.set(nil)
			return nil
		}
		return err
	}
	a.set(u)
	return nil
}

func (a *AuthState) finishLoading() {
	a.mu.Lock()
	a.loading = false
	a.mu.Unlock()
}

// Loading Start가 끝나기 전
func (a *AuthState) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loading
}

func (a *AuthState) User() *User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil {
		return nil
	}
	u := *a.user
	return &u
}

func (a *AuthState) Authenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user != nil
}

func (a *AuthState) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := a.c.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.signedIn(u)
	return u, nil
}

func (a *AuthState) Register(ctx context.Context, email, password, firstName, lastName string) (*User, error) {
	u, err := a.c.Register(ctx, email, password, firstName, lastName)
	if err != nil {
		return nil, err
	}
	a.signedIn(u)
	return u, nil
}

func (a *AuthState) signedIn(u *User) {
	if a.tokens != nil {
		if err := a.tokens.Save(a.c.Token()); err != nil {
			a.log.Warn("token save failed", "error", err)
		}
	}
	a.set(u)
}

// Logout 서버 호출이 실패해도 로컬 상태는 비운다
func (a *AuthState) Logout(ctx context.Context) error {
	err := a.c.Logout(ctx)
	a.clearStored()
	a.set(nil)
	return err
}

func (a *AuthState) clearStored() {
	if a.tokens == nil {
		return
	}
	if err := a.tokens.Clear(); err != nil {
		a.log.Warn("token clear failed", "error", err)
	}
}

// Subscribe 반환된 함수로 해지
func (a *AuthState) Subscribe(fn func(*User)) (cancel func()) {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

// Close 모든 구독 해지
func (a *AuthState) Close() {
	a.mu.Lock()
	a.subs = make(map[int]func(*User))
	a.mu.Unlock()
}

func (a *AuthState) set(u *User) {
	a.mu.Lock()
	a.user = u
	fns := make([]func(*User), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}
