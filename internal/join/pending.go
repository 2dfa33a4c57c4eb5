package join

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PendingStore 로그인 전 받은 참가 코드를 임시 보관 (Take는 읽고 바로 비운다)
type PendingStore interface {
	Save(code string) error
	// Take 보관된 코드를 꺼낸다. 없으면 "".
	Take() (string, error)
}

// MemoryPending 프로세스 메모리 보관소
type MemoryPending struct {
	mu   sync.Mutex
	code string
}

func NewMemoryPending() *MemoryPending {
	return &MemoryPending{}
}

func (m *MemoryPending) Save(code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.code = code
	return nil
}

func (m *MemoryPending) Take() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := m.code
	m.code = ""
	return code, nil
}

const pendingFileName = "pending_join_code"

// FilePending 파일 보관소. 터미널 클라이언트가 로그인 후 다시 실행될 때 코드를 이어받는다.
type FilePending struct {
	mu   sync.Mutex
	path string
}

// NewFilePending dir 아래에 코드 파일을 둔다
func NewFilePending(dir string) *FilePending {
	return &FilePending{path: filepath.Join(dir, pendingFileName)}
}

// DefaultFilePending 사용자 캐시 디렉터리 (예: ~/.cache/classroom)
func DefaultFilePending() (*FilePending, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("user cache dir: %w", err)
	}
	return NewFilePending(filepath.Join(base, "classroom")), nil
}

// Path 코드 파일 경로
func (p *FilePending) Path() string { return p.path }

func (p *FilePending) Save(code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create pending dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(code), 0o600); err != nil {
		return fmt.Errorf("write pending code: %w", err)
	}
	return os.Rename(tmp, p.path)
}

// Take 다른 프로세스와 동시에 호출돼도 한쪽만 코드를 받도록 rename으로 먼저 가져온다
func (p *FilePending) Take() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	taken := p.path + ".taken"
	if err := os.Rename(p.path, taken); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("claim pending code: %w", err)
	}
	defer os.Remove(taken)

	raw, err := os.ReadFile(taken)
	if err != nil {
		return "", fmt.Errorf("read pending code: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
