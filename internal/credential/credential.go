package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrNoCredential = errors.New("no credential")

// Source yields the bearer token persisted by the sign-in flow.
// Implementations are read on every operation that needs identity.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Store is a Source that the sign-in and sign-out flow can write to.
type Store interface {
	Source
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// FileStore keeps the token in a single file with 0600 permissions.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: filepath.Clean(path)}
}

func (f *FileStore) Token(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (f *FileStore) Save(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoCredential
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: strings.TrimSpace(token)}
}

func (m *MemoryStore) Token(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrNoCredential
	}
	return m.token, nil
}

func (m *MemoryStore) Save(_ context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoCredential
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// Expired reports whether token is a JWT whose exp claim lies before now.
// Opaque tokens and JWTs without exp are never considered expired; the
// signature is not checked here, the remote API does that.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	if _, ok := claims["exp"]; !ok {
		return false
	}
	return !claims.VerifyExpiresAt(now.Unix(), true)
}

// Checked wraps a Source and reports ErrNoCredential for expired JWTs.
type Checked struct {
	Source
	Now func() time.Time
}

func (c Checked) Token(ctx context.Context) (string, error) {
	token, err := c.Source.Token(ctx)
	if err != nil {
		return "", err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if Expired(token, now()) {
		return "", fmt.Errorf("token expired: %w", ErrNoCredential)
	}
	return token, nil
}
