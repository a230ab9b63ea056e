package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"homestay-booking/internal/logger"

	"github.com/google/uuid"
)

type uploadGrant struct {
	key         string
	contentType string
	expiresAt   time.Time
}

// MockStorageService keeps proofs on the local filesystem and serves them through this server.
// For demo and test setups without a cloud bucket.
type MockStorageService struct {
	baseURL  string
	rootDir  string
	maxBytes int64
	now      func() time.Time

	mu     sync.Mutex
	grants map[string]uploadGrant
}

func NewMockStorageService(cfg Config) (*MockStorageService, error) {
	proofsDir := filepath.Join(cfg.MockDir, "proofs")
	if err := os.MkdirAll(proofsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create proofs directory: %w", err)
	}
	return &MockStorageService{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		rootDir:  cfg.MockDir,
		maxBytes: cfg.MaxBytes,
		now:      time.Now,
		grants:   make(map[string]uploadGrant),
	}, nil
}

func (m *MockStorageService) GenerateUploadURL(ctx context.Context, key, contentType string, expiresIn time.Duration) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	token := uuid.NewString()
	m.mu.Lock()
	m.grants[token] = uploadGrant{key: key, contentType: contentType, expiresAt: m.now().Add(expiresIn)}
	m.mu.Unlock()

	return fmt.Sprintf("%s/api/v1/upload/%s?key=%s", m.baseURL, token, url.QueryEscape(key)), nil
}

func (m *MockStorageService) GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/api/v1/download/%s?key=%s", m.baseURL, encodeKey(key), url.QueryEscape(key)), nil
}

func (m *MockStorageService) ConsumeUploadToken(token, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grant, ok := m.grants[token]
	if !ok || grant.key != key {
		return "", false
	}
	delete(m.grants, token)
	if m.now().After(grant.expiresAt) {
		return "", false
	}
	return grant.contentType, true
}

func (m *MockStorageService) FileExists(ctx context.Context, key string) (bool, int64, error) {
	if err := checkKey(key); err != nil {
		return false, 0, err
	}
	info, err := os.Stat(m.localPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, info.Size(), nil
}

func (m *MockStorageService) DeleteFile(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(m.localPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (m *MockStorageService) SaveFile(key string, reader io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	fullPath := m.localPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if m.maxBytes > 0 {
		reader = io.LimitReader(reader, m.maxBytes+1)
	}
	n, err := io.Copy(file, reader)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if m.maxBytes > 0 && n > m.maxBytes {
		file.Close()
		os.Remove(fullPath)
		return ErrTooLarge
	}
	logger.Debug("Stored proof file", "key", key, "bytes", n)
	return nil
}

func (m *MockStorageService) ReadFile(key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	file, err := os.Open(m.localPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (m *MockStorageService) localPath(key string) string {
	return filepath.Join(m.rootDir, filepath.FromSlash(key))
}

// checkKey only admits keys minted by ProofKey, which keeps paths inside the proofs directory.
func checkKey(key string) error {
	if BookingOfKey(key) == "" || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// encodeKey creates a URL-safe hash of the key
func encodeKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}
