package client

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// VisitorIDStore keeps the visitor id between runs so a returning
// visitor resumes their session.
type VisitorIDStore interface {
	// Load returns "" when no id has been stored yet.
	Load() (string, error)
	Save(id string) error
}

// FileStore keeps the id as a single line in a file.
type FileStore struct {
	Path string
}

// DefaultFileStore stores the id under the user config directory.
func DefaultFileStore() (*FileStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("locate config dir: %w", err)
	}
	return &FileStore{Path: filepath.Join(dir, "supportchat", "visitor-id")}, nil
}

func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Save(id string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(id+"\n"), 0o600)
}

// MemoryStore keeps the id for the life of the process.
type MemoryStore struct {
	mu sync.Mutex
	id string
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, nil
}

func (s *MemoryStore) Save(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	return nil
}

// GenerateVisitorID returns a random UUID, or "v-<unix ms>-<random>" if
// the system randomness source fails.
func GenerateVisitorID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	if len(suffix) > 9 {
		suffix = suffix[:9]
	}
	return fmt.Sprintf("v-%d-%s", time.Now().UnixMilli(), suffix)
}

// LoadOrCreateVisitorID returns the stored id, generating and saving one
// on first use. A store that cannot be read or written still yields a
// usable id for this run.
func LoadOrCreateVisitorID(store VisitorIDStore) string {
	if store == nil {
		return GenerateVisitorID()
	}
	if id, err := store.Load(); err == nil && id != "" {
		return id
	}
	id := GenerateVisitorID()
	_ = store.Save(id)
	return id
}
