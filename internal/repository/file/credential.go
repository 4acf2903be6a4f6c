// Package file stores the delegated credential as a JSON document on local
// disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/utafrali/InboxGo/internal/credential"
	"github.com/utafrali/InboxGo/internal/domain"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "./data/token.json"

const fileMode = 0o600

// CredentialStore keeps the credential in one file. Saves replace the file
// atomically via a synced temp file and rename.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewCredentialStore creates a store backed by path.
func NewCredentialStore(path string) *CredentialStore {
	if path == "" {
		path = DefaultPath
	}
	return &CredentialStore{path: path}
}

// Path returns the file location.
func (s *CredentialStore) Path() string { return s.path }

func (s *CredentialStore) Load(_ context.Context) (*domain.DelegatedCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	var c domain.DelegatedCredential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode credential file %s: %w", s.path, err)
	}
	return &c, nil
}

func (s *CredentialStore) Save(_ context.Context, c *domain.DelegatedCredential) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(fileMode); err != nil {
		return fmt.Errorf("chmod temp credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	committed = true
	return nil
}

func (s *CredentialStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
