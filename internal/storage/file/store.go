// Package file persists the identity as one JSON document per app id under a
// data directory, for devices without a database.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Store implements push.IdentityStore on the local filesystem.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ push.IdentityStore = (*Store)(nil)

// New creates a store rooted at dir. The directory is created on first Save.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns ~/.gamethrive, or a relative fallback when HOME is unset.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gamethrive"
	}
	return filepath.Join(home, ".gamethrive")
}

func (s *Store) Load(_ context.Context, appID string) (*push.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(appID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, push.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	var identity push.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("corrupt identity file %s: %w", s.path(appID), err)
	}
	return &identity, nil
}

// Save writes to a temp file and renames it so a crash never leaves a torn identity.
func (s *Store) Save(_ context.Context, identity push.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create identity dir: %w", err)
	}

	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return err
	}

	target := s.path(identity.AppID)
	tmp, err := os.CreateTemp(s.dir, ".identity-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write identity: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (s *Store) Clear(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(appID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) path(appID string) string {
	return filepath.Join(s.dir, "identity-"+unsafeChars.ReplaceAllString(appID, "_")+".json")
}
