package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"osf/pkg/oauth"
)

// Store persists one OAuth TokenSet as a JSON file.
//
// SECURITY: This store handles sensitive OAuth credentials.
//   - The file is created with 0600 permissions (owner read/write only)
//   - Its directory is created with 0700 permissions (owner only)
//   - Writes go to a temporary file that is renamed into place, so a crash
//     never leaves a truncated token file behind
//   - Token values are NEVER logged
//
// Expired sessions are returned by Load as they are; the OAuth client
// decides whether to refresh.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// New returns a store for the file at path. Nothing is touched on disk
// until Save or Delete.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the token file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored TokenSet. The boolean is false when no session is
// stored.
func (s *Store) Load() (oauth.TokenSet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path comes from configuration, not from remote input
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return oauth.TokenSet{}, false, nil
	}
	if err != nil {
		return oauth.TokenSet{}, false, fmt.Errorf("failed to read token file: %w", err)
	}

	var tokens oauth.TokenSet
	if err := json.Unmarshal(data, &tokens); err != nil {
		return oauth.TokenSet{}, false, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}
	if tokens.IsZero() {
		return oauth.TokenSet{}, false, nil
	}
	return tokens, true, nil
}

// Save writes tokens, replacing any stored session.
func (s *Store) Save(tokens oauth.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(tokens); err != nil {
		s.logger.Warn("SECURITY_AUDIT: OAuth token storage failed",
			"event", "token_store_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return err
	}

	s.logger.Debug("SECURITY_AUDIT: OAuth token stored",
		"event", "token_stored",
		"path", s.path,
		"tokens", tokens,
	)
	return nil
}

func (s *Store) write(tokens oauth.TokenSet) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpPath)
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close token file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to move token file into place: %w", err)
	}
	return nil
}

// Delete removes the stored session. Deleting a missing file is not an error.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("SECURITY_AUDIT: OAuth token deletion failed",
			"event", "token_delete_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to delete token file: %w", err)
	}

	s.logger.Debug("SECURITY_AUDIT: OAuth token deleted",
		"event", "token_deleted",
		"path", s.path,
	)
	return nil
}
