// Package tokenstore keeps OAuth credentials in line-oriented files so an
// external refresher (or a human) can rotate them while the process runs.
// Writes are atomic; a watcher feeds changed files back into the adapters.
package tokenstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store reads and writes one platform's token files. The access file may
// carry an "oauth:" prefix, which is stripped on read.
type Store struct {
	accessPath  string
	refreshPath string

	mu sync.Mutex
}

func New(accessPath, refreshPath string) *Store {
	return &Store{accessPath: accessPath, refreshPath: refreshPath}
}

func (s *Store) AccessPath() string  { return s.accessPath }
func (s *Store) RefreshPath() string { return s.refreshPath }

// Access returns the current access token.
func (s *Store) Access() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readTokenFile(s.accessPath)
}

// Refresh returns the current refresh token.
func (s *Store) Refresh() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshPath == "" {
		return "", fmt.Errorf("tokenstore: no refresh file configured")
	}
	return readTokenFile(s.refreshPath)
}

// SetAccess persists a new access token atomically.
func (s *Store) SetAccess(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeTokenFile(s.accessPath, token)
}

// SetRefresh persists a rotated refresh token atomically.
func (s *Store) SetRefresh(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshPath == "" {
		return fmt.Errorf("tokenstore: no refresh file configured")
	}
	return writeTokenFile(s.refreshPath, token)
}

func readTokenFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("tokenstore: no token file configured")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("tokenstore: read %s: %w", path, err)
	}
	line := strings.TrimSpace(string(b))
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return strings.TrimPrefix(line, "oauth:"), nil
}

// writeTokenFile writes via a temp file and rename so a watcher or a
// concurrent reader never sees a half-written token.
func writeTokenFile(path, token string) error {
	if path == "" {
		return fmt.Errorf("tokenstore: no token file configured")
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("tokenstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.WriteString(strings.TrimSpace(token) + "\n")
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		if werr != nil {
			return fmt.Errorf("tokenstore: write %s: %w", path, werr)
		}
		return fmt.Errorf("tokenstore: close %s: %w", path, cerr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: rename %s: %w", path, err)
	}
	return nil
}
