package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/femto/minion-novel/pkg/domain"
	"github.com/femto/minion-novel/pkg/ports"
)

const ext = ".json"

// Store implements ports.SessionStore using the local filesystem.
// Each session is a JSON document at <base>/<app>/<user>/<session>.json.
type Store struct {
	BasePath string
}

var _ ports.SessionStore = (*Store)(nil)

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".minion/sessions".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".minion", "sessions")
	}
	return &Store{BasePath: basePath}
}

// segment escapes one key component into a safe path element.
func segment(s string) (string, error) {
	escaped := url.PathEscape(s)
	if escaped == "" || escaped == "." || escaped == ".." {
		return "", fmt.Errorf("%w: unsafe path component %q", domain.ErrInvalidSessionKey, s)
	}
	return escaped, nil
}

func (s *Store) paths(key domain.SessionKey) (dir string, file string, err error) {
	if err := key.Validate(); err != nil {
		return "", "", err
	}
	app, err := segment(key.AppName)
	if err != nil {
		return "", "", err
	}
	user, err := segment(key.UserID)
	if err != nil {
		return "", "", err
	}
	id, err := segment(key.SessionID)
	if err != nil {
		return "", "", err
	}
	dir = filepath.Join(s.BasePath, app, user)
	return dir, filepath.Join(dir, id+ext), nil
}

// Save persists the session to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	dir, destPath, err := s.paths(session.Key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-*"+ext+".partial")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Rename replaces dest atomically on POSIX. Windows refuses an existing
	// dest, so only there is it removed first.
	if runtime.GOOS == "windows" {
		if _, err := os.Stat(destPath); err == nil {
			if err := os.Remove(destPath); err != nil {
				return fmt.Errorf("failed to remove existing session file for overwrite: %w", err)
			}
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to session file: %w", err)
	}
	return nil
}

// Load retrieves the session from its JSON file.
func (s *Store) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	_, filePath, err := s.paths(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.State == nil {
		session.State = domain.State{}
	}
	return &session, nil
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	_, filePath, err := s.paths(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List walks <base>/<app>/<user> and returns the keys matching the filter.
func (s *Store) List(ctx context.Context, filter ports.ListFilter) ([]domain.SessionKey, error) {
	keys := []domain.SessionKey{}
	err := filepath.WalkDir(s.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		rel, err := filepath.Rel(s.BasePath, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		parts[2] = strings.TrimSuffix(parts[2], ext)
		key, err := domain.ParseSessionKey(strings.Join(parts, "/"))
		if err != nil {
			return nil
		}
		if filter.Match(key) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Encode() < keys[j].Encode() })
	return keys, nil
}
