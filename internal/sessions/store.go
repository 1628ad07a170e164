// Package sessions persists conversation histories as per-user JSON files
// and caches the live runtime serving each (user, session) pair.
package sessions

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	// ErrInvalidSessionID marks session identifiers that fail the ID pattern.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrSessionNotFound marks lookups of sessions with no file on disk.
	ErrSessionNotFound = errors.New("session not found")
)

// sessionIDPattern is the sole defence against path traversal at the HTTP
// boundary: an ID that matches can be embedded in a filename without ever
// escaping the sessions directory.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// ValidID reports whether id is acceptable as a session identifier.
func ValidID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Info describes one stored session file.
type Info struct {
	ID       string    `json:"id"`
	Modified time.Time `json:"modified"`
	Filename string    `json:"filename"`
}

// Store maps (user, session) pairs to files named
// {user_id}_session_{session_id}.json under a single directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating the directory when
// missing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory session files live in.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for the pair. The session ID is validated on
// every call; filenames are built by formatting, never by concatenating
// unchecked input.
func (s *Store) Path(userID int64, sessionID string) (string, error) {
	if !ValidID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(s.dir, fmt.Sprintf("%d_session_%s.json", userID, sessionID)), nil
}

// Exists reports whether the pair has a session file on disk.
func (s *Store) Exists(userID int64, sessionID string) bool {
	path, err := s.Path(userID, sessionID)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// List returns the user's stored sessions, newest first. Sessions modified
// in the same instant fall back to ID order, which for timestamp IDs is
// also newest first.
func (s *Store) List(userID int64) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	prefix := fmt.Sprintf("%d_session_", userID)
	infos := []Info{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		if !ValidID(id) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{ID: id, Modified: fi.ModTime(), Filename: name})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Modified.Equal(infos[j].Modified) {
			return infos[i].ID > infos[j].ID
		}
		return infos[i].Modified.After(infos[j].Modified)
	})
	return infos, nil
}

// Delete removes the pair's session file.
func (s *Store) Delete(userID int64, sessionID string) error {
	path, err := s.Path(userID, sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return fmt.Errorf("delete session file: %w", err)
	}
	return nil
}
