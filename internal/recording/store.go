package recording

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roomcast-live/roomcast/pkg/util"
)

// fragmentExt is the container every uploaded fragment arrives in. The
// capture side slices one continuous encode, so all fragments of a
// recording share codec parameters and can be concatenated stream-copy.
const fragmentExt = ".webm"

// Store persists uploaded fragments on disk, one directory per
// (room, participant) pair. Fragment filenames zero-pad the sequence
// number so that lexicographic order equals sequence order.
type Store struct {
	root string
}

// NewStore creates a fragment store rooted at the given directory
func NewStore(root string) (*Store, error) {
	if err := util.EnsureDirectoryExists(root); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Dir returns the fragment directory for a pair. Identifiers are
// sanitized before they become path components.
func (s *Store) Dir(roomID, userID string) string {
	return filepath.Join(s.root, util.SanitizeIdentifier(roomID), util.SanitizeIdentifier(userID))
}

// Save writes one fragment. Writing the same sequence twice overwrites
// the previous payload: last write wins, no duplicate detection beyond
// the filename collision.
//
// The six-digit padding keeps filename order equal to sequence order
// up to seq 999999; at the default 3s slicing that is over a month of
// continuous capture per recording.
func (s *Store) Save(roomID, userID string, seq int64, payload io.Reader) (string, error) {
	dir := s.Dir(roomID, userID)
	if err := util.EnsureDirectoryExists(dir); err != nil {
		return "", fmt.Errorf("failed to create fragment directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("chunk_%06d%s", seq, fragmentExt))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create fragment file: %w", err)
	}

	if _, err := io.Copy(f, payload); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write fragment: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close fragment file: %w", err)
	}

	return path, nil
}

// List returns the absolute paths of all stored fragments for a pair,
// sorted by filename, which equals sequence order
func (s *Store) List(roomID, userID string) ([]string, error) {
	dir := s.Dir(roomID, userID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read fragment directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fragmentExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	sort.Strings(paths)
	return paths, nil
}

// Remove deletes a pair's fragment directory and everything in it
func (s *Store) Remove(roomID, userID string) error {
	return os.RemoveAll(s.Dir(roomID, userID))
}

// Root returns the store's base directory
func (s *Store) Root() string {
	return s.root
}
