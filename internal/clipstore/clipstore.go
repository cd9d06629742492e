package clipstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrIO wraps local storage failures so callers can distinguish them from
// upstream generation errors.
var ErrIO = errors.New("clip storage failure")

// Handle is an opaque reference to stored clip bytes. Immutable once
// created; the store owns the underlying file until Release.
type Handle struct {
	ID        string
	Path      string
	Duration  time.Duration // estimate; zero until the player decodes it
	CreatedAt time.Time
}

// Store persists generated audio bytes to a scratch directory. Every save
// gets a fresh uuid-named file; identical bytes saved twice yield two
// distinct handles.
type Store struct {
	dir string
}

// New creates the scratch directory if needed and returns a store over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w: %v", dir, ErrIO, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes clip bytes to a unique scratch file. format is the file
// extension hint (flac, mp3, wav) so the decoder and download endpoints can
// identify the container.
func (s *Store) Save(data []byte, format string) (Handle, error) {
	if format == "" {
		format = "bin"
	}
	id := uuid.NewString()
	path := filepath.Join(s.dir, "clip-"+id+"."+format)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Handle{}, fmt.Errorf("write clip %s: %w: %v", path, ErrIO, err)
	}

	return Handle{
		ID:        id,
		Path:      path,
		CreatedAt: time.Now(),
	}, nil
}

// Release deletes the clip file behind a handle. Best effort: failures are
// logged and swallowed, cleanup must never block or interrupt playback.
func (s *Store) Release(h Handle) {
	if h.Path == "" {
		return
	}
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		log.Warn("clip release failed", "id", h.ID, "path", h.Path, "err", err)
	}
}
