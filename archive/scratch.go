package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxAcquireAttempts = 5

// Scratch hands out per-import working directories under Base.
type Scratch struct {
	Base   string
	Logger *slog.Logger
}

// ScratchDir is one acquired working directory. Release removes it.
type ScratchDir struct {
	path   string
	logger *slog.Logger
	once   sync.Once
}

// Acquire creates a fresh, uniquely named directory. Names combine a
// nanosecond timestamp with a random suffix, and creation is exclusive, so
// concurrent imports never share a directory.
func (s *Scratch) Acquire() (*ScratchDir, error) {
	base := s.Base
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch base: %w", err)
	}
	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		name := fmt.Sprintf("import-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
		path := filepath.Join(base, name)
		err := os.Mkdir(path, 0o700)
		if err == nil {
			return &ScratchDir{path: path, logger: s.logger()}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
	}
	return nil, fmt.Errorf("create scratch dir: no unique name after %d attempts", maxAcquireAttempts)
}

func (s *Scratch) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Path returns the directory path.
func (d *ScratchDir) Path() string {
	return d.path
}

// Join returns a path inside the directory.
func (d *ScratchDir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.path}, elem...)...)
}

// Release removes the directory and everything in it. Failures are logged,
// never returned. Calling Release more than once is harmless.
func (d *ScratchDir) Release() {
	d.once.Do(func() {
		if err := os.RemoveAll(d.path); err != nil {
			d.logger.Warn("scratch cleanup failed", "dir", d.path, "error", err)
		}
	})
}
