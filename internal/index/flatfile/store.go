package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finder/internal/logging"
	"finder/internal/model"
)

var storeLog = logging.ForComponent(logging.CompStore)

// ErrWrite wraps every failure to persist a snapshot.
var ErrWrite = errors.New("snapshot write failed")

// Store persists snapshots as UTF-8 text, one absolute path per line.
type Store struct {
	path string
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	return &Store{path: filepath.Clean(path)}, nil
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) Exists() bool {
	if s == nil {
		return false
	}
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the snapshot. A missing file is an empty snapshot.
func (s *Store) Load() (*model.Snapshot, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &model.Snapshot{}, nil
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var builtAt time.Time
	if st, err := f.Stat(); err == nil {
		builtAt = st.ModTime()
	}

	var entries []model.PathEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, model.NewPathEntry(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return &model.Snapshot{Entries: entries, BuiltAt: builtAt}, nil
}

// Save writes snap to a temp file next to the target and renames it into
// place, so Load never observes a partial file.
func (s *Store) Save(snap *model.Snapshot) error {
	if s == nil {
		return fmt.Errorf("%w: store is nil", ErrWrite)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriterSize(tmp, 256*1024)
	if snap != nil {
		for i, e := range snap.Entries {
			if i > 0 {
				if err := w.WriteByte('\n'); err != nil {
					return fmt.Errorf("%w: %v", ErrWrite, err)
				}
			}
			if _, err := w.WriteString(e.Path); err != nil {
				return fmt.Errorf("%w: %v", ErrWrite, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	committed = true

	storeLog.Debug("snapshot_saved", slog.String("path", s.path), slog.Int("entries", snap.Len()))
	return nil
}

// Name is the snapshot's file name, used by change sources to ignore our own writes.
func (s *Store) Name() string {
	return filepath.Base(s.Path())
}
