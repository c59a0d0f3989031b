package walk

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"finder/internal/model"
)

// Stats counts what a scan saw. Denied and Vanished directories contribute
// no entries; they never fail the scan.
type Stats struct {
	Dirs     int
	Files    int
	Skipped  int
	Denied   int
	Vanished int
	Failed   int
}

func (s *Stats) Add(o Stats) {
	s.Dirs += o.Dirs
	s.Files += o.Files
	s.Skipped += o.Skipped
	s.Denied += o.Denied
	s.Vanished += o.Vanished
	s.Failed += o.Failed
}

// Scan walks root top-down. Every readable, non-excluded directory yields an
// entry for itself followed by one entry per contained file; subdirectories
// follow in directory order. Symlinks are recorded but never followed.
func Scan(root string, f *Filter) ([]model.PathEntry, Stats) {
	var (
		out []model.PathEntry
		st  Stats
	)
	root = filepath.Clean(root)
	if !f.ShouldInclude(root, true) {
		st.Skipped++
		return nil, st
	}
	scanDir(root, f, &out, &st)
	return out, st
}

func scanDir(dir string, f *Filter, out *[]model.PathEntry, st *Stats) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		classify(err, st)
		return
	}

	st.Dirs++
	*out = append(*out, model.NewPathEntry(dir))

	var subdirs []string
	for _, d := range entries {
		full := filepath.Join(dir, d.Name())
		if d.IsDir() {
			if !f.ShouldInclude(full, true) {
				st.Skipped++
				continue
			}
			subdirs = append(subdirs, full)
			continue
		}
		if !f.ShouldInclude(full, false) {
			st.Skipped++
			continue
		}
		st.Files++
		*out = append(*out, model.NewPathEntry(full))
	}

	for _, sub := range subdirs {
		scanDir(sub, f, out, st)
	}
}

func classify(err error, st *Stats) {
	switch {
	case errors.Is(err, fs.ErrPermission):
		st.Denied++
	case errors.Is(err, fs.ErrNotExist):
		st.Vanished++
	default:
		st.Failed++
	}
}

// ListChildren returns the immediate subdirectories and files of base that
// pass the filter.
func ListChildren(base string, f *Filter) (dirs []string, files []string, err error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range entries {
		full := filepath.Join(base, d.Name())
		if !f.ShouldInclude(full, d.IsDir()) {
			continue
		}
		if d.IsDir() {
			dirs = append(dirs, full)
		} else {
			files = append(files, full)
		}
	}
	return dirs, files, nil
}
