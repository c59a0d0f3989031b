package walk

import (
	"path/filepath"
	"strings"
)

// ExclusionSet holds lowercase substrings. A path is excluded when its
// lowercased, slash-separated form with a trailing "/" contains any member.
type ExclusionSet struct {
	subs []string
}

func NewExclusionSet(subs []string) ExclusionSet {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, filepath.ToSlash(s))
	}
	return ExclusionSet{subs: out}
}

func (s ExclusionSet) Len() int { return len(s.subs) }

func (s ExclusionSet) Excluded(path string) bool {
	if len(s.subs) == 0 {
		return false
	}
	lower := strings.ToLower(filepath.ToSlash(path))
	if !strings.HasSuffix(lower, "/") {
		lower += "/"
	}
	for _, sub := range s.subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// Filter decides which paths under base are recorded and descended into.
type Filter struct {
	base string
	ex   ExclusionSet
	ig   *ignoreMatcher
}

type Options struct {
	Exclusions []string
	// IgnoreFile is an optional gitignore-format file. Patterns are relative to base.
	IgnoreFile string
}

func NewFilter(base string, opts Options) (*Filter, error) {
	ig, err := loadIgnoreMatcher(opts.IgnoreFile)
	if err != nil {
		return nil, err
	}
	return &Filter{
		base: filepath.Clean(base),
		ex:   NewExclusionSet(opts.Exclusions),
		ig:   ig,
	}, nil
}

func (f *Filter) Base() string {
	if f == nil {
		return ""
	}
	return f.base
}

// ShouldInclude reports whether abs is recorded (and, for a directory, walked).
// The ExclusionSet names directories, so files are only checked against the
// ignore file; a file inside an excluded directory is never reached.
func (f *Filter) ShouldInclude(abs string, isDir bool) bool {
	if f == nil {
		return true
	}
	if isDir && f.ex.Excluded(abs) {
		return false
	}
	if f.ig == nil {
		return true
	}
	rel, err := filepath.Rel(f.base, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return true
	}
	return !f.ig.isIgnored(filepath.ToSlash(rel), isDir)
}
