package model

import (
	"path/filepath"
	"time"
)

// PathEntry is one indexed filesystem path. Name is always derived from Path.
type PathEntry struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func NewPathEntry(path string) PathEntry {
	path = filepath.Clean(path)
	return PathEntry{Path: path, Name: DisplayName(path)}
}

// DisplayName returns the basename shown to the user. Volume and filesystem
// roots have no basename and are shown as-is.
func DisplayName(path string) string {
	name := filepath.Base(path)
	if name == string(filepath.Separator) || name == "." || name == "" {
		return path
	}
	return name
}

// Snapshot is an ordered sequence of entries in discovery order.
// Published snapshots are read-only.
type Snapshot struct {
	Entries []PathEntry
	Version int64
	BuiltAt time.Time
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = e.Path
	}
	return out
}

// Count returns how many entries have exactly this path.
func (s *Snapshot) Count(path string) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, e := range s.Entries {
		if e.Path == path {
			n++
		}
	}
	return n
}

// Without returns a new snapshot with every entry for path dropped. The
// receiver is not modified and the result carries no Version; the publisher
// assigns one. ok is false when nothing matched.
func (s *Snapshot) Without(path string) (*Snapshot, bool) {
	if s == nil {
		return &Snapshot{}, false
	}
	out := make([]PathEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Path == path {
			continue
		}
		out = append(out, e)
	}
	if len(out) == len(s.Entries) {
		return s, false
	}
	return &Snapshot{Entries: out, BuiltAt: s.BuiltAt}, true
}

func SnapshotFromPaths(paths []string) *Snapshot {
	entries := make([]PathEntry, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, NewPathEntry(p))
	}
	return &Snapshot{Entries: entries}
}

type EventKind int

const (
	EventReindex EventKind = iota
	EventRemove
	eventStop
)

func (k EventKind) String() string {
	switch k {
	case EventReindex:
		return "reindex"
	case EventRemove:
		return "remove"
	case eventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ChangeEvent is produced by a change source and consumed once by the
// reindex coordinator. Path is only set for EventRemove.
type ChangeEvent struct {
	Kind EventKind
	Path string
}

func Reindex() ChangeEvent { return ChangeEvent{Kind: EventReindex} }

func Remove(path string) ChangeEvent {
	return ChangeEvent{Kind: EventRemove, Path: filepath.Clean(path)}
}

// Stop is the shutdown sentinel.
func Stop() ChangeEvent { return ChangeEvent{Kind: eventStop} }

func (e ChangeEvent) IsStop() bool { return e.Kind == eventStop }

type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusIndexing
	StatusRemoved
	StatusUpdated
	StatusFailed
)

func (k StatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusIndexing:
		return "indexing"
	case StatusRemoved:
		return "removed"
	case StatusUpdated:
		return "updated"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IndexStatus is the transient UI-facing state of the index.
type IndexStatus struct {
	Kind    StatusKind `json:"kind"`
	Path    string     `json:"path,omitempty"`
	Err     string     `json:"error,omitempty"`
	Entries int        `json:"entries"`
	At      time.Time  `json:"at"`
}

func (s IndexStatus) Message() string {
	switch s.Kind {
	case StatusIndexing:
		return "Indexing..."
	case StatusRemoved:
		return "Removed " + s.Path
	case StatusUpdated:
		return "Index updated"
	case StatusFailed:
		return "Index error: " + s.Err
	default:
		return ""
	}
}

func (k StatusKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *StatusKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "indexing":
		*k = StatusIndexing
	case "removed":
		*k = StatusRemoved
	case "updated":
		*k = StatusUpdated
	case "failed":
		*k = StatusFailed
	default:
		*k = StatusIdle
	}
	return nil
}
