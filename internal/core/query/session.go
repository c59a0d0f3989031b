package query

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"finder/internal/core/cache"
	"finder/internal/logging"
	"finder/internal/model"
)

var queryLog = logging.ForComponent(logging.CompQuery)

type Options struct {
	// SessionTTL drops idle sessions. Default 30s.
	SessionTTL time.Duration
	// CacheSize bounds the per-snapshot result cache. Default 128.
	CacheSize int
}

type session struct {
	snap      *model.Snapshot
	lastQ     string
	results   []model.PathEntry
	updatedAt time.Time
}

type cacheKey struct {
	version int64
	q       string
}

// Engine serves Filter results for interactive sessions. When a session's
// new query contains its previous query, only the previous results are
// re-filtered; any entry matching the longer query must match the shorter one.
type Engine struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*session
	cache    *cache.LRU[cacheKey, []model.PathEntry]
	now      func() time.Time
}

func NewEngine(opts Options) *Engine {
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 128
	}
	return &Engine{
		ttl:      ttl,
		sessions: map[string]*session{},
		cache:    cache.NewLRU[cacheKey, []model.PathEntry](size),
		now:      time.Now,
	}
}

// Query is Filter with session narrowing and caching. Results are read-only.
// Snapshots with Version 0 are never cached.
func (e *Engine) Query(sessionID string, snap *model.Snapshot, q string) []model.PathEntry {
	if e == nil {
		return Filter(snap, q)
	}
	if snap == nil {
		return nil
	}
	if q == "" {
		e.remember(sessionID, snap, "", snap.Entries)
		return snap.Entries
	}

	lower := strings.ToLower(q)
	key := cacheKey{version: snap.Version, q: lower}
	if snap.Version > 0 {
		if hit, ok := e.cache.Get(key); ok {
			e.remember(sessionID, snap, lower, hit)
			return hit
		}
	}

	in := snap.Entries
	narrowed := false
	e.mu.Lock()
	if ses := e.sessions[sessionID]; ses != nil && ses.snap == snap && ses.lastQ != "" && strings.Contains(lower, ses.lastQ) {
		in = ses.results
		narrowed = true
	}
	e.mu.Unlock()

	out := filterEntries(in, lower)
	queryLog.Debug("query",
		slog.String("session", sessionID),
		slog.Int("in", len(in)),
		slog.Int("out", len(out)),
		slog.Bool("narrowed", narrowed),
	)

	e.remember(sessionID, snap, lower, out)
	if snap.Version > 0 {
		e.cache.Put(key, out)
	}
	return out
}

func (e *Engine) remember(sessionID string, snap *model.Snapshot, lowerQ string, results []model.PathEntry) {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, ses := range e.sessions {
		if now.Sub(ses.updatedAt) > e.ttl {
			delete(e.sessions, id)
		}
	}
	e.sessions[sessionID] = &session{
		snap:      snap,
		lastQ:     lowerQ,
		results:   results,
		updatedAt: now,
	}
}

// Forget drops a session, e.g. when a client disconnects.
func (e *Engine) Forget(sessionID string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}

func (e *Engine) Sessions() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
