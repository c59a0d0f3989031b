package finderd

import (
	"fmt"
	"path/filepath"
	"strings"

	"finder/internal/core/query"
	"finder/internal/model"
)

const (
	defaultLimit = 50
	maxLimit     = 10000
)

// Backend is the live index the daemon serves. finder.Runtime satisfies it.
type Backend interface {
	Snapshot() *model.Snapshot
	Status() model.IndexStatus
	Submit(model.ChangeEvent) error
	Watching() bool
}

type Handlers struct {
	backend Backend
	engine  *query.Engine
}

func NewHandlers(backend Backend, engine *query.Engine) *Handlers {
	if engine == nil {
		engine = query.NewEngine(query.Options{})
	}
	return &Handlers{backend: backend, engine: engine}
}

func (h *Handlers) Status() (StatusResult, error) {
	if h == nil || h.backend == nil {
		return StatusResult{}, fmt.Errorf("no index loaded")
	}
	snap := h.backend.Snapshot()
	st := h.backend.Status()
	return StatusResult{
		Status:   st,
		Message:  st.Message(),
		Entries:  snap.Len(),
		Version:  snap.Version,
		Watching: h.backend.Watching(),
	}, nil
}

// Query filters the current snapshot for the connection's session and
// returns one page of matches.
func (h *Handlers) Query(session string, p QueryParams) (QueryResult, error) {
	if h == nil || h.backend == nil {
		return QueryResult{}, fmt.Errorf("no index loaded")
	}
	if p.Limit < 0 || p.Offset < 0 {
		return QueryResult{}, fmt.Errorf("limit and offset must be >= 0")
	}
	limit := p.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	snap := h.backend.Snapshot()
	all := h.engine.Query(session, snap, p.Q)
	page := query.Page(all, p.Offset, limit)
	if page == nil {
		page = []model.PathEntry{}
	}
	return QueryResult{Total: len(all), Version: snap.Version, Items: page}, nil
}

func (h *Handlers) Rescan() error {
	if h == nil || h.backend == nil {
		return fmt.Errorf("no index loaded")
	}
	return h.backend.Submit(model.Reindex())
}

func (h *Handlers) Remove(p RemoveParams) error {
	if h == nil || h.backend == nil {
		return fmt.Errorf("no index loaded")
	}
	path := strings.TrimSpace(p.Path)
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}
	return h.backend.Submit(model.Remove(path))
}

func (h *Handlers) forget(session string) {
	if h != nil {
		h.engine.Forget(session)
	}
}
