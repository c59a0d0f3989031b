// Package ui is the terminal front end: a thin shell and the incremental
// finder over the live index.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"

	"finder/internal/config"
	"finder/internal/core/query"
	"finder/internal/logging"
	"finder/internal/model"
)

var uiLog = logging.ForComponent(logging.CompUI)

// Source is the live index the UI reads. finder.Runtime satisfies it.
type Source interface {
	Snapshot() *model.Snapshot
	Status() model.IndexStatus
	Engine() *query.Engine
}

type Options struct {
	Home             string
	StartDir         string
	MaxVisible       int
	ViewportReserved int
	// Poll is the status/snapshot refresh tick. Default 200ms.
	Poll time.Duration
	// StartInFinder skips the shell and opens the finder directly.
	StartInFinder bool
	// Open opens a selected path; defaults to the platform opener.
	Open func(path string) error
}

type mode int

const (
	modeShell mode = iota
	modeFinder
)

type tickMsg time.Time

type Model struct {
	src     Source
	opts    Options
	session string

	mode   mode
	width  int
	height int

	sh      *shell
	shellIn textinput.Model

	findIn   textinput.Model
	snap     *model.Snapshot
	lastQ    string
	results  []model.PathEntry
	selected int

	status model.IndexStatus
	notice outLine
}

func New(src Source, opts Options) (*Model, error) {
	if src == nil {
		return nil, fmt.Errorf("source is required")
	}
	if opts.MaxVisible <= 0 {
		opts.MaxVisible = config.DefaultMaxVisible
	}
	if opts.ViewportReserved < 0 {
		opts.ViewportReserved = 0
	}
	if opts.Poll <= 0 {
		opts.Poll = 200 * time.Millisecond
	}
	if opts.Open == nil {
		opts.Open = openPath
	}
	if opts.Home == "" {
		opts.Home, _ = os.UserHomeDir()
	}
	if opts.StartDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.StartDir = wd
		} else {
			opts.StartDir = opts.Home
		}
	}

	m := &Model{
		src:     src,
		opts:    opts,
		session: uuid.NewString(),
		sh:      newShell(opts.StartDir, opts.Home),
	}

	m.shellIn = textinput.New()
	m.shellIn.PromptStyle = promptStyle
	m.shellIn.Prompt = m.shellPrompt()

	m.findIn = textinput.New()
	m.findIn.Prompt = "Find> "
	m.findIn.PromptStyle = promptStyle

	if opts.StartInFinder {
		m.enterFinder()
	} else {
		m.shellIn.Focus()
	}
	return m, nil
}

// Run drives the program until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Source, opts Options) error {
	m, err := New(src, opts)
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.tick())
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Poll, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) shellPrompt() string {
	return fmt.Sprintf("[finder] %s> ", m.sh.cwd)
}

func (m *Model) enterFinder() {
	m.mode = modeFinder
	m.shellIn.Blur()
	m.findIn.Focus()
	m.notice = outLine{}
	m.refresh()
}

func (m *Model) leaveFinder() {
	m.mode = modeShell
	m.findIn.Blur()
	m.shellIn.Focus()
	m.src.Engine().Forget(m.session)
}

// refresh recomputes results when the query text or the published snapshot
// changed, and re-clamps the selection.
func (m *Model) refresh() {
	snap := m.src.Snapshot()
	q := strings.TrimSpace(m.findIn.Value())
	if snap == m.snap && q == m.lastQ && m.results != nil {
		return
	}
	m.snap = snap
	m.lastQ = q
	m.results = m.src.Engine().Query(m.session, snap, q)
	if m.results == nil {
		m.results = []model.PathEntry{}
	}
	m.selected = query.Clamp(m.selected, len(m.visible()))
}

func (m *Model) visible() []model.PathEntry {
	return query.Visible(m.results, m.height, m.opts.ViewportReserved, m.opts.MaxVisible)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.shellIn.Width = max(0, msg.Width-runewidth.StringWidth(m.shellIn.Prompt)-1)
		m.findIn.Width = max(0, msg.Width-runewidth.StringWidth(m.findIn.Prompt)-1)
		if m.mode == modeFinder {
			m.selected = query.Clamp(m.selected, len(m.visible()))
		}
		return m, nil

	case tickMsg:
		m.status = m.src.Status()
		if m.mode == modeFinder {
			m.refresh()
		}
		return m, m.tick()

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.mode == modeFinder {
			return m.updateFinder(msg)
		}
		return m.updateShell(msg)
	}

	var cmd tea.Cmd
	if m.mode == modeFinder {
		m.findIn, cmd = m.findIn.Update(msg)
	} else {
		m.shellIn, cmd = m.shellIn.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateShell(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyCtrlS:
		m.enterFinder()
		return m, nil
	case tea.KeyEnter:
		line := m.shellIn.Value()
		m.shellIn.Reset()
		quit := m.sh.exec(line)
		m.shellIn.Prompt = m.shellPrompt()
		if quit {
			return m, tea.Quit
		}
		return m, nil
	case tea.KeyUp:
		if cmd, ok := m.sh.previous(); ok {
			m.shellIn.SetValue(cmd)
			m.shellIn.CursorEnd()
		}
		return m, nil
	case tea.KeyDown:
		if cmd, ok := m.sh.next(); ok {
			m.shellIn.SetValue(cmd)
			m.shellIn.CursorEnd()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.shellIn, cmd = m.shellIn.Update(msg)
	return m, cmd
}

func (m *Model) updateFinder(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.opts.StartInFinder {
			return m, tea.Quit
		}
		m.leaveFinder()
		return m, nil
	case tea.KeyUp:
		m.selected = query.Clamp(m.selected-1, len(m.visible()))
		return m, nil
	case tea.KeyDown:
		m.selected = query.Clamp(m.selected+1, len(m.visible()))
		return m, nil
	case tea.KeyEnter:
		vis := m.visible()
		if len(vis) == 0 {
			return m, nil
		}
		path := vis[query.Clamp(m.selected, len(vis))].Path
		if err := m.opts.Open(path); err != nil {
			uiLog.Warn("open_failed", slog.String("path", path), slog.String("error", err.Error()))
			m.notice = outLine{text: "Error: " + err.Error(), kind: lineBad}
		} else {
			m.notice = outLine{text: "Opened " + path, kind: lineGood}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.findIn, cmd = m.findIn.Update(msg)
	m.refresh()
	return m, cmd
}

func (m *Model) View() string {
	if m.mode == modeFinder {
		return m.finderView()
	}
	return m.shellView()
}

func (m *Model) truncate(s string, reserve int) string {
	if m.width <= 0 {
		return s
	}
	w := m.width - reserve
	if w <= 0 {
		return ""
	}
	return runewidth.Truncate(s, w, "…")
}

func styleFor(kind lineKind) func(...string) string {
	switch kind {
	case lineGood:
		return goodStyle.Render
	case lineBad:
		return badStyle.Render
	default:
		return itemStyle.Render
	}
}

func (m *Model) shellView() string {
	var b strings.Builder
	lines := m.sh.out
	if m.height > 2 && len(lines) > m.height-2 {
		lines = lines[len(lines)-(m.height-2):]
	}
	for _, l := range lines {
		b.WriteString(styleFor(l.kind)(m.truncate(l.text, 1)))
		b.WriteByte('\n')
	}
	if line := m.statusLine(); line != "" {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(m.shellIn.View())
	return b.String()
}

func (m *Model) finderView() string {
	var b strings.Builder
	vis := m.visible()
	if len(vis) == 0 {
		b.WriteString(emptyStyle.Render("No matches found."))
		b.WriteByte('\n')
	}
	for i, e := range vis {
		if i == m.selected {
			b.WriteString(renderRow("> ", m.truncate(e.Name, 3), m.lastQ, selectedStyle))
		} else {
			b.WriteString(renderRow("  ", m.truncate(e.Name, 3), m.lastQ, itemStyle))
		}
		b.WriteByte('\n')
	}

	switch {
	case m.statusLine() != "":
		b.WriteString(m.statusLine())
	case m.notice.text != "":
		b.WriteString(styleFor(m.notice.kind)(m.truncate(m.notice.text, 1)))
	default:
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d of %d", len(m.results), m.snap.Len())))
	}
	b.WriteByte('\n')
	b.WriteString(m.findIn.View())
	return b.String()
}

func renderRow(prefix, name, q string, base lipgloss.Style) string {
	before, match, after, ok := query.SplitMatch(name, q)
	if !ok {
		return base.Render(prefix + name)
	}
	return base.Render(prefix+before) + matchStyle.Render(match) + base.Render(after)
}

func (m *Model) statusLine() string {
	msg := m.status.Message()
	if msg == "" {
		return ""
	}
	msg = m.truncate(msg, 1)
	switch m.status.Kind {
	case model.StatusFailed:
		return badStyle.Render(msg)
	case model.StatusIndexing:
		return busyStyle.Render(msg)
	default:
		return goodStyle.Render(msg)
	}
}
