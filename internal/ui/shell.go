package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
)

type lineKind int

const (
	linePlain lineKind = iota
	lineGood
	lineBad
)

type outLine struct {
	text string
	kind lineKind
}

// shell is the thin command mode. Its working directory is its own; the
// process directory is never changed.
type shell struct {
	cwd     string
	home    string
	out     []outLine
	history []string
	histIdx int
}

func newShell(cwd, home string) *shell {
	return &shell{cwd: filepath.Clean(cwd), home: home, histIdx: -1}
}

var commandNames = []string{"cd", "ls", "dir", "pwd", "clear", "cls", "help", "tutor", "exit", "quit"}

// exec runs one command line. It reports true when the shell should quit.
func (s *shell) exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	s.history = append(s.history, line)
	s.histIdx = -1

	if line == "cd.." {
		s.cd([]string{".."})
		return false
	}

	args, err := splitArgs(line)
	if err != nil {
		s.print(lineBad, "Error: Invalid command syntax - "+err.Error())
		return false
	}
	name, args := args[0], args[1:]

	switch name {
	case "cd":
		s.cd(args)
	case "ls", "dir":
		s.ls(args)
	case "pwd":
		s.print(linePlain, s.cwd)
	case "clear", "cls":
		s.out = nil
	case "help", "tutor":
		s.help()
	case "exit", "quit":
		return true
	default:
		s.print(lineBad, "Invalid command.")
		if m := fuzzy.Find(name, commandNames); len(m) > 0 {
			s.print(linePlain, fmt.Sprintf("Did you mean '%s'?", m[0].Str))
		}
	}
	return false
}

func (s *shell) print(kind lineKind, text string) {
	s.out = append(s.out, outLine{text: text, kind: kind})
}

// resolve expands a leading shortcut and makes p absolute against cwd.
func (s *shell) resolve(p string) string {
	p = strings.Trim(strings.TrimSpace(p), `"'`)
	p = expandShortcut(p, s.home)
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.cwd, p)
	}
	return filepath.Clean(p)
}

// expandShortcut replaces a leading ~ (home), * (Desktop), ! (Downloads) or
// & (AppData).
func expandShortcut(p, home string) string {
	if p == "" || home == "" {
		return p
	}
	var dir string
	switch p[0] {
	case '~':
		dir = home
	case '*':
		dir = filepath.Join(home, "Desktop")
	case '!':
		dir = filepath.Join(home, "Downloads")
	case '&':
		dir = filepath.Join(home, "AppData")
	default:
		return p
	}
	return dir + p[1:]
}

func (s *shell) cd(args []string) {
	if len(args) == 0 {
		s.print(lineBad, "Error: No directory specified.")
		return
	}
	target := s.resolve(args[0])
	st, err := os.Stat(target)
	switch {
	case os.IsPermission(err):
		s.print(lineBad, fmt.Sprintf("Permission denied: '%s'", args[0]))
		return
	case err != nil || !st.IsDir():
		s.print(lineBad, fmt.Sprintf("Error: '%s' is not a directory or does not exist.", target))
		return
	}
	s.cwd = target
	s.print(lineGood, fmt.Sprintf("Changed to '%s'", target))
}

func (s *shell) ls(args []string) {
	dir := s.cwd
	if len(args) > 0 {
		dir = s.resolve(args[0])
	}
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		s.print(lineBad, "Directory not found.")
		return
	case os.IsPermission(err):
		s.print(lineBad, "Permission denied.")
		return
	case err != nil:
		s.print(lineBad, "Error: "+err.Error())
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].IsDir() && !entries[j].IsDir()
	})
	s.print(linePlain, dir)
	for i, e := range entries {
		branch := "├── "
		if i == len(entries)-1 {
			branch = "└── "
		}
		label := e.Name() + "/"
		if !e.IsDir() {
			label = e.Name()
			if info, err := e.Info(); err == nil {
				label += " (" + humanize.IBytes(uint64(max(info.Size(), 0))) + ")"
			}
		}
		s.print(linePlain, branch+label)
	}
}

func (s *shell) help() {
	for _, l := range []string{
		"finder is a command-line file explorer with a live file index.",
		"Commands: cd <dir>, cd.., ls/dir [dir], pwd, clear/cls, help, exit.",
		"Shortcuts: ~ home, * Desktop, ! Downloads, & AppData.",
		"Ctrl+S opens the finder; Esc goes back (or quits from here).",
	} {
		s.print(linePlain, l)
	}
}

// previous and next walk the command history for Up/Down.
func (s *shell) previous() (string, bool) {
	if s.histIdx >= len(s.history)-1 {
		return "", false
	}
	s.histIdx++
	return s.history[len(s.history)-1-s.histIdx], true
}

func (s *shell) next() (string, bool) {
	if s.histIdx < 0 {
		return "", false
	}
	s.histIdx--
	if s.histIdx < 0 {
		return "", true
	}
	return s.history[len(s.history)-1-s.histIdx], true
}

// splitArgs splits on whitespace, honoring single and double quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("no closing quotation")
	}
	if inArg {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}
