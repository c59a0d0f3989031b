package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"finder/internal/logging"
)

const (
	DefaultDebounce         = 10 * time.Second
	DefaultStatusTTL        = 3 * time.Second
	DefaultListen           = "127.0.0.1:7338"
	DefaultMaxVisible       = 20
	DefaultViewportReserved = 3

	dataDirName   = "finder_cli"
	indexFileName = "index.txt"
)

// Config is built once at startup and handed to every component.
type Config struct {
	Home       string
	DataDir    string
	IndexPath  string
	BaseDir    string
	IgnoreFile string
	Exclusions []string

	Debounce  time.Duration
	Workers   int
	StatusTTL time.Duration

	MaxVisible       int
	ViewportReserved int

	Listen string
	Log    logging.Config
}

// fileConfig mirrors config.toml. Durations are strings ("10s", "500ms").
type fileConfig struct {
	BaseDir          string         `toml:"base_dir"`
	IndexPath        string         `toml:"index_path"`
	IgnoreFile       string         `toml:"ignore_file"`
	Exclusions       []string       `toml:"exclusions"`
	ExtraExclusions  []string       `toml:"extra_exclusions"`
	Debounce         string         `toml:"debounce"`
	Workers          int            `toml:"workers"`
	StatusTTL        string         `toml:"status_ttl"`
	MaxVisible       int            `toml:"max_visible"`
	ViewportReserved int            `toml:"viewport_reserved"`
	Listen           string         `toml:"listen"`
	Log              logging.Config `toml:"log"`
}

// Default returns the platform defaults rooted at the user's home directory.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return DefaultFor(home, runtime.GOOS), nil
}

func DefaultFor(home string, goos string) *Config {
	home = filepath.Clean(home)
	dataDir := filepath.Join(home, dataDirName)
	return &Config{
		Home:             home,
		DataDir:          dataDir,
		IndexPath:        filepath.Join(dataDir, indexFileName),
		BaseDir:          DefaultBaseDir(goos),
		IgnoreFile:       filepath.Join(dataDir, "ignore"),
		Exclusions:       DefaultExclusions(goos),
		Debounce:         DefaultDebounce,
		StatusTTL:        DefaultStatusTTL,
		MaxVisible:       DefaultMaxVisible,
		ViewportReserved: DefaultViewportReserved,
		Listen:           DefaultListen,
		Log: logging.Config{
			Dir:   dataDir,
			Level: "info",
		},
	}
}

func DefaultBaseDir(goos string) string {
	if goos == "windows" {
		return `C:\`
	}
	return "/"
}

// Entries are matched as substrings of the lowercased, slash-separated path
// with a trailing "/", so "/name/" only ever matches a whole path segment.
var commonExclusions = []string{
	"/.git/", "/node_modules/", "/__pycache__/", "/.cache/",
}

// DefaultExclusions returns the lowercase exclusion substrings skipped on goos.
func DefaultExclusions(goos string) []string {
	var platform []string
	switch goos {
	case "windows":
		platform = []string{
			"$recycle.bin", "system volume information", "windows",
			"program files", "program files (x86)", "drivers", "appdata",
			"$sysreset", "recovery", "boot", "perflogs", "msocache",
		}
	case "darwin":
		platform = []string{
			"system", "library", "private", "cores", "volumes",
			"dev", "tmp", "var", "bin", "sbin",
		}
	default:
		platform = []string{
			"/proc/", "/sys/", "/dev/", "/run/", "/snap/", "/lost+found/", "/var/lib/", "/tmp/",
		}
	}
	out := make([]string, 0, len(platform)+len(commonExclusions))
	out = append(out, platform...)
	out = append(out, commonExclusions...)
	return out
}

// Path returns the location of config.toml.
func (c *Config) Path() string {
	return filepath.Join(c.DataDir, "config.toml")
}

// Load overlays the TOML file at path onto c. A missing file is not an error.
func (c *Config) Load(path string) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(path) == "" {
		path = c.Path()
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return c.apply(fc)
}

func (c *Config) apply(fc fileConfig) error {
	if v := strings.TrimSpace(fc.BaseDir); v != "" {
		c.BaseDir = c.expand(v)
	}
	if v := strings.TrimSpace(fc.IndexPath); v != "" {
		c.IndexPath = c.expand(v)
	}
	if v := strings.TrimSpace(fc.IgnoreFile); v != "" {
		c.IgnoreFile = c.expand(v)
	}
	if len(fc.Exclusions) > 0 {
		c.Exclusions = append([]string(nil), fc.Exclusions...)
	}
	c.Exclusions = append(c.Exclusions, fc.ExtraExclusions...)

	if v := strings.TrimSpace(fc.Debounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
		c.Debounce = d
	}
	if v := strings.TrimSpace(fc.StatusTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("status_ttl: %w", err)
		}
		c.StatusTTL = d
	}
	if fc.Workers != 0 {
		c.Workers = fc.Workers
	}
	if fc.MaxVisible > 0 {
		c.MaxVisible = fc.MaxVisible
	}
	if fc.ViewportReserved > 0 {
		c.ViewportReserved = fc.ViewportReserved
	}
	if v := strings.TrimSpace(fc.Listen); v != "" {
		c.Listen = v
	}

	if v := strings.TrimSpace(fc.Log.Dir); v != "" {
		c.Log.Dir = c.expand(v)
	}
	if fc.Log.Level != "" {
		c.Log.Level = fc.Log.Level
	}
	if fc.Log.Format != "" {
		c.Log.Format = fc.Log.Format
	}
	if fc.Log.MaxSizeMB > 0 {
		c.Log.MaxSizeMB = fc.Log.MaxSizeMB
	}
	if fc.Log.MaxBackups > 0 {
		c.Log.MaxBackups = fc.Log.MaxBackups
	}
	if fc.Log.MaxAgeDays > 0 {
		c.Log.MaxAgeDays = fc.Log.MaxAgeDays
	}
	c.Log.Compress = c.Log.Compress || fc.Log.Compress
	return nil
}

// expand resolves a leading "~" against Home.
func (c *Config) expand(p string) string {
	if p == "~" {
		return c.Home
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		return filepath.Join(c.Home, p[2:])
	}
	return p
}

// Prepare normalizes and validates the configuration.
func (c *Config) Prepare() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(c.IndexPath) == "" {
		return fmt.Errorf("index path is required")
	}
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base directory is required")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must be >= 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = DefaultStatusTTL
	}
	if c.MaxVisible <= 0 {
		c.MaxVisible = DefaultMaxVisible
	}
	if c.ViewportReserved < 0 {
		c.ViewportReserved = 0
	}

	c.IndexPath = filepath.Clean(c.expand(c.IndexPath))
	c.BaseDir = filepath.Clean(c.expand(c.BaseDir))

	seen := map[string]struct{}{}
	cleaned := c.Exclusions[:0]
	for _, ex := range c.Exclusions {
		ex = strings.ToLower(strings.TrimSpace(ex))
		if ex == "" {
			continue
		}
		if _, ok := seen[ex]; ok {
			continue
		}
		seen[ex] = struct{}{}
		cleaned = append(cleaned, ex)
	}
	c.Exclusions = cleaned
	return nil
}

// EffectiveWorkers returns the scan pool size: Workers, or max(1, NumCPU/2).
func (c *Config) EffectiveWorkers() int {
	if c != nil && c.Workers > 0 {
		return c.Workers
	}
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// EnsureDataDir creates the directory holding the snapshot file.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(filepath.Dir(c.IndexPath), 0o755)
}
