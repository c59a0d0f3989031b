package findercli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"finder/internal/config"
	"finder/internal/logging"
)

// Options holds the persistent flags. Flags that were not set on the command
// line leave the config file and platform defaults alone.
type Options struct {
	ConfigPath string
	IndexPath  string
	BaseDir    string
	IgnoreFile string
	Exclude    []string
	Debounce   time.Duration
	Workers    int
	LogLevel   string
	Verbose    bool

	// Config is the effective configuration after Prepare.
	Config *config.Config

	// defaults swaps in a fixed config for tests.
	defaults func() (*config.Config, error)
}

// Prepare builds Config from defaults, the config file and any changed flags.
func (o *Options) Prepare(changed func(name string) bool) error {
	if changed == nil {
		changed = func(string) bool { return false }
	}
	load := o.defaults
	if load == nil {
		load = config.Default
	}
	cfg, err := load()
	if err != nil {
		return err
	}
	if err := cfg.Load(strings.TrimSpace(o.ConfigPath)); err != nil {
		return err
	}

	if changed("index") {
		cfg.IndexPath = o.IndexPath
	}
	if changed("base") {
		cfg.BaseDir = o.BaseDir
	}
	if changed("ignore-file") {
		cfg.IgnoreFile = o.IgnoreFile
	}
	if changed("exclude") {
		cfg.Exclusions = append(cfg.Exclusions, o.Exclude...)
	}
	if changed("debounce") {
		cfg.Debounce = o.Debounce
	}
	if changed("workers") {
		if o.Workers < 0 {
			return fmt.Errorf("--workers must be >= 0")
		}
		cfg.Workers = o.Workers
	}
	if changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if err := cfg.Prepare(); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}

// initLogging starts file logging. stderr mirroring is only enabled for
// headless commands, never while the TUI owns the terminal.
func (o *Options) initLogging(stderr bool) {
	if o.Config == nil {
		return
	}
	lc := o.Config.Log
	lc.Stderr = stderr && o.Verbose
	logging.Init(lc)
}

type optionsKey struct{}

func optionsFrom(cmd *cobra.Command) *Options {
	if cmd == nil {
		return nil
	}
	root := cmd.Root()
	if root == nil {
		root = cmd
	}
	ctx := root.Context()
	if ctx == nil {
		return nil
	}
	opts, _ := ctx.Value(optionsKey{}).(*Options)
	return opts
}

func bindFlags(cmd *cobra.Command, opts *Options) {
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "C", opts.ConfigPath, "config file (default: ~/finder_cli/config.toml)")
	cmd.PersistentFlags().StringVarP(&opts.IndexPath, "index", "f", opts.IndexPath, "snapshot file (default: ~/finder_cli/index.txt)")
	cmd.PersistentFlags().StringVarP(&opts.BaseDir, "base", "b", opts.BaseDir, "directory to index (default: filesystem root)")
	cmd.PersistentFlags().StringVar(&opts.IgnoreFile, "ignore-file", opts.IgnoreFile, "gitignore-style file of extra exclusions")
	cmd.PersistentFlags().StringSliceVarP(&opts.Exclude, "exclude", "x", nil, "extra exclusion substrings (comma separated list: -x /build/,/dist/)")
	cmd.PersistentFlags().DurationVar(&opts.Debounce, "debounce", config.DefaultDebounce, "quiet period before a rescan")
	cmd.PersistentFlags().IntVarP(&opts.Workers, "workers", "j", 0, "number of parallel scan workers (default: CPU/2)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level: debug|info|warn|error")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "V", false, "mirror logs to stderr (headless commands only)")
}

func withOptionsContext(cmd *cobra.Command, opts *Options) {
	cmd.SetContext(context.WithValue(context.Background(), optionsKey{}, opts))
}

// ExecuteForTest runs cmd with output captured and returns the prepared options.
func ExecuteForTest(cmd *cobra.Command) (string, Options, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	opts := optionsFrom(cmd)
	if opts == nil {
		return out.String(), Options{}, err
	}
	return out.String(), *opts, err
}
