package findercli

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"finder/internal/core/scan"
	"finder/internal/finder"
	"finder/internal/index/flatfile"
	"finder/internal/logging"
	"finder/internal/ui"
	"finder/internal/version"
)

func NewRootCommand() *cobra.Command {
	return newRootCommand(&Options{})
}

func newRootCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "finder",
		Short:        "Live file-path index with an interactive finder",
		Example:      "  finder report.pdf    same as: finder q report.pdf",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runUI,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()
	cmd.InitDefaultVersionFlag()
	if f := cmd.Flags().Lookup("version"); f != nil {
		f.Shorthand = "v"
	}

	withOptionsContext(cmd, opts)
	bindFlags(cmd, opts)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts := optionsFrom(cmd); opts != nil {
			return opts.Prepare(cmd.Flags().Changed)
		}
		return nil
	}

	cmd.AddCommand(newIndexCommand())
	cmd.AddCommand(newQCommand())
	cmd.AddCommand(newWatchCommand())
	return cmd
}

func runUI(cmd *cobra.Command, args []string) error {
	opts := optionsFrom(cmd)
	if opts == nil || opts.Config == nil {
		return fmt.Errorf("options missing")
	}
	cfg := opts.Config
	opts.initLogging(false)
	defer logging.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if store, err := flatfile.Open(cfg.IndexPath); err == nil && !store.Exists() {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Indexing %s ...\n", cfg.BaseDir)
	}
	rt, err := finder.Open(ctx, cfg, finder.Options{
		Watch: true,
		Built: func(st scan.Stats) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d entries in %s\n", st.Entries, st.Elapsed.Round(time.Millisecond))
		},
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	return ui.Run(ctx, rt, ui.Options{
		Home:             cfg.Home,
		MaxVisible:       cfg.MaxVisible,
		ViewportReserved: cfg.ViewportReserved,
	})
}
