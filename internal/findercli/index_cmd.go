package findercli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"finder/internal/finder"
	"finder/internal/index/flatfile"
)

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Snapshot management",
	}

	cmd.AddCommand(newIndexBuildCommand())
	cmd.AddCommand(newIndexStatsCommand())
	return cmd
}

func newIndexBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Scan the base directory and (re)write the snapshot file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil || opts.Config == nil {
				return fmt.Errorf("options missing")
			}
			opts.initLogging(true)

			snap, st, err := finder.BuildIndex(opts.Config)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"indexed %d entries (%d dirs, %d files; %d denied, %d vanished) in %s -> %s\n",
				snap.Len(), st.Dirs, st.Files, st.Denied, st.Vanished,
				st.Elapsed.Round(time.Millisecond), opts.Config.IndexPath)
			return nil
		},
	}
}

func newIndexStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the snapshot file's location and size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil || opts.Config == nil {
				return fmt.Errorf("options missing")
			}
			cfg := opts.Config

			store, err := flatfile.Open(cfg.IndexPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "index:   %s\n", store.Path())
			_, _ = fmt.Fprintf(out, "base:    %s\n", cfg.BaseDir)
			if !store.Exists() {
				_, _ = fmt.Fprintln(out, "status:  missing (run `finder index build`)")
				return nil
			}
			snap, err := store.Load()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "entries: %d\n", snap.Len())
			_, _ = fmt.Fprintf(out, "updated: %s\n", snap.BuiltAt.Format(time.RFC3339))
			return nil
		},
	}
}
