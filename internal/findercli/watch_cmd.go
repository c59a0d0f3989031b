package findercli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"finder/internal/finder"
	"finder/internal/logging"
	"finder/internal/model"
)

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the snapshot file current until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil || opts.Config == nil {
				return fmt.Errorf("options missing")
			}
			opts.initLogging(true)
			defer logging.Shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := finder.Open(ctx, opts.Config, finder.Options{Watch: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "watching %s (%d entries, debounce %s)\n",
				opts.Config.BaseDir, rt.Snapshot().Len(), opts.Config.Debounce)

			updates := rt.Coordinator().Updates()
			for {
				select {
				case <-ctx.Done():
					_, _ = fmt.Fprintln(out, "stopping")
					return nil
				case st := <-updates:
					if st.Kind == model.StatusIdle {
						continue
					}
					_, _ = fmt.Fprintf(out, "%s %s (%d entries)\n", st.At.Format(time.TimeOnly), st.Message(), st.Entries)
				}
			}
		},
	}
}
