package findercli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"finder/internal/finder"
	"finder/internal/finderd"
	"finder/internal/logging"
	"finder/internal/version"
)

// NewDaemonCommand is the finderd root: watcher, reindex coordinator and the
// JSONL query server in one process.
func NewDaemonCommand() *cobra.Command {
	return newDaemonCommand(&Options{})
}

func newDaemonCommand(opts *Options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:          "finderd",
		Short:        "Serve the live file-path index over JSONL-RPC",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil || opts.Config == nil {
				return fmt.Errorf("options missing")
			}
			cfg := opts.Config
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			opts.initLogging(true)
			defer logging.Shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := finder.Open(ctx, cfg, finder.Options{Watch: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			s := finderd.NewServer(finderd.Options{Listen: cfg.Listen, Backend: rt, Engine: rt.Engine()})
			errCh := make(chan error, 1)
			go func() { errCh <- s.Run() }()

			select {
			case err := <-errCh:
				if errors.Is(err, syscall.EADDRINUSE) {
					return fmt.Errorf("listen address in use: %s (try --listen 127.0.0.1:7339)", cfg.Listen)
				}
				return err
			case <-ctx.Done():
				return s.Close()
			}
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Version = version.String()

	withOptionsContext(cmd, opts)
	bindFlags(cmd, opts)
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (tcp, default 127.0.0.1:7338)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts := optionsFrom(cmd); opts != nil {
			return opts.Prepare(cmd.Flags().Changed)
		}
		return nil
	}
	return cmd
}
