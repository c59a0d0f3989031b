package findercli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"finder/internal/core/query"
	"finder/internal/finder"
)

func newQCommand() *cobra.Command {
	var (
		limit int
		jsonl bool
	)
	cmd := &cobra.Command{
		Use:   "q <query>",
		Short: "Print snapshot entries whose name contains the query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(cmd)
			if opts == nil || opts.Config == nil {
				return fmt.Errorf("options missing")
			}
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}

			snap, err := finder.LoadIndex(opts.Config)
			if err != nil {
				return err
			}
			q := strings.TrimSpace(strings.Join(args, " "))
			items := query.Page(query.Filter(snap, q), 0, limit)

			var out string
			if jsonl {
				out = RenderJSONL(items)
			} else {
				out = RenderPaths(items)
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results (0 for all)")
	cmd.Flags().BoolVar(&jsonl, "jsonl", false, "output as JSONL")
	return cmd
}
