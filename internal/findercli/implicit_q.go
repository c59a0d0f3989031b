package findercli

import (
	"strings"

	"github.com/spf13/cobra"
)

// RewriteArgsForImplicitQ turns `finder report.pdf` into `finder q report.pdf`:
// when the first positional argument is not a known subcommand it is taken as
// a query. Flag values are skipped using the root and q flag sets.
func RewriteArgsForImplicitQ(root *cobra.Command, args []string) []string {
	if root == nil || len(args) == 0 {
		return args
	}

	first, ok := firstPositionalArgAfterFlags(root, args)
	if !ok {
		return args
	}

	known := knownTopLevelCommands(root)
	if known[strings.TrimSpace(first)] {
		return args
	}

	return append([]string{"q"}, args...)
}

func knownTopLevelCommands(root *cobra.Command) map[string]bool {
	known := map[string]bool{
		"help":       true,
		"completion": true,
	}

	for _, c := range root.Commands() {
		if c == nil {
			continue
		}
		known[c.Name()] = true
		for _, a := range c.Aliases {
			known[a] = true
		}
	}

	return known
}

// takesValue reports whether the flag (long name or single-letter shorthand)
// consumes the following argument on root or on the q command.
func takesValue(root *cobra.Command, name string, short bool) bool {
	cmds := []*cobra.Command{root}
	for _, c := range root.Commands() {
		if c.Name() == "q" {
			cmds = append(cmds, c)
		}
	}
	for _, c := range cmds {
		f := c.Flags().Lookup(name)
		if short {
			f = c.Flags().ShorthandLookup(name)
		}
		if f == nil {
			// Before parsing, persistent flags are not merged into Flags().
			f = c.PersistentFlags().Lookup(name)
			if short {
				f = c.PersistentFlags().ShorthandLookup(name)
			}
		}
		if f != nil {
			return f.NoOptDefVal == ""
		}
	}
	return false
}

func firstPositionalArgAfterFlags(root *cobra.Command, args []string) (string, bool) {
	skipNext := false
	positionalOnly := false

	for i := 0; i < len(args); i++ {
		a := strings.TrimSpace(args[i])
		if a == "" {
			continue
		}
		if skipNext {
			skipNext = false
			continue
		}

		if a == "--" {
			positionalOnly = true
			continue
		}

		if positionalOnly {
			return a, true
		}

		if strings.HasPrefix(a, "--") {
			// Inline values, e.g. --limit=5
			if strings.Contains(a, "=") {
				continue
			}
			skipNext = takesValue(root, strings.TrimPrefix(a, "--"), false)
			continue
		}

		if strings.HasPrefix(a, "-") && a != "-" {
			if len(a) == 2 {
				skipNext = takesValue(root, a[1:], true)
			}
			// Inline values, e.g. -n5 / -j=2
			continue
		}

		return a, true
	}

	return "", false
}
