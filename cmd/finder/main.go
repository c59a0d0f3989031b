package main

import (
	"os"

	"finder/internal/findercli"
)

func main() {
	root := findercli.NewRootCommand()
	root.SetArgs(findercli.RewriteArgsForImplicitQ(root, os.Args[1:]))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
