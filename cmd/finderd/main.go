package main

import (
	"os"

	"finder/internal/findercli"
)

func main() {
	if err := findercli.NewDaemonCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
