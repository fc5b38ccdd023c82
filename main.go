package main

import (
	"fmt"
	"os"

	"github.com/tphakala/lanemix/cmd"
	"github.com/tphakala/lanemix/internal/buildinfo"
)

func main() {
	rootCmd := cmd.RootCommand(buildinfo.Current())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
