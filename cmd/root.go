package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/lanemix/cmd/config"
	"github.com/tphakala/lanemix/cmd/devices"
	"github.com/tphakala/lanemix/cmd/duplex"
	"github.com/tphakala/lanemix/cmd/play"
	"github.com/tphakala/lanemix/internal/app"
	"github.com/tphakala/lanemix/internal/buildinfo"
)

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	loader := &app.Loader{Build: build}

	rootCmd := &cobra.Command{
		Use:           "lanemix",
		Short:         "lanemix realtime audio session engine",
		Version:       build.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, loader)

	rootCmd.AddCommand(
		devices.Command(loader),
		play.Command(loader),
		duplex.Command(loader),
		config.Command(loader),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, loader *app.Loader) {
	rootCmd.PersistentFlags().StringVarP(&loader.ConfigFile, "config", "c", "", "Path to config file (default: search ., ~/.config/lanemix, /etc/lanemix)")
	rootCmd.PersistentFlags().BoolVarP(&loader.Debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&loader.Verbose, "verbose", "v", false, "Print per-stream latency reports on shutdown")
}
