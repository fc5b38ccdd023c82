package devices

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/lanemix/internal/app"
	"github.com/tphakala/lanemix/internal/audiocore"
)

// Command creates a command listing audio devices.
func Command(loader *app.Loader) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio playback and capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := loader.Open()
			if err != nil {
				return err
			}
			defer ctx.Close()

			list, err := ctx.Backend(dryRun).Devices()
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the virtual backend devices instead of hardware")

	return cmd
}

func printDevices(w io.Writer, list []audiocore.DeviceInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tINDEX\tDEFAULT\tNAME\tID")
	for _, d := range list {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", kind(d), d.Index, marker(d.IsDefault), d.Name, d.ID)
	}
	return tw.Flush()
}

func kind(d audiocore.DeviceInfo) string {
	switch {
	case d.Playback && d.Capture:
		return "duplex"
	case d.Capture:
		return "capture"
	default:
		return "playback"
	}
}

func marker(isDefault bool) string {
	if isDefault {
		return "*"
	}
	return ""
}
