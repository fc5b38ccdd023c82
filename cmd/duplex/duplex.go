// Package duplex implements the duplex command: the capture device is routed
// to the playback device through a gain and channel mapping patch until the
// duration elapses or the process is interrupted.
package duplex

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/lanemix/internal/app"
	"github.com/tphakala/lanemix/internal/patches"
)

// Options holds the duplex command flags.
type Options struct {
	Gain         float64
	Duration     time.Duration
	DryRun       bool
	gainExplicit bool
}

// Command creates the duplex command.
func Command(loader *app.Loader) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "duplex",
		Short: "Pass captured audio through to the output device",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.gainExplicit = cmd.Flags().Changed("gain")

			ctx, err := loader.Open()
			if err != nil {
				return err
			}
			defer ctx.Close()

			runCtx, cancel := app.SignalContext(cmd.Context(), opts.Duration)
			defer cancel()
			return Run(runCtx, ctx, opts)
		},
	}

	cmd.Flags().Float64Var(&opts.Gain, "gain", 1, "Gain applied to the captured signal (default from config)")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Run on the virtual backend instead of a sound card")

	return cmd
}

// Run starts the duplex stream and blocks until ctx is done. The engine is
// closed before Run returns.
func Run(ctx context.Context, c *app.Context, opts *Options) error {
	settings := c.Settings
	gain := opts.Gain
	if !opts.gainExplicit {
		gain = settings.Duplex.Gain
	}
	params := settings.DuplexParams()

	g, err := patches.NewGain(gain)
	if err != nil {
		return err
	}
	patch, err := patches.NewChannelMap(params.Chunk, params.InChannels, params.OutChannels, g)
	if err != nil {
		return err
	}

	engine := c.NewEngine(c.Backend(opts.DryRun))
	defer engine.Close()
	engine.StartMonitoring()

	if err := c.StartStatusServer(engine); err != nil {
		c.Logger.Warn("status server not started", "error", err)
	}

	stream, err := engine.CreateDuplexStream(params)
	if err != nil {
		return err
	}
	if _, err := stream.Start(patch); err != nil {
		return err
	}

	c.Logger.Info("duplex running",
		"in_channels", params.InChannels,
		"out_channels", params.OutChannels,
		"gain", g.Gain(),
		"duration", opts.Duration)

	<-ctx.Done()
	return nil
}
