// Package play implements the play command: decoded files and generated
// tones are scheduled as worker batches on one master output.
package play

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/lanemix/internal/app"
	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/audiocore/devices/virtual"
	"github.com/tphakala/lanemix/internal/audiofile"
	"github.com/tphakala/lanemix/internal/errors"
	"github.com/tphakala/lanemix/internal/patches"
)

// Options holds the play command flags.
type Options struct {
	Tone         float64
	ToneLength   time.Duration
	Amplitude    float64
	Gain         float64
	Envelope     string
	Parallel     bool
	Duration     time.Duration
	DryRun       bool
	Record       string
	gainExplicit bool
}

// Command creates the play command.
func Command(loader *app.Loader) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "play [files...]",
		Short: "Play WAV or FLAC files and generated tones",
		Long:  "Decode each file into its own worker batch and mix all batches on the master output.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.gainExplicit = cmd.Flags().Changed("gain")
			if len(args) == 0 && opts.Tone <= 0 {
				return fmt.Errorf("nothing to play: pass audio files or --tone")
			}
			if opts.Record != "" && !opts.DryRun {
				return fmt.Errorf("--record requires --dry-run")
			}

			ctx, err := loader.Open()
			if err != nil {
				return err
			}
			defer ctx.Close()

			runCtx, cancel := app.SignalContext(cmd.Context(), opts.Duration)
			defer cancel()
			return Run(runCtx, ctx, args, opts)
		},
	}

	setupFlags(cmd, opts)

	return cmd
}

func setupFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().Float64Var(&opts.Tone, "tone", 0, "Add a sine tone of this frequency in Hz")
	cmd.Flags().DurationVar(&opts.ToneLength, "tone-length", time.Second, "Length of the generated tone")
	cmd.Flags().Float64Var(&opts.Amplitude, "amplitude", 0.5, "Peak amplitude of the generated tone, 0 to 1")
	cmd.Flags().Float64Var(&opts.Gain, "gain", 1, "Master gain applied after mixing (default from config)")
	cmd.Flags().StringVar(&opts.Envelope, "envelope", "", "Per-frame envelope applied to files: hann or ramp")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "Transform frames on a bounded worker pool")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Stop after this long (0 plays until all batches drain)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Render on the virtual backend instead of a sound card")
	cmd.Flags().StringVar(&opts.Record, "record", "", "Write the rendered output to a WAV file (requires --dry-run)")
}

// Run schedules every file and the optional tone, then blocks until all
// batches have played or ctx is done.
func Run(ctx context.Context, appCtx *app.Context, files []string, opts *Options) error {
	settings := appCtx.Settings
	params := settings.OutputParams()
	logger := appCtx.Logger.With("command", "play")

	var recorder *audiofile.WAVWriter
	var backendOpts []virtual.Option
	if opts.Record != "" {
		w, err := audiofile.NewWAVWriter(opts.Record, params.SampleRate, params.OutChannels)
		if err != nil {
			return err
		}
		recorder = w
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("closing recording failed", "path", opts.Record, "error", err)
			}
		}()
		backendOpts = append(backendOpts, virtual.WithSink(recorder.Write))
	}

	engine := appCtx.NewEngine(appCtx.Backend(opts.DryRun, backendOpts...))
	defer engine.Close()
	engine.StartMonitoring()

	if err := appCtx.StartStatusServer(engine); err != nil {
		logger.Warn("status server not started", "error", err)
	}

	gainValue := settings.Output.Gain
	if opts.gainExplicit {
		gainValue = opts.Gain
	}
	gain, err := patches.NewGain(gainValue)
	if err != nil {
		return err
	}

	out, err := engine.CreateMasterStreamout(settings.Output.Name, params)
	if err != nil {
		return err
	}
	if _, err := out.Start(gain); err != nil {
		return err
	}

	worker, err := engine.CreateWorkerProcess(out.Name(), opts.Parallel)
	if err != nil {
		return err
	}

	inputs, err := buildInputs(files, params, opts, logger.Warn)
	if err != nil {
		return err
	}

	handles := make([]*audiocore.ProcessHandle, 0, len(inputs))
	for _, in := range inputs {
		h, err := worker.Start(in)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	logger.Info("playing", "batches", len(handles), "output", out.Name(), "dry_run", opts.DryRun)
	return waitForPlayback(ctx, out, handles, logger.Warn)
}

func buildInputs(files []string, params audiocore.StreamParameters, opts *Options, warn func(string, ...any)) ([]audiocore.WorkerInput, error) {
	var envelope *patches.Envelope
	if opts.Envelope != "" {
		env, err := patches.NewEnvelope(patches.EnvelopeShape(opts.Envelope), params.Chunk, params.OutChannels)
		if err != nil {
			return nil, err
		}
		envelope = env
	}

	inputs := make([]audiocore.WorkerInput, 0, len(files)+1)
	for _, path := range files {
		audio, err := audiofile.Decode(path)
		if err != nil {
			return nil, err
		}
		if audio.SampleRate != params.SampleRate {
			warn("sample rate mismatch, playing at output rate",
				"path", path, "file_rate", audio.SampleRate, "output_rate", params.SampleRate)
		}
		samples := audio.Remix(params.OutChannels)
		if envelope != nil {
			inputs = append(inputs, audiocore.Hybrid(samples, envelope))
		} else {
			inputs = append(inputs, audiocore.Source(samples))
		}
	}

	if opts.Tone > 0 {
		tone := patches.Sine{
			Frequency:  opts.Tone,
			Amplitude:  opts.Amplitude,
			SampleRate: params.SampleRate,
			Channels:   params.OutChannels,
			Duration:   opts.ToneLength,
		}
		if err := tone.Validate(); err != nil {
			return nil, err
		}
		inputs = append(inputs, audiocore.PatchSpace(tone))
	}
	return inputs, nil
}

// waitForPlayback returns once every batch finished and the output queue
// drained, or when ctx is done. The first batch failure is returned after
// the remaining batches finish.
func waitForPlayback(ctx context.Context, out *audiocore.MasterOutput, handles []*audiocore.ProcessHandle, warn func(string, ...any)) error {
	var firstErr error
	for _, h := range handles {
		select {
		case <-ctx.Done():
			return nil
		case <-h.Done():
		}
		if err := h.Join(); err != nil {
			warn("batch failed", "process", h.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	period := out.Params().Period()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for !out.Queue().IsAllEmpty() {
		select {
		case <-ctx.Done():
			return firstErr
		case <-ticker.C:
		}
	}

	// Let the final frame leave the device.
	select {
	case <-ctx.Done():
	case <-time.After(period):
	}

	if firstErr != nil {
		return errors.New(firstErr).
			Component("cmd.play").
			Category(errors.CategoryWorker).
			Context("operation", "play").
			Build()
	}
	return nil
}
