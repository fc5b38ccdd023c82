package duplex

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lanemix/internal/app"
	"github.com/tphakala/lanemix/internal/buildinfo"
	"github.com/tphakala/lanemix/internal/conf"
)

func newAppContext(t *testing.T) *app.Context {
	t.Helper()
	settings, err := conf.Load("")
	require.NoError(t, err)
	settings.Log.File = filepath.Join(t.TempDir(), "duplex.log")
	settings.Duplex.Chunk = 80
	settings.Duplex.SampleRate = 8000
	settings.Duplex.InChannels = 1
	settings.Duplex.OutChannels = 2
	settings.Engine.CloseDelay = 0
	settings.Engine.GracePeriod = 0
	settings.Engine.ReapInterval = 5 * time.Millisecond

	c, err := app.New(settings, buildinfo.NewContext("", ""))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestRunStopsWhenDurationElapses(t *testing.T) {
	c := newAppContext(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, Run(ctx, c, &Options{Duration: 50 * time.Millisecond, DryRun: true}))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestRunRejectsBadGain(t *testing.T) {
	c := newAppContext(t)

	err := Run(context.Background(), c, &Options{Gain: 20, DryRun: true, gainExplicit: true})
	require.Error(t, err)

	// Without --gain the configured value applies.
	c.Settings.Duplex.Gain = 11
	err = Run(context.Background(), c, &Options{Gain: 1, DryRun: true})
	require.Error(t, err)
}

func TestCommandFlags(t *testing.T) {
	cmd := Command(&app.Loader{})
	for _, name := range []string{"gain", "duration", "dry-run"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	require.NoError(t, cmd.Flags().Parse([]string{"--dry-run", "--duration", "30ms"}))
	assert.False(t, cmd.Flags().Changed("gain"))
}
