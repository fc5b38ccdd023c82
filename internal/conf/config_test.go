package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.ConfigFile)
	assert.Equal(t, "main", s.Output.Name)
	assert.Equal(t, audiocore.DefaultStreamParameters(), s.OutputParams())
	assert.Equal(t, time.Second, s.Engine.CloseDelay)
	assert.Equal(t, 500*time.Millisecond, s.Engine.GracePeriod)
	assert.Equal(t, 250*time.Millisecond, s.Engine.ReapInterval)
	assert.Same(t, s, GetSettings())
}

func TestWriteDefaultConfigRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "debug: true\n")
	err := WriteDefaultConfig(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug: true\n", string(data))
}

func TestLoadOverridesAndDeviceIndexes(t *testing.T) {
	path := writeConfig(t, `
output:
  name: speakers
  chunk: 256
  samplerate: 48000
  channels: 2
  device: 1
duplex:
  enabled: true
  inchannels: 1
  outchannels: 2
  indevice: 0
engine:
  closedelay: 0s
  poolsize: 3
`)

	s, err := Load(path)
	require.NoError(t, err)

	out := s.OutputParams()
	assert.Equal(t, 256, out.Chunk)
	assert.Equal(t, 48000, out.SampleRate)
	assert.Equal(t, 2, out.OutChannels)
	require.NotNil(t, out.OutDevice)
	assert.Equal(t, 1, *out.OutDevice)

	d := s.DuplexParams()
	assert.Equal(t, 1, d.InChannels)
	assert.Equal(t, 2, d.OutChannels)
	require.NotNil(t, d.InDevice)
	assert.Zero(t, *d.InDevice)
	assert.Nil(t, d.OutDevice)

	assert.Zero(t, s.Engine.CloseDelay)
	assert.Equal(t, 3, s.Engine.PoolSize)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "output:\n  chunk: 256\n")
	t.Setenv("LANEMIX_OUTPUT_CHUNK", "512")
	t.Setenv("LANEMIX_ENGINE_GRACEPERIOD", "2s")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 512, s.Output.Chunk)
	assert.Equal(t, 2*time.Second, s.Engine.GracePeriod)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := writeConfig(t, `
log:
  level: loud
output:
  chunk: 0
  gain: 12
engine:
  reapinterval: 0s
`)

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 4)
	assert.Contains(t, err.Error(), "invalid chunk")
}

func TestYAMLDump(t *testing.T) {
	t.Parallel()

	s := &Settings{Output: OutputSettings{Name: "main", Chunk: 64}}
	data, err := s.YAML()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	output, ok := decoded["output"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "main", output["name"])
	assert.Equal(t, 64, output["chunk"])
	assert.NotContains(t, decoded, "configfile")
}
