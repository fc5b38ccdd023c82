package audiofile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/lanemix/internal/errors"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rec", "out.wav")
	w, err := NewWAVWriter(path, 8000, 2)
	require.NoError(t, err)

	w.Write([]float32{0, 0, 0.5, -0.5})
	w.Write([]float32{1, -1, 0.25, 0.25})
	assert.Equal(t, 8, w.Samples())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	a, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, a.SampleRate)
	assert.Equal(t, 2, a.Channels)
	assert.Equal(t, 16, a.BitDepth)
	assert.Equal(t, 4, a.Frames())
	assert.Equal(t, 500*time.Microsecond, a.Duration())
	assert.InDeltaSlice(t, []float32{0, 0, 0.5, -0.5, 1, -1, 0.25, 0.25}, a.Samples, 1e-3)
}

func TestWriteAfterCloseIsIgnored(t *testing.T) {
	t.Parallel()

	w, err := NewWAVWriter(filepath.Join(t.TempDir(), "x.wav"), 8000, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	w.Write([]float32{1})
	assert.Zero(t, w.Samples())
}

func TestRemix(t *testing.T) {
	t.Parallel()

	stereo := &Audio{Samples: []float32{0.2, 0.4, -1, 1}, SampleRate: 8000, Channels: 2}
	assert.InDeltaSlice(t, []float32{0.3, 0}, stereo.Remix(1), 1e-6)
	assert.Equal(t, stereo.Samples, stereo.Remix(2))

	mono := &Audio{Samples: []float32{0.1, 0.2}, SampleRate: 8000, Channels: 1}
	assert.Equal(t, []float32{0.1, 0.1, 0.2, 0.2}, mono.Remix(2))
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := Decode(filepath.Join(dir, "missing.wav"))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "song.mp3")
		require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o600))
		_, err := Decode(path)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	})

	t.Run("garbage wav", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "bad.wav")
		require.NoError(t, os.WriteFile(path, []byte("definitely not riff data"), 0o600))
		_, err := Decode(path)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))
	})

	t.Run("garbage flac", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "bad.flac")
		require.NoError(t, os.WriteFile(path, []byte("not a flac stream at all"), 0o600))
		_, err := Decode(path)
		require.Error(t, err)
	})
}

func TestPCMSample(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(-1), pcmSample([]byte{0xff}))
	assert.Equal(t, int32(-2), pcmSample([]byte{0xfe, 0xff}))
	assert.Equal(t, int32(-8388608), pcmSample([]byte{0x00, 0x00, 0x80}))
	assert.Equal(t, int32(8388607), pcmSample([]byte{0xff, 0xff, 0x7f}))
	assert.Equal(t, int32(1), pcmSample([]byte{1, 0, 0, 0}))
}

func TestToInt16Clips(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 32767, toInt16(2))
	assert.Equal(t, -32768, toInt16(-2))
	assert.Equal(t, 0, toInt16(0))
}
