// Package audiofile decodes WAV and FLAC files into interleaved float32
// samples and records rendered output to WAV.
package audiofile

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/lanemix/internal/errors"
)

const componentAudioFile = "audiofile"

// Audio is a decoded file. Samples are interleaved in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
	Channels   int
	BitDepth   int
}

// Frames returns the number of sample frames.
func (a *Audio) Frames() int {
	if a.Channels == 0 {
		return 0
	}
	return len(a.Samples) / a.Channels
}

// Duration returns the playback length at the file's sample rate.
func (a *Audio) Duration() time.Duration {
	if a.SampleRate == 0 {
		return 0
	}
	return time.Duration(a.Frames()) * time.Second / time.Duration(a.SampleRate)
}

// Remix returns the samples converted to channels interleaved channels.
// Mono is copied to every channel, and multichannel input mixed to mono is
// averaged. Other layouts map output channel c to input channel c mod n.
func (a *Audio) Remix(channels int) []float32 {
	if channels == a.Channels || a.Channels == 0 {
		return a.Samples
	}
	frames := a.Frames()
	out := make([]float32, frames*channels)
	for f := range frames {
		src := a.Samples[f*a.Channels : (f+1)*a.Channels]
		dst := out[f*channels : (f+1)*channels]
		if channels == 1 {
			var sum float32
			for _, s := range src {
				sum += s
			}
			dst[0] = sum / float32(len(src))
			continue
		}
		for c := range dst {
			dst[c] = src[c%len(src)]
		}
	}
	return out
}

// Decode reads a .wav or .flac file.
func Decode(path string) (*Audio, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentAudioFile).
			Category(errors.CategoryFileIO).
			Context("operation", "open").
			Context("path", path).
			Build()
	}
	defer func() { _ = file.Close() }()

	var size int64
	if info, statErr := file.Stat(); statErr == nil {
		size = info.Size()
	}

	ext := strings.ToLower(filepath.Ext(path))
	var audio *Audio
	switch ext {
	case ".wav":
		audio, err = decodeWAV(file)
	case ".flac":
		audio, err = decodeFLAC(file)
	default:
		return nil, errors.Newf("unsupported audio file type %q", ext).
			Component(componentAudioFile).
			Category(errors.CategoryValidation).
			FileContext(path, size).
			Build()
	}
	if err != nil {
		return nil, errors.New(err).
			Component(componentAudioFile).
			Category(errors.CategoryFileParsing).
			FileContext(path, size).
			Build()
	}
	return audio, nil
}

func divisorFor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported bit depth: %d", bitDepth).
			Component(componentAudioFile).
			Category(errors.CategoryValidation).
			Context("bit_depth", bitDepth).
			Build()
	}
}
