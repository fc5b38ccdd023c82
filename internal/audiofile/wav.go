package audiofile

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/lanemix/internal/errors"
)

const readBufferSize = 64 * 1024

func decodeWAV(r io.ReadSeeker) (*Audio, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.NewStd("invalid WAV file format")
	}
	if decoder.NumChans == 0 {
		return nil, errors.NewStd("WAV file declares no channels")
	}

	bitDepth := int(decoder.BitDepth)
	divisor, err := divisorFor(bitDepth)
	if err != nil {
		return nil, err
	}
	// 8-bit WAV is unsigned.
	var offset int
	if bitDepth == 8 {
		offset = 128
	}

	a := &Audio{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   bitDepth,
	}
	buf := &audio.IntBuffer{
		Data:   make([]int, readBufferSize),
		Format: &audio.Format{SampleRate: a.SampleRate, NumChannels: a.Channels},
	}
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		for _, s := range buf.Data[:n] {
			a.Samples = append(a.Samples, float32(s-offset)/divisor)
		}
	}

	// Drop a trailing partial frame.
	a.Samples = a.Samples[:a.Frames()*a.Channels]
	return a, nil
}

// WAVWriter records float32 blocks as 16-bit PCM. It is safe to call Write
// from a stream callback goroutine while another goroutine calls Close.
type WAVWriter struct {
	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	path    string
	err     error
	closed  bool
	samples int
}

// NewWAVWriter creates path, and its directory if needed.
func NewWAVWriter(path string, sampleRate, channels int) (*WAVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New(err).
			Component(componentAudioFile).
			Category(errors.CategoryFileIO).
			Context("operation", "create_directory").
			Context("path", path).
			Build()
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentAudioFile).
			Category(errors.CategoryFileIO).
			Context("operation", "create").
			Context("path", path).
			Build()
	}

	return &WAVWriter{
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, 16, channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
			SourceBitDepth: 16,
		},
		path: path,
	}, nil
}

// Write appends one block. After the first failure every Write is a no-op
// and Close returns that failure.
func (w *WAVWriter) Write(block []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.err != nil {
		return
	}

	if cap(w.buf.Data) < len(block) {
		w.buf.Data = make([]int, len(block))
	}
	w.buf.Data = w.buf.Data[:len(block)]
	for i, s := range block {
		w.buf.Data[i] = toInt16(s)
	}
	if err := w.enc.Write(w.buf); err != nil {
		w.err = err
		return
	}
	w.samples += len(block)
}

// Samples returns the number of samples written so far.
func (w *WAVWriter) Samples() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samples
}

// Close finalizes the WAV header and closes the file.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if err := errors.Join(w.err, encErr, fileErr); err != nil {
		return errors.New(err).
			Component(componentAudioFile).
			Category(errors.CategoryFileIO).
			Context("operation", "write_wav").
			Context("path", w.path).
			Build()
	}
	return nil
}

func toInt16(s float32) int {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	default:
		return int(s * 32767)
	}
}
