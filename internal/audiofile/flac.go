package audiofile

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/tphakala/flac"

	"github.com/tphakala/lanemix/internal/errors"
)

func decodeFLAC(file *os.File) (*Audio, error) {
	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, err
	}
	if decoder.NChannels <= 0 {
		return nil, errors.NewStd("FLAC stream declares no channels")
	}

	divisor, err := divisorFor(decoder.BitsPerSample)
	if err != nil {
		return nil, err
	}

	a := &Audio{
		SampleRate: decoder.SampleRate,
		Channels:   decoder.NChannels,
		BitDepth:   decoder.BitsPerSample,
	}
	if decoder.TotalSamples > 0 {
		a.Samples = make([]float32, 0, int(decoder.TotalSamples)*decoder.NChannels)
	}

	width := decoder.BitsPerSample / 8
	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		for i := 0; i+width <= len(frame); i += width {
			a.Samples = append(a.Samples, float32(pcmSample(frame[i:i+width]))/divisor)
		}
	}

	a.Samples = a.Samples[:a.Frames()*a.Channels]
	return a, nil
}

// pcmSample decodes one signed little-endian sample of len(b) bytes.
func pcmSample(b []byte) int32 {
	switch len(b) {
	case 1:
		return int32(int8(b[0]))
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xffffff
		}
		return v
	default:
		return int32(binary.LittleEndian.Uint32(b))
	}
}
