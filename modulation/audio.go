package modulation

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// Wav decodes an uncompressed PCM WAV stream and resamples its first channel
// to the sampling frequency. Malformed or non-PCM input yields
// ErrUnsupportedFormat.
func Wav(r io.ReadSeeker, opts ...Option) (*Modulation, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrUnsupportedFormat
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	src, err := firstChannel(buf, int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	return newModulation(resample(src, int(dec.SampleRate), cfg.samplingFreq), cfg), nil
}

// RawPCM reads unsigned 8-bit mono samples recorded at srcRate Hz and
// resamples them to the sampling frequency.
func RawPCM(r io.Reader, srcRate int, opts ...Option) (*Modulation, error) {
	if srcRate <= 0 {
		return nil, ErrInvalidFrequency
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(src) == 0 {
		return nil, ErrEmpty
	}

	return newModulation(resample(src, srcRate, cfg.samplingFreq), cfg), nil
}

// firstChannel converts the first channel of buf to unsigned 8-bit samples.
func firstChannel(buf *audio.IntBuffer, bitDepth int) ([]uint8, error) {
	channels := 1
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}

	n := len(buf.Data) / channels
	if n == 0 {
		return nil, ErrEmpty
	}

	out := make([]uint8, n)
	for i := range out {
		v := buf.Data[i*channels]
		switch bitDepth {
		case 8:
			out[i] = uint8(v)
		case 16:
			out[i] = uint8((v + 1<<15) >> 8)
		case 24:
			out[i] = uint8((v + 1<<23) >> 16)
		case 32:
			out[i] = uint8((int64(v) + 1<<31) >> 24)
		default:
			return nil, fmt.Errorf("%w: %d bit samples", ErrUnsupportedFormat, bitDepth)
		}
	}

	return out, nil
}

// resample picks the nearest preceding source sample for every output sample.
func resample(src []uint8, srcRate, dstRate int) []uint8 {
	if srcRate == dstRate {
		return src
	}

	n := max(len(src)*dstRate/srcRate, 1)
	out := make([]uint8, n)
	for i := range out {
		out[i] = src[min(i*srcRate/dstRate, len(src)-1)]
	}

	return out
}
