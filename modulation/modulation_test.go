package modulation

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	_, err := Static(1, WithSamplingFreq(3000))
	require.ErrorIs(t, err, ErrInvalidSamplingFreq)

	_, err = Static(1, WithBufferSize(MinBufferSize-1))
	require.ErrorIs(t, err, ErrInvalidBufferSize)

	_, err = Static(1, WithBufferSize(MaxBufferSize+1))
	require.ErrorIs(t, err, ErrInvalidBufferSize)

	m, err := Static(1, WithSamplingFreq(8000), WithBufferSize(MinBufferSize))
	require.NoError(t, err)
	assert.Equal(t, 8000, m.SamplingFreq())
	assert.Equal(t, uint16(5), m.SamplingFreqDiv())
	assert.Equal(t, []uint8{255}, m.Samples())
}

func TestSine(t *testing.T) {
	m, err := Sine(150, 1, 0.5)
	require.NoError(t, err)
	// 4000 / gcd(4000, 150)
	require.Equal(t, 80, m.Len())

	s := m.Samples()
	assert.Equal(t, uint8(128), s[0])
	// 20·150/4000 = 3/4 and 60·150/4000 = 9/4 of a cycle
	assert.Equal(t, uint8(0), s[20])
	assert.Equal(t, uint8(255), s[60])

	_, err = Sine(0, 1, 0.5)
	require.ErrorIs(t, err, ErrInvalidFrequency)

	// above Nyquist is accepted and aliases
	_, err = Sine(3000, 1, 0.5)
	require.NoError(t, err)
}

func TestSquare(t *testing.T) {
	m, err := Square(1000, 0, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []uint8{255, 255, 0, 0}, m.Samples())

	m, err = Square(1000, 0.2, 1, 0.25)
	require.NoError(t, err)
	assert.Equal(t, []uint8{255, 51, 51, 51}, m.Samples())
}

func TestSaw(t *testing.T) {
	m, err := Saw(1000)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 64, 128, 191}, m.Samples())
}

func TestCustom_TruncatedToBuffer(t *testing.T) {
	_, err := Custom(nil)
	require.ErrorIs(t, err, ErrEmpty)

	m, err := Custom(make([]uint8, MinBufferSize+10), WithBufferSize(MinBufferSize))
	require.NoError(t, err)
	assert.Equal(t, MinBufferSize, m.Len())
}

func TestCursor_Wraps(t *testing.T) {
	m, err := Custom([]uint8{1, 2, 3})
	require.NoError(t, err)

	c := m.Cursor()
	first := make([]byte, m.Len())
	_, _ = c.Read(first)
	assert.Equal(t, []byte{1, 2, 3}, first)
	assert.Equal(t, 0, c.Pos())

	second := make([]byte, m.Len())
	_, _ = c.Read(second)
	assert.Equal(t, first, second)

	c.Next()
	c.Reset()
	assert.Equal(t, 0, c.Pos())
}

func writeWav(t *testing.T, rate, bitDepth, channels int, data []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mod.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())

	return path
}

func TestWav(t *testing.T) {
	path := writeWav(t, 4000, 16, 1, []int{-32768, 0, 32767, 0})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	m, err := Wav(f)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 128, 255, 128}, m.Samples())
}

func TestWav_StereoDownsampled(t *testing.T) {
	// left channel ramps, right channel is silent
	data := make([]int, 0, 16)
	for i := range 8 {
		data = append(data, (i-4)*4096, -32768)
	}
	path := writeWav(t, 8000, 16, 2, data)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	m, err := Wav(f, WithSamplingFreq(4000))
	require.NoError(t, err)
	assert.Equal(t, []uint8{64, 96, 128, 160}, m.Samples())
}

func TestWav_UnsupportedFormat(t *testing.T) {
	_, err := Wav(bytes.NewReader([]byte("definitely not a riff file")))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRawPCM(t *testing.T) {
	m, err := RawPCM(bytes.NewReader([]byte{10, 20, 30, 40}), 2000)
	require.NoError(t, err)
	// upsampled to 4000 Hz by repeating
	assert.Equal(t, []uint8{10, 10, 20, 20, 30, 30, 40, 40}, m.Samples())

	_, err = RawPCM(bytes.NewReader(nil), 2000)
	require.ErrorIs(t, err, ErrEmpty)

	_, err = RawPCM(bytes.NewReader([]byte{1}), 0)
	require.ErrorIs(t, err, ErrInvalidFrequency)
}
