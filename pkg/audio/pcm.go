package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gopxl/beep"
)

// Sample rates fixed by the provider's realtime API.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
)

// Buffer is decoded, playable audio: one float slice per channel, values in [-1, 1).
type Buffer struct {
	SampleRate beep.SampleRate
	Channels   [][]float32
}

// Len returns the number of frames (samples per channel).
func (b *Buffer) Len() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	return b.SampleRate.D(b.Len())
}

// Format describes the buffer for beep consumers.
func (b *Buffer) Format() beep.Format {
	return beep.Format{
		SampleRate:  b.SampleRate,
		NumChannels: len(b.Channels),
		Precision:   2,
	}
}

// Streamer returns a fresh beep view over the buffer. Mono buffers are
// duplicated onto both output channels.
func (b *Buffer) Streamer() beep.StreamSeeker {
	return &bufferStreamer{buf: b}
}

type bufferStreamer struct {
	buf *Buffer
	pos int
}

var _ beep.StreamSeeker = (*bufferStreamer)(nil)

func (s *bufferStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	total := s.buf.Len()
	if s.pos >= total {
		return 0, false
	}
	for n < len(samples) && s.pos < total {
		left := float64(s.buf.Channels[0][s.pos])
		right := left
		if len(s.buf.Channels) > 1 {
			right = float64(s.buf.Channels[1][s.pos])
		}
		samples[n] = [2]float64{left, right}
		n++
		s.pos++
	}
	return n, true
}

func (s *bufferStreamer) Err() error    { return nil }
func (s *bufferStreamer) Len() int      { return s.buf.Len() }
func (s *bufferStreamer) Position() int { return s.pos }

func (s *bufferStreamer) Seek(p int) error {
	if p < 0 || p > s.buf.Len() {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, s.buf.Len())
	}
	s.pos = p
	return nil
}

// DecodePCM16 turns interleaved signed 16-bit little-endian PCM into a
// Buffer. Trailing bytes that do not form a complete frame are ignored.
// No resampling or validation is performed.
func DecodePCM16(data []byte, sampleRate, numChannels int) *Buffer {
	buf := &Buffer{SampleRate: beep.SampleRate(sampleRate)}
	if numChannels < 1 {
		return buf
	}

	frameCount := len(data) / 2 / numChannels
	buf.Channels = make([][]float32, numChannels)
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frameCount)
	}

	for i := 0; i < frameCount; i++ {
		for c := 0; c < numChannels; c++ {
			off := (i*numChannels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Channels[c][i] = float32(sample) / 32768
		}
	}
	return buf
}

// EncodePCM16 converts float samples to 16-bit little-endian PCM. Each
// sample is scaled by 32768 and truncated toward zero, saturating at the
// int16 range so +1.0 maps to 32767.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Trunc(float64(s) * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Int16ToBytes packs samples as little-endian PCM.
func Int16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// BytesToInt16 unpacks little-endian PCM. A trailing odd byte is dropped.
func BytesToInt16(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return pcm
}
