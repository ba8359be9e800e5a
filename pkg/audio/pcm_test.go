package audio

import (
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gopxl/beep"
	"github.com/stretchr/testify/require"
)

func TestDecodePCM16FrameCount(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int
		channels int
		want     int
	}{
		{"empty", 0, 1, 0},
		{"mono", 8, 1, 4},
		{"mono odd trailing byte", 9, 1, 4},
		{"stereo", 8, 2, 2},
		{"stereo partial frame", 7, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := DecodePCM16(make([]byte, tt.bytes), PlaybackSampleRate, tt.channels)
			require.Len(t, buf.Channels, tt.channels)
			require.Equal(t, tt.want, buf.Len())
		})
	}
}

func TestDecodePCM16Range(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := make([]byte, 4096)
	r.Read(data)
	binary.LittleEndian.PutUint16(data[0:], 0x8000)
	binary.LittleEndian.PutUint16(data[2:], 0x7fff)

	buf := DecodePCM16(data, PlaybackSampleRate, 1)
	require.Equal(t, float32(-1), buf.Channels[0][0])
	require.Equal(t, float32(32767)/32768, buf.Channels[0][1])
	for i, v := range buf.Channels[0] {
		if v < -1 || v >= 1 {
			t.Fatalf("sample %d out of range: %v", i, v)
		}
	}
}

func TestDecodePCM16Deinterleaves(t *testing.T) {
	pcm := []int16{16384, -16384, 8192, -8192}
	buf := DecodePCM16(Int16ToBytes(pcm), 16000, 2)

	want := [][]float32{{0.5, 0.25}, {-0.5, -0.25}}
	if diff := cmp.Diff(want, buf.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
}

func TestBufferDuration(t *testing.T) {
	buf := DecodePCM16(make([]byte, 2*2400), PlaybackSampleRate, 1)
	require.Equal(t, 100*time.Millisecond, buf.Duration())
	require.Equal(t, beep.Format{SampleRate: 24000, NumChannels: 1, Precision: 2}, buf.Format())
}

func TestBufferStreamer(t *testing.T) {
	buf := &Buffer{SampleRate: 24000, Channels: [][]float32{{0.5, -0.5, 0.25}}}
	s := buf.Streamer()

	out := make([][2]float64, 2)
	n, ok := s.Stream(out)
	require.True(t, ok)
	require.Equal(t, 2, n)
	require.Equal(t, [2]float64{0.5, 0.5}, out[0])
	require.Equal(t, [2]float64{-0.5, -0.5}, out[1])

	n, ok = s.Stream(out)
	require.True(t, ok)
	require.Equal(t, 1, n)

	n, ok = s.Stream(out)
	require.False(t, ok)
	require.Zero(t, n)

	require.NoError(t, s.Seek(0))
	require.Equal(t, 0, s.Position())
	require.Error(t, s.Seek(4))
}

func TestEncodePCM16(t *testing.T) {
	got := BytesToInt16(EncodePCM16([]float32{0, 0.5, -0.5, -1, 1, 1.5, -1.5, 0.99999}))
	want := []int16{0, 16384, -16384, -32768, 32767, 32767, -32768, 32767}
	require.Equal(t, want, got)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.75, 0.5}
	buf := DecodePCM16(EncodePCM16(in), CaptureSampleRate, 1)
	require.Equal(t, in, buf.Channels[0])
}
