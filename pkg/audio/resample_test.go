package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResampleMonoLength(t *testing.T) {
	in := Int16ToBytes(make([]int16, 4800))

	require.Len(t, ResampleMono(in, 48000, 16000), 1600*2)
	require.Len(t, ResampleMono(in, 24000, 48000), 9600*2)
	require.Equal(t, in, ResampleMono(in, 16000, 16000))
	require.Nil(t, ResampleMono(nil, 24000, 48000))
}

func TestResampleMonoInterpolates(t *testing.T) {
	in := Int16ToBytes([]int16{0, 1000})
	out := BytesToInt16(ResampleMono(in, 1, 2))
	require.Equal(t, []int16{0, 500, 1000, 1000}, out)
}

func TestStereoConversions(t *testing.T) {
	mono := Int16ToBytes([]int16{100, -200})
	stereo := MonoToStereo(mono)
	require.Equal(t, []int16{100, 100, -200, -200}, BytesToInt16(stereo))
	require.Equal(t, mono, StereoToMono(stereo))

	mixed := Int16ToBytes([]int16{1000, 3000, -32768, 32767})
	require.Equal(t, []int16{2000, 0}, BytesToInt16(StereoToMono(mixed)))
}
