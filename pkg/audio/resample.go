package audio

import "encoding/binary"

// ResampleMono resamples mono PCM from one sample rate to another
// Uses linear interpolation
func ResampleMono(input []byte, inputRate, outputRate int) []byte {
	if inputRate == outputRate {
		return input
	}

	inputSamples := len(input) / 2
	if inputSamples == 0 {
		return nil
	}
	ratio := float64(outputRate) / float64(inputRate)
	outputSamples := int(float64(inputSamples) * ratio)

	output := make([]byte, outputSamples*2)

	for i := 0; i < outputSamples; i++ {
		srcPos := float64(i) / ratio
		idx1 := int(srcPos)
		frac := srcPos - float64(idx1)

		idx2 := idx1 + 1
		if idx1 >= inputSamples {
			idx1 = inputSamples - 1
		}
		if idx2 >= inputSamples {
			idx2 = inputSamples - 1
		}

		s1 := int16(binary.LittleEndian.Uint16(input[idx1*2:]))
		s2 := int16(binary.LittleEndian.Uint16(input[idx2*2:]))
		sample := int16(float64(s1)*(1-frac) + float64(s2)*frac)

		binary.LittleEndian.PutUint16(output[i*2:], uint16(sample))
	}

	return output
}

// MonoToStereo converts mono PCM to stereo by duplicating each sample
func MonoToStereo(mono []byte) []byte {
	numSamples := len(mono) / 2
	stereo := make([]byte, numSamples*4)

	for i := 0; i < numSamples; i++ {
		copy(stereo[i*4:], mono[i*2:i*2+2])
		copy(stereo[i*4+2:], mono[i*2:i*2+2])
	}

	return stereo
}

// StereoToMono averages interleaved left/right PCM into one channel.
func StereoToMono(stereo []byte) []byte {
	numFrames := len(stereo) / 4
	mono := make([]byte, numFrames*2)

	for i := 0; i < numFrames; i++ {
		l := int32(int16(binary.LittleEndian.Uint16(stereo[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(stereo[i*4+2:])))
		binary.LittleEndian.PutUint16(mono[i*2:], uint16(int16((l+r)/2)))
	}

	return mono
}
