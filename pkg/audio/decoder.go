package audio

import (
	"gopkg.in/hraban/opus.v2"
)

// OpusDecoder decodes Opus audio to PCM
type OpusDecoder struct {
	decoder  *opus.Decoder
	channels int
	pcm      []int16
}

// NewOpusDecoder creates a new Opus decoder
func NewOpusDecoder(sampleRate, channels int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}

	return &OpusDecoder{
		decoder:  dec,
		channels: channels,
		// 60ms at 48kHz is the largest Opus frame
		pcm: make([]int16, 5760*channels),
	}, nil
}

// Decode decodes one Opus packet to interleaved int16 samples. The result
// is only valid until the next call.
func (d *OpusDecoder) Decode(opusData []byte) ([]int16, error) {
	n, err := d.decoder.Decode(opusData, d.pcm)
	if err != nil {
		return nil, err
	}
	return d.pcm[:n*d.channels], nil
}

// DecodeToBytes decodes Opus to PCM bytes (little-endian int16)
func (d *OpusDecoder) DecodeToBytes(opusData []byte) ([]byte, error) {
	pcm, err := d.Decode(opusData)
	if err != nil {
		return nil, err
	}
	return Int16ToBytes(pcm), nil
}

// Channels returns the number of channels
func (d *OpusDecoder) Channels() int {
	return d.channels
}
