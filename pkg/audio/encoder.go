package audio

import (
	"fmt"
	"time"

	"gopkg.in/hraban/opus.v2"
)

// WebRTC side of the pipeline: 48kHz stereo, 20ms frames.
const (
	OpusSampleRate = 48000
	OpusChannels   = 2
	OpusFrameSize  = 960
	OpusFrameTime  = 20 * time.Millisecond
)

// OpusEncoder encodes PCM audio to Opus
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int // samples per channel per frame
	out       []byte
}

// NewOpusEncoder creates a new Opus encoder
func NewOpusEncoder(sampleRate, channels, frameSize int) (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}

	// Set bitrate for voice
	if err := enc.SetBitrate(64000); err != nil {
		return nil, fmt.Errorf("failed to set bitrate: %w", err)
	}

	return &OpusEncoder{
		encoder:   enc,
		channels:  channels,
		frameSize: frameSize,
		out:       make([]byte, 1024),
	}, nil
}

// Encode encodes one frame of interleaved PCM to a freshly allocated Opus packet.
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	n, err := e.encoder.Encode(pcm, e.out)
	if err != nil {
		return nil, err
	}
	packet := make([]byte, n)
	copy(packet, e.out[:n])
	return packet, nil
}

// EncodeBytes encodes PCM bytes (little-endian int16) to Opus
func (e *OpusEncoder) EncodeBytes(pcmBytes []byte) ([]byte, error) {
	return e.Encode(BytesToInt16(pcmBytes))
}

// FrameBytes is the size in bytes of one PCM frame accepted by EncodeBytes.
func (e *OpusEncoder) FrameBytes() int {
	return e.frameSize * e.channels * 2
}

// OpusPipeline converts mono PCM at an arbitrary rate into Opus payloads
// ready for RTP: resample to 48kHz, duplicate to stereo, cut into 20ms frames.
type OpusPipeline struct {
	inputRate int
	encoder   *OpusEncoder
	buffer    []byte
}

// NewOpusPipeline creates a pipeline accepting mono PCM at inputRate.
func NewOpusPipeline(inputRate int) (*OpusPipeline, error) {
	encoder, err := NewOpusEncoder(OpusSampleRate, OpusChannels, OpusFrameSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	return &OpusPipeline{
		inputRate: inputRate,
		encoder:   encoder,
		buffer:    make([]byte, 0),
	}, nil
}

// ProcessChunk returns the Opus frames completed by pcm. Partial frames
// stay buffered until the next call or Flush.
func (p *OpusPipeline) ProcessChunk(pcm []byte) ([][]byte, error) {
	if len(pcm) == 0 {
		return nil, nil
	}

	stereo := MonoToStereo(ResampleMono(pcm, p.inputRate, OpusSampleRate))
	p.buffer = append(p.buffer, stereo...)
	return p.drain()
}

// Flush pads the buffered remainder with silence and encodes it.
func (p *OpusPipeline) Flush() ([][]byte, error) {
	if len(p.buffer) == 0 {
		return nil, nil
	}
	frameBytes := p.encoder.FrameBytes()
	if rem := len(p.buffer) % frameBytes; rem != 0 {
		p.buffer = append(p.buffer, make([]byte, frameBytes-rem)...)
	}
	return p.drain()
}

func (p *OpusPipeline) drain() ([][]byte, error) {
	frameBytes := p.encoder.FrameBytes()
	var frames [][]byte
	for len(p.buffer) >= frameBytes {
		frame := p.buffer[:frameBytes]
		p.buffer = p.buffer[frameBytes:]

		opusData, err := p.encoder.EncodeBytes(frame)
		if err != nil {
			return frames, fmt.Errorf("failed to encode frame: %w", err)
		}
		frames = append(frames, opusData)
	}
	return frames, nil
}

// Reset clears the internal buffer
func (p *OpusPipeline) Reset() {
	p.buffer = p.buffer[:0]
}
