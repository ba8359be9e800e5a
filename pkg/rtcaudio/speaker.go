package rtcaudio

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"

	"example.com/detective_engine/pkg/audio"
	"example.com/detective_engine/pkg/playout"
)

// RTPWriter accepts outbound packets. *webrtc.TrackLocalStaticRTP satisfies it.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// Speaker encodes rendered PCM to Opus and writes it to the browser's
// track. It implements playout.FrameWriter.
type Speaker struct {
	track    RTPWriter
	pipeline *audio.OpusPipeline

	mu        sync.Mutex
	seqNum    uint16
	timestamp uint32
}

var _ playout.FrameWriter = (*Speaker)(nil)

// NewSpeaker creates a speaker for mono PCM at inputRate.
func NewSpeaker(track RTPWriter, inputRate int) (*Speaker, error) {
	pipeline, err := audio.NewOpusPipeline(inputRate)
	if err != nil {
		return nil, err
	}
	return &Speaker{track: track, pipeline: pipeline}, nil
}

// WriteFrame encodes pcm and sends every completed 20ms Opus frame.
func (s *Speaker) WriteFrame(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames, err := s.pipeline.ProcessChunk(pcm)
	if err != nil {
		return err
	}

	for _, opusData := range frames {
		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111, // Opus
				SequenceNumber: s.seqNum,
				Timestamp:      s.timestamp,
				SSRC:           0x12345678, // Will be overwritten by pion
			},
			Payload: opusData,
		}
		s.seqNum++
		s.timestamp += audio.OpusFrameSize

		if err := s.track.WriteRTP(packet); err != nil {
			return fmt.Errorf("failed to write rtp: %w", err)
		}
	}
	return nil
}
