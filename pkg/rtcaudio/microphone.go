package rtcaudio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"

	"example.com/detective_engine/pkg/apperr"
	"example.com/detective_engine/pkg/audio"
	"example.com/detective_engine/pkg/live"
)

// maxLate is how many packets the sample builder waits for reordering.
const maxLate = 50

// PacketSource yields raw RTP packets.
type PacketSource interface {
	ReadPacket(buf []byte) (int, error)
}

type trackSource struct {
	track *webrtc.TrackRemote
}

func (t trackSource) ReadPacket(buf []byte) (int, error) {
	n, _, err := t.track.Read(buf)
	return n, err
}

// TrackSource adapts a remote WebRTC track.
func TrackSource(track *webrtc.TrackRemote) PacketSource {
	return trackSource{track: track}
}

// Microphone turns the browser's Opus track into 16kHz mono capture
// frames. It implements live.Microphone.
type Microphone struct {
	timeout time.Duration
	logger  *slog.Logger
	sources chan PacketSource

	once sync.Once
	done chan struct{}
}

var _ live.Microphone = (*Microphone)(nil)

// NewMicrophone creates a microphone that waits up to timeout for the
// remote track to arrive.
func NewMicrophone(timeout time.Duration, logger *slog.Logger) *Microphone {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Microphone{
		timeout: timeout,
		logger:  logger.With(slog.String("component", "microphone")),
		sources: make(chan PacketSource, 1),
		done:    make(chan struct{}),
	}
}

// Attach hands over the remote track. Only the first track is used.
func (m *Microphone) Attach(src PacketSource) {
	select {
	case m.sources <- src:
	default:
		m.logger.Warn("Ignoring additional audio track")
	}
}

// Open waits for the remote track. A peer that never offers audio is
// treated as a denied microphone.
func (m *Microphone) Open(ctx context.Context) (<-chan []float32, error) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	var src PacketSource
	select {
	case src = <-m.sources:
	case <-timer.C:
		return nil, &apperr.PermissionError{Device: "microphone", Err: errors.New("no audio track received")}
	case <-ctx.Done():
		return nil, &apperr.PermissionError{Device: "microphone", Err: ctx.Err()}
	case <-m.done:
		return nil, &apperr.PermissionError{Device: "microphone", Err: errors.New("microphone closed")}
	}

	decoder, err := audio.NewOpusDecoder(audio.OpusSampleRate, audio.OpusChannels)
	if err != nil {
		return nil, err
	}

	frames := make(chan []float32, 8)
	go m.capture(src, decoder, frames)
	return frames, nil
}

func (m *Microphone) capture(src PacketSource, decoder *audio.OpusDecoder, frames chan<- []float32) {
	defer close(frames)

	builder := samplebuilder.New(maxLate, &codecs.OpusPacket{}, audio.OpusSampleRate)
	framer := audio.NewFramer(audio.CaptureFrameSize)
	buf := make([]byte, 1500)

	for {
		n, err := src.ReadPacket(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				m.logger.Warn("Audio track read failed", slog.String("error", err.Error()))
			}
			if n := framer.Pending(); n > 0 {
				m.logger.Debug("Dropping partial capture frame", slog.Int("samples", n))
			}
			return
		}

		packet := &rtp.Packet{}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if len(packet.Payload) == 0 {
			continue
		}
		builder.Push(packet)

		for sample := builder.Pop(); sample != nil; sample = builder.Pop() {
			pcm, err := decoder.DecodeToBytes(sample.Data)
			if err != nil {
				continue
			}

			mono := audio.ResampleMono(audio.StereoToMono(pcm), audio.OpusSampleRate, audio.CaptureSampleRate)
			samples := audio.DecodePCM16(mono, audio.CaptureSampleRate, 1).Channels[0]

			for _, frame := range framer.Write(samples) {
				select {
				case frames <- frame:
				case <-m.done:
					return
				}
			}
		}
	}
}

// Close stops delivering frames. The track itself is owned by the peer
// connection.
func (m *Microphone) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
