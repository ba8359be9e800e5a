package live

import (
	"context"
	"time"

	"example.com/detective_engine/pkg/audio"
)

// CaptureMIMEType labels outbound capture frames.
const CaptureMIMEType = "audio/pcm;rate=16000"

// Media is one outbound chunk of realtime input. Data is base64 encoded.
type Media struct {
	MIMEType string
	Data     string
}

// ServerMessage is the provider-neutral form of one inbound message.
type ServerMessage struct {
	SetupComplete    bool
	Audio            []string // base64 16-bit PCM at 24kHz, in arrival order
	InputTranscript  string
	OutputTranscript string
	Interrupted      bool
	TurnComplete     bool
	GoAway           bool
}

// Session is one bidirectional streaming connection to the provider.
type Session interface {
	// SendAudio sends one capture chunk.
	SendAudio(ctx context.Context, media Media) error

	// Recv blocks for the next message. It returns io.EOF after a clean
	// remote close.
	Recv() (*ServerMessage, error)

	// Close closes the connection
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Microphone delivers mono capture frames of audio.CaptureFrameSize
// samples at audio.CaptureSampleRate.
type Microphone interface {
	// Open starts capture. The returned channel is closed when capture ends.
	Open(ctx context.Context) (<-chan []float32, error)
	Close() error
}

// Handle controls one scheduled playback.
type Handle interface {
	// Stop silences the playback. The ended callback is not invoked.
	Stop()
}

// Output is a playback device with its own monotonic clock.
type Output interface {
	// Now returns the current position of the output clock.
	Now() time.Duration

	// Play schedules buf to start at the given clock position. onEnded is
	// invoked from another goroutine after the buffer finishes naturally.
	Play(buf *audio.Buffer, at time.Duration, onEnded func()) Handle

	Close() error
}
