package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"example.com/detective_engine/pkg/apperr"
	"example.com/detective_engine/pkg/audio"
	"example.com/detective_engine/pkg/codec"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type harness struct {
	bridge  *Bridge
	mic     *fakeMic
	session *fakeSession
	dialer  *fakeDialer
	out     *fakeOutput

	mu          sync.Mutex
	states      []State
	transcripts [][]TranscriptLine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mic:     newFakeMic(),
		session: newFakeSession(),
		out:     &fakeOutput{},
	}
	h.dialer = &fakeDialer{session: h.session}

	b, err := New(Config{
		ID:         "test",
		Dialer:     h.dialer,
		Microphone: h.mic,
		Output:     h.out,
		OnStateChange: func(s State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.states = append(h.states, s)
		},
		OnTranscript: func(lines []TranscriptLine) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.transcripts = append(h.transcripts, lines)
		},
	})
	require.NoError(t, err)
	h.bridge = b
	t.Cleanup(func() { b.Close() })
	return h
}

func (h *harness) stateLog() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]State, len(h.states))
	copy(out, h.states)
	return out
}

func (h *harness) waitState(t *testing.T, s State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.bridge.State() == s }, waitFor, tick,
		"state %s never reached, at %s", s, h.bridge.State())
}

// startStreaming starts the bridge and completes the provider handshake.
func (h *harness) startStreaming(t *testing.T) {
	t.Helper()
	require.NoError(t, h.bridge.Start(context.Background()))
	require.Equal(t, StateConnecting, h.bridge.State())
	h.session.inbound <- &ServerMessage{SetupComplete: true}
	h.waitState(t, StateStreaming)
}

func audioChunk(d time.Duration) string {
	n := int(d * audio.PlaybackSampleRate / time.Second)
	return codec.Encode(make([]byte, n*2))
}

func TestNewRequiresDevices(t *testing.T) {
	_, err := New(Config{Microphone: newFakeMic(), Output: &fakeOutput{}})
	require.Error(t, err)
	_, err = New(Config{Dialer: &fakeDialer{}, Output: &fakeOutput{}})
	require.Error(t, err)
	_, err = New(Config{Dialer: &fakeDialer{}, Microphone: newFakeMic()})
	require.Error(t, err)
}

func TestStartMicrophoneDenied(t *testing.T) {
	h := newHarness(t)
	h.mic.err = errors.New("NotAllowedError")

	err := h.bridge.Start(context.Background())

	var perm *apperr.PermissionError
	require.ErrorAs(t, err, &perm)
	require.Equal(t, "microphone", perm.Device)
	require.Zero(t, h.dialer.callCount())
	require.Equal(t, []State{StateConnecting, StateError, StateClosed}, h.stateLog())
	require.True(t, h.out.isClosed())
	require.ErrorAs(t, h.bridge.Err(), &perm)

	select {
	case <-h.bridge.Done():
	default:
		t.Fatal("bridge not done after failed start")
	}
}

func TestStartDialFailure(t *testing.T) {
	h := newHarness(t)
	h.dialer.err = errors.New("connection refused")

	err := h.bridge.Start(context.Background())

	var transport *apperr.TransportError
	require.ErrorAs(t, err, &transport)
	require.Equal(t, "connect", transport.Op)
	require.True(t, h.mic.opened)
	require.True(t, h.mic.isClosed())
	require.Equal(t, []State{StateConnecting, StateError, StateClosed}, h.stateLog())
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)
	require.Error(t, h.bridge.Start(context.Background()))
}

func TestCaptureFramesSentInOrder(t *testing.T) {
	h := newHarness(t)

	// Frames captured before the session opens are held until setup completes.
	for i := 0; i < 5; i++ {
		frame := make([]float32, audio.CaptureFrameSize)
		frame[0] = float32(i) / 8
		h.mic.frames <- frame
	}
	require.NoError(t, h.bridge.Start(context.Background()))
	require.Never(t, func() bool { return len(h.session.sent) > 0 }, 50*time.Millisecond, tick)

	h.session.inbound <- &ServerMessage{SetupComplete: true}
	h.waitState(t, StateStreaming)

	for i := 0; i < 5; i++ {
		select {
		case media := <-h.session.sent:
			require.Equal(t, CaptureMIMEType, media.MIMEType)
			raw, err := codec.Decode(media.Data)
			require.NoError(t, err)
			require.Len(t, raw, audio.CaptureFrameSize*2)
			buf := audio.DecodePCM16(raw, audio.CaptureSampleRate, 1)
			require.Equal(t, float32(i)/8, buf.Channels[0][0])
		case <-time.After(waitFor):
			t.Fatalf("frame %d not sent", i)
		}
	}
}

func TestPlaybackScheduledBackToBack(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.inbound <- &ServerMessage{Audio: []string{
		audioChunk(100 * time.Millisecond),
		audioChunk(40 * time.Millisecond),
	}}
	h.session.inbound <- &ServerMessage{Audio: []string{audioChunk(60 * time.Millisecond)}}

	require.Eventually(t, func() bool { return len(h.out.snapshot()) == 3 }, waitFor, tick)
	plays := h.out.snapshot()
	require.Equal(t, time.Duration(0), plays[0].at)
	require.Equal(t, 100*time.Millisecond, plays[1].at)
	require.Equal(t, 140*time.Millisecond, plays[2].at)
	require.Equal(t, 60*time.Millisecond, plays[2].dur)
}

func TestBadAudioPayloadIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.inbound <- &ServerMessage{Audio: []string{"%%%", audioChunk(20 * time.Millisecond)}}

	require.Eventually(t, func() bool { return len(h.out.snapshot()) == 1 }, waitFor, tick)
	require.Equal(t, StateStreaming, h.bridge.State())
}

func TestInterruptStopsPlayback(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.inbound <- &ServerMessage{Audio: []string{
		audioChunk(200 * time.Millisecond),
		audioChunk(200 * time.Millisecond),
	}}
	require.Eventually(t, func() bool { return len(h.out.snapshot()) == 2 }, waitFor, tick)

	h.out.advance(30 * time.Millisecond)
	h.session.inbound <- &ServerMessage{Interrupted: true}
	h.waitState(t, StateInterrupted)

	for _, p := range h.out.snapshot() {
		require.True(t, p.stopped)
	}

	// New reply audio resumes streaming and starts at the current clock.
	h.session.inbound <- &ServerMessage{Audio: []string{audioChunk(20 * time.Millisecond)}}
	h.waitState(t, StateStreaming)
	plays := h.out.snapshot()
	require.Len(t, plays, 3)
	require.Equal(t, 30*time.Millisecond, plays[2].at)
}

func TestCaptureResumesAfterInterrupt(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.inbound <- &ServerMessage{Interrupted: true}
	h.waitState(t, StateInterrupted)

	h.mic.frames <- make([]float32, audio.CaptureFrameSize)
	h.waitState(t, StateStreaming)
}

func TestPlaybackEndedRemovesHandle(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.inbound <- &ServerMessage{Audio: []string{audioChunk(20 * time.Millisecond)}}
	require.Eventually(t, func() bool { return len(h.out.snapshot()) == 1 }, waitFor, tick)

	h.out.snapshot()[0].onEnded()

	// Interrupt reports nothing to stop once the handle is gone.
	h.session.inbound <- &ServerMessage{Interrupted: true}
	h.waitState(t, StateInterrupted)
	require.False(t, h.out.snapshot()[0].stopped)
}

func TestTranscriptRolling(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.inbound <- &ServerMessage{InputTranscript: "is this real?"}
	h.session.inbound <- &ServerMessage{OutputTranscript: "checking", InputTranscript: "hello"}
	for _, text := range []string{"a", "b", "c"} {
		h.session.inbound <- &ServerMessage{OutputTranscript: text}
	}

	want := []TranscriptLine{
		{Speaker: SpeakerRemote, Text: "checking"},
		{Speaker: SpeakerLocal, Text: "hello"},
		{Speaker: SpeakerRemote, Text: "a"},
		{Speaker: SpeakerRemote, Text: "b"},
		{Speaker: SpeakerRemote, Text: "c"},
	}
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.transcripts) == 6
	}, waitFor, tick)
	require.True(t, cmp.Equal(want, h.bridge.Transcript()))

	h.mu.Lock()
	defer h.mu.Unlock()
	if diff := cmp.Diff(want, h.transcripts[5]); diff != "" {
		t.Errorf("last transcript callback mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.inbound <- &ServerMessage{Audio: []string{audioChunk(100 * time.Millisecond)}}
	require.Eventually(t, func() bool { return len(h.out.snapshot()) == 1 }, waitFor, tick)

	require.NoError(t, h.bridge.Close())
	require.NoError(t, h.bridge.Close())

	require.Equal(t, StateClosed, h.bridge.State())
	require.NoError(t, h.bridge.Err())
	require.True(t, h.mic.isClosed())
	require.True(t, h.out.isClosed())
	require.True(t, h.session.isClosed())
	require.True(t, h.out.snapshot()[0].stopped)
	require.Equal(t, []State{StateConnecting, StateStreaming, StateClosed}, h.stateLog())
}

func TestCloseBeforeStart(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.bridge.Close())
	require.Equal(t, StateClosed, h.bridge.State())
	require.Error(t, h.bridge.Start(context.Background()))
	require.Zero(t, h.dialer.callCount())
}

func TestCloseWhileConnecting(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.bridge.Start(context.Background()))
	require.NoError(t, h.bridge.Close())
	require.Equal(t, []State{StateConnecting, StateClosed}, h.stateLog())
}

func TestCloseCancelsMicrophoneWait(t *testing.T) {
	h := newHarness(t)
	h.mic.hold = true

	errc := make(chan error, 1)
	go func() { errc <- h.bridge.Start(context.Background()) }()
	h.waitState(t, StateConnecting)

	began := time.Now()
	require.NoError(t, h.bridge.Close())
	require.Less(t, time.Since(began), time.Second)

	require.ErrorIs(t, <-errc, ErrClosed)
	require.Equal(t, StateClosed, h.bridge.State())
	require.NoError(t, h.bridge.Err())
	require.True(t, h.mic.isClosed())
	require.True(t, h.out.isClosed())
	require.Zero(t, h.dialer.callCount())
	require.Equal(t, []State{StateConnecting, StateClosed}, h.stateLog())
}

func TestCloseCancelsDial(t *testing.T) {
	h := newHarness(t)
	h.dialer.hold = true

	errc := make(chan error, 1)
	go func() { errc <- h.bridge.Start(context.Background()) }()
	require.Eventually(t, func() bool { return h.dialer.callCount() == 1 }, waitFor, tick)

	require.NoError(t, h.bridge.Close())

	require.ErrorIs(t, <-errc, ErrClosed)
	require.NoError(t, h.bridge.Err())
	require.True(t, h.mic.isClosed())
	require.Equal(t, []State{StateConnecting, StateClosed}, h.stateLog())
}

func TestRemoteCloseEndsSession(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.session.hangUp()

	select {
	case <-h.bridge.Done():
	case <-time.After(waitFor):
		t.Fatal("bridge did not close after remote hang up")
	}
	require.Equal(t, StateClosed, h.bridge.State())
	require.NoError(t, h.bridge.Err())
}

func TestMicrophoneEndClosesSession(t *testing.T) {
	h := newHarness(t)
	h.startStreaming(t)

	h.mic.stop()

	select {
	case <-h.bridge.Done():
	case <-time.After(waitFor):
		t.Fatal("bridge did not close after capture ended")
	}
	require.True(t, h.session.isClosed())
}

func TestContextCancelClosesSession(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.bridge.Start(ctx))

	cancel()

	select {
	case <-h.bridge.Done():
	case <-time.After(waitFor):
		t.Fatal("bridge did not close after cancel")
	}
	require.Equal(t, StateClosed, h.bridge.State())
}
