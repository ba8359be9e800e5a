package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"example.com/detective_engine/pkg/apperr"
	"example.com/detective_engine/pkg/audio"
	"example.com/detective_engine/pkg/codec"
	"example.com/detective_engine/pkg/metrics"
)

const inboxSize = 64

// ErrClosed is returned by Start when Close ends the bridge before the
// session is up.
var ErrClosed = errors.New("live: bridge closed")

// Config wires a Bridge to its devices and the provider.
type Config struct {
	ID             string
	Dialer         Dialer
	Microphone     Microphone
	Output         Output
	TranscriptSize int
	Logger         *slog.Logger
	Metrics        *metrics.Metrics

	// OnStateChange and OnTranscript run on the bridge goroutine. They
	// must not block or call Close.
	OnStateChange func(State)
	OnTranscript  func([]TranscriptLine)
}

// Bridge streams microphone audio to a realtime session and plays the
// replies. All session state is owned by a single loop goroutine; capture,
// network reads and playback completions only post events to it.
type Bridge struct {
	id      string
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	inbox      chan event
	done       chan struct{}
	finishOnce sync.Once

	mu       sync.Mutex
	state    State
	started  bool
	running  bool
	closing  bool
	cancel   context.CancelFunc
	err      error
	snapshot []TranscriptLine

	// owned by the loop goroutine once Start returns
	session    Session
	frames     <-chan []float32
	sched      *Scheduler
	transcript *Transcript
}

// New validates cfg and returns an idle bridge.
func New(cfg Config) (*Bridge, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("live: dialer is required")
	}
	if cfg.Microphone == nil {
		return nil, errors.New("live: microphone is required")
	}
	if cfg.Output == nil {
		return nil, errors.New("live: output is required")
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &Bridge{
		id:  cfg.ID,
		cfg: cfg,
		logger: cfg.Logger.With(
			slog.String("component", "live"),
			slog.String("session_id", cfg.ID),
		),
		metrics:    cfg.Metrics,
		inbox:      make(chan event, inboxSize),
		done:       make(chan struct{}),
		state:      StateIdle,
		transcript: NewTranscript(cfg.TranscriptSize),
	}
	b.sched = NewScheduler(cfg.Output, func(id uint64) {
		b.post(playbackEnded{id: id})
	})
	return b, nil
}

// ID returns the session identifier used in logs.
func (b *Bridge) ID() string {
	return b.id
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the error that ended the session, if any.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Transcript returns the most recent transcript lines, oldest first.
func (b *Bridge) Transcript() []TranscriptLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]TranscriptLine, len(b.snapshot))
	copy(out, b.snapshot)
	return out
}

// Done is closed once the bridge reaches StateClosed.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Start opens the microphone and connects to the provider. A failure of
// either is fatal: the bridge passes through StateError to StateClosed and
// the *apperr.PermissionError or *apperr.TransportError is returned. If
// Close interrupts the connect, the bridge goes straight to StateClosed and
// Start returns ErrClosed. Cancelling ctx later ends the session.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return errors.New("live: bridge already started")
	}
	b.started = true
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	b.setState(StateConnecting)

	frames, err := b.cfg.Microphone.Open(ctx)
	if err != nil {
		if b.closeRequested() {
			return b.abort(nil)
		}
		var perm *apperr.PermissionError
		if !errors.As(err, &perm) {
			err = &apperr.PermissionError{Device: "microphone", Err: err}
		}
		return b.fail(err)
	}

	session, err := b.cfg.Dialer.Dial(ctx)
	if err != nil {
		if b.closeRequested() {
			return b.abort(nil)
		}
		var transport *apperr.TransportError
		if !errors.As(err, &transport) {
			err = &apperr.TransportError{Op: "connect", Err: err}
		}
		return b.fail(err)
	}

	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return b.abort(session)
	}
	b.running = true
	b.mu.Unlock()

	b.frames = frames
	b.session = session
	b.metrics.RecordLiveSessionStart()

	go b.receive(session)
	go b.run(ctx)
	return nil
}

// Close ends the session from any state. While Start is still connecting
// it cancels the connect and releases the microphone. It is safe to call
// more than once and from any goroutine except the bridge callbacks.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if !b.started {
		b.started = true
		b.mu.Unlock()
		b.setState(StateClosed)
		b.finish()
		return nil
	}
	if !b.running {
		b.closing = true
		cancel := b.cancel
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if err := b.cfg.Microphone.Close(); err != nil {
			b.logger.Warn("Failed to close microphone", slog.String("error", err.Error()))
		}
		<-b.done
		return nil
	}
	b.mu.Unlock()

	select {
	case b.inbox <- closeRequest{}:
	case <-b.done:
	}
	<-b.done
	return nil
}

func (b *Bridge) closeRequested() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closing
}

// abort tears down a connect that Close interrupted. session is nil unless
// the dial had already succeeded.
func (b *Bridge) abort(session Session) error {
	b.logger.Info("Live session closed while connecting")
	b.cancel()

	if session != nil {
		if cerr := session.Close(); cerr != nil {
			b.logger.Debug("Session close", slog.String("error", cerr.Error()))
		}
	}
	if cerr := b.cfg.Microphone.Close(); cerr != nil {
		b.logger.Warn("Failed to close microphone", slog.String("error", cerr.Error()))
	}
	if cerr := b.cfg.Output.Close(); cerr != nil {
		b.logger.Warn("Failed to close output", slog.String("error", cerr.Error()))
	}

	b.setState(StateClosed)
	b.finish()
	return ErrClosed
}

func (b *Bridge) fail(err error) error {
	b.logger.Error("Live session failed to start", slog.String("error", err.Error()))
	b.setErr(err)
	b.setState(StateError)

	if cerr := b.cfg.Microphone.Close(); cerr != nil {
		b.logger.Warn("Failed to close microphone", slog.String("error", cerr.Error()))
	}
	if cerr := b.cfg.Output.Close(); cerr != nil {
		b.logger.Warn("Failed to close output", slog.String("error", cerr.Error()))
	}

	b.metrics.RecordLiveSessionFailed(apperr.Kind(err))
	b.cancel()
	b.setState(StateClosed)
	b.finish()
	return err
}

func (b *Bridge) finish() {
	b.finishOnce.Do(func() { close(b.done) })
}

// post delivers ev to the loop. It reports false once the bridge is closed.
func (b *Bridge) post(ev event) bool {
	select {
	case b.inbox <- ev:
		return true
	case <-b.done:
		return false
	}
}

func (b *Bridge) receive(session Session) {
	for {
		msg, err := session.Recv()
		if err != nil {
			b.post(sessionEnded{err: err})
			return
		}
		if !b.post(serverEvent{msg: msg}) {
			return
		}
	}
}

func (b *Bridge) pump(frames <-chan []float32) {
	for {
		select {
		case samples, ok := <-frames:
			if !ok {
				b.post(captureEnded{})
				return
			}
			if !b.post(captureFrame{samples: samples}) {
				return
			}
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Live session context done")
			b.shutdown(nil)
			return
		case ev := <-b.inbox:
			if b.handle(ctx, ev) {
				return
			}
		}
	}
}

// handle processes one event and reports whether the loop should exit.
func (b *Bridge) handle(ctx context.Context, ev event) bool {
	switch ev := ev.(type) {
	case captureFrame:
		b.sendFrame(ctx, ev.samples)

	case serverEvent:
		b.handleMessage(ev.msg)

	case playbackEnded:
		b.sched.Ended(ev.id)

	case captureEnded:
		b.logger.Info("Microphone stopped")
		b.shutdown(nil)
		return true

	case sessionEnded:
		if errors.Is(ev.err, io.EOF) {
			b.logger.Info("Provider closed session")
			b.shutdown(nil)
		} else {
			b.shutdown(&apperr.TransportError{Op: "receive", Err: ev.err})
		}
		return true

	case closeRequest:
		b.shutdown(nil)
		return true
	}
	return false
}

func (b *Bridge) sendFrame(ctx context.Context, samples []float32) {
	if !b.State().Active() {
		return
	}

	media := Media{
		MIMEType: CaptureMIMEType,
		Data:     codec.Encode(audio.EncodePCM16(samples)),
	}
	if err := b.session.SendAudio(ctx, media); err != nil {
		b.logger.Warn("Failed to send capture frame", slog.String("error", err.Error()))
		b.metrics.RecordSendError()
		return
	}
	b.metrics.RecordFrameSent()
	b.resume()
}

func (b *Bridge) handleMessage(msg *ServerMessage) {
	if msg.SetupComplete && b.State() == StateConnecting {
		b.setState(StateStreaming)
		go b.pump(b.frames)
	}

	if msg.OutputTranscript != "" {
		b.appendTranscript(TranscriptLine{Speaker: SpeakerRemote, Text: msg.OutputTranscript})
	}
	if msg.InputTranscript != "" {
		b.appendTranscript(TranscriptLine{Speaker: SpeakerLocal, Text: msg.InputTranscript})
	}

	for _, chunk := range msg.Audio {
		b.playChunk(chunk)
	}

	if msg.Interrupted {
		b.interrupt()
	}
	if msg.TurnComplete {
		b.logger.Debug("Model turn complete")
	}
	if msg.GoAway {
		b.logger.Warn("Provider announced disconnect")
	}
}

func (b *Bridge) playChunk(chunk string) {
	if !b.State().Active() {
		return
	}

	raw, err := codec.Decode(chunk)
	if err != nil {
		b.logger.Warn("Dropping undecodable audio payload", slog.String("error", err.Error()))
		b.metrics.RecordDecodeError()
		return
	}

	buf := audio.DecodePCM16(raw, audio.PlaybackSampleRate, 1)
	if buf.Len() == 0 {
		return
	}

	id, start := b.sched.Schedule(buf)
	b.logger.Debug("Scheduled playback",
		slog.Uint64("playback_id", id),
		slog.Duration("start", start),
		slog.Duration("duration", buf.Duration()),
	)
	b.metrics.RecordFrameReceived()
	b.resume()
}

func (b *Bridge) interrupt() {
	stopped := b.sched.Interrupt()
	b.logger.Info("Playback interrupted", slog.Int("stopped", stopped))
	b.metrics.RecordInterruption()
	if b.State().Active() {
		b.setState(StateInterrupted)
	}
}

// resume returns an interrupted session to streaming on new activity.
func (b *Bridge) resume() {
	if b.State() == StateInterrupted {
		b.setState(StateStreaming)
	}
}

func (b *Bridge) appendTranscript(line TranscriptLine) {
	b.transcript.Append(line)
	lines := b.transcript.Lines()

	b.mu.Lock()
	b.snapshot = lines
	b.mu.Unlock()

	if b.cfg.OnTranscript != nil {
		b.cfg.OnTranscript(lines)
	}
}

func (b *Bridge) shutdown(err error) {
	if err != nil {
		b.logger.Error("Live session failed", slog.String("error", err.Error()))
		b.setErr(err)
		b.setState(StateError)
	}

	if cerr := b.cfg.Microphone.Close(); cerr != nil {
		b.logger.Warn("Failed to close microphone", slog.String("error", cerr.Error()))
	}
	b.sched.Interrupt()
	if cerr := b.cfg.Output.Close(); cerr != nil {
		b.logger.Warn("Failed to close output", slog.String("error", cerr.Error()))
	}
	if cerr := b.session.Close(); cerr != nil {
		b.logger.Debug("Session close", slog.String("error", cerr.Error()))
	}

	outcome := "closed"
	if err != nil {
		outcome = apperr.Kind(err)
	}
	b.metrics.RecordLiveSessionEnd(outcome)
	b.cancel()
	b.setState(StateClosed)
	b.finish()
}

func (b *Bridge) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	prev := b.state
	if prev == s || prev.Terminal() {
		b.mu.Unlock()
		return
	}
	b.state = s
	b.mu.Unlock()

	b.logger.Info("State changed",
		slog.String("from", prev.String()),
		slog.String("to", s.String()),
	)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(s)
	}
}
