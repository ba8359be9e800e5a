package live

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"example.com/detective_engine/pkg/audio"
)

type fakePlay struct {
	out     *fakeOutput
	at      time.Duration
	dur     time.Duration
	onEnded func()
	stopped bool
}

func (p *fakePlay) Stop() {
	p.out.mu.Lock()
	defer p.out.mu.Unlock()
	p.stopped = true
}

type fakeOutput struct {
	mu     sync.Mutex
	now    time.Duration
	plays  []*fakePlay
	closed bool
}

func (o *fakeOutput) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) Play(buf *audio.Buffer, at time.Duration, onEnded func()) Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &fakePlay{out: o, at: at, dur: buf.Duration(), onEnded: onEnded}
	o.plays = append(o.plays, p)
	return p
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) advance(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

func (o *fakeOutput) snapshot() []fakePlay {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]fakePlay, len(o.plays))
	for i, p := range o.plays {
		out[i] = *p
	}
	return out
}

func (o *fakeOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeMic struct {
	frames   chan []float32
	err      error
	hold     bool // Open waits for ctx or Close, like a browser that never sends a track
	released chan struct{}
	once     sync.Once
	relOnce  sync.Once
	mu       sync.Mutex
	closed   bool
	opened   bool
}

func newFakeMic() *fakeMic {
	return &fakeMic{
		frames:   make(chan []float32, 16),
		released: make(chan struct{}),
	}
}

func (m *fakeMic) Open(ctx context.Context) (<-chan []float32, error) {
	if m.hold {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.released:
			return nil, errors.New("microphone closed")
		case <-time.After(10 * time.Second):
			return nil, context.DeadlineExceeded
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	m.opened = true
	m.mu.Unlock()
	return m.frames, nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.relOnce.Do(func() { close(m.released) })
	return nil
}

// stop ends capture the way a dropped browser track would.
func (m *fakeMic) stop() {
	m.once.Do(func() { close(m.frames) })
}

func (m *fakeMic) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeSession struct {
	sent    chan Media
	inbound chan *ServerMessage
	remote  chan struct{}
	closed  chan struct{}
	once    sync.Once
	rOnce   sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		sent:    make(chan Media, 64),
		inbound: make(chan *ServerMessage, 16),
		remote:  make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSession) SendAudio(ctx context.Context, media Media) error {
	select {
	case <-s.closed:
		return io.ErrClosedPipe
	default:
	}
	s.sent <- media
	return nil
}

func (s *fakeSession) Recv() (*ServerMessage, error) {
	select {
	case msg := <-s.inbound:
		return msg, nil
	case <-s.remote:
		return nil, io.EOF
	case <-s.closed:
		return nil, io.ErrClosedPipe
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSession) hangUp() {
	s.rOnce.Do(func() { close(s.remote) })
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	session *fakeSession
	err     error
	hold    bool // Dial waits for ctx
	mu      sync.Mutex
	calls   int
}

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.hold {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.session, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
