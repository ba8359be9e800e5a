// Package playout renders scheduled reply audio against a sample-counting
// clock and hands fixed-size PCM frames to a writer.
package playout

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"

	"example.com/detective_engine/pkg/audio"
	"example.com/detective_engine/pkg/live"
)

// ErrClosed is returned by Advance after Close.
var ErrClosed = errors.New("playout: player closed")

// FrameWriter receives rendered 16-bit little-endian mono PCM.
type FrameWriter interface {
	WriteFrame(pcm []byte) error
}

// Config holds player settings
type Config struct {
	SampleRate int           // defaults to 24kHz
	Period     time.Duration // render granularity, defaults to 20ms
	Writer     FrameWriter
	Logger     *slog.Logger
}

// Player mixes scheduled buffers. Its clock is the amount of audio
// rendered so far, so scheduling stays exact regardless of wall-clock
// jitter. It implements live.Output.
type Player struct {
	rate   beep.SampleRate
	period time.Duration
	writer FrameWriter
	logger *slog.Logger

	mu       sync.Mutex
	mixer    *beep.Mixer
	rendered int
	voices   map[*voice]struct{}
	fired    []func()
	closed   bool
	mix      [][2]float64
}

var _ live.Output = (*Player)(nil)

// NewPlayer creates a player
func NewPlayer(config Config) *Player {
	if config.SampleRate == 0 {
		config.SampleRate = audio.PlaybackSampleRate
	}
	if config.Period == 0 {
		config.Period = 20 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Player{
		rate:   beep.SampleRate(config.SampleRate),
		period: config.Period,
		writer: config.Writer,
		logger: config.Logger.With(slog.String("component", "playout")),
		mixer:  &beep.Mixer{},
		voices: make(map[*voice]struct{}),
	}
}

type voice struct {
	player *Player
	ctrl   *beep.Ctrl
}

// Stop removes the voice from the mix without running its callback.
func (v *voice) Stop() {
	p := v.player
	p.mu.Lock()
	defer p.mu.Unlock()
	v.ctrl.Streamer = nil
	delete(p.voices, v)
}

// Now returns the playback position of the output clock.
func (p *Player) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate.D(p.rendered)
}

// Play schedules buf at the given clock position. Positions in the past
// start on the next rendered sample.
func (p *Player) Play(buf *audio.Buffer, at time.Duration, onEnded func()) live.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset := p.sampleAt(at) - p.rendered
	if offset < 0 {
		offset = 0
	}

	v := &voice{player: p}
	v.ctrl = &beep.Ctrl{Streamer: beep.Seq(
		beep.Silence(offset),
		buf.Streamer(),
		beep.Callback(func() {
			// runs inside Advance with p.mu held
			delete(p.voices, v)
			if onEnded != nil {
				p.fired = append(p.fired, onEnded)
			}
		}),
	)}

	if p.closed {
		return v
	}
	p.voices[v] = struct{}{}
	p.mixer.Add(v.ctrl)
	return v
}

// sampleAt maps a clock position to the nearest sample. Positions come
// from Now and buffer durations, both truncated to whole nanoseconds, so
// truncating again here would start a buffer one sample early.
func (p *Player) sampleAt(at time.Duration) int {
	return int(math.Round(at.Seconds() * float64(p.rate)))
}

// Advance renders d of audio, passes it to the writer and then runs the
// completion callbacks of buffers that finished.
func (p *Player) Advance(d time.Duration) error {
	n := p.rate.N(d)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if cap(p.mix) < n {
		p.mix = make([][2]float64, n)
	}
	mix := p.mix[:n]
	for i := range mix {
		mix[i] = [2]float64{}
	}
	p.mixer.Stream(mix)
	p.rendered += n

	mono := make([]float32, n)
	for i, s := range mix {
		mono[i] = float32((s[0] + s[1]) / 2)
	}
	fired := p.fired
	p.fired = nil
	p.mu.Unlock()

	for _, f := range fired {
		f()
	}

	if p.writer == nil {
		return nil
	}
	return p.writer.WriteFrame(audio.EncodePCM16(mono))
}

// Run advances the clock in real time until ctx is done or the player is
// closed.
func (p *Player) Run(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Advance(p.period); err != nil {
				if errors.Is(err, ErrClosed) {
					return
				}
				p.logger.Warn("Failed to write audio frame", slog.String("error", err.Error()))
			}
		}
	}
}

// Active returns the number of voices still playing or waiting to start.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.voices)
}

// Close silences everything. Pending callbacks are discarded.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.mixer.Clear()
	p.voices = make(map[*voice]struct{})
	p.fired = nil
	return nil
}
