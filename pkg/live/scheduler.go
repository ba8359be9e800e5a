package live

import (
	"time"

	"github.com/gopxl/beep"

	"example.com/detective_engine/pkg/audio"
)

// Scheduler places inbound audio on the output timeline so consecutive
// buffers play back to back. It is not safe for concurrent use; the bridge
// loop owns it.
//
// The cursor is kept as an origin plus a whole number of queued samples so
// that chunk lengths which are not a whole number of nanoseconds do not
// accumulate rounding drift.
type Scheduler struct {
	out     Output
	onEnded func(id uint64)
	origin  time.Duration
	queued  int
	rate    beep.SampleRate
	active  map[uint64]Handle
	seq     uint64
}

// NewScheduler creates a scheduler over out. onEnded receives the id of
// each playback that finishes naturally, from the output's goroutine; the
// owner must route it back to Ended.
func NewScheduler(out Output, onEnded func(id uint64)) *Scheduler {
	return &Scheduler{
		out:     out,
		onEnded: onEnded,
		active:  make(map[uint64]Handle),
	}
}

// Schedule starts buf at max(cursor, now) and advances the cursor by its
// duration. It returns the playback id and start time.
func (s *Scheduler) Schedule(buf *audio.Buffer) (uint64, time.Duration) {
	now := s.out.Now()
	if cursor := s.Cursor(); now > cursor || buf.SampleRate != s.rate {
		s.origin = max(now, cursor)
		s.queued = 0
		s.rate = buf.SampleRate
	}
	start := s.Cursor()
	s.queued += buf.Len()

	s.seq++
	id := s.seq
	s.active[id] = s.out.Play(buf, start, func() {
		if s.onEnded != nil {
			s.onEnded(id)
		}
	})
	return id, start
}

// Ended removes a finished playback. Unknown ids are ignored, which covers
// completions racing with Interrupt.
func (s *Scheduler) Ended(id uint64) {
	delete(s.active, id)
}

// Interrupt stops every active playback and resets the cursor to the
// current clock. It returns how many playbacks were stopped.
func (s *Scheduler) Interrupt() int {
	n := len(s.active)
	for id, h := range s.active {
		h.Stop()
		delete(s.active, id)
	}
	s.origin = s.out.Now()
	s.queued = 0
	return n
}

// Cursor is the time at which the next scheduled buffer will start.
func (s *Scheduler) Cursor() time.Duration {
	if s.rate == 0 {
		return s.origin
	}
	return s.origin + s.rate.D(s.queued)
}

// Active returns the number of playbacks not yet finished.
func (s *Scheduler) Active() int {
	return len(s.active)
}
