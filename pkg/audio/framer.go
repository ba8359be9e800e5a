package audio

// CaptureFrameSize is the number of mono samples per outbound capture frame.
const CaptureFrameSize = 4096

// Framer regroups an arbitrary sample stream into fixed-size frames.
type Framer struct {
	size    int
	pending []float32
}

// NewFramer creates a framer emitting frames of size samples.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = CaptureFrameSize
	}
	return &Framer{
		size:    size,
		pending: make([]float32, 0, size),
	}
}

// Write appends samples and returns every frame completed by them. The
// returned frames do not alias the framer's internal storage.
func (f *Framer) Write(samples []float32) [][]float32 {
	var frames [][]float32
	for len(samples) > 0 {
		room := f.size - len(f.pending)
		if room > len(samples) {
			room = len(samples)
		}
		f.pending = append(f.pending, samples[:room]...)
		samples = samples[room:]

		if len(f.pending) == f.size {
			frame := make([]float32, f.size)
			copy(frame, f.pending)
			frames = append(frames, frame)
			f.pending = f.pending[:0]
		}
	}
	return frames
}

// Pending returns the number of buffered samples not yet emitted.
func (f *Framer) Pending() int {
	return len(f.pending)
}
