package live

import "fmt"

// DefaultTranscriptSize is the number of lines kept in the rolling log.
const DefaultTranscriptSize = 5

// Speaker identifies who produced a transcript line.
type Speaker int

const (
	SpeakerLocal Speaker = iota
	SpeakerRemote
)

func (s Speaker) String() string {
	if s == SpeakerRemote {
		return "Hub"
	}
	return "User"
}

func (s Speaker) MarshalText() ([]byte, error) {
	if s == SpeakerRemote {
		return []byte("remote"), nil
	}
	return []byte("local"), nil
}

func (s *Speaker) UnmarshalText(text []byte) error {
	switch string(text) {
	case "local":
		*s = SpeakerLocal
	case "remote":
		*s = SpeakerRemote
	default:
		return fmt.Errorf("live: unknown speaker %q", text)
	}
	return nil
}

// TranscriptLine is one transcribed utterance fragment.
type TranscriptLine struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

func (l TranscriptLine) String() string {
	return l.Speaker.String() + ": " + l.Text
}

// Transcript is a bounded log keeping only the most recent lines.
type Transcript struct {
	max   int
	lines []TranscriptLine
}

func NewTranscript(max int) *Transcript {
	if max <= 0 {
		max = DefaultTranscriptSize
	}
	return &Transcript{max: max}
}

// Append adds a line, evicting the oldest when full.
func (t *Transcript) Append(line TranscriptLine) {
	if len(t.lines) == t.max {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.max-1]
	}
	t.lines = append(t.lines, line)
}

// Lines returns a copy of the current log, oldest first.
func (t *Transcript) Lines() []TranscriptLine {
	out := make([]TranscriptLine, len(t.lines))
	copy(out, t.lines)
	return out
}
