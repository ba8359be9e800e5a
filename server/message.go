package main

import "example.com/detective_engine/pkg/live"

// Signaling message types. join, offer, answer, candidate and leave come
// from the browser; offer, candidate, state, transcript and error are sent
// by the server.
const (
	msgJoin       = "join"
	msgOffer      = "offer"
	msgAnswer     = "answer"
	msgCandidate  = "candidate"
	msgLeave      = "leave"
	msgState      = "state"
	msgTranscript = "transcript"
	msgError      = "error"
)

// SignalMessage represents a signaling message between client and server
type SignalMessage struct {
	Type       string                `json:"type"`
	SessionID  string                `json:"session_id,omitempty"`
	SDP        string                `json:"sdp,omitempty"`
	Candidate  string                `json:"candidate,omitempty"`
	State      string                `json:"state,omitempty"`
	Transcript []live.TranscriptLine `json:"transcript,omitempty"`
	Kind       string                `json:"kind,omitempty"`
	Error      string                `json:"error,omitempty"`
}
