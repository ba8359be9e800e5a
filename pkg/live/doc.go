// Package live implements the realtime voice bridge: microphone frames go
// out to a provider session, reply audio is scheduled gap-free on an output
// clock, and a barge-in from the provider silences everything queued.
//
// The bridge is an actor. One goroutine owns the session, the playback
// schedule and the transcript; everything else communicates with it by
// posting events.
//
//	Idle -> Connecting -> Streaming <-> Interrupted -> Closed
//	           any non-terminal state -> Error -> Closed
package live
