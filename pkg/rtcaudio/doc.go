// Package rtcaudio connects the realtime bridge to a browser over WebRTC:
// the remote Opus track becomes the bridge's microphone and rendered reply
// audio is sent back on a local track.
package rtcaudio
