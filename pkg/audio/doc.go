// Package audio converts between the PCM formats used by the realtime
// provider (16-bit mono at 16kHz in, 24kHz out) and the Opus/48kHz stereo
// format carried over WebRTC.
package audio
