package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"example.com/detective_engine/pkg/apperr"
	"example.com/detective_engine/pkg/audio"
	"example.com/detective_engine/pkg/live"
	"example.com/detective_engine/pkg/playout"
	"example.com/detective_engine/pkg/rtcaudio"
)

// LiveSession is one browser connected to the realtime bridge: its
// signaling socket, its peer connection and the bridge driving both audio
// directions.
type LiveSession struct {
	ID             string
	Conn           *websocket.Conn
	PeerConnection *webrtc.PeerConnection
	Bridge         *live.Bridge

	player   *playout.Player
	mic      *rtcaudio.Microphone
	sessions *SessionManager
	logger   *slog.Logger
	cancel   context.CancelFunc

	mu           sync.Mutex // serializes socket writes
	closeOnce    sync.Once
	teardownOnce sync.Once
}

// newLiveSession wires a peer connection to a fresh bridge. Nothing runs
// until Start.
func (srv *server) newLiveSession(conn *websocket.Conn, id string) (*LiveSession, error) {
	logger := srv.logger.With(slog.String("session_id", id))

	pc, err := createPeerConnection(srv.cfg.Live.ICEServers)
	if err != nil {
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticRTP(opusCapability, "audio", "detective-"+id)
	if err != nil {
		pc.Close()
		return nil, err
	}
	speaker, err := rtcaudio.NewSpeaker(track, audio.PlaybackSampleRate)
	if err != nil {
		pc.Close()
		return nil, err
	}

	s := &LiveSession{
		ID:             id,
		Conn:           conn,
		PeerConnection: pc,
		player:         playout.NewPlayer(playout.Config{Writer: speaker, Logger: logger}),
		mic:            rtcaudio.NewMicrophone(srv.cfg.Live.TrackTimeout, logger),
		sessions:       srv.sessions,
		logger:         logger,
	}

	s.Bridge, err = live.New(live.Config{
		ID:             id,
		Dialer:         srv.dialer,
		Microphone:     s.mic,
		Output:         s.player,
		TranscriptSize: srv.cfg.Live.TranscriptSize,
		Logger:         logger,
		Metrics:        srv.metrics,
		OnStateChange:  s.onStateChange,
		OnTranscript:   s.onTranscript,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	if err := addTrackToPeer(s, track); err != nil {
		pc.Close()
		return nil, err
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		s.SendMessage(SignalMessage{
			Type:      msgCandidate,
			SessionID: s.ID,
			Candidate: candidate.ToJSON().Candidate,
		})
	})

	pc.OnTrack(func(remoteTrack *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remoteTrack.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		s.logger.Info("Received microphone track", slog.String("codec", remoteTrack.Codec().MimeType))
		s.mic.Attach(rtcaudio.TrackSource(remoteTrack))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.logger.Info("Peer connection state", slog.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed ||
			state == webrtc.PeerConnectionStateDisconnected {
			go s.Close()
		}
	})

	return s, nil
}

// Start runs the playout clock and the bridge. The bridge waits for the
// browser's microphone track before dialing the provider.
func (s *LiveSession) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.player.Run(ctx)
	go func() {
		// failures are reported through onStateChange
		_ = s.Bridge.Start(ctx)
	}()
	go func() {
		<-s.Bridge.Done()
		s.teardown()
	}()
}

// SendMessage sends a signaling message to the browser
func (s *LiveSession) SendMessage(msg SignalMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteJSON(msg)
}

// Close ends the bridge and releases the peer connection.
func (s *LiveSession) Close() {
	s.closeOnce.Do(func() {
		s.Bridge.Close()
		s.teardown()
	})
}

// discard releases a session that was never registered or started.
func (s *LiveSession) discard() {
	if err := s.mic.Close(); err != nil {
		s.logger.Debug("Microphone close", slog.String("error", err.Error()))
	}
	if err := s.PeerConnection.Close(); err != nil {
		s.logger.Warn("Failed to close peer connection", slog.String("error", err.Error()))
	}
}

func (s *LiveSession) teardown() {
	s.teardownOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if err := s.PeerConnection.Close(); err != nil {
			s.logger.Warn("Failed to close peer connection", slog.String("error", err.Error()))
		}
		s.sessions.Remove(s)
		s.logger.Info("Live session ended")
	})
}

func (s *LiveSession) onStateChange(state live.State) {
	s.SendMessage(SignalMessage{Type: msgState, SessionID: s.ID, State: state.String()})

	if err := s.Bridge.Err(); state == live.StateError && err != nil {
		s.SendMessage(SignalMessage{
			Type:      msgError,
			SessionID: s.ID,
			Kind:      apperr.Kind(err),
			Error:     err.Error(),
		})
	}
}

func (s *LiveSession) onTranscript(lines []live.TranscriptLine) {
	s.SendMessage(SignalMessage{Type: msgTranscript, SessionID: s.ID, Transcript: lines})
}

// addTrackToPeer adds the outbound audio track and drains its RTCP
func addTrackToPeer(s *LiveSession, track *webrtc.TrackLocalStaticRTP) error {
	sender, err := s.PeerConnection.AddTrack(track)
	if err != nil {
		return err
	}

	// Read and discard RTCP packets to keep the connection alive
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}
