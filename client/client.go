package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"example.com/detective_engine/pkg/live"
)

// SignalMessage mirrors the server's signaling envelope
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

// LiveClient joins /api/live as a WebRTC peer. Microphone audio goes out
// through WriteOpus; the reply track arrives through OnAudio.
type LiveClient struct {
	ServerURL string
	sessionID string

	conn           *websocket.Conn
	peerConnection *webrtc.PeerConnection
	audioTrack     *webrtc.TrackLocalStaticRTP
	logger         *slog.Logger

	onAudio      func(track *webrtc.TrackRemote)
	onState      func(state string)
	onTranscript func(lines []live.TranscriptLine)
	onError      func(kind, message string)

	mu        sync.Mutex
	writeMu   sync.Mutex // separate mutex for WebSocket writes
	rtpMu     sync.Mutex // mutex for RTP writing
	connected bool
	done      chan struct{}
	// RTP state for outgoing audio
	rtpSeqNum    uint16
	rtpTimestamp uint32
}

// NewLiveClient creates a client for the signaling endpoint at serverURL
// (ws:// or wss://).
func NewLiveClient(serverURL string, logger *slog.Logger) *LiveClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveClient{
		ServerURL: serverURL,
		logger:    logger.With(slog.String("component", "live_client")),
		done:      make(chan struct{}),
	}
}

// OnAudio sets the callback for the reply audio track
func (c *LiveClient) OnAudio(callback func(track *webrtc.TrackRemote)) {
	c.onAudio = callback
}

// OnState sets the callback for bridge state changes
func (c *LiveClient) OnState(callback func(state string)) {
	c.onState = callback
}

// OnTranscript sets the callback for transcript updates
func (c *LiveClient) OnTranscript(callback func(lines []live.TranscriptLine)) {
	c.onTranscript = callback
}

// OnError sets the callback for session failures
func (c *LiveClient) OnError(callback func(kind, message string)) {
	c.onError = callback
}

// Connect opens the signaling socket and joins a session. An empty
// sessionID lets the server pick one.
func (c *LiveClient) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	c.conn = conn

	pc, err := c.createPeerConnection()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	c.peerConnection = pc

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		"microphone",
		"detective-client",
	)
	if err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("failed to create audio track: %w", err)
	}
	c.audioTrack = audioTrack

	sender, err := pc.AddTrack(audioTrack)
	if err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("failed to add track: %w", err)
	}

	// Read and discard RTCP packets
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		c.sendMessage(SignalMessage{
			Type:      "candidate",
			Candidate: candidate.ToJSON().Candidate,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info("Received reply track", slog.String("track_id", track.ID()))
		if c.onAudio != nil {
			go c.onAudio(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debug("Connection state", slog.String("state", state.String()))
	})

	go c.handleMessages()

	// server sends the offer after join
	if err := c.sendMessage(SignalMessage{Type: "join", SessionID: sessionID}); err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("failed to join: %w", err)
	}

	c.sessionID = sessionID
	c.connected = true
	return nil
}

func (c *LiveClient) createPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(webrtc.Configuration{})
}

func (c *LiveClient) handleMessages() {
	for {
		var msg SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debug("Read ended", slog.String("error", err.Error()))
			}
			return
		}

		switch msg.Type {
		case "offer":
			if msg.SessionID != "" {
				c.mu.Lock()
				c.sessionID = msg.SessionID
				c.mu.Unlock()
			}
			c.handleOffer(msg)
		case "answer":
			c.handleAnswer(msg)
		case "candidate":
			c.handleCandidate(msg)
		case "state":
			if c.onState != nil {
				c.onState(msg.State)
			}
		case "transcript":
			if c.onTranscript != nil {
				c.onTranscript(msg.Transcript)
			}
		case "error":
			c.logger.Warn("Session error", slog.String("kind", msg.Kind), slog.String("error", msg.Error))
			if c.onError != nil {
				c.onError(msg.Kind, msg.Error)
			}
		}
	}
}

func (c *LiveClient) handleOffer(msg SignalMessage) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	}

	if err := c.peerConnection.SetRemoteDescription(offer); err != nil {
		c.logger.Warn("Failed to set remote description", slog.String("error", err.Error()))
		return
	}

	answer, err := c.peerConnection.CreateAnswer(nil)
	if err != nil {
		c.logger.Warn("Failed to create answer", slog.String("error", err.Error()))
		return
	}

	if err := c.peerConnection.SetLocalDescription(answer); err != nil {
		c.logger.Warn("Failed to set local description", slog.String("error", err.Error()))
		return
	}

	c.sendMessage(SignalMessage{
		Type: "answer",
		SDP:  answer.SDP,
	})
}

func (c *LiveClient) handleAnswer(msg SignalMessage) {
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  msg.SDP,
	}

	if err := c.peerConnection.SetRemoteDescription(answer); err != nil {
		c.logger.Warn("Failed to set remote description", slog.String("error", err.Error()))
	}
}

func (c *LiveClient) handleCandidate(msg SignalMessage) {
	candidate := webrtc.ICECandidateInit{
		Candidate: msg.Candidate,
	}

	if err := c.peerConnection.AddICECandidate(candidate); err != nil {
		c.logger.Warn("Failed to add ICE candidate", slog.String("error", err.Error()))
	}
}

func (c *LiveClient) sendMessage(msg SignalMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// WriteOpus writes a 20ms Opus payload with proper RTP headers
func (c *LiveClient) WriteOpus(opusData []byte) error {
	if c.audioTrack == nil {
		return fmt.Errorf("audio track not initialized")
	}

	c.rtpMu.Lock()
	seqNum := c.rtpSeqNum
	timestamp := c.rtpTimestamp
	c.rtpSeqNum++
	c.rtpTimestamp += 960 // 20ms at 48kHz
	c.rtpMu.Unlock()

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111, // Opus
			SequenceNumber: seqNum,
			Timestamp:      timestamp,
			SSRC:           0x12345678, // Will be overwritten by pion
		},
		Payload: opusData,
	}

	return c.audioTrack.WriteRTP(packet)
}

// Disconnect leaves the session and closes the connection
func (c *LiveClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	close(c.done)
	c.sendMessage(SignalMessage{Type: "leave"})

	if c.peerConnection != nil {
		c.peerConnection.Close()
	}

	if c.conn != nil {
		c.conn.Close()
	}

	c.connected = false
	return nil
}

// SessionID returns the id assigned by the server once the offer arrives
func (c *LiveClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// IsConnected returns whether the client is connected
func (c *LiveClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LiveURL converts an http(s) base URL to the signaling endpoint.
func LiveURL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/live"
}
