package main

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// createPeerConnection creates a new WebRTC peer connection with Opus audio support
func createPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{}
	if len(iceServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	// Opus only, the bridge carries voice and nothing else
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: opusCapability,
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(config)
}

var opusCapability = webrtc.RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48000,
	Channels:    2,
	SDPFmtpLine: "minptime=10;useinbandfec=1",
}

// triggerNegotiation creates and sends an offer to the browser
func triggerNegotiation(s *LiveSession) {
	offer, err := s.PeerConnection.CreateOffer(nil)
	if err != nil {
		s.logger.Error("Failed to create offer", slog.String("error", err.Error()))
		return
	}

	if err := s.PeerConnection.SetLocalDescription(offer); err != nil {
		s.logger.Error("Failed to set local description", slog.String("error", err.Error()))
		return
	}

	s.SendMessage(SignalMessage{
		Type:      msgOffer,
		SessionID: s.ID,
		SDP:       offer.SDP,
	})
}
