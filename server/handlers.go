package main

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLive runs the signaling socket for one browser overlay
func (srv *server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("WebSocket upgrade error", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	var session *LiveSession
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	for {
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			srv.logger.Debug("WebSocket read ended", slog.String("error", err.Error()))
			return
		}

		srv.logger.Debug("Received signaling message", slog.String("type", msg.Type))

		switch msg.Type {
		case msgJoin:
			if session != nil {
				continue
			}
			session = srv.handleJoin(conn, msg)
			if session == nil {
				return
			}

		case msgOffer:
			if session != nil {
				handleOffer(session, msg)
			}

		case msgAnswer:
			if session != nil {
				handleAnswer(session, msg)
			}

		case msgCandidate:
			if session != nil {
				handleCandidate(session, msg)
			}

		case msgLeave:
			return
		}
	}
}

// handleJoin creates a live session for the socket and sends the first offer
func (srv *server) handleJoin(conn *websocket.Conn, msg SignalMessage) *LiveSession {
	id := msg.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	if srv.sessions.Get(id) != nil {
		conn.WriteJSON(SignalMessage{Type: msgError, SessionID: id, Kind: "conflict", Error: "session already exists"})
		return nil
	}

	session, err := srv.newLiveSession(conn, id)
	if err != nil {
		srv.logger.Error("Failed to create live session", slog.String("error", err.Error()))
		conn.WriteJSON(SignalMessage{Type: msgError, SessionID: id, Kind: "internal", Error: err.Error()})
		return nil
	}

	if !srv.sessions.AddIfAbsent(session) {
		session.discard()
		conn.WriteJSON(SignalMessage{Type: msgError, SessionID: id, Kind: "conflict", Error: "session already exists"})
		return nil
	}
	srv.logger.Info("Live session joined", slog.String("session_id", id))

	triggerNegotiation(session)
	session.Start(srv.ctx)
	return session
}

// handleOffer handles an SDP offer from the browser
func handleOffer(s *LiveSession, msg SignalMessage) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  msg.SDP,
	}

	if err := s.PeerConnection.SetRemoteDescription(offer); err != nil {
		s.logger.Warn("Failed to set remote description", slog.String("error", err.Error()))
		return
	}

	answer, err := s.PeerConnection.CreateAnswer(nil)
	if err != nil {
		s.logger.Warn("Failed to create answer", slog.String("error", err.Error()))
		return
	}

	if err := s.PeerConnection.SetLocalDescription(answer); err != nil {
		s.logger.Warn("Failed to set local description", slog.String("error", err.Error()))
		return
	}

	s.SendMessage(SignalMessage{
		Type:      msgAnswer,
		SessionID: s.ID,
		SDP:       answer.SDP,
	})
}

// handleAnswer handles an SDP answer from the browser
func handleAnswer(s *LiveSession, msg SignalMessage) {
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  msg.SDP,
	}

	if err := s.PeerConnection.SetRemoteDescription(answer); err != nil {
		s.logger.Warn("Failed to set remote description", slog.String("error", err.Error()))
	}
}

// handleCandidate handles an ICE candidate from the browser
func handleCandidate(s *LiveSession, msg SignalMessage) {
	candidate := webrtc.ICECandidateInit{
		Candidate: msg.Candidate,
	}

	if err := s.PeerConnection.AddICECandidate(candidate); err != nil {
		s.logger.Warn("Failed to add ICE candidate", slog.String("error", err.Error()))
	}
}
