package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"example.com/detective_engine/pkg/apperr"
	"example.com/detective_engine/pkg/live"
)

const liveEndpoint = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// LiveConfig holds realtime session settings
type LiveConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	Logger            *slog.Logger
}

// LiveDialer opens realtime audio sessions. It implements live.Dialer.
type LiveDialer struct {
	apiKey string
	wsURL  string
	config LiveConfig
	logger *slog.Logger
}

var _ live.Dialer = (*LiveDialer)(nil)

// LiveDialer returns a dialer sharing the client's credentials and endpoint.
func (c *Client) LiveDialer(config LiveConfig) *LiveDialer {
	if config.Model == "" {
		config.Model = "gemini-2.5-flash-native-audio-preview-09-2025"
	}
	if config.Voice == "" {
		config.Voice = "Charon"
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	wsURL := c.baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	return &LiveDialer{
		apiKey: c.apiKey,
		wsURL:  wsURL + liveEndpoint,
		config: config,
		logger: config.Logger.With(slog.String("component", "gemini-live")),
	}
}

// Dial connects and sends the setup message. The session is not usable for
// audio until the server acknowledges setup, which arrives through Recv.
func (d *LiveDialer) Dial(ctx context.Context) (live.Session, error) {
	endpoint := d.wsURL + "?key=" + url.QueryEscape(d.apiKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: d.config.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, http.Header{})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &apperr.TransportError{Op: "live connect", StatusCode: status, Err: err}
	}

	setup := liveSetupMessage{Setup: liveSetup{
		Model: "models/" + d.config.Model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: d.config.Voice}},
			},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}}
	if d.config.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &content{Parts: []part{{Text: d.config.SystemInstruction}}}
	}

	session := &LiveSession{
		conn:         conn,
		writeTimeout: d.config.WriteTimeout,
		logger:       d.logger,
	}
	if err := session.writeJSON(setup); err != nil {
		conn.Close()
		return nil, &apperr.TransportError{Op: "live setup", Err: err}
	}

	d.logger.Info("Connected to realtime service", slog.String("model", d.config.Model))
	return session, nil
}

// LiveSession is one realtime websocket connection. It implements live.Session.
type LiveSession struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ live.Session = (*LiveSession)(nil)

func (s *LiveSession) writeJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("not connected")
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

// SendAudio sends one realtime input chunk.
func (s *LiveSession) SendAudio(ctx context.Context, media live.Media) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeJSON(liveRealtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []blob{{MimeType: media.MIMEType, Data: media.Data}},
		},
	})
}

// Recv reads the next server message. Frames may arrive as text or binary.
// Malformed frames are logged and skipped.
func (s *LiveSession) Recv() (*live.ServerMessage, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}

		var msg liveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Skipping malformed server message",
				slog.String("error", err.Error()),
				slog.Int("bytes", len(data)),
			)
			continue
		}
		return msg.toServerMessage(), nil
	}
}

// Close closes the connection
func (s *LiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	deadline := time.Now().Add(s.writeTimeout)
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := s.conn.Close()

	s.logger.Info("Disconnected from realtime service")
	return err
}

func (m *liveServerMessage) toServerMessage() *live.ServerMessage {
	out := &live.ServerMessage{
		SetupComplete: m.SetupComplete != nil,
		GoAway:        m.GoAway != nil,
	}

	sc := m.ServerContent
	if sc == nil {
		return out
	}
	out.Interrupted = sc.Interrupted
	out.TurnComplete = sc.TurnComplete
	if sc.InputTranscription != nil {
		out.InputTranscript = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		out.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/") {
				out.Audio = append(out.Audio, p.InlineData.Data)
			}
		}
	}
	return out
}
