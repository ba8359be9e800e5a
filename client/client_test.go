package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"example.com/detective_engine/pkg/config"
	"example.com/detective_engine/pkg/gemini"
	"example.com/detective_engine/pkg/live"
)

func TestAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/analyze", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "The mayor resigned.", req["text"])

		w.Write([]byte(`{"summary":"ok","verdict":"AUTHENTIC","score":12,"lensA_Source":{"status":"PASS"},"lensB_Fact":{"status":"PASS"},"lensC_Logic":{"status":"PASS"}}`))
	}))
	defer srv.Close()

	report, err := NewClient(srv.URL+"/", time.Second).Analyze(context.Background(), "The mayor resigned.")
	require.NoError(t, err)
	require.Equal(t, 12, report.Score)
	require.EqualValues(t, "AUTHENTIC", report.Verdict)
}

func TestAnalyzeErrorCarriesInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"model output is not a report","kind":"format","input":"draft text"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), "draft text")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Equal(t, "format", apiErr.Kind)
	require.Equal(t, "draft text", apiErr.Input)
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Health(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "upstream down", apiErr.Message)
}

func TestInterrogate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SuspectID string           `json:"suspect_id"`
			History   []gemini.Message `json:"history"`
			Message   string           `json:"message"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "widow", req.SuspectID)
		require.Len(t, req.History, 1)
		require.Equal(t, "And the letter?", req.Message)

		w.Write([]byte(`{"suspect_id":"widow","reply":"I burned it."}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, time.Second).Interrogate(context.Background(), "widow",
		[]gemini.Message{{Role: gemini.RoleUser, Text: "Did you see him?"}}, "And the letter?")
	require.NoError(t, err)
	require.Equal(t, "I burned it.", reply)
}

func TestSuspectsAndHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/suspects":
			w.Write([]byte(`[{"id":"butler","name":"Hobbs","role":"Butler","description":"Loyal"}]`))
		case "/health":
			w.Write([]byte(`{"status":"ok","live_sessions":2}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	suspects, err := c.Suspects(context.Background())
	require.NoError(t, err)
	want := []config.Suspect{{ID: "butler", Name: "Hobbs", Role: "Butler", Description: "Loyal"}}
	if diff := cmp.Diff(want, suspects); diff != "" {
		t.Errorf("suspects mismatch (-want +got):\n%s", diff)
	}

	n, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestLiveURL(t *testing.T) {
	require.Equal(t, "ws://localhost:8080/api/live", LiveURL("http://localhost:8080/"))
	require.Equal(t, "wss://detective.example/api/live", LiveURL("https://detective.example"))
}

func TestLiveClientDispatchesSignals(t *testing.T) {
	upgrader := websocket.Upgrader{}
	joined := make(chan SignalMessage, 1)
	left := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join SignalMessage
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		joined <- join

		conn.WriteJSON(SignalMessage{Type: "state", State: "connecting"})
		conn.WriteJSON(SignalMessage{Type: "transcript", Transcript: []live.TranscriptLine{
			{Speaker: live.SpeakerLocal, Text: "Is this claim true?"},
		}})
		conn.WriteJSON(SignalMessage{Type: "error", Kind: "transport", Error: "API error 503"})

		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "leave" {
				close(left)
				return
			}
		}
	}))
	defer srv.Close()

	c := NewLiveClient(LiveURL(srv.URL), nil)

	var (
		mu     sync.Mutex
		states []string
		lines  []live.TranscriptLine
		kinds  []string
	)
	c.OnState(func(s string) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})
	c.OnTranscript(func(l []live.TranscriptLine) {
		mu.Lock()
		defer mu.Unlock()
		lines = l
	})
	c.OnError(func(kind, _ string) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, kind)
	})

	require.NoError(t, c.Connect(context.Background(), "case-9"))
	require.True(t, c.IsConnected())
	require.Error(t, c.Connect(context.Background(), "case-9"))

	join := <-joined
	require.Equal(t, "join", join.Type)
	require.Equal(t, "case-9", join.SessionID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"connecting"}, states)
	require.Len(t, lines, 1)
	require.Equal(t, "Is this claim true?", lines[0].Text)
	require.Equal(t, []string{"transport"}, kinds)
	mu.Unlock()

	require.NoError(t, c.WriteOpus([]byte{0xfc, 0xff, 0xfe}))
	require.NoError(t, c.Disconnect())
	require.False(t, c.IsConnected())

	select {
	case <-left:
	case <-time.After(time.Second):
		t.Fatal("server never saw leave")
	}
}

func TestWriteOpusBeforeConnect(t *testing.T) {
	c := NewLiveClient("ws://unused", nil)
	err := c.WriteOpus([]byte{1})
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "not initialized"))
}
