package live

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hikmah-ai/hikmah/pkg/core"
	"github.com/hikmah-ai/hikmah/pkg/live/protocol"
)

var testUpgrader = websocket.Upgrader{}

// liveServer runs a scripted fake of the live endpoint. The script receives
// the connection after a valid setup frame has been acknowledged.
func liveServer(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var setup protocol.SetupFrame
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		if setup.Setup.Model == "" {
			return
		}
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		if script != nil {
			script(conn)
		}
	}))
	t.Cleanup(srv.Close)
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func dialTest(t *testing.T, host string) *Session {
	t.Helper()
	s, err := Dial(t.Context(), DialConfig{
		APIKey:    "test-key",
		Model:     "test-model",
		VoiceName: "Zephyr",
		Host:      host,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDialValidatesConfig(t *testing.T) {
	if _, err := Dial(t.Context(), DialConfig{Model: "m"}); err == nil {
		t.Fatal("Dial accepted an empty API key")
	}
	if _, err := Dial(t.Context(), DialConfig{APIKey: "k"}); err == nil {
		t.Fatal("Dial accepted an empty model")
	}
}

func TestDialRejectedUpgradeSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := Dial(t.Context(), DialConfig{
		APIKey: "k", Model: "m",
		Host: "ws://" + strings.TrimPrefix(srv.URL, "http://"),
	})
	if err == nil {
		t.Fatal("Dial succeeded against a non-websocket endpoint")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrConnect {
		t.Fatalf("err = %v, want connect error", err)
	}
	if !strings.Contains(coreErr.Message, "403") {
		t.Fatalf("message = %q, want the rejected status", coreErr.Message)
	}
}

func TestDialRejectedSetupSurfacesConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Close without acknowledging setup.
		conn.Close()
	}))
	defer srv.Close()

	_, err := Dial(t.Context(), DialConfig{
		APIKey: "k", Model: "m",
		Host: "ws://" + strings.TrimPrefix(srv.URL, "http://"),
	})
	if err == nil {
		t.Fatal("Dial succeeded without setupComplete")
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrConnect {
		t.Fatalf("err = %v, want connect error", err)
	}
}

func TestSessionDecodesServerFrames(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0x02, 0x00}
	host := liveServer(t, func(conn *websocket.Conn) {
		frames := []map[string]any{
			{"serverContent": map[string]any{"modelTurn": map[string]any{
				"parts": []map[string]any{{"inlineData": map[string]any{
					"mimeType": "audio/pcm;rate=24000",
					"data":     base64.StdEncoding.EncodeToString(pcm),
				}}},
			}}},
			{"serverContent": map[string]any{"interrupted": true}},
			{"serverContent": map[string]any{"turnComplete": true}},
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		// Hold the connection open until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s := dialTest(t, host)

	var got []string
	timeout := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case event := <-s.Events():
			switch e := event.(type) {
			case AudioChunkEvent:
				if string(e.Data) != string(pcm) {
					t.Fatalf("audio = %v, want %v", e.Data, pcm)
				}
				got = append(got, "audio")
			case InterruptedEvent:
				got = append(got, "interrupted")
			case TurnCompleteEvent:
				got = append(got, "turn_complete")
			case ClosedEvent:
				t.Fatalf("session closed early: %v", e.Err)
			}
		case <-timeout:
			t.Fatalf("timed out, events so far: %v", got)
		}
	}

	want := []string{"audio", "interrupted", "turn_complete"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestSessionMalformedFrameIsSkipped(t *testing.T) {
	host := liveServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s := dialTest(t, host)

	select {
	case event := <-s.Events():
		if _, ok := event.(TurnCompleteEvent); !ok {
			t.Fatalf("event = %T, want TurnCompleteEvent", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after malformed frame")
	}
}

func TestSessionSendAudioFrameShape(t *testing.T) {
	received := make(chan protocol.RealtimeInputFrame, 1)
	host := liveServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame protocol.RealtimeInputFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return
		}
		received <- frame
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s := dialTest(t, host)
	pcm := []byte{0x10, 0x20, 0x30, 0x40}
	if err := s.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case frame := <-received:
		if len(frame.RealtimeInput.MediaChunks) != 1 {
			t.Fatalf("media chunks = %d, want 1", len(frame.RealtimeInput.MediaChunks))
		}
		chunk := frame.RealtimeInput.MediaChunks[0]
		if chunk.MIMEType != protocol.AudioInMIME {
			t.Fatalf("mime = %q, want %q", chunk.MIMEType, protocol.AudioInMIME)
		}
		if got, _ := base64.StdEncoding.DecodeString(chunk.Data); string(got) != string(pcm) {
			t.Fatalf("payload = %v, want %v", got, pcm)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the audio frame")
	}
}

func TestSessionSendAfterCloseIsSilent(t *testing.T) {
	host := liveServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s := dialTest(t, host)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SendAudio after close = %v, want nil", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSessionRemoteDropEmitsClosedWithError(t *testing.T) {
	host := liveServer(t, func(conn *websocket.Conn) {
		// Drop the TCP connection without a close handshake.
		_ = conn.NetConn().Close()
	})

	s := dialTest(t, host)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-s.Events():
			if !ok {
				t.Fatal("events channel closed without a ClosedEvent")
			}
			if closed, isClosed := event.(ClosedEvent); isClosed {
				if closed.Err == nil {
					t.Fatal("abnormal drop reported a clean close")
				}
				var coreErr *core.Error
				if !errors.As(closed.Err, &coreErr) || coreErr.Type != core.ErrTransportClosed {
					t.Fatalf("err = %v, want transport_closed", closed.Err)
				}
				return
			}
		case <-timeout:
			t.Fatal("no ClosedEvent after remote drop")
		}
	}
}
