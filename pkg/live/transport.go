// Package live implements the real-time voice core: the websocket session
// transport, the gapless playback scheduler, and the manager state machine
// that wires microphone capture to both.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hikmah-ai/hikmah/pkg/core"
	"github.com/hikmah-ai/hikmah/pkg/live/protocol"
)

// defaultConnectTimeout bounds a connect attempt that would otherwise hang
// in "connecting" forever.
const defaultConnectTimeout = 15 * time.Second

// Event is an inbound event from the live transport.
type Event interface {
	liveEventType() string
}

// AudioChunkEvent carries one decoded 24 kHz PCM playback chunk.
type AudioChunkEvent struct {
	Data []byte
}

func (AudioChunkEvent) liveEventType() string { return "audio_chunk" }

// InterruptedEvent signals a server-side barge-in: playback must stop now.
type InterruptedEvent struct{}

func (InterruptedEvent) liveEventType() string { return "interrupted" }

// TurnCompleteEvent marks the end of one assistant utterance.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) liveEventType() string { return "turn_complete" }

// ClosedEvent is the terminal event of every session. Err is nil for a
// normal close.
type ClosedEvent struct {
	Err error
}

func (ClosedEvent) liveEventType() string { return "closed" }

// DialConfig configures one live connection attempt.
type DialConfig struct {
	APIKey            string
	Model             string
	VoiceName         string
	SystemInstruction string

	// Host overrides the service host; used by tests.
	Host string
}

// Session is one live bidirectional connection. Obtain it with Dial; it is
// invalid once Close returns or a ClosedEvent has been observed.
type Session struct {
	conn *websocket.Conn

	events chan Event
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens a live session: connect, send the setup frame, and wait for
// the server's setupComplete acknowledgment. Any rejection surfaces here,
// before the caller ever observes a connected session.
func Dial(ctx context.Context, cfg DialConfig) (*Session, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, core.NewConnectError("missing API key", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, core.NewConnectError("missing live model", nil)
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	wsURL := protocol.Endpoint(cfg.Host, cfg.APIKey)
	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, core.NewConnectError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewConnectError("websocket dial failed", err)
	}

	setup := protocol.SetupFrame{
		Setup: protocol.Setup{
			Model: "models/" + strings.TrimPrefix(cfg.Model, "models/"),
			GenerationConfig: protocol.GenerationConfig{
				ResponseModalities: []string{protocol.ModalityAudio},
				SpeechConfig: &protocol.SpeechConfig{
					VoiceConfig: protocol.VoiceConfig{
						PrebuiltVoiceConfig: protocol.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
					},
				},
			},
		},
	}
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		setup.Setup.SystemInstruction = &protocol.Content{
			Parts: []protocol.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectError("send setup", err)
	}

	// The first server frame decides the attempt: setupComplete or bust.
	_ = conn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewConnectError("remote rejected live setup", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var first protocol.ServerFrame
	if err := json.Unmarshal(payload, &first); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectError("malformed setup response", err)
	}
	if first.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewConnectError("live setup was not acknowledged", nil)
	}

	s := &Session{
		conn:   conn,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events yields inbound events. The channel is closed after a ClosedEvent.
func (s *Session) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.events
}

// SendAudio transmits one capture frame. Fire-and-forget: sending on a
// closed or closing session is a silent no-op, because outbound frames
// racing a concurrent teardown are expected.
func (s *Session) SendAudio(pcm []byte) error {
	if s == nil || len(pcm) == 0 {
		return nil
	}
	if s.closed.Load() {
		return nil
	}
	frame := protocol.AudioFrame(pcm)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed.Load() {
		return nil
	}
	if err := s.conn.WriteJSON(frame); err != nil {
		// The read loop reports the session failure; a send racing the
		// close is not an error.
		return nil
	}
	return nil
}

// Close tears the session down. Idempotent; closing a session that already
// ended never fails.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error, if any, once the session ended.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(ClosedEvent{})
				return
			}
			closeErr := core.NewTransportClosedError(err)
			s.setErr(closeErr)
			s.emit(ClosedEvent{Err: closeErr})
			return
		}

		var frame protocol.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// One malformed frame does not end the session.
			continue
		}

		switch {
		case frame.ServerContent != nil:
			sc := frame.ServerContent
			if sc.Interrupted {
				s.emit(InterruptedEvent{})
				continue
			}
			if pcm, err := sc.InlineAudio(); err == nil && len(pcm) > 0 {
				s.emit(AudioChunkEvent{Data: pcm})
			}
			if sc.TurnComplete {
				s.emit(TurnCompleteEvent{})
			}
		case frame.GoAway != nil:
			// The server will close shortly; the read error path reports it.
		}
	}
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		// Avoid deadlocking the read loop if the consumer stops draining.
	}
}
