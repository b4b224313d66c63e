package audio

import (
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// otoBufferBytes is the speaker ring buffer: 4800 bytes = 100ms at 24 kHz
// mono s16le. Smaller means lower latency but more glitch risk.
const otoBufferBytes = 4800

// Speaker plays 24 kHz mono s16le PCM through the default output device.
// It implements the playback scheduler's Sink.
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	buf     []byte
	cond    *sync.Cond
	playing bool
	closed  bool

	// gen counts player generations. A reader blocked in Read on behalf of
	// a player that Flush has since closed sees a newer gen and retires
	// instead of draining audio meant for the replacement player.
	gen int
}

// NewSpeaker initializes the output device and blocks until it is ready.
func NewSpeaker() (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   PlaybackSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   otoBufferBytes,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	s := &Speaker{
		otoCtx: otoCtx,
		buf:    make([]byte, 0, PlaybackSampleRate*4),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Write buffers PCM for playback, starting the player on first write.
func (s *Speaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read implements io.Reader for the oto player, pulling buffered PCM.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.gen
	for len(s.buf) == 0 && !s.closed && gen == s.gen {
		s.cond.Wait()
	}
	if gen != s.gen {
		return 0, io.EOF
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains gracefully.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards all pending audio and stops the current player so nothing
// already buffered can audibly start. Used on barge-in.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.gen++
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.playing = false
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		player.Close()
	}
}

// Close releases the output device. Idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
	return nil
}
