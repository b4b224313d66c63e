package live

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hikmah-ai/hikmah/pkg/audio"
)

// Clock is the playback output clock. It only ever moves forward.
type Clock interface {
	Now() time.Duration
}

type wallClock struct {
	start time.Time
}

// NewWallClock returns a Clock anchored at the moment of creation.
func NewWallClock() Clock {
	return wallClock{start: time.Now()}
}

func (c wallClock) Now() time.Duration {
	return time.Since(c.start)
}

// Sink consumes scheduled PCM. Write appends audio for playback, Flush
// discards everything buffered and stops output immediately, Close releases
// the device.
type Sink interface {
	Write(pcm []byte) error
	Flush()
	Close() error
}

type scheduledEntry struct {
	start time.Duration
	end   time.Duration
	stop  func() bool
}

// Scheduler renders inbound playback chunks strictly sequentially and
// gaplessly: each chunk starts at max(nextStart, now) and advances the
// cursor by its duration, regardless of network arrival jitter.
// Interrupt stops every tracked chunk at once and resets the cursor so the
// next chunk starts immediately.
type Scheduler struct {
	// OnLevel, when set, receives a per-chunk output level in [0, 1].
	// Heuristic visualization data, not sample-accurate.
	OnLevel func(float64)

	sink       Sink
	clock      Clock
	sampleRate int
	logger     *slog.Logger

	mu        sync.Mutex
	nextStart time.Duration
	entries   map[int64]*scheduledEntry
	nextID    int64
	closed    bool

	// after schedules completion callbacks; replaced in tests.
	after func(d time.Duration, fn func()) func() bool
}

// NewScheduler creates a scheduler rendering to sink against clock.
func NewScheduler(sink Sink, clock Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = NewWallClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sink:       sink,
		clock:      clock,
		sampleRate: audio.PlaybackSampleRate,
		logger:     logger,
		entries:    make(map[int64]*scheduledEntry),
		after: func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		},
	}
}

// Enqueue decodes one inbound chunk and schedules it after everything
// already queued. A malformed chunk is skipped without disturbing the rest
// of the queue.
func (s *Scheduler) Enqueue(pcm []byte) {
	if len(pcm) == 0 || len(pcm)%2 != 0 {
		s.logger.Warn("skipping malformed playback chunk", "bytes", len(pcm))
		return
	}
	dur := audio.Duration(pcm, s.sampleRate)
	level := audio.RMS16(pcm)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	start := s.nextStart
	if now > start {
		start = now
	}
	end := start + dur
	s.nextStart = end

	id := s.nextID
	s.nextID++
	entry := &scheduledEntry{start: start, end: end}
	s.entries[id] = entry
	entry.stop = s.after(end-now, func() { s.complete(id) })
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		if err := sink.Write(pcm); err != nil {
			s.logger.Warn("playback write failed", "err", err)
		}
	}
	if s.OnLevel != nil {
		s.OnLevel(level)
	}
}

// Interrupt stops every scheduled chunk immediately, clears the queue, and
// resets the cursor to zero so the next chunk starts right away instead of
// at a stale future offset. This is the response to a server barge-in.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[int64]*scheduledEntry)
	s.nextStart = 0
	sink := s.sink
	closed := s.closed
	s.mu.Unlock()

	for _, e := range entries {
		if e.stop != nil {
			e.stop()
		}
	}
	if sink != nil && !closed {
		sink.Flush()
	}
	if s.OnLevel != nil {
		s.OnLevel(0)
	}
}

// Close interrupts playback and releases the sink. Idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	entries := s.entries
	s.entries = make(map[int64]*scheduledEntry)
	s.nextStart = 0
	sink := s.sink
	s.mu.Unlock()

	for _, e := range entries {
		if e.stop != nil {
			e.stop()
		}
	}
	if sink != nil {
		sink.Flush()
		_ = sink.Close()
	}
}

// NextStart reports the cursor: the earliest time a newly enqueued chunk
// may begin. Never behind the output clock at scheduling time.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Pending reports how many scheduled chunks have not finished yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Scheduler) complete(id int64) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}
