package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

// inputMeterInterval is the cadence of input volume callbacks.
const inputMeterInterval = 50 * time.Millisecond

// CapturePipeline abstracts the microphone pipeline the manager owns while
// connected. Implemented by audio.Capture.
type CapturePipeline interface {
	Start(ctx context.Context) error
	Frames() <-chan []byte
	Level() float64
	Stop()
}

// transportSession is the subset of Session the manager drives. Narrowed to
// an interface so the state machine is testable without a network.
type transportSession interface {
	SendAudio(pcm []byte) error
	Events() <-chan Event
	Close() error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	APIKey string
	Model  string
	Host   string

	// Instruction assembles the system instruction for a connection
	// attempt. Nil means no system instruction.
	Instruction func(core.LiveConfig) string
}

// Manager owns the live voice state machine. It constructs a fresh capture
// pipeline, transport session, and playback scheduler on every connect, and
// guarantees that at most one such triple exists at any time.
//
// A monotonic generation counter guards every asynchronous completion:
// anything finishing under a superseded generation is discarded, so a stale
// connect can never poison a newer session.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *Metrics

	// Observation callbacks. Set before the first Toggle; invoked from the
	// manager's own goroutines.
	OnState        func(core.ConnectionState)
	OnInputVolume  func(float64)
	OnOutputVolume func(float64)
	OnDisconnect   func()
	OnError        func(message string)

	// Factories, replaced in tests.
	newCapture func() CapturePipeline
	newSink    func() (Sink, error)
	newClock   func() Clock
	dial       func(ctx context.Context, cfg DialConfig) (transportSession, error)

	mu      sync.Mutex
	state   core.ConnectionState
	gen     uint64
	pending CapturePipeline
	active  *activeSession
}

type activeSession struct {
	gen     uint64
	capture CapturePipeline
	session transportSession
	sched   *Scheduler
	cancel  context.CancelFunc

	notifyOnce sync.Once
}

// NewManager creates an idle manager. capture and sink are the production
// factories; pass nil for the defaults used by tests to be injected later.
func NewManager(cfg ManagerConfig, newCapture func() CapturePipeline, newSink func() (Sink, error), metrics *Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		newCapture: newCapture,
		newSink:    newSink,
		newClock:   NewWallClock,
	}
	m.dial = func(ctx context.Context, dc DialConfig) (transportSession, error) {
		return Dial(ctx, dc)
	}
	return m
}

// State returns the current connection state.
func (m *Manager) State() core.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Toggle connects when idle and disconnects otherwise. The returned error
// is the connect failure, already surfaced through OnError as well.
func (m *Manager) Toggle(ctx context.Context, cfg core.LiveConfig) error {
	m.mu.Lock()
	if m.state != core.StateIdle {
		m.mu.Unlock()
		m.Disconnect()
		return nil
	}
	m.gen++
	myGen := m.gen
	m.setStateLocked(core.StateConnecting)
	m.mu.Unlock()

	return m.connect(ctx, cfg, myGen)
}

// Disconnect tears the current session down and converges to Idle. Safe to
// call at any time, repeatedly, and before any connect: it never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	// Invalidate any in-flight connect attempt.
	m.gen++
	pending := m.pending
	active := m.active
	m.pending = nil
	m.active = nil
	m.setStateLocked(core.StateIdle)
	m.mu.Unlock()

	if pending != nil {
		pending.Stop()
	}
	if active != nil {
		m.teardown(active, "user")
	}
}

func (m *Manager) connect(ctx context.Context, cfg core.LiveConfig, myGen uint64) error {
	capture := m.newCapture()

	m.mu.Lock()
	if m.gen != myGen {
		m.mu.Unlock()
		return nil
	}
	m.pending = capture
	m.mu.Unlock()

	if err := capture.Start(ctx); err != nil {
		m.connectFailed(myGen, capture, err)
		return err
	}

	var instruction string
	if m.cfg.Instruction != nil {
		instruction = m.cfg.Instruction(cfg)
	}
	session, err := m.dial(ctx, DialConfig{
		APIKey:            m.cfg.APIKey,
		Model:             m.cfg.Model,
		Host:              m.cfg.Host,
		VoiceName:         cfg.VoiceName,
		SystemInstruction: instruction,
	})
	if err != nil {
		m.connectFailed(myGen, capture, err)
		return err
	}

	sink, err := m.newSink()
	if err != nil {
		_ = session.Close()
		m.connectFailed(myGen, capture, core.NewDeviceUnavailableError("audio output unavailable", err))
		return err
	}

	m.mu.Lock()
	if m.gen != myGen {
		// Superseded while dialing; the disconnect already stopped capture.
		m.mu.Unlock()
		_ = session.Close()
		_ = sink.Close()
		return nil
	}
	sched := NewScheduler(sink, m.newClock(), m.logger)
	sched.OnLevel = m.OnOutputVolume
	sessionCtx, cancel := context.WithCancel(context.Background())
	active := &activeSession{
		gen:     myGen,
		capture: capture,
		session: session,
		sched:   sched,
		cancel:  cancel,
	}
	m.pending = nil
	m.active = active
	m.setStateLocked(core.StateConnected)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SessionsActive.Inc()
		m.metrics.SessionsTotal.WithLabelValues("connected").Inc()
	}

	go m.pumpFrames(active)
	go m.dispatch(active)
	go m.meterLoop(sessionCtx, active)
	return nil
}

// connectFailed unwinds a partially constructed connection: release the
// microphone, report the failure, return to Idle.
func (m *Manager) connectFailed(myGen uint64, capture CapturePipeline, err error) {
	capture.Stop()

	m.mu.Lock()
	stale := m.gen != myGen
	if !stale {
		m.pending = nil
		m.setStateLocked(core.StateIdle)
	}
	m.mu.Unlock()
	if stale {
		return
	}

	if m.metrics != nil {
		m.metrics.SessionsTotal.WithLabelValues("connect_failed").Inc()
	}
	m.logger.Warn("live connect failed", "err", err)
	if m.OnError != nil {
		m.OnError(err.Error())
	}
}

// pumpFrames forwards captured frames to the transport in capture order.
// Sends racing a teardown are silent no-ops at the transport layer.
func (m *Manager) pumpFrames(a *activeSession) {
	for frame := range a.capture.Frames() {
		_ = a.session.SendAudio(frame)
		if m.metrics != nil {
			m.metrics.AudioBytesTotal.WithLabelValues("up").Add(float64(len(frame)))
		}
	}
}

// dispatch consumes transport events on a single loop, preserving arrival
// order for the playback cursor.
func (m *Manager) dispatch(a *activeSession) {
	for event := range a.session.Events() {
		switch e := event.(type) {
		case AudioChunkEvent:
			a.sched.Enqueue(e.Data)
			if m.metrics != nil {
				m.metrics.AudioBytesTotal.WithLabelValues("down").Add(float64(len(e.Data)))
			}
		case InterruptedEvent:
			a.sched.Interrupt()
			if m.metrics != nil {
				m.metrics.Interruptions.Inc()
			}
		case ClosedEvent:
			m.remoteClosed(a, e.Err)
			return
		}
	}
	// Event channel closed without a terminal event; treat as remote close.
	m.remoteClosed(a, nil)
}

func (m *Manager) meterLoop(ctx context.Context, a *activeSession) {
	ticker := time.NewTicker(inputMeterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if m.OnInputVolume != nil {
				m.OnInputVolume(0)
			}
			return
		case <-ticker.C:
			if m.OnInputVolume != nil {
				m.OnInputVolume(a.capture.Level())
			}
		}
	}
}

// remoteClosed handles a transport-initiated close or error. It converges
// to Idle exactly like a user-initiated teardown.
func (m *Manager) remoteClosed(a *activeSession, err error) {
	m.mu.Lock()
	if m.active == nil || m.active.gen != a.gen {
		// Already torn down by Disconnect.
		m.mu.Unlock()
		return
	}
	m.gen++
	m.active = nil
	m.setStateLocked(core.StateIdle)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("live session closed unexpectedly", "err", err)
	}
	status := "remote_closed"
	if err != nil {
		status = "transport_error"
	}
	m.teardown(a, status)
}

// teardown releases a session's resources in a fixed order: capture first
// (frees the microphone), then playback, then the transport handle. The
// disconnect notification fires exactly once per session.
func (m *Manager) teardown(a *activeSession, status string) {
	a.cancel()
	a.capture.Stop()
	a.sched.Interrupt()
	a.sched.Close()
	_ = a.session.Close()

	if m.metrics != nil {
		m.metrics.SessionsActive.Dec()
		if status != "user" {
			m.metrics.SessionsTotal.WithLabelValues(status).Inc()
		}
	}
	a.notifyOnce.Do(func() {
		if m.OnDisconnect != nil {
			m.OnDisconnect()
		}
	})
}

// setStateLocked records the state and schedules the observer callback.
func (m *Manager) setStateLocked(s core.ConnectionState) {
	if m.state == s {
		return
	}
	m.state = s
	if m.OnState != nil {
		go m.OnState(s)
	}
}
