package audio

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/hikmah-ai/hikmah/pkg/core"
)

const (
	// capturePeriodMS sets the device callback cadence; every callback
	// becomes one outbound frame.
	capturePeriodMS = 20

	// meterSmoothing is the exponential smoothing factor applied to the
	// input level between device callbacks.
	meterSmoothing = 0.6
)

// Capture owns exactly one microphone device for the lifetime of a live
// session. It emits fixed-cadence 16 kHz mono s16le frames on Frames() and
// tracks a smoothed input level until Stop is called.
type Capture struct {
	logger *slog.Logger

	mu      sync.Mutex
	actx    *malgo.AllocatedContext
	device  *malgo.Device
	frames  chan []byte
	done    chan struct{}
	stopped bool

	levelMu sync.Mutex
	level   float64
}

// NewCapture creates an idle capture pipeline. The device is not touched
// until Start.
func NewCapture(logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		logger: logger,
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

// Start acquires the default microphone and begins streaming frames.
// Fails with a device_unavailable error if no device exists or access is
// denied.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return core.NewDeviceUnavailableError("capture pipeline already stopped", nil)
	}
	if c.device != nil {
		return core.NewInvalidRequestError("capture pipeline already started", nil)
	}

	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return core.NewDeviceUnavailableError("audio backend unavailable", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = CaptureSampleRate
	deviceConfig.PeriodSizeInMilliseconds = capturePeriodMS

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.onData(input)
		},
	}

	device, err := malgo.InitDevice(actx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = actx.Uninit()
		return core.NewDeviceUnavailableError("no microphone available", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = actx.Uninit()
		return core.NewDeviceUnavailableError("microphone could not be started", err)
	}

	c.actx = actx
	c.device = device
	c.logger.Debug("microphone capture started", "rate", CaptureSampleRate, "period_ms", capturePeriodMS)

	// Stop streaming if the caller's context ends first. The watcher
	// exits on Stop so a long-lived context does not pin it.
	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.done:
		}
	}()
	return nil
}

// Frames yields captured PCM frames. Closed by Stop.
func (c *Capture) Frames() <-chan []byte {
	return c.frames
}

// Level returns the most recent smoothed input level in [0, 1].
func (c *Capture) Level() float64 {
	c.levelMu.Lock()
	defer c.levelMu.Unlock()
	return c.level
}

// Stop releases the microphone synchronously. Safe to call repeatedly or
// before Start.
func (c *Capture) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	device := c.device
	actx := c.actx
	c.device = nil
	c.actx = nil
	close(c.frames)
	close(c.done)
	c.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if actx != nil {
		_ = actx.Uninit()
	}
}

func (c *Capture) onData(input []byte) {
	samples := DecodeFloat32LE(input)
	if len(samples) == 0 {
		return
	}
	frame := Float32ToInt16LE(samples)

	c.levelMu.Lock()
	c.level = meterSmoothing*c.level + (1-meterSmoothing)*RMS16(frame)
	c.levelMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	select {
	case c.frames <- frame:
	default:
		// Frames are transient; drop rather than stall the device callback.
	}
}
