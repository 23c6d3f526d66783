// Package trigger fires the camera shutter line in time with the
// illumination sequence. All delays block the control loop deliberately:
// trigger timing accuracy outranks responsiveness on this device, and the
// hardware model assumes no concurrent panel access while a capture runs.
package trigger

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// ErrorCode classifies the last trigger failure.
type ErrorCode int

const (
	ErrNone ErrorCode = iota
	ErrTimeout
	ErrTriggerFailure
)

func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "none"
	case ErrTimeout:
		return "timeout"
	case ErrTriggerFailure:
		return "trigger_failure"
	}
	return "unknown"
}

// Setting bounds. Values outside these ranges are ignored by the setters,
// keeping the prior value.
const (
	MinPulseWidthMs = 1
	MaxPulseWidthMs = 1000
	MaxPreDelayMs   = 5000
	MaxPostDelayMs  = 10000
)

// readyPollInterval is the cadence of the ready-line busy wait.
const readyPollInterval = 10 * time.Millisecond

// Config holds the trigger timing settings.
type Config struct {
	Enabled      bool
	PreDelayMs   int
	PulseWidthMs int
	PostDelayMs  int
}

// Controller owns the shutter trigger line and, optionally, a camera ready
// input. It is not safe for concurrent use; the control loop is its only
// caller.
type Controller struct {
	pin          gpio.PinOut
	ready        gpio.PinIn // nil when the camera has no ready line
	readyTimeout time.Duration

	cfg Config

	lastTrigger time.Time
	count       int
	active      bool
	errCode     ErrorCode

	// Injectable for tests; default to the real clock.
	now   func() time.Time
	sleep func(time.Duration)
}

// New returns a controller driving pin. ready may be nil; readyTimeout
// bounds the post-pulse ready wait.
func New(pin gpio.PinOut, ready gpio.PinIn, cfg Config, readyTimeout time.Duration) *Controller {
	return &Controller{
		pin:          pin,
		ready:        ready,
		readyTimeout: readyTimeout,
		cfg:          cfg,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// Trigger fires the shutter: optional pre-delay, pulse, optional bounded
// wait for the ready line to deassert, optional post-delay. Returns true
// immediately with no side effect when disabled. On ready timeout the pulse
// has already been sent and is not retried; the error code is set and false
// returned.
func (c *Controller) Trigger(waitForReady bool) bool {
	c.errCode = ErrNone
	if !c.cfg.Enabled {
		return true
	}
	c.active = true
	defer func() { c.active = false }()

	if c.cfg.PreDelayMs > 0 {
		c.sleep(time.Duration(c.cfg.PreDelayMs) * time.Millisecond)
	}

	if !c.pulse(c.cfg.PulseWidthMs) {
		c.errCode = ErrTriggerFailure
		return false
	}

	if waitForReady && c.ready != nil {
		start := c.now()
		for c.ready.Read() == gpio.High {
			c.sleep(readyPollInterval)
			if c.now().Sub(start) > c.readyTimeout {
				c.errCode = ErrTimeout
				return false
			}
		}
	}

	if c.cfg.PostDelayMs > 0 {
		c.sleep(time.Duration(c.cfg.PostDelayMs) * time.Millisecond)
	}
	return true
}

// TestTrigger emits a bare calibration pulse: no delays, no ready wait, and
// the stored error code is left alone. customPulseMs <= 0 uses the
// configured width.
func (c *Controller) TestTrigger(customPulseMs int) bool {
	if !c.cfg.Enabled {
		return true
	}
	width := c.cfg.PulseWidthMs
	if customPulseMs > 0 {
		width = customPulseMs
	}
	c.active = true
	ok := c.pulse(width)
	c.active = false
	return ok
}

// pulse drives the trigger line high for width milliseconds and records the
// attempt.
func (c *Controller) pulse(widthMs int) bool {
	if err := c.pin.Out(gpio.High); err != nil {
		return false
	}
	c.sleep(time.Duration(widthMs) * time.Millisecond)
	if err := c.pin.Out(gpio.Low); err != nil {
		return false
	}
	c.lastTrigger = c.now()
	c.count++
	return true
}

// SetEnabled turns triggering on or off.
func (c *Controller) SetEnabled(enabled bool) { c.cfg.Enabled = enabled }

// SetPulseWidth updates the pulse width; out-of-range values are ignored.
func (c *Controller) SetPulseWidth(ms int) {
	if ms >= MinPulseWidthMs && ms <= MaxPulseWidthMs {
		c.cfg.PulseWidthMs = ms
	}
}

// SetPreDelay updates the pre-trigger delay; out-of-range values are ignored.
func (c *Controller) SetPreDelay(ms int) {
	if ms >= 0 && ms <= MaxPreDelayMs {
		c.cfg.PreDelayMs = ms
	}
}

// SetPostDelay updates the post-trigger delay; out-of-range values are
// ignored.
func (c *Controller) SetPostDelay(ms int) {
	if ms >= 0 && ms <= MaxPostDelayMs {
		c.cfg.PostDelayMs = ms
	}
}

// Enabled reports whether triggering is on.
func (c *Controller) Enabled() bool { return c.cfg.Enabled }

// Config returns the current settings.
func (c *Controller) Config() Config { return c.cfg }

// Active reports whether a trigger is in progress.
func (c *Controller) Active() bool { return c.active }

// ErrCode returns the error from the last Trigger call.
func (c *Controller) ErrCode() ErrorCode { return c.errCode }

// ClearErrCode resets the stored error.
func (c *Controller) ClearErrCode() { c.errCode = ErrNone }

// Count returns the number of pulses sent since startup.
func (c *Controller) Count() int { return c.count }

// LastTrigger returns the time of the most recent pulse.
func (c *Controller) LastTrigger() time.Time { return c.lastTrigger }
