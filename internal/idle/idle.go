// Package idle supervises activity on the controller and parks the panel
// when the host goes quiet. While idle, a brief center-cell heartbeat shows
// the device is alive.
package idle

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openptycho/matrixctl/internal/matrix"
)

// Panel is the subset of the matrix driver the idle manager touches.
type Panel interface {
	SetPixel(x, y, color int) bool
	Clear()
	SetDirty(dirty bool)
}

// Config holds the idle timing knobs.
type Config struct {
	Timeout       time.Duration // inactivity before auto-idle
	BlinkInterval time.Duration // time between heartbeats while idle
	BlinkDuration time.Duration // how long the heartbeat cell stays lit
}

// Manager tracks Active/Idle state. Protocol commands can force either state
// regardless of the timers.
type Manager struct {
	panel Panel
	cfg   Config

	idle         bool
	lastActivity time.Time
	lastBlink    time.Time

	// Heartbeat blink blocks the control loop for its duration, matching
	// the single-context execution model.
	sleep func(time.Duration)
}

// New returns an active manager with both timers anchored at now.
func New(panel Panel, cfg Config, now time.Time) *Manager {
	return &Manager{
		panel:        panel,
		cfg:          cfg,
		lastActivity: now,
		lastBlink:    now,
		sleep:        time.Sleep,
	}
}

// EnterIdle moves Active -> Idle, clears the panel and rearms the blink
// timer. No-op when already idle.
func (m *Manager) EnterIdle(now time.Time) {
	if m.idle {
		return
	}
	log.Info().Msg("entering idle mode")
	m.idle = true
	m.panel.Clear()
	m.lastBlink = now
}

// ExitIdle moves Idle -> Active, marks the panel dirty so the next frame is
// redrawn, and rearms the activity timer. No-op when already active.
func (m *Manager) ExitIdle(now time.Time) {
	if !m.idle {
		return
	}
	log.Info().Msg("exiting idle mode")
	m.idle = false
	m.lastActivity = now
	m.panel.SetDirty(true)
}

// Touch refreshes the inactivity clock without changing state. Called for
// any host command that is not an idle toggle.
func (m *Manager) Touch(now time.Time) {
	m.lastActivity = now
}

// Update runs the timer-driven transitions: heartbeat while idle, auto-idle
// after the inactivity timeout while active.
func (m *Manager) Update(now time.Time) {
	if m.idle {
		if now.Sub(m.lastBlink) >= m.cfg.BlinkInterval {
			m.blinkHeartbeat()
			m.lastBlink = now
		}
		return
	}
	if now.Sub(m.lastActivity) >= m.cfg.Timeout {
		m.EnterIdle(now)
	}
}

// IsIdle reports whether the manager is in idle mode.
func (m *Manager) IsIdle() bool { return m.idle }

// IdleFor returns the time since the last recorded activity.
func (m *Manager) IdleFor(now time.Time) time.Duration {
	return now.Sub(m.lastActivity)
}

// blinkHeartbeat lights the center cell for the blink duration, then clears.
func (m *Manager) blinkHeartbeat() {
	m.panel.SetPixel(matrix.Width/2, matrix.Height/2, matrix.ColorGreen)
	m.sleep(m.cfg.BlinkDuration)
	m.panel.Clear()
}
