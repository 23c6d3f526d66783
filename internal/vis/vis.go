// Package vis streams best-effort LED telemetry to the host over the
// command transport. Everything here is fire-and-forget: writes are
// throttled, never queued, and silently skipped when disabled.
package vis

import (
	"fmt"
	"io"
	"time"

	"github.com/openptycho/matrixctl/internal/pattern"
	"github.com/openptycho/matrixctl/internal/sequence"
)

// EventSink mirrors telemetry to a secondary consumer (the websocket
// monitor). Implementations must not block.
type EventSink interface {
	LEDEvent(x, y, color int)
	PatternDump(cells []sequence.Cell)
}

// Manager gates telemetry egress behind an enabled flag and a minimum
// update interval. Disabled by default.
type Manager struct {
	w        io.Writer
	interval time.Duration

	enabled  bool
	lastSend time.Time

	mirror EventSink // optional

	now func() time.Time
}

// New returns a disabled manager writing lines to w.
func New(w io.Writer, interval time.Duration) *Manager {
	return &Manager{w: w, interval: interval, now: time.Now}
}

// SetMirror attaches a secondary telemetry consumer.
func (m *Manager) SetMirror(sink EventSink) { m.mirror = sink }

// Enable turns telemetry on and rearms the throttle.
func (m *Manager) Enable() {
	m.enabled = true
	m.lastSend = time.Time{}
}

// Disable turns telemetry off.
func (m *Manager) Disable() { m.enabled = false }

// Enabled reports whether telemetry is on.
func (m *Manager) Enabled() bool { return m.enabled }

// SendLEDState emits "LED,x,y,color" for a state change. Skipped silently
// when disabled or inside the throttle window; the mirror sink sees every
// event regardless and applies its own gating.
func (m *Manager) SendLEDState(x, y, color int) {
	if m.mirror != nil {
		m.mirror.LEDEvent(x, y, color)
	}
	if !m.enabled {
		return
	}
	now := m.now()
	if !m.lastSend.IsZero() && now.Sub(m.lastSend) < m.interval {
		return
	}
	m.lastSend = now
	fmt.Fprintf(m.w, "LED,%d,%d,%d\n", x, y, color)
}

// ExportPattern dumps every active cell of the grid, framed by
// PATTERN_START/PATTERN_END. Sent on request, so it bypasses the throttle
// but still requires telemetry to be enabled.
func (m *Manager) ExportPattern(grid *pattern.Grid, cells []sequence.Cell) {
	if m.mirror != nil {
		m.mirror.PatternDump(cells)
	}
	if !m.enabled || grid == nil {
		return
	}
	fmt.Fprintln(m.w, "PATTERN_START")
	for y := 0; y < grid.H; y++ {
		for x := 0; x < grid.W; x++ {
			if grid.At(x, y) {
				fmt.Fprintf(m.w, "PATTERN,%d,%d\n", x, y)
			}
		}
	}
	fmt.Fprintln(m.w, "PATTERN_END")
}
