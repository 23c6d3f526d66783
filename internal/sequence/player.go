package sequence

import "time"

// State enumerates player states.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// Illuminator is the panel surface the player drives. Dirty reports that a
// collaborator invalidated the displayed state and a redraw is owed.
type Illuminator interface {
	SetPixel(x, y, color int) bool
	Clear()
	Dirty() bool
}

// Shutter fires the camera for the lit cell. Implementations block for the
// full trigger duration; the player calls it synchronously by design.
type Shutter interface {
	Trigger(waitForReady bool) bool
}

// Telemetry receives LED state changes for host visualization. Calls must
// never block.
type Telemetry interface {
	SendLEDState(x, y, color int)
}

// Player advances through a Sequence, lighting one cell per step. Traversal
// follows generation order and wraps past the final index forever; only
// Stop ends playback.
type Player struct {
	seq      *Sequence
	panel    Illuminator
	shutter  Shutter
	tel      Telemetry
	interval time.Duration
	color    int

	state    State
	cursor   int
	lastStep time.Time

	// Last cell actually scanned, for dirty-panel redraws.
	litCell Cell
	lit     bool
}

// NewPlayer builds a player over seq. shutter and tel may be nil.
func NewPlayer(seq *Sequence, panel Illuminator, shutter Shutter, tel Telemetry, interval time.Duration, color int) *Player {
	return &Player{
		seq:      seq,
		panel:    panel,
		shutter:  shutter,
		tel:      tel,
		interval: interval,
		color:    color,
	}
}

// Start begins or resumes playback. Starting from Stopped rewinds the
// cursor; resuming from Paused keeps it.
func (p *Player) Start() {
	if p.state == Stopped {
		p.cursor = 0
		p.lastStep = time.Time{}
		p.lit = false
	}
	p.state = Running
}

// Pause suspends a running playback in place. No-op in any other state.
func (p *Player) Pause() {
	if p.state == Running {
		p.state = Paused
	}
}

// Stop halts playback from any state, rewinds the cursor and clears the
// panel.
func (p *Player) Stop() {
	p.state = Stopped
	p.cursor = 0
	p.lit = false
	p.panel.Clear()
}

// Step advances playback if running and the update interval has elapsed:
// light the cursor cell, fire the shutter, push telemetry, advance with
// wrap-around. A panel marked dirty (idle exit invalidated the display) is
// re-scanned right away without disturbing the capture cadence.
func (p *Player) Step(now time.Time) {
	if p.state != Running || p.seq.Len() == 0 {
		return
	}

	if p.lit && p.panel.Dirty() {
		p.panel.SetPixel(p.litCell.X, p.litCell.Y, p.color)
		if p.tel != nil {
			p.tel.SendLEDState(p.litCell.X, p.litCell.Y, p.color)
		}
	}

	if !p.lastStep.IsZero() && now.Sub(p.lastStep) < p.interval {
		return
	}
	p.lastStep = now

	// The sequence may have been regenerated shorter since the last step.
	if p.cursor >= p.seq.Len() {
		p.cursor = 0
	}
	cell := p.seq.At(p.cursor)
	p.panel.SetPixel(cell.X, cell.Y, p.color)
	p.litCell = cell
	p.lit = true
	if p.shutter != nil {
		p.shutter.Trigger(true)
	}
	if p.tel != nil {
		p.tel.SendLEDState(cell.X, cell.Y, p.color)
	}

	p.cursor++
	if p.cursor >= p.seq.Len() {
		p.cursor = 0
	}
}

// State returns the current playback state.
func (p *Player) State() State { return p.state }

// Cursor returns the index of the next cell to light.
func (p *Player) Cursor() int { return p.cursor }

// Progress returns playback position as a 0-100 percentage.
func (p *Player) Progress() int {
	if p.seq.Len() == 0 {
		return 0
	}
	return p.cursor * 100 / p.seq.Len()
}

// SetInterval changes the step cadence.
func (p *Player) SetInterval(d time.Duration) { p.interval = d }
