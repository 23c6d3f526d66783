// Package proto parses the host command stream and dispatches to every
// controller component. One framed parser covers the whole vocabulary: a
// command byte either stands alone or is followed by ASCII-decimal fields
// and a terminating newline.
//
// Parsing is deliberately permissive: malformed numeric fields read as 0,
// out-of-range setting values are ignored by the component they address,
// and an unrecognized command byte counts only as host activity.
package proto

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openptycho/matrixctl/internal/idle"
	"github.com/openptycho/matrixctl/internal/pattern"
	"github.com/openptycho/matrixctl/internal/sequence"
	"github.com/openptycho/matrixctl/internal/trigger"
	"github.com/openptycho/matrixctl/internal/vis"
)

// Command bytes (host -> device).
const (
	CmdPatternType   = 'P'
	CmdInner         = 'I'
	CmdMiddle        = 'M'
	CmdOuter         = 'O'
	CmdSpacing       = 'S'
	CmdStart         = 'R'
	CmdStop          = 'X'
	CmdIdleEnter     = 'i'
	CmdIdleExit      = 'a'
	CmdSetLED        = 'L'
	CmdCamera        = 'C'
	CmdVisStart      = 'v'
	CmdVisStop       = 'q'
	CmdPatternExport = 'p'
)

// maxFrame bounds argument accumulation for a single command frame.
const maxFrame = 128

// Panel is the slice of the matrix driver the protocol drives directly.
type Panel interface {
	SetPixel(x, y, color int) bool
}

// Deps wires the handler to the components it mutates. Trigger may be nil
// when no camera is attached.
type Deps struct {
	Panel   Panel
	Gen     *pattern.Generator
	Seq     *sequence.Sequence
	Player  *sequence.Player
	Trigger *trigger.Controller
	Idle    *idle.Manager
	Vis     *vis.Manager
	Out     io.Writer
}

// Handler owns the authoritative pattern state. Geometry commands regenerate
// grid and sequence atomically; a regeneration that would light no LEDs is
// rejected and the previous pattern stays authoritative.
type Handler struct {
	d Deps

	ptype  pattern.Type
	params pattern.Params
	grid   *pattern.Grid

	// frame accumulator
	cmd     byte
	args    []byte
	inFrame bool
	discard bool // swallowing the tail of an oversized frame
}

// New builds a handler and generates the initial pattern.
func New(d Deps, initialType pattern.Type, initial pattern.Params) (*Handler, error) {
	h := &Handler{d: d, ptype: initialType, params: initial}
	if !h.regenerate() {
		return nil, fmt.Errorf("proto: initial pattern %s is empty or invalid", initialType)
	}
	return h, nil
}

// Grid returns the authoritative pattern grid.
func (h *Handler) Grid() *pattern.Grid { return h.grid }

// PatternType returns the active pattern type.
func (h *Handler) PatternType() pattern.Type { return h.ptype }

// Feed consumes one transport byte. Complete frames execute immediately;
// commands are therefore fully applied before the caller resumes ticking.
func (h *Handler) Feed(b byte, now time.Time) {
	if h.discard {
		if b == '\n' || b == '\r' {
			h.discard = false
		}
		return
	}
	if !h.inFrame {
		switch b {
		case '\n', '\r', ' ':
			// inter-frame filler
			return
		}
		if takesArgs(b) {
			h.cmd = b
			h.args = h.args[:0]
			h.inFrame = true
			return
		}
		h.execute(b, "", now)
		return
	}

	if b == '\n' || b == '\r' {
		cmd, args := h.cmd, string(h.args)
		h.inFrame = false
		h.execute(cmd, args, now)
		return
	}
	if len(h.args) >= maxFrame {
		log.Warn().Str("cmd", string(h.cmd)).Msg("oversized command frame dropped")
		h.inFrame = false
		// The rest of the frame is junk, not fresh commands.
		h.discard = true
		return
	}
	h.args = append(h.args, b)
}

func takesArgs(cmd byte) bool {
	switch cmd {
	case CmdPatternType, CmdInner, CmdMiddle, CmdOuter, CmdSpacing, CmdSetLED, CmdCamera:
		return true
	}
	return false
}

func (h *Handler) execute(cmd byte, args string, now time.Time) {
	fields := splitFields(args)

	switch cmd {
	case CmdPatternType:
		h.applyGeometry(now, func() {
			if t := pattern.Type(atoi(field(fields, 0))); t.Valid() {
				h.ptype = t
			}
		})

	case CmdInner:
		v := atoi(field(fields, 0))
		h.applyGeometry(now, func() {
			switch h.ptype {
			case pattern.TypeRings:
				h.params.InnerRadius = float64(v)
			case pattern.TypeSpiral:
				h.params.MaxRadius = float64(v)
			case pattern.TypeGrid:
				h.params.SpacingX = v
				h.params.SpacingY = v
			}
		})

	case CmdMiddle:
		v := atoi(field(fields, 0))
		h.applyGeometry(now, func() {
			switch h.ptype {
			case pattern.TypeRings:
				h.params.MiddleRadius = float64(v)
			case pattern.TypeSpiral:
				h.params.Turns = v
			}
		})

	case CmdOuter:
		v := atoi(field(fields, 0))
		h.applyGeometry(now, func() {
			if h.ptype == pattern.TypeRings {
				h.params.OuterRadius = float64(v)
			}
		})

	case CmdSpacing:
		v := atoi(field(fields, 0))
		h.applyGeometry(now, func() {
			h.params.TargetSpacingMM = float64(v)
		})

	case CmdStart:
		h.d.Player.Start()
		h.finish(now)

	case CmdStop:
		h.d.Player.Stop()
		h.finish(now)

	case CmdIdleEnter:
		h.d.Idle.EnterIdle(now)
		h.writeStatus()

	case CmdIdleExit:
		h.d.Idle.ExitIdle(now)
		h.writeStatus()

	case CmdSetLED:
		x, y, c := atoi(field(fields, 0)), atoi(field(fields, 1)), atoi(field(fields, 2))
		if h.d.Panel.SetPixel(x, y, c) {
			h.d.Vis.SendLEDState(x, y, c)
		} else {
			log.Warn().Int("x", x).Int("y", y).Int("color", c).Msg("set LED rejected")
		}
		h.finish(now)

	case CmdCamera:
		h.handleCamera(fields)
		h.finish(now)

	case CmdVisStart:
		h.d.Vis.Enable()
		h.d.Vis.ExportPattern(h.grid, h.d.Seq.Cells())
		h.finish(now)

	case CmdVisStop:
		h.d.Vis.Disable()
		h.finish(now)

	case CmdPatternExport:
		h.d.Vis.ExportPattern(h.grid, h.d.Seq.Cells())
		h.finish(now)

	default:
		// Unknown bytes are generic host activity: wake from idle, rearm
		// the inactivity clock, nothing else.
		h.d.Idle.ExitIdle(now)
		h.d.Idle.Touch(now)
	}
}

// applyGeometry mutates pattern state under an atomic-regeneration guard:
// the change is rolled back when the resulting grid is rejected.
func (h *Handler) applyGeometry(now time.Time, mutate func()) {
	prevType, prevParams := h.ptype, h.params
	mutate()
	if !h.regenerate() {
		log.Warn().
			Stringer("type", h.ptype).
			Msg("pattern regeneration rejected; keeping previous pattern")
		h.ptype, h.params = prevType, prevParams
	}
	h.finish(now)
}

// regenerate rebuilds grid and sequence; on failure nothing changes.
func (h *Handler) regenerate() bool {
	grid, ok := h.d.Gen.Generate(h.ptype, h.params)
	if !ok {
		return false
	}
	h.grid = grid
	h.d.Seq.Rebuild(grid)
	log.Debug().
		Stringer("type", h.ptype).
		Int("cells", h.d.Seq.Len()).
		Msg("pattern regenerated")
	return true
}

// handleCamera dispatches the camera sub-protocol:
//
//	S,<enabled>,<preDelay>,<pulseWidth>,<postDelay>  settings
//	T,<enabled>,<pulseWidth>                         test pulse
func (h *Handler) handleCamera(fields []string) {
	if h.d.Trigger == nil || len(fields) == 0 {
		return
	}
	switch field(fields, 0) {
	case "S":
		h.d.Trigger.SetEnabled(atoi(field(fields, 1)) != 0)
		h.d.Trigger.SetPreDelay(atoi(field(fields, 2)))
		h.d.Trigger.SetPulseWidth(atoi(field(fields, 3)))
		h.d.Trigger.SetPostDelay(atoi(field(fields, 4)))
	case "T":
		if atoi(field(fields, 1)) != 0 {
			h.d.Trigger.TestTrigger(atoi(field(fields, 2)))
		}
		h.writeCameraStatus()
	}
}

// finish applies the common tail of every recognized non-idle-toggle
// command: refresh the activity clock and report status.
func (h *Handler) finish(now time.Time) {
	h.d.Idle.Touch(now)
	h.writeStatus()
}

// writeStatus emits the STATUS line; camera fields are appended when a
// trigger controller is attached.
func (h *Handler) writeStatus() {
	running := btoi(h.d.Player.State() == sequence.Running)
	idling := btoi(h.d.Idle.IsIdle())
	if h.d.Trigger == nil {
		fmt.Fprintf(h.d.Out, "STATUS,%d,%d,%d\n", running, idling, h.d.Player.Progress())
		return
	}
	fmt.Fprintf(h.d.Out, "STATUS,%d,%d,%d,%d,%d,%d\n",
		running, idling, h.d.Player.Progress(),
		btoi(h.d.Trigger.Enabled()), btoi(h.d.Trigger.Active()), int(h.d.Trigger.ErrCode()))
}

func (h *Handler) writeCameraStatus() {
	fmt.Fprintf(h.d.Out, "CAMERA,%d,%d\n",
		btoi(h.d.Trigger.Active()), int(h.d.Trigger.ErrCode()))
}

func splitFields(args string) []string {
	if args == "" {
		return nil
	}
	return strings.Split(args, ",")
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return strings.TrimSpace(fields[i])
	}
	return ""
}

// atoi is the permissive numeric parse: anything malformed reads as 0.
func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
