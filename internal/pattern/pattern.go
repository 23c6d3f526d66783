// Package pattern generates illumination grids for Fourier ptycography
// capture runs. Generation is pure: the same type and parameters always
// produce the same grid, and no hardware is touched.
package pattern

import "math"

// Type selects a pattern algorithm. The set is closed; Generate dispatches
// through a table so an unhandled type is impossible to add silently.
type Type int

const (
	TypeRings Type = iota
	TypeCenter
	TypeSpiral
	TypeGrid

	typeCount
)

func (t Type) String() string {
	switch t {
	case TypeRings:
		return "rings"
	case TypeCenter:
		return "center"
	case TypeSpiral:
		return "spiral"
	case TypeGrid:
		return "grid"
	}
	return "unknown"
}

// Valid reports whether t names a known pattern type.
func (t Type) Valid() bool { return t >= 0 && t < typeCount }

// Params carries the geometry for every pattern type. Fields a type does not
// use are ignored by its generator.
type Params struct {
	// Concentric rings, radii in LED units.
	InnerRadius  float64
	MiddleRadius float64
	OuterRadius  float64

	// Physical spacing between lit LEDs; converted to a decimation skip
	// against the panel's LED pitch.
	TargetSpacingMM float64

	// Spiral walk. MaxRadius 0 means use the largest radius that fits.
	Turns     int
	MaxRadius float64

	// Grid lattice spacing in LED units.
	SpacingX int
	SpacingY int
}

// Grid is a boolean activation map over the panel.
type Grid struct {
	W, H  int
	cells []bool
}

// NewGrid returns an all-off grid of the given dimensions.
func NewGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, cells: make([]bool, w*h)}
}

// At reports whether (x, y) is active. Out-of-range cells read as off.
func (g *Grid) At(x, y int) bool {
	if x < 0 || x >= g.W || y < 0 || y >= g.H {
		return false
	}
	return g.cells[y*g.W+x]
}

func (g *Grid) set(x, y int) {
	g.cells[y*g.W+x] = true
}

func (g *Grid) reset() {
	for i := range g.cells {
		g.cells[i] = false
	}
}

// Count returns the number of active cells.
func (g *Grid) Count() int {
	n := 0
	for _, c := range g.cells {
		if c {
			n++
		}
	}
	return n
}

// Generator produces grids for a panel of known dimensions and LED pitch.
type Generator struct {
	w, h    int
	pitchMM float64
}

// NewGenerator returns a generator for a w x h panel with the given physical
// LED pitch in millimeters.
func NewGenerator(w, h int, pitchMM float64) *Generator {
	return &Generator{w: w, h: h, pitchMM: pitchMM}
}

type generateFunc func(*Generator, Params, *Grid) bool

// Dispatch table, indexed by Type.
var generators = [typeCount]generateFunc{
	TypeRings:  (*Generator).rings,
	TypeCenter: (*Generator).center,
	TypeSpiral: (*Generator).spiral,
	TypeGrid:   (*Generator).lattice,
}

// Generate builds the grid for the given type and parameters. It returns
// (nil, false) when the type is unknown, the geometry is invalid, or the
// result would light no LEDs; callers must keep their previous grid in that
// case.
func (g *Generator) Generate(t Type, p Params) (*Grid, bool) {
	if !t.Valid() {
		return nil, false
	}
	grid := NewGrid(g.w, g.h)
	if !generators[t](g, p, grid) {
		return nil, false
	}
	if grid.Count() == 0 {
		return nil, false
	}
	return grid, true
}

// LEDSkip converts a desired physical spacing to a decimation stride in LED
// units, never below 1.
func (g *Generator) LEDSkip(spacingMM float64) int {
	skip := int(math.Round(spacingMM / g.pitchMM))
	if skip < 1 {
		return 1
	}
	return skip
}

func (g *Generator) centerX() int { return g.w / 2 }
func (g *Generator) centerY() int { return g.h / 2 }

func (g *Generator) inBounds(x, y int) bool {
	return x >= 0 && x < g.w && y >= 0 && y < g.h
}

// rings lights three concentric rings around the panel center, thinned by
// the decimation skip. Cells within 1 LED of any ring radius belong to it.
func (g *Generator) rings(p Params, grid *Grid) bool {
	maxRadius := float64(min(g.w, g.h)) / 2.0
	if p.OuterRadius >= maxRadius {
		return false
	}

	skip := g.LEDSkip(p.TargetSpacingMM)
	cx, cy := g.centerX(), g.centerY()

	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			if (x+y)%skip != 0 {
				continue
			}
			d := distance(x, y, cx, cy)
			if math.Abs(d-p.InnerRadius) < 1.0 ||
				math.Abs(d-p.MiddleRadius) < 1.0 ||
				math.Abs(d-p.OuterRadius) < 1.0 {
				grid.set(x, y)
			}
		}
	}
	return true
}

// center lights only the panel center cell.
func (g *Generator) center(_ Params, grid *Grid) bool {
	cx, cy := g.centerX(), g.centerY()
	if !g.inBounds(cx, cy) {
		return false
	}
	grid.set(cx, cy)
	return true
}

// spiral walks an Archimedean spiral outward from the center in 0.1 rad
// steps, keeping decimated in-bounds cells. The center cell is always lit.
func (g *Generator) spiral(p Params, grid *Grid) bool {
	if p.Turns < 1 {
		return false
	}
	cx, cy := g.centerX(), g.centerY()

	maxRadius := float64(min(cx, cy))
	if p.MaxRadius > 0 && p.MaxRadius < maxRadius {
		maxRadius = p.MaxRadius
	}
	skip := g.LEDSkip(p.TargetSpacingMM)

	grid.set(cx, cy)

	turns := float64(p.Turns)
	for angle := 0.0; angle < 2*math.Pi*turns; angle += 0.1 {
		radius := (angle / (2 * math.Pi)) * maxRadius / turns
		x := cx + int(math.Round(radius*math.Cos(angle)))
		y := cy + int(math.Round(radius*math.Sin(angle)))
		if g.inBounds(x, y) && (x+y)%skip == 0 {
			grid.set(x, y)
		}
	}
	return true
}

// lattice lights a regular grid at multiples of each spacing from the origin.
func (g *Generator) lattice(p Params, grid *Grid) bool {
	if p.SpacingX < 1 || p.SpacingY < 1 {
		return false
	}
	for y := 0; y < g.h; y += p.SpacingY {
		for x := 0; x < g.w; x += p.SpacingX {
			grid.set(x, y)
		}
	}
	return true
}

func distance(x1, y1, x2, y2 int) float64 {
	dx := float64(x2 - x1)
	dy := float64(y2 - y1)
	return math.Sqrt(dx*dx + dy*dy)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
