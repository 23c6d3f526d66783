// Package sequence turns a pattern grid into an ordered illumination run and
// plays it back against the panel on a timed cadence.
package sequence

import "github.com/openptycho/matrixctl/internal/pattern"

// MaxCells is the arena capacity: every cell of a 64x64 panel. The backing
// array is allocated once and reused across regenerations so playback never
// reallocates on the target.
const MaxCells = 64 * 64

// Cell is one LED coordinate in the illumination order.
type Cell struct {
	X, Y int
}

// Sequence is the ordered list of active cells derived from a grid. The
// zero value is an empty sequence ready for Rebuild.
type Sequence struct {
	cells [MaxCells]Cell
	n     int
}

// Rebuild derives the cell order from the grid with a row-major scan,
// replacing the previous contents in place.
func (s *Sequence) Rebuild(g *pattern.Grid) {
	s.n = 0
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			if g.At(x, y) {
				s.cells[s.n] = Cell{X: x, Y: y}
				s.n++
			}
		}
	}
}

// Len returns the number of cells in the sequence.
func (s *Sequence) Len() int { return s.n }

// At returns the i-th cell. Callers keep i within [0, Len).
func (s *Sequence) At(i int) Cell { return s.cells[i] }

// Cells returns the live cell slice, valid until the next Rebuild.
func (s *Sequence) Cells() []Cell { return s.cells[:s.n] }
