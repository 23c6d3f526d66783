// Package matrix drives a 64x64 RGB LED panel through bit-banged GPIO.
//
// The panel is scanned as two stacked 32-row halves sharing five row-address
// lines, with separate red/green/blue data lines per half. At most one
// logical pixel is lit per scan: whole patterns are displayed by cycling
// single-pixel scans from the sequence player, not by a framebuffer.
package matrix

import (
	"errors"

	"periph.io/x/conn/v3/gpio"
)

// Panel dimensions.
const (
	Width      = 64
	Height     = 64
	HalfHeight = 32 // split-panel addressing: row address is y mod HalfHeight
)

// Color bits. A color is any OR-combination in [0, ColorMax].
const (
	ColorOff   = 0
	ColorRed   = 1
	ColorGreen = 2
	ColorBlue  = 4
	ColorMax   = 7
)

// clearBatchRows is the number of rows blanked per latch group in Clear.
const clearBatchRows = 8

// Pins holds every output line the panel occupies. All pins are required.
type Pins struct {
	BL gpio.PinOut // blank (output enable, active high = blanked)
	CK gpio.PinOut // shift clock
	LA gpio.PinOut // latch

	A0 gpio.PinOut // row address bit 0 (LSB)
	A1 gpio.PinOut
	A2 gpio.PinOut
	A3 gpio.PinOut
	A4 gpio.PinOut // row address bit 4 (MSB)

	R0 gpio.PinOut // red, lower half
	R1 gpio.PinOut // red, upper half
	G0 gpio.PinOut // green, lower half
	G1 gpio.PinOut // green, upper half
	B0 gpio.PinOut // blue, lower half
	B1 gpio.PinOut // blue, upper half
}

func (p Pins) all() []gpio.PinOut {
	return []gpio.PinOut{p.BL, p.CK, p.LA, p.A0, p.A1, p.A2, p.A3, p.A4,
		p.R0, p.R1, p.G0, p.G1, p.B0, p.B1}
}

// Driver owns the physical output lines. No other component writes to them.
type Driver struct {
	pins Pins

	// Row address cache, built once. rowAddr[y][i] is the level of address
	// line i for row y (y mod HalfHeight, five bits LSB first).
	rowAddr [Height][5]gpio.Level

	dirty bool
}

// New configures the panel lines, builds the row address cache and blanks
// the display.
func New(pins Pins) (*Driver, error) {
	for _, p := range pins.all() {
		if p == nil {
			return nil, errors.New("matrix: all panel pins must be set")
		}
	}
	d := &Driver{pins: pins, dirty: true}

	// Blank during initialization so address/data noise is never visible.
	if err := pins.BL.Out(gpio.High); err != nil {
		return nil, err
	}
	for _, p := range pins.all() {
		if p == pins.BL {
			continue
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, err
		}
	}

	d.initAddressCache()
	d.Clear()
	return d, nil
}

// initAddressCache precomputes the five address-line levels for every row,
// avoiding per-call bit masking on the scan path.
func (d *Driver) initAddressCache() {
	for y := 0; y < Height; y++ {
		row := y % HalfHeight
		for bit := 0; bit < 5; bit++ {
			d.rowAddr[y][bit] = gpio.Level(row&(1<<bit) != 0)
		}
	}
}

// ValidCoordinate reports whether (x, y) addresses a physical pixel.
func ValidCoordinate(x, y int) bool {
	return x >= 0 && x < Width && y >= 0 && y < Height
}

// ValidColor reports whether color is a legal red/green/blue bit mask.
func ValidColor(color int) bool {
	return color >= 0 && color <= ColorMax
}

// SetPixel scans a single pixel in the given color. It returns false and
// touches no hardware if the coordinate or color is out of range.
//
// The scan blanks the panel, selects the cached row address, shifts the
// color bits across the full row with every other column zeroed, latches,
// then un-blanks.
func (d *Driver) SetPixel(x, y, color int) bool {
	if !ValidCoordinate(x, y) || !ValidColor(color) {
		return false
	}

	lowerHalf := y < HalfHeight

	d.pins.BL.Out(gpio.High)
	d.pins.LA.Out(gpio.High)

	d.selectRow(y)

	r := gpio.Level(color&ColorRed != 0)
	g := gpio.Level(color&ColorGreen != 0)
	b := gpio.Level(color&ColorBlue != 0)

	for col := 0; col < Width; col++ {
		// Data lines only change entering and leaving the target column.
		if col == x {
			d.writeColumn(lowerHalf, r, g, b)
		} else if col == x+1 {
			d.writeColumn(lowerHalf, gpio.Low, gpio.Low, gpio.Low)
		}
		d.clockPulse()
	}

	d.pins.LA.Out(gpio.Low)
	d.pins.BL.Out(gpio.Low)

	d.dirty = false
	return true
}

// Clear blanks every row by clocking zeros through the whole panel. Rows are
// latched in fixed-size groups for throughput. It always succeeds and leaves
// the panel blanked.
func (d *Driver) Clear() {
	d.pins.BL.Out(gpio.High)

	// Data lines stay low for the whole sweep.
	d.pins.R0.Out(gpio.Low)
	d.pins.R1.Out(gpio.Low)
	d.pins.G0.Out(gpio.Low)
	d.pins.G1.Out(gpio.Low)
	d.pins.B0.Out(gpio.Low)
	d.pins.B1.Out(gpio.Low)

	for batch := 0; batch < Height; batch += clearBatchRows {
		end := batch + clearBatchRows
		if end > Height {
			end = Height
		}
		for y := batch; y < end; y++ {
			d.pins.LA.Out(gpio.High)
			d.selectRow(y)
			for col := 0; col < Width; col++ {
				d.clockPulse()
			}
			d.pins.LA.Out(gpio.Low)
		}
	}

	d.dirty = false
	d.pins.BL.Out(gpio.High)
}

// Dirty reports whether the scanned state no longer matches the last
// intended frame, telling collaborators a refresh is owed.
func (d *Driver) Dirty() bool { return d.dirty }

// SetDirty marks the panel as needing a redraw.
func (d *Driver) SetDirty(dirty bool) { d.dirty = dirty }

// selectRow pulses the address lines clean, then drives the cached address
// bits for row y.
func (d *Driver) selectRow(y int) {
	// A0 reset pulse; the address decoder needs it for reliable selection.
	d.pins.A0.Out(gpio.High)
	d.pins.A0.Out(gpio.Low)

	d.pins.A0.Out(d.rowAddr[y][0])
	d.pins.A1.Out(d.rowAddr[y][1])
	d.pins.A2.Out(d.rowAddr[y][2])
	d.pins.A3.Out(d.rowAddr[y][3])
	d.pins.A4.Out(d.rowAddr[y][4])
}

// writeColumn routes color bits to the half holding the selected row; the
// other half's data lines stay low.
func (d *Driver) writeColumn(lowerHalf bool, r, g, b gpio.Level) {
	if lowerHalf {
		d.pins.R0.Out(r)
		d.pins.G0.Out(g)
		d.pins.B0.Out(b)
		d.pins.R1.Out(gpio.Low)
		d.pins.G1.Out(gpio.Low)
		d.pins.B1.Out(gpio.Low)
	} else {
		d.pins.R0.Out(gpio.Low)
		d.pins.G0.Out(gpio.Low)
		d.pins.B0.Out(gpio.Low)
		d.pins.R1.Out(r)
		d.pins.G1.Out(g)
		d.pins.B1.Out(b)
	}
}

func (d *Driver) clockPulse() {
	d.pins.CK.Out(gpio.High)
	d.pins.CK.Out(gpio.Low)
}
