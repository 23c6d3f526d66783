package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// recPin records every level written so tests can assert on the pulse train.
type recPin struct {
	gpiotest.Pin
	levels []gpio.Level
}

func (p *recPin) Out(l gpio.Level) error {
	p.levels = append(p.levels, l)
	return p.Pin.Out(l)
}

func (p *recPin) sawHigh() bool {
	for _, l := range p.levels {
		if l == gpio.High {
			return true
		}
	}
	return false
}

func (p *recPin) reset() { p.levels = nil }

type testRig struct {
	pins Pins
	rec  map[string]*recPin
}

func newTestRig() *testRig {
	rig := &testRig{rec: map[string]*recPin{}}
	mk := func(name string, num int) *recPin {
		p := &recPin{Pin: gpiotest.Pin{N: name, Num: num}}
		rig.rec[name] = p
		return p
	}
	rig.pins = Pins{
		BL: mk("BL", 0), CK: mk("CK", 1), LA: mk("LA", 2),
		A0: mk("A0", 3), A1: mk("A1", 4), A2: mk("A2", 5),
		A3: mk("A3", 6), A4: mk("A4", 7),
		R0: mk("R0", 8), R1: mk("R1", 9),
		G0: mk("G0", 10), G1: mk("G1", 11),
		B0: mk("B0", 12), B1: mk("B1", 13),
	}
	return rig
}

func (r *testRig) resetAll() {
	for _, p := range r.rec {
		p.reset()
	}
}

func TestNewRequiresAllPins(t *testing.T) {
	pins := SimPins()
	pins.CK = nil
	_, err := New(pins)
	assert.Error(t, err)
}

func TestSetPixelRejectsOutOfRange(t *testing.T) {
	rig := newTestRig()
	d, err := New(rig.pins)
	require.NoError(t, err)
	rig.resetAll()

	cases := []struct {
		name    string
		x, y, c int
	}{
		{"x negative", -1, 0, ColorGreen},
		{"x too large", Width, 0, ColorGreen},
		{"y negative", 0, -1, ColorGreen},
		{"y too large", 0, Height, ColorGreen},
		{"color negative", 0, 0, -1},
		{"color too large", 0, 0, ColorMax + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, d.SetPixel(tc.x, tc.y, tc.c))
			for name, p := range rig.rec {
				assert.Empty(t, p.levels, "pin %s must not be touched", name)
			}
		})
	}
}

func TestSetPixelScansRow(t *testing.T) {
	rig := newTestRig()
	d, err := New(rig.pins)
	require.NoError(t, err)
	rig.resetAll()

	assert.True(t, d.SetPixel(10, 5, ColorGreen))

	// One clock pulse per column, high then low.
	assert.Len(t, rig.rec["CK"].levels, 2*Width)

	// Panel is un-blanked and latched after a successful scan.
	assert.Equal(t, gpio.Low, rig.rec["BL"].Pin.L)
	assert.Equal(t, gpio.Low, rig.rec["LA"].Pin.L)
	assert.False(t, d.Dirty())

	// Row 5 is in the lower half: green goes out G0 only.
	assert.True(t, rig.rec["G0"].sawHigh())
	assert.False(t, rig.rec["G1"].sawHigh())
	assert.False(t, rig.rec["R0"].sawHigh())
	assert.False(t, rig.rec["B0"].sawHigh())
}

func TestSetPixelRoutesUpperHalf(t *testing.T) {
	rig := newTestRig()
	d, err := New(rig.pins)
	require.NoError(t, err)
	rig.resetAll()

	assert.True(t, d.SetPixel(3, 40, ColorRed|ColorBlue))

	assert.True(t, rig.rec["R1"].sawHigh())
	assert.True(t, rig.rec["B1"].sawHigh())
	assert.False(t, rig.rec["G1"].sawHigh())
	assert.False(t, rig.rec["R0"].sawHigh())
	assert.False(t, rig.rec["B0"].sawHigh())
}

func TestSplitPanelAddressing(t *testing.T) {
	rig := newTestRig()
	d, err := New(rig.pins)
	require.NoError(t, err)

	// Rows y and y+HalfHeight share the same physical row address.
	for _, y := range []int{0, 1, 13, 31} {
		rig.resetAll()
		require.True(t, d.SetPixel(0, y, ColorGreen))
		lower := addressLevels(rig)

		rig.resetAll()
		require.True(t, d.SetPixel(0, y+HalfHeight, ColorGreen))
		upper := addressLevels(rig)

		assert.Equal(t, lower, upper, "row %d vs %d", y, y+HalfHeight)

		for bit := 0; bit < 5; bit++ {
			want := gpio.Level(y&(1<<bit) != 0)
			assert.Equal(t, want, lower[bit], "row %d address bit %d", y, bit)
		}
	}
}

func addressLevels(rig *testRig) [5]gpio.Level {
	var out [5]gpio.Level
	names := []string{"A0", "A1", "A2", "A3", "A4"}
	for i, n := range names {
		out[i] = rig.rec[n].Pin.L
	}
	return out
}

func TestClearBlanksPanel(t *testing.T) {
	rig := newTestRig()
	d, err := New(rig.pins)
	require.NoError(t, err)

	require.True(t, d.SetPixel(7, 7, ColorGreen))
	rig.resetAll()

	d.Clear()

	// Stays blanked after a clear, with zeros clocked through every row.
	assert.Equal(t, gpio.High, rig.rec["BL"].Pin.L)
	assert.Len(t, rig.rec["CK"].levels, 2*Width*Height)
	assert.False(t, rig.rec["G0"].sawHigh())
	assert.False(t, rig.rec["G1"].sawHigh())
	assert.False(t, d.Dirty())
}

func TestDirtyFlag(t *testing.T) {
	d, err := New(SimPins())
	require.NoError(t, err)

	assert.False(t, d.Dirty())
	d.SetDirty(true)
	assert.True(t, d.Dirty())
	d.SetPixel(1, 1, ColorGreen)
	assert.False(t, d.Dirty())
}
