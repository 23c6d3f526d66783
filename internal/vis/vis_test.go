package vis

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openptycho/matrixctl/internal/pattern"
	"github.com/openptycho/matrixctl/internal/sequence"
)

type fakeSink struct {
	events int
	dumps  int
}

func (f *fakeSink) LEDEvent(x, y, color int)          { f.events++ }
func (f *fakeSink) PatternDump(cells []sequence.Cell) { f.dumps++ }

func newTestManager(buf *bytes.Buffer) (*Manager, *time.Time) {
	m := New(buf, 100*time.Millisecond)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestDisabledByDefault(t *testing.T) {
	buf := &bytes.Buffer{}
	m, _ := newTestManager(buf)

	m.SendLEDState(1, 2, 3)
	assert.Zero(t, buf.Len())
}

func TestSendLEDStateThrottled(t *testing.T) {
	buf := &bytes.Buffer{}
	m, now := newTestManager(buf)
	m.Enable()

	m.SendLEDState(1, 2, 2)
	assert.Equal(t, "LED,1,2,2\n", buf.String())

	// Inside the window: dropped, not queued.
	*now = now.Add(50 * time.Millisecond)
	m.SendLEDState(3, 4, 2)
	assert.Equal(t, "LED,1,2,2\n", buf.String())

	*now = now.Add(50 * time.Millisecond)
	m.SendLEDState(5, 6, 2)
	assert.Equal(t, "LED,1,2,2\nLED,5,6,2\n", buf.String())
}

func TestDisableStopsEgress(t *testing.T) {
	buf := &bytes.Buffer{}
	m, now := newTestManager(buf)
	m.Enable()
	m.SendLEDState(1, 1, 1)
	require.Positive(t, buf.Len())

	m.Disable()
	*now = now.Add(time.Second)
	m.SendLEDState(2, 2, 2)
	assert.Equal(t, 1, strings.Count(buf.String(), "LED,"))
}

func TestExportPattern(t *testing.T) {
	buf := &bytes.Buffer{}
	m, _ := newTestManager(buf)

	gen := pattern.NewGenerator(64, 64, 2.0)
	grid, ok := gen.Generate(pattern.TypeCenter, pattern.Params{})
	require.True(t, ok)
	seq := &sequence.Sequence{}
	seq.Rebuild(grid)

	// Disabled: nothing on the wire.
	m.ExportPattern(grid, seq.Cells())
	assert.Zero(t, buf.Len())

	m.Enable()
	m.ExportPattern(grid, seq.Cells())
	want := "PATTERN_START\nPATTERN,32,32\nPATTERN_END\n"
	assert.Equal(t, want, buf.String())
}

func TestMirrorSeesEverything(t *testing.T) {
	buf := &bytes.Buffer{}
	m, _ := newTestManager(buf)
	sink := &fakeSink{}
	m.SetMirror(sink)

	// Mirror receives events even while serial telemetry is disabled.
	m.SendLEDState(1, 1, 1)
	m.SendLEDState(2, 2, 2)
	m.ExportPattern(nil, nil)

	assert.Equal(t, 2, sink.events)
	assert.Equal(t, 1, sink.dumps)
	assert.Zero(t, buf.Len())
}
