package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// fakeClock drives the controller's time without real sleeps. Sleeping
// advances the clock.
type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (f *fakeClock) install(c *Controller) {
	f.t = time.Unix(1000, 0)
	c.now = func() time.Time { return f.t }
	c.sleep = func(d time.Duration) {
		f.slept = append(f.slept, d)
		f.t = f.t.Add(d)
	}
}

func (f *fakeClock) totalSlept() time.Duration {
	var total time.Duration
	for _, d := range f.slept {
		total += d
	}
	return total
}

// stickyReady reads High for the first n reads, then Low.
type stickyReady struct {
	gpiotest.Pin
	highReads int
	reads     int
}

func (p *stickyReady) Read() gpio.Level {
	p.reads++
	if p.reads <= p.highReads {
		return gpio.High
	}
	return gpio.Low
}

func testConfig() Config {
	return Config{Enabled: true, PreDelayMs: 400, PulseWidthMs: 100, PostDelayMs: 1500}
}

func TestDisabledTriggerIsNoop(t *testing.T) {
	pin := &gpiotest.Pin{N: "TRIG"}
	c := New(pin, nil, Config{Enabled: false, PulseWidthMs: 100}, time.Second)
	clk := &fakeClock{}
	clk.install(c)

	assert.True(t, c.Trigger(true))
	assert.Empty(t, clk.slept, "disabled trigger must not delay")
	assert.Equal(t, 0, c.Count())
	assert.Equal(t, ErrNone, c.ErrCode())
}

func TestTriggerPhases(t *testing.T) {
	pin := &gpiotest.Pin{N: "TRIG"}
	c := New(pin, nil, testConfig(), time.Second)
	clk := &fakeClock{}
	clk.install(c)

	require.True(t, c.Trigger(true))

	// pre + pulse + post, in order.
	require.Len(t, clk.slept, 3)
	assert.Equal(t, 400*time.Millisecond, clk.slept[0])
	assert.Equal(t, 100*time.Millisecond, clk.slept[1])
	assert.Equal(t, 1500*time.Millisecond, clk.slept[2])

	assert.Equal(t, gpio.Low, pin.L, "trigger line released")
	assert.Equal(t, 1, c.Count())
	assert.False(t, c.Active())
	assert.Equal(t, ErrNone, c.ErrCode())
	assert.Equal(t, clk.t.Add(-1500*time.Millisecond), c.LastTrigger())
}

func TestTriggerSkipsZeroDelays(t *testing.T) {
	pin := &gpiotest.Pin{N: "TRIG"}
	c := New(pin, nil, Config{Enabled: true, PulseWidthMs: 50}, time.Second)
	clk := &fakeClock{}
	clk.install(c)

	require.True(t, c.Trigger(false))
	assert.Equal(t, 50*time.Millisecond, clk.totalSlept())
}

func TestReadyWaitSucceeds(t *testing.T) {
	pin := &gpiotest.Pin{N: "TRIG"}
	ready := &stickyReady{Pin: gpiotest.Pin{N: "READY"}, highReads: 3}
	cfg := Config{Enabled: true, PulseWidthMs: 10}
	c := New(pin, ready, cfg, time.Second)
	clk := &fakeClock{}
	clk.install(c)

	assert.True(t, c.Trigger(true))
	assert.Equal(t, ErrNone, c.ErrCode())
	assert.Equal(t, 4, ready.reads, "polls until the line deasserts")
}

func TestReadyWaitTimesOut(t *testing.T) {
	pin := &gpiotest.Pin{N: "TRIG"}
	ready := &stickyReady{Pin: gpiotest.Pin{N: "READY"}, highReads: 1 << 30}
	cfg := Config{Enabled: true, PulseWidthMs: 10, PostDelayMs: 500}
	c := New(pin, ready, cfg, 100*time.Millisecond)
	clk := &fakeClock{}
	clk.install(c)

	assert.False(t, c.Trigger(true))
	assert.Equal(t, ErrTimeout, c.ErrCode())
	assert.Equal(t, 1, c.Count(), "pulse was already sent, not retried")
	assert.False(t, c.Active())

	// Post-delay never runs after a timeout.
	for _, d := range clk.slept {
		assert.NotEqual(t, 500*time.Millisecond, d)
	}
}

func TestReadyWaitSkippedWhenNotRequested(t *testing.T) {
	pin := &gpiotest.Pin{N: "TRIG"}
	ready := &stickyReady{Pin: gpiotest.Pin{N: "READY"}, highReads: 1 << 30}
	c := New(pin, ready, Config{Enabled: true, PulseWidthMs: 10}, time.Second)
	clk := &fakeClock{}
	clk.install(c)

	assert.True(t, c.Trigger(false))
	assert.Zero(t, ready.reads)
}

func TestTestTriggerBarePulse(t *testing.T) {
	pin := &gpiotest.Pin{N: "TRIG"}
	c := New(pin, nil, testConfig(), time.Second)
	clk := &fakeClock{}
	clk.install(c)

	// Provoke an error state first; the calibration pulse must not touch it.
	c.errCode = ErrTimeout

	assert.True(t, c.TestTrigger(25))
	require.Len(t, clk.slept, 1, "no pre/post delay on a test pulse")
	assert.Equal(t, 25*time.Millisecond, clk.slept[0])
	assert.Equal(t, ErrTimeout, c.ErrCode())
	assert.Equal(t, 1, c.Count())

	// Non-positive width falls back to the configured width.
	assert.True(t, c.TestTrigger(0))
	assert.Equal(t, 100*time.Millisecond, clk.slept[1])
}

func TestSettersClampSilently(t *testing.T) {
	c := New(&gpiotest.Pin{N: "TRIG"}, nil, testConfig(), time.Second)

	c.SetPulseWidth(0)
	c.SetPulseWidth(1001)
	assert.Equal(t, 100, c.Config().PulseWidthMs)
	c.SetPulseWidth(200)
	assert.Equal(t, 200, c.Config().PulseWidthMs)

	c.SetPreDelay(-1)
	c.SetPreDelay(5001)
	assert.Equal(t, 400, c.Config().PreDelayMs)
	c.SetPreDelay(0)
	assert.Equal(t, 0, c.Config().PreDelayMs)

	c.SetPostDelay(10001)
	assert.Equal(t, 1500, c.Config().PostDelayMs)
	c.SetPostDelay(10000)
	assert.Equal(t, 10000, c.Config().PostDelayMs)

	c.SetEnabled(false)
	assert.False(t, c.Enabled())
}
