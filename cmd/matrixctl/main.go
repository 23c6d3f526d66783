// Command matrixctl runs the LED matrix controller for a Fourier
// ptycography rig: it drives the 64x64 panel, plays illumination sequences,
// fires the camera trigger and speaks the host command protocol over a
// serial device or TCP.
package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/host/v3"

	"github.com/openptycho/matrixctl/internal/config"
	"github.com/openptycho/matrixctl/internal/idle"
	"github.com/openptycho/matrixctl/internal/matrix"
	"github.com/openptycho/matrixctl/internal/monitor"
	"github.com/openptycho/matrixctl/internal/pattern"
	"github.com/openptycho/matrixctl/internal/proto"
	"github.com/openptycho/matrixctl/internal/sequence"
	"github.com/openptycho/matrixctl/internal/trigger"
	"github.com/openptycho/matrixctl/internal/vis"
)

// loopTick is the control loop granularity. Every iteration drains pending
// host bytes first, then ticks the player and the idle supervisor, so
// commands always apply before playback advances.
const loopTick = time.Millisecond

func main() {
	var (
		configPath  = flag.String("config", "matrixctl.yaml", "path to config file")
		serialDev   = flag.String("serial", "", "host transport: serial device (e.g. /dev/ttyAMA0)")
		listenAddr  = flag.String("listen", "", "host transport: TCP listen address (e.g. :9000)")
		monitorAddr = flag.String("monitor-addr", "", "optional websocket monitor address")
		simOnly     = flag.Bool("sim", false, "run with simulated pins (no hardware)")
		debug       = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := config.Default()
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; using defaults")
	} else {
		cfg = c
	}
	if *serialDev != "" {
		cfg.Serial = *serialDev
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}
	if *monitorAddr != "" {
		cfg.MonitorAddr = *monitorAddr
	}

	// ---- Hardware ----
	var pins matrix.Pins
	var trigPin gpio.PinOut
	var readyPin gpio.PinIn
	if *simOnly {
		pins = matrix.SimPins()
		trigPin = &gpiotest.Pin{N: "SIM_TRIG", Num: 14}
	} else {
		if _, err := host.Init(); err != nil {
			log.Fatal().Err(err).Msg("host init failed")
		}
		var err error
		pins, err = resolvePins(cfg.Pins)
		if err != nil {
			log.Fatal().Err(err).Msg("panel pin resolution failed")
		}
		trigPin = gpioreg.ByName(cfg.Pins.Trigger)
		if trigPin == nil {
			log.Fatal().Str("pin", cfg.Pins.Trigger).Msg("unknown trigger pin")
		}
		if cfg.Pins.Ready != "" {
			p := gpioreg.ByName(cfg.Pins.Ready)
			if p == nil {
				log.Fatal().Str("pin", cfg.Pins.Ready).Msg("unknown camera ready pin")
			}
			if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
				log.Fatal().Err(err).Msg("camera ready pin configuration failed")
			}
			readyPin = p
		}
	}

	drv, err := matrix.New(pins)
	if err != nil {
		log.Fatal().Err(err).Msg("matrix driver init failed")
	}

	// ---- Transport ----
	transport, err := openTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("transport init failed")
	}

	// ---- Components ----
	gen := pattern.NewGenerator(matrix.Width, matrix.Height, cfg.PitchMM)
	seq := &sequence.Sequence{}

	trig := trigger.New(trigPin, readyPin, trigger.Config{
		Enabled:      cfg.Camera.Enabled,
		PreDelayMs:   cfg.Camera.PreDelayMs,
		PulseWidthMs: cfg.Camera.PulseWidthMs,
		PostDelayMs:  cfg.Camera.PostDelayMs,
	}, time.Duration(cfg.Camera.ReadyTimeoutMs)*time.Millisecond)

	visman := vis.New(transport, time.Duration(cfg.VisIntervalMs)*time.Millisecond)
	player := sequence.NewPlayer(seq, drv, trig, visman,
		time.Duration(cfg.UpdateIntervalMs)*time.Millisecond, cfg.Color)
	idler := idle.New(drv, idle.Config{
		Timeout:       time.Duration(cfg.Idle.TimeoutMs) * time.Millisecond,
		BlinkInterval: time.Duration(cfg.Idle.BlinkIntervalMs) * time.Millisecond,
		BlinkDuration: time.Duration(cfg.Idle.BlinkDurationMs) * time.Millisecond,
	}, time.Now())

	handler, err := proto.New(proto.Deps{
		Panel:   drv,
		Gen:     gen,
		Seq:     seq,
		Player:  player,
		Trigger: trig,
		Idle:    idler,
		Vis:     visman,
		Out:     transport,
	}, pattern.Type(cfg.Pattern.Type), pattern.Params{
		InnerRadius:     cfg.Pattern.InnerRadius,
		MiddleRadius:    cfg.Pattern.MiddleRadius,
		OuterRadius:     cfg.Pattern.OuterRadius,
		TargetSpacingMM: cfg.Pattern.TargetSpacingMM,
		Turns:           cfg.Pattern.Turns,
		SpacingX:        cfg.Pattern.SpacingX,
		SpacingY:        cfg.Pattern.SpacingY,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("startup pattern invalid")
	}

	// ---- Optional monitor ----
	if cfg.MonitorAddr != "" {
		mon := monitor.New(time.Duration(cfg.VisIntervalMs)*time.Millisecond, func() map[string]any {
			return map[string]any{
				"player":   player.State().String(),
				"idle":     idler.IsIdle(),
				"cells":    seq.Len(),
				"pattern":  handler.PatternType().String(),
				"triggers": trig.Count(),
			}
		})
		visman.SetMirror(mon)
		go func() {
			log.Info().Str("addr", cfg.MonitorAddr).Msg("monitor listening")
			if err := http.ListenAndServe(cfg.MonitorAddr, mon.Handler()); err != nil {
				log.Error().Err(err).Msg("monitor server stopped")
			}
		}()
	}

	// ---- Host byte feed ----
	rx := make(chan byte, 256)
	go func() {
		defer close(rx)
		buf := make([]byte, 64)
		for {
			n, err := transport.Read(buf)
			if err != nil {
				log.Error().Err(err).Msg("transport read failed")
				return
			}
			for _, b := range buf[:n] {
				rx <- b
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("cells", seq.Len()).
		Stringer("pattern", handler.PatternType()).
		Bool("sim", *simOnly).
		Msg("controller ready")

	lp := &loop{rx: rx, handler: handler, player: player, idler: idler}
	lp.run(ctx)

	drv.Clear()
	log.Info().Msg("controller stopped")
}

// loop is the single cooperative execution context: per tick it applies
// every pending command, then advances playback, then the idle machine.
// Blocking waits inside a command or trigger stall the whole loop by design.
type loop struct {
	rx      <-chan byte
	handler *proto.Handler
	player  *sequence.Player
	idler   *idle.Manager
}

func (l *loop) run(ctx context.Context) {
	ticker := time.NewTicker(loopTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.tick(time.Now()) {
				return
			}
		}
	}
}

// tick runs one control cycle. It returns false once the byte feed has
// closed (transport gone).
func (l *loop) tick(now time.Time) bool {
drain:
	for {
		select {
		case b, ok := <-l.rx:
			if !ok {
				return false
			}
			l.handler.Feed(b, now)
		default:
			break drain
		}
	}
	l.player.Step(now)
	// An advancing capture run is activity: a sequence longer than the
	// inactivity timeout must not auto-idle mid-run.
	if l.player.State() == sequence.Running {
		l.idler.Touch(now)
	}
	l.idler.Update(now)
	return true
}

// resolvePins looks every configured panel line up in the GPIO registry.
func resolvePins(p config.Pins) (matrix.Pins, error) {
	var out matrix.Pins
	for _, m := range []struct {
		name string
		dst  *gpio.PinOut
	}{
		{p.BL, &out.BL}, {p.CK, &out.CK}, {p.LA, &out.LA},
		{p.A0, &out.A0}, {p.A1, &out.A1}, {p.A2, &out.A2}, {p.A3, &out.A3}, {p.A4, &out.A4},
		{p.R0, &out.R0}, {p.R1, &out.R1}, {p.G0, &out.G0}, {p.G1, &out.G1}, {p.B0, &out.B0}, {p.B1, &out.B1},
	} {
		pin := gpioreg.ByName(m.name)
		if pin == nil {
			return matrix.Pins{}, &unknownPinError{name: m.name}
		}
		*m.dst = pin
	}
	return out, nil
}

type unknownPinError struct{ name string }

func (e *unknownPinError) Error() string { return "unknown GPIO pin " + e.name }

// openTransport picks the host link: serial device, TCP listener, or stdio
// as a fallback for bench use.
func openTransport(cfg *config.Config) (io.ReadWriter, error) {
	switch {
	case cfg.Serial != "":
		f, err := os.OpenFile(cfg.Serial, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		log.Info().Str("dev", cfg.Serial).Msg("serial transport open")
		return f, nil
	case cfg.Listen != "":
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.Listen).Msg("waiting for host connection")
		return newTCPTransport(ln), nil
	default:
		log.Info().Msg("no transport configured; using stdio")
		return stdio{}, nil
	}
}

type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// tcpTransport serves one host connection at a time, re-accepting after a
// disconnect. Writes with no host attached are dropped, matching the
// best-effort telemetry model.
type tcpTransport struct {
	ln net.Listener

	mu   sync.Mutex
	conn net.Conn
}

func newTCPTransport(ln net.Listener) *tcpTransport {
	return &tcpTransport{ln: ln}
}

func (t *tcpTransport) current() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *tcpTransport) drop(c net.Conn) {
	t.mu.Lock()
	if t.conn == c {
		t.conn = nil
	}
	t.mu.Unlock()
	c.Close()
}

func (t *tcpTransport) Read(p []byte) (int, error) {
	for {
		c := t.current()
		if c == nil {
			nc, err := t.ln.Accept()
			if err != nil {
				return 0, err
			}
			log.Info().Str("remote", nc.RemoteAddr().String()).Msg("host connected")
			t.mu.Lock()
			t.conn = nc
			t.mu.Unlock()
			c = nc
		}
		n, err := c.Read(p)
		if err != nil {
			log.Info().Msg("host disconnected")
			t.drop(c)
			continue
		}
		return n, nil
	}
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	c := t.current()
	if c == nil {
		return len(p), nil
	}
	n, err := c.Write(p)
	if err != nil {
		t.drop(c)
		return len(p), nil
	}
	return n, nil
}
