package matrix

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// SimPins returns an in-memory pin set so the controller can run with no
// panel attached (development and protocol testing).
func SimPins() Pins {
	mk := func(name string, num int) gpio.PinOut {
		return &gpiotest.Pin{N: name, Num: num}
	}
	return Pins{
		BL: mk("SIM_BL", 0), CK: mk("SIM_CK", 1), LA: mk("SIM_LA", 2),
		A0: mk("SIM_A0", 3), A1: mk("SIM_A1", 4), A2: mk("SIM_A2", 5),
		A3: mk("SIM_A3", 6), A4: mk("SIM_A4", 7),
		R0: mk("SIM_R0", 8), R1: mk("SIM_R1", 9),
		G0: mk("SIM_G0", 10), G1: mk("SIM_G1", 11),
		B0: mk("SIM_B0", 12), B1: mk("SIM_B1", 13),
	}
}
