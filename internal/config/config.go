// Package config loads and saves the controller configuration. Flags in the
// command remain usable; a config file overrides them where set.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Pins names the GPIO lines by their host registry names (e.g. "GPIO25").
type Pins struct {
	BL string `yaml:"bl"` // blank / output enable
	CK string `yaml:"ck"` // shift clock
	LA string `yaml:"la"` // latch

	A0 string `yaml:"a0"`
	A1 string `yaml:"a1"`
	A2 string `yaml:"a2"`
	A3 string `yaml:"a3"`
	A4 string `yaml:"a4"`

	R0 string `yaml:"r0"`
	R1 string `yaml:"r1"`
	G0 string `yaml:"g0"`
	G1 string `yaml:"g1"`
	B0 string `yaml:"b0"`
	B1 string `yaml:"b1"`

	Trigger string `yaml:"trigger"`         // camera shutter output
	Ready   string `yaml:"ready,omitempty"` // camera ready input, optional
}

// Camera holds trigger timing defaults.
type Camera struct {
	Enabled        bool `yaml:"enabled"`
	PreDelayMs     int  `yaml:"pre_delay_ms"`
	PulseWidthMs   int  `yaml:"pulse_width_ms"`
	PostDelayMs    int  `yaml:"post_delay_ms"`
	ReadyTimeoutMs int  `yaml:"ready_timeout_ms"`
}

// Idle holds the inactivity supervisor timing.
type Idle struct {
	TimeoutMs       int `yaml:"timeout_ms"`
	BlinkIntervalMs int `yaml:"blink_interval_ms"`
	BlinkDurationMs int `yaml:"blink_duration_ms"`
}

// Pattern holds the startup pattern geometry.
type Pattern struct {
	Type            int     `yaml:"type"` // 0 rings, 1 center, 2 spiral, 3 grid
	InnerRadius     float64 `yaml:"inner_radius"`
	MiddleRadius    float64 `yaml:"middle_radius"`
	OuterRadius     float64 `yaml:"outer_radius"`
	TargetSpacingMM float64 `yaml:"target_spacing_mm"`
	Turns           int     `yaml:"turns"`
	SpacingX        int     `yaml:"spacing_x"`
	SpacingY        int     `yaml:"spacing_y"`
}

// Config is the full controller configuration.
type Config struct {
	PitchMM          float64 `yaml:"pitch_mm"`           // physical LED pitch
	Color            int     `yaml:"color"`              // sequence illumination color mask
	UpdateIntervalMs int     `yaml:"update_interval_ms"` // sequence step cadence
	VisIntervalMs    int     `yaml:"vis_interval_ms"`    // telemetry throttle

	Pins    Pins    `yaml:"pins"`
	Camera  Camera  `yaml:"camera"`
	Idle    Idle    `yaml:"idle"`
	Pattern Pattern `yaml:"pattern"`

	Serial      string `yaml:"serial,omitempty"`       // tty device path
	Listen      string `yaml:"listen,omitempty"`       // TCP listen address
	MonitorAddr string `yaml:"monitor_addr,omitempty"` // websocket monitor address
}

// Default returns the stock 64x64 ptycography rig configuration.
func Default() *Config {
	return &Config{
		PitchMM:          2.0,
		Color:            2, // green
		UpdateIntervalMs: 10,
		VisIntervalMs:    100,
		Pins: Pins{
			BL: "GPIO25", CK: "GPIO26", LA: "GPIO42",
			A0: "GPIO28", A1: "GPIO44", A2: "GPIO27", A3: "GPIO43", A4: "GPIO45",
			R0: "GPIO32", R1: "GPIO30", G0: "GPIO47", G1: "GPIO46", B0: "GPIO31", B1: "GPIO29",
			Trigger: "GPIO5",
		},
		Camera: Camera{
			Enabled:        true,
			PreDelayMs:     400,
			PulseWidthMs:   100,
			PostDelayMs:    1500,
			ReadyTimeoutMs: 5000,
		},
		Idle: Idle{
			TimeoutMs:       30 * 60 * 1000,
			BlinkIntervalMs: 60 * 1000,
			BlinkDurationMs: 500,
		},
		Pattern: Pattern{
			Type:            0,
			InnerRadius:     16,
			MiddleRadius:    24,
			OuterRadius:     31,
			TargetSpacingMM: 4.0,
			Turns:           3,
			SpacingX:        4,
			SpacingY:        4,
		},
	}
}

// Load reads a YAML config, applied over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the configuration as YAML.
func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
