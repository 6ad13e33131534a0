// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control holds the heading controller: it turns the operator's
// desired velocity into corrected movement commands at a fixed rate, holds
// heading when no rotation is asked for and stops the robot when commands
// stop arriving.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/drift_controller/internal/config"
	"github.com/relabs-tech/drift_controller/internal/hardware"
)

// ErrInhibited is returned for commands refused while the emergency stop is engaged.
var ErrInhibited = errors.New("emergency stop engaged")

// State is the controller mode.
type State int

const (
	Stopped State = iota
	FreeRotation
	HeadingLocked
)

func (s State) String() string {
	switch s {
	case FreeRotation:
		return "free_rotation"
	case HeadingLocked:
		return "heading_locked"
	default:
		return "stopped"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Hardware is what the controller needs from the robot.
type Hardware interface {
	State() hardware.State
	SendVelocity(vx, vy, omega float64) error
	StopMovement() error
	SetCollector(mode hardware.CollectorMode) error
	ResetHeading()
}

// Velocity is a body-frame velocity command: m/s, m/s, rad/s.
type Velocity struct {
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Omega float64 `json:"omega"`
}

// Options configures a Controller.
type Options struct {
	Kp              float64
	ZeroBand        float64       // |omega| at or below this holds heading
	MaxLinearSpeed  float64       // 0 disables the limit
	MaxRotationRate float64       // 0 disables the limit
	WatchdogTimeout time.Duration // required
	Period          time.Duration // Run's tick interval
	Now             func() time.Time
}

// OptionsFromConfig maps configuration onto controller options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Kp:              cfg.HeadingKp,
		ZeroBand:        cfg.ZeroBand,
		MaxLinearSpeed:  cfg.MaxLinearSpeed,
		MaxRotationRate: cfg.MaxRotationRate,
		WatchdogTimeout: cfg.WatchdogTimeout,
		Period:          cfg.ControlPeriod(),
	}
}

// Status is what STATUS and telemetry report.
type Status struct {
	State             State                  `json:"state"`
	Heading           float64                `json:"heading"`
	DriftRate         float64                `json:"drift_rate"`
	LastSampleAge     time.Duration          `json:"last_sample_age"`
	HaveSample        bool                   `json:"have_sample"`
	SensorLinkLost    bool                   `json:"sensor_link_lost"`
	Desired           Velocity               `json:"desired"`
	Output            Velocity               `json:"output"`
	LockTarget        *float64               `json:"lock_target,omitempty"`
	Collector         hardware.CollectorMode `json:"collector"`
	DriftCompensation bool                   `json:"drift_compensation"`
	Inhibited         bool                   `json:"inhibited"`
	LinkFault         bool                   `json:"link_fault"`
	StopReason        string                 `json:"stop_reason,omitempty"`
}

// Controller is the heading controller. All methods are safe for concurrent use.
type Controller struct {
	hw   Hardware
	opts Options

	mu          sync.Mutex
	state       State
	desired     Velocity
	output      Velocity
	locked      bool
	lockTarget  float64
	lastCommand time.Time
	driftComp   bool
	inhibited   bool
	linkFault   bool
	stopReason  string
}

// New returns a controller in the Stopped state.
func New(hw Hardware, opts Options) (*Controller, error) {
	if hw == nil {
		return nil, errors.New("control: hardware is required")
	}
	if opts.WatchdogTimeout <= 0 {
		return nil, errors.New("control: watchdog timeout must be positive")
	}
	if opts.Kp < 0 || opts.ZeroBand < 0 || opts.MaxLinearSpeed < 0 || opts.MaxRotationRate < 0 {
		return nil, errors.New("control: gains and limits must not be negative")
	}
	if opts.Period <= 0 {
		opts.Period = 20 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		hw:         hw,
		opts:       opts,
		state:      Stopped,
		driftComp:  true,
		stopReason: "startup",
	}, nil
}

// SetVelocity sets the desired velocity and refreshes the watchdog.
func (c *Controller) SetVelocity(vx, vy, omega float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accept()
	if c.inhibited {
		return ErrInhibited
	}
	c.desired = Velocity{VX: vx, VY: vy, Omega: omega}
	return nil
}

// Stop forces Stopped and stops the collector motor.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.lastCommand = c.opts.Now()
	c.enterStopped("stop command")
	c.mu.Unlock()

	return c.hw.SetCollector(hardware.CollectorStop)
}

// SetCollector forwards a collector mode to the actuator controller. It does
// not touch the desired velocity.
func (c *Controller) SetCollector(mode hardware.CollectorMode) error {
	c.mu.Lock()
	c.accept()
	inhibited := c.inhibited
	c.mu.Unlock()

	if inhibited && mode != hardware.CollectorStop {
		return ErrInhibited
	}
	return c.hw.SetCollector(mode)
}

// ResetHeading zeroes the integrated heading and drops the lock target; a
// new one is taken on the next tick.
func (c *Controller) ResetHeading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accept()
	c.hw.ResetHeading()
	c.locked = false
}

// SetDriftCompensation turns heading hold and drift cancellation on or off.
// When off, the desired rotation rate is passed through unchanged.
func (c *Controller) SetDriftCompensation(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accept()
	if c.driftComp != on {
		log.Printf("control: drift compensation %s", onOff(on))
	}
	c.driftComp = on
	c.locked = false
}

// Status reports the controller state as an accepted command: it refreshes
// the watchdog like any other command.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accept()
	return c.statusLocked()
}

// Snapshot reports the controller state without counting as a command.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Inhibit engages or releases the emergency stop. While engaged the
// controller stays Stopped whatever commands arrive. Releasing it does not
// resume motion by itself; the next command does.
func (c *Controller) Inhibit(on bool) error {
	c.mu.Lock()
	changed := c.inhibited != on
	c.inhibited = on
	if on {
		c.enterStopped("emergency stop")
	}
	c.mu.Unlock()

	if changed {
		log.Printf("control: emergency stop %s", engaged(on))
	}
	if on {
		return c.hw.SetCollector(hardware.CollectorStop)
	}
	return nil
}

// Tick runs one read, decide, emit cycle. A write failure forces Stopped and
// is returned; later ticks keep sending STOP until the link takes it.
//
// The movement write is made without holding the controller lock, so
// commands and the emergency stop never wait on the movement channel.
func (c *Controller) Tick() error {
	now := c.opts.Now()
	st := c.hw.State()

	c.mu.Lock()
	if c.state != Stopped && now.Sub(c.lastCommand) > c.opts.WatchdogTimeout {
		c.enterStopped("watchdog")
	}
	if c.state == Stopped {
		c.output = Velocity{}
		c.mu.Unlock()
		return c.emitStop()
	}
	out := c.decide(st)
	c.mu.Unlock()

	err := c.hw.SendVelocity(out.VX, out.VY, out.Omega)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.linkFault = true
		c.enterStopped("hardware link")
		return err
	}
	// a STOP or the emergency stop may have landed during the write
	if c.state != Stopped {
		c.output = out
	}
	c.clearLinkFault()
	return nil
}

// decide picks the control law for this tick and returns the clamped output.
// Called with c.mu held.
func (c *Controller) decide(st hardware.State) Velocity {
	d := c.desired
	var omega float64
	switch {
	case !c.driftComp || st.SensorLinkLost:
		c.setFree()
		omega = d.Omega
	case math.Abs(d.Omega) <= c.opts.ZeroBand:
		if !c.locked {
			c.locked = true
			c.lockTarget = st.Heading
		}
		c.state = HeadingLocked
		omega = c.opts.Kp*(c.lockTarget-st.Heading) - st.DriftRate
	default:
		c.setFree()
		omega = d.Omega
	}

	return Velocity{
		VX:    clamp(d.VX, c.opts.MaxLinearSpeed),
		VY:    clamp(d.VY, c.opts.MaxLinearSpeed),
		Omega: clamp(omega, c.opts.MaxRotationRate),
	}
}

func (c *Controller) emitStop() error {
	err := c.hw.StopMovement()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.linkFault = true
		return err
	}
	c.clearLinkFault()
	return nil
}

// clearLinkFault is called with c.mu held after a successful movement write.
func (c *Controller) clearLinkFault() {
	if c.linkFault {
		c.linkFault = false
		log.Println("control: movement link recovered")
	}
}

// Run ticks every Period until ctx is done, then sends STOP once more.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Period)
	defer ticker.Stop()
	log.Printf("control: loop running every %v", c.opts.Period)

	var failures int
	for {
		select {
		case <-ctx.Done():
			if err := c.hw.StopMovement(); err != nil {
				log.Printf("control: final stop: %v", err)
			}
			log.Println("control: loop stopped")
			return nil
		case <-ticker.C:
		}

		if err := c.Tick(); err != nil {
			failures++
			if failures == 1 || failures%50 == 0 {
				log.Printf("control: tick failed (%d in a row): %v", failures, err)
			}
			continue
		}
		failures = 0
	}
}

// accept records an accepted command. It refreshes the watchdog and, unless
// the emergency stop is engaged, lets the next tick evaluate the state fresh.
func (c *Controller) accept() {
	c.lastCommand = c.opts.Now()
	if c.state == Stopped && !c.inhibited {
		c.state = FreeRotation
		c.locked = false
		c.stopReason = ""
	}
}

func (c *Controller) enterStopped(reason string) {
	if c.state != Stopped {
		log.Printf("control: stopped (%s)", reason)
	}
	c.state = Stopped
	c.stopReason = reason
	c.desired = Velocity{}
	c.locked = false
}

func (c *Controller) setFree() {
	c.state = FreeRotation
	c.locked = false
}

func (c *Controller) statusLocked() Status {
	st := c.hw.State()
	s := Status{
		State:             c.state,
		Heading:           st.Heading,
		DriftRate:         st.DriftRate,
		LastSampleAge:     st.LastSampleAge,
		HaveSample:        st.HaveSample,
		SensorLinkLost:    st.SensorLinkLost,
		Desired:           c.desired,
		Output:            c.output,
		Collector:         st.Collector,
		DriftCompensation: c.driftComp,
		Inhibited:         c.inhibited,
		LinkFault:         c.linkFault,
		StopReason:        c.stopReason,
	}
	if c.locked {
		target := c.lockTarget
		s.LockTarget = &target
	}
	return s
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return math.Max(-limit, math.Min(limit, v))
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func engaged(on bool) string {
	if on {
		return "engaged"
	}
	return "released"
}

// SensorLink names the sensor channel condition: ok, lost or waiting.
func (s Status) SensorLink() string {
	switch {
	case s.SensorLinkLost:
		return "lost"
	case !s.HaveSample:
		return "waiting"
	default:
		return "ok"
	}
}

// String renders a short human-readable summary.
func (s Status) String() string {
	return fmt.Sprintf("%s heading=%.3f drift=%.4f out=(%.2f,%.2f,%.3f)",
		s.State, s.Heading, s.DriftRate, s.Output.VX, s.Output.VY, s.Output.Omega)
}
