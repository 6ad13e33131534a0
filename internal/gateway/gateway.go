// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gateway

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/relabs-tech/drift_controller/internal/control"
	"github.com/relabs-tech/drift_controller/internal/hardware"
)

// Controller is the command surface of the heading controller.
type Controller interface {
	SetVelocity(vx, vy, omega float64) error
	Stop() error
	SetCollector(mode hardware.CollectorMode) error
	ResetHeading()
	SetDriftCompensation(on bool)
	Status() control.Status
}

// Gateway applies operator messages to a Controller. It is safe to share
// between transports; every message is applied immediately, last write wins.
type Gateway struct {
	ctl      Controller
	rejected atomic.Uint64
}

// New returns a gateway driving ctl.
func New(ctl Controller) *Gateway {
	return &Gateway{ctl: ctl}
}

// Handle applies one message and returns the reply line: OK, ERR <reason>
// or a STATUS report. Rejected messages never reach the controller, so they
// do not feed the watchdog.
func (g *Gateway) Handle(msg string) string {
	cmd, err := Parse(msg)
	if err != nil {
		n := g.rejected.Add(1)
		if n == 1 || n%100 == 0 {
			log.Printf("gateway: rejected %d messages, latest: %v", n, err)
		}
		return "ERR " + err.Error()
	}

	switch cmd.Kind {
	case KindVelocity:
		err = g.ctl.SetVelocity(cmd.Velocity.VX, cmd.Velocity.VY, cmd.Velocity.Omega)
	case KindStop:
		err = g.ctl.Stop()
	case KindCollector:
		err = g.ctl.SetCollector(cmd.Collector)
	case KindResetHeading:
		g.ctl.ResetHeading()
	case KindDriftComp:
		g.ctl.SetDriftCompensation(cmd.On)
	case KindStatus:
		return FormatStatus(g.ctl.Status())
	}
	if err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

// Rejected returns the number of messages that failed to parse.
func (g *Gateway) Rejected() uint64 {
	return g.rejected.Load()
}

// FormatStatus renders
// STATUS,<heading>,<drift_rate>,<last_sample_age_s>,<state>,<sensor_link>.
// The sample age is -1 until the first frame arrives.
func FormatStatus(s control.Status) string {
	age := -1.0
	if s.HaveSample {
		age = s.LastSampleAge.Seconds()
	}
	return fmt.Sprintf("STATUS,%.4f,%.4f,%.3f,%s,%s", s.Heading, s.DriftRate, age, s.State, s.SensorLink())
}
