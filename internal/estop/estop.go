// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package estop watches a hardware kill switch on a GPIO input.
package estop

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Inhibitor is told when the switch is engaged or released.
type Inhibitor interface {
	Inhibit(on bool) error
}

// OpenPin initializes the host drivers and looks up a GPIO by name, e.g. GPIO17.
func OpenPin(name string) (gpio.PinIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("estop: periph host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("estop: gpio pin %s not found", name)
	}
	return pin, nil
}

// Watcher forwards switch transitions to an Inhibitor. The level is re-read
// every poll interval as well as on edges, so a missed edge is corrected.
type Watcher struct {
	pin       gpio.PinIn
	activeLow bool
	target    Inhibitor
	poll      time.Duration
	engaged   atomic.Bool
}

// NewWatcher configures pin as an input with edge detection. An active-low
// switch gets a pull-up so an open circuit reads as released.
func NewWatcher(pin gpio.PinIn, activeLow bool, target Inhibitor) (*Watcher, error) {
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("estop: configure %s: %w", pin, err)
	}
	return &Watcher{pin: pin, activeLow: activeLow, target: target, poll: 100 * time.Millisecond}, nil
}

// Engaged reports whether the switch was engaged at the last read.
func (w *Watcher) Engaged() bool {
	return w.engaged.Load()
}

// Run watches the pin until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	log.Printf("estop: watching %s (active %s)", w.pin, activeLevel(w.activeLow))
	w.apply(w.pin.Read())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		w.pin.WaitForEdge(w.poll)
		w.apply(w.pin.Read())
	}
}

func (w *Watcher) apply(level gpio.Level) {
	on := level == gpio.Low
	if !w.activeLow {
		on = level == gpio.High
	}
	if w.engaged.Swap(on) == on {
		return
	}
	if err := w.target.Inhibit(on); err != nil {
		log.Printf("estop: %v", err)
	}
}

func activeLevel(activeLow bool) string {
	if activeLow {
		return "low"
	}
	return "high"
}
