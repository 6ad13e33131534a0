// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package hardware owns the two serial channels of the robot: the movement
// controller and the sensor/actuator controller.
package hardware

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/drift_controller/internal/imu"
	"github.com/relabs-tech/drift_controller/internal/sensors"
)

// ErrHardwareLink is wrapped by every failed write to a controller.
var ErrHardwareLink = errors.New("hardware link failure")

// State is a consistent view of the sensor-derived robot state.
type State struct {
	Heading        float64       `json:"heading"`
	DriftRate      float64       `json:"drift_rate"`
	LastSampleAge  time.Duration `json:"last_sample_age"`
	HaveSample     bool          `json:"have_sample"`
	SensorLinkLost bool          `json:"sensor_link_lost"`
	Sample         imu.Sample    `json:"sample"`
	Collector      CollectorMode `json:"collector"`
	Malformed      uint64        `json:"malformed_frames"`
}

// Options configures an Interface.
type Options struct {
	Encoding Encoding
	Now      func() time.Time
}

// Interface is the single owner of both hardware channels.
type Interface struct {
	moveMu   sync.Mutex
	movement io.Writer

	collMu   sync.Mutex
	actuator io.Writer

	sampler   *sensors.Sampler
	collector atomic.Int32
	encoding  Encoding
	now       func() time.Time

	closers   []io.Closer
	closeOnce sync.Once
	closeErr  error
}

// New wires the movement writer, the actuator writer and the sampler reading
// the sensor side, and starts the sampler. closers are closed by Close after
// the sampler has stopped.
func New(movement, actuator io.Writer, sampler *sensors.Sampler, opts Options, closers ...io.Closer) (*Interface, error) {
	if movement == nil || actuator == nil || sampler == nil {
		return nil, errors.New("hardware: movement, actuator and sampler are required")
	}
	if opts.Encoding == "" {
		opts.Encoding = EncodingWord
	}
	if opts.Encoding != EncodingWord && opts.Encoding != EncodingLegacy {
		return nil, fmt.Errorf("hardware: unknown collector encoding %q", opts.Encoding)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &Interface{
		movement: movement,
		actuator: actuator,
		sampler:  sampler,
		encoding: opts.Encoding,
		now:      opts.Now,
		closers:  closers,
	}
	sampler.Start()
	return h, nil
}

// SendVelocity writes a movement command. A failed write is returned wrapped
// in ErrHardwareLink; the caller retries on its next cycle.
func (h *Interface) SendVelocity(vx, vy, omega float64) error {
	if err := h.writeMovement(fmt.Sprintf("VEL,%.3f,%.3f,%.3f\n", vx, vy, omega)); err != nil {
		return err
	}
	h.sampler.SetCommandedRate(omega)
	return nil
}

// StopMovement writes STOP regardless of what was sent before.
func (h *Interface) StopMovement() error {
	if err := h.writeMovement("STOP\n"); err != nil {
		return err
	}
	h.sampler.SetCommandedRate(0)
	return nil
}

func (h *Interface) writeMovement(line string) error {
	h.moveMu.Lock()
	defer h.moveMu.Unlock()
	if _, err := io.WriteString(h.movement, line); err != nil {
		return fmt.Errorf("movement write: %w: %w", ErrHardwareLink, err)
	}
	return nil
}

// SetCollector writes the collector mode on the actuator channel. It never
// waits on the movement channel.
func (h *Interface) SetCollector(mode CollectorMode) error {
	h.collMu.Lock()
	defer h.collMu.Unlock()
	if _, err := io.WriteString(h.actuator, mode.Token(h.encoding)); err != nil {
		return fmt.Errorf("collector write: %w: %w", ErrHardwareLink, err)
	}
	h.collector.Store(int32(mode))
	return nil
}

// State returns the latest published sensor state without blocking on I/O.
func (h *Interface) State() State {
	snap := h.sampler.Snapshot()
	st := State{
		Heading:        snap.Heading,
		DriftRate:      snap.DriftRate,
		HaveSample:     snap.HaveSample,
		SensorLinkLost: snap.LinkLost,
		Sample:         snap.Sample,
		Collector:      CollectorMode(h.collector.Load()),
		Malformed:      snap.Malformed,
	}
	if snap.HaveSample {
		st.LastSampleAge = h.now().Sub(snap.Sample.CapturedAt)
	}
	return st
}

// ResetHeading zeroes the integrated heading. Calling it twice is the same
// as calling it once.
func (h *Interface) ResetHeading() {
	h.sampler.ResetHeading()
}

// Close stops the collector, stops the sampler, sends STOP and closes the
// channels. Only the first call does anything.
func (h *Interface) Close() error {
	h.closeOnce.Do(func() {
		var errs []error
		if err := h.SetCollector(CollectorStop); err != nil {
			errs = append(errs, err)
		}
		h.sampler.Stop()
		if err := h.StopMovement(); err != nil {
			errs = append(errs, err)
		}
		for _, c := range h.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		h.closeErr = errors.Join(errs...)
		if h.closeErr != nil {
			log.Printf("hardware: close: %v", h.closeErr)
		} else {
			log.Println("hardware: channels closed")
		}
	})
	return h.closeErr
}
