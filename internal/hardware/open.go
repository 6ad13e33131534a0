// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hardware

import (
	"fmt"
	"io"
	"log"

	"github.com/relabs-tech/drift_controller/internal/config"
	"github.com/relabs-tech/drift_controller/internal/imu"
	"github.com/relabs-tech/drift_controller/internal/orientation"
	"github.com/relabs-tech/drift_controller/internal/sensors"
	"github.com/relabs-tech/drift_controller/internal/serialport"
)

// Open resolves and opens both serial channels named in cfg and returns a
// running Interface.
func Open(cfg *config.Config) (*Interface, error) {
	moveName, err := serialport.Resolve(cfg.MovementPort, cfg.MovementUSBVID, nil)
	if err != nil {
		return nil, fmt.Errorf("movement port: %w", err)
	}
	sensorName, err := serialport.Resolve(cfg.SensorPort, cfg.SensorUSBVID, nil, moveName)
	if err != nil {
		return nil, fmt.Errorf("sensor port: %w", err)
	}

	movement, err := serialport.OpenChannel(moveName, cfg.BaudRate, nil)
	if err != nil {
		return nil, err
	}
	sensor, err := serialport.OpenChannel(sensorName, cfg.BaudRate, nil)
	if err != nil {
		movement.Close()
		return nil, err
	}

	reopen := func() (io.ReadCloser, error) {
		if err := sensor.Reopen(); err != nil {
			return nil, err
		}
		return sensor, nil
	}
	sampler, err := newSampler(cfg, sensor, reopen)
	if err != nil {
		movement.Close()
		sensor.Close()
		return nil, err
	}

	log.Printf("hardware: movement=%s sensor=%s baud=%d", moveName, sensorName, cfg.BaudRate)
	return New(movement, sensor, sampler, Options{Encoding: Encoding(cfg.CollectorEncoding)}, movement, sensor)
}

// OpenSimulated returns an Interface driving plant instead of real
// controllers. The plant emits frames at 100 Hz in cfg's frame format.
func OpenSimulated(cfg *config.Config, plant *Plant) (*Interface, error) {
	link := plant.SensorLink(samplePeriod, cfg.SensorFrameFormat)
	sampler, err := newSampler(cfg, link, nil)
	if err != nil {
		link.Close()
		return nil, err
	}
	log.Printf("hardware: simulated plant (%s frames)", cfg.SensorFrameFormat)
	return New(plant.Movement(), link, sampler, Options{Encoding: Encoding(cfg.CollectorEncoding)}, link)
}

func newSampler(cfg *config.Config, src io.ReadCloser, reopen func() (io.ReadCloser, error)) (*sensors.Sampler, error) {
	decoder, err := imu.NewDecoder(cfg.SensorFrameFormat)
	if err != nil {
		return nil, err
	}
	estimator, err := orientation.NewDriftEstimator(cfg.FilterAlpha, cfg.StaticAccelThreshold)
	if err != nil {
		return nil, err
	}
	return sensors.NewSampler(src, sensors.Options{
		Decoder:           decoder,
		Estimator:         estimator,
		Reopen:            reopen,
		ReconnectInterval: cfg.SensorReconnect,
	})
}
