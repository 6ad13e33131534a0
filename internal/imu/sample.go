// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"time"
)

// ErrMalformedFrame is returned for a frame that cannot be turned into a
// Sample. The frame is dropped; nothing downstream changes.
var ErrMalformedFrame = errors.New("malformed orientation frame")

// Sample is a single orientation reading from the sensor controller.
type Sample struct {
	GyroZ       float64 `json:"gyro_z"`  // rad/s
	AccelX      float64 `json:"accel_x"` // m/s²
	AccelY      float64 `json:"accel_y"` // m/s²
	Temperature float64 `json:"temp_c"`  // °C

	// CapturedAt is the host time at which the frame was completed.
	CapturedAt time.Time `json:"captured_at"`
	// DeviceTime is the controller's own uptime clock, zero if the frame has none.
	DeviceTime time.Duration `json:"device_time_ms"`
}

// Interval returns the time between prev and s. The device clock is preferred
// since it is free of serial and scheduling jitter; the host clock is used
// when either frame lacks it or the device clock went backwards (reboot).
func (s Sample) Interval(prev Sample) time.Duration {
	if s.DeviceTime > 0 && prev.DeviceTime > 0 && s.DeviceTime > prev.DeviceTime {
		return s.DeviceTime - prev.DeviceTime
	}
	if d := s.CapturedAt.Sub(prev.CapturedAt); d > 0 {
		return d
	}
	return 0
}

// Decoder turns lines read from the sensor channel into samples.
//
// Feed returns (sample, true, nil) when line completes a frame,
// (zero, false, nil) when more lines are needed and an error wrapping
// ErrMalformedFrame when the frame must be discarded.
type Decoder interface {
	Feed(line string, now time.Time) (Sample, bool, error)
}

// NewDecoder returns the decoder for a SENSOR_FRAME_FORMAT value.
func NewDecoder(format string) (Decoder, error) {
	switch format {
	case "block", "":
		return &BlockDecoder{}, nil
	case "nmea":
		return NewSentenceDecoder(), nil
	default:
		return nil, errors.New("unknown sensor frame format: " + format)
	}
}
