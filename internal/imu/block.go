// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// BlockDecoder parses the multi-line frames printed by the ESP32 firmware:
//
//	time: 12345 ms
//	accel_x: 0.123, accel_y: 0.456, accel_z: 9.810
//	gyro_x: 0.001, gyro_y: 0.002, gyro_z: 0.003
//	temp_c: 25.50
//	---
//
// The time line is optional. Lines the decoder does not recognise (boot
// banners, debug prints) are skipped without affecting the frame. Once a
// frame is rejected its remaining lines are skipped up to the next time line
// or terminator, so a bad frame is reported once.
type BlockDecoder struct {
	cur      Sample
	seen     uint8
	rejected bool
}

const (
	seenTime = 1 << iota
	seenAccel
	seenGyro
	seenTemp

	seenRequired = seenAccel | seenGyro | seenTemp
)

// Feed implements Decoder.
func (d *BlockDecoder) Feed(line string, now time.Time) (Sample, bool, error) {
	line = strings.TrimSpace(line)
	if d.rejected {
		switch {
		case line == "---":
			d.rejected = false
			return Sample{}, false, nil
		case strings.HasPrefix(line, "time:"):
			d.rejected = false
		default:
			return Sample{}, false, nil
		}
	}

	switch {
	case line == "":
		return Sample{}, false, nil

	case line == "---":
		s, seen := d.cur, d.seen
		d.reset()
		if seen&seenRequired != seenRequired {
			return Sample{}, false, fmt.Errorf("%w: frame ended with fields missing (have 0b%04b)", ErrMalformedFrame, seen)
		}
		s.CapturedAt = now
		return s, true, nil

	case strings.HasPrefix(line, "time:"):
		partial := d.seen != 0
		d.reset()
		ms, err := strconv.ParseUint(strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, "time:"), "ms")), 10, 64)
		if err != nil {
			d.reject()
			return Sample{}, false, fmt.Errorf("%w: time %q", ErrMalformedFrame, line)
		}
		d.cur.DeviceTime = time.Duration(ms) * time.Millisecond
		d.seen |= seenTime
		if partial {
			return Sample{}, false, fmt.Errorf("%w: new frame started before terminator", ErrMalformedFrame)
		}
		return Sample{}, false, nil

	case strings.HasPrefix(line, "accel_x:"):
		f, err := parseFields(line, "accel_x", "accel_y")
		if err != nil {
			d.reject()
			return Sample{}, false, err
		}
		d.cur.AccelX, d.cur.AccelY = f[0], f[1]
		d.seen |= seenAccel

	case strings.HasPrefix(line, "gyro_x:"):
		f, err := parseFields(line, "gyro_z")
		if err != nil {
			d.reject()
			return Sample{}, false, err
		}
		d.cur.GyroZ = f[0]
		d.seen |= seenGyro

	case strings.HasPrefix(line, "temp_c:"):
		f, err := parseFields(line, "temp_c")
		if err != nil {
			d.reject()
			return Sample{}, false, err
		}
		d.cur.Temperature = f[0]
		d.seen |= seenTemp
	}
	return Sample{}, false, nil
}

func (d *BlockDecoder) reset() {
	d.cur = Sample{}
	d.seen = 0
}

func (d *BlockDecoder) reject() {
	d.reset()
	d.rejected = true
}

// parseFields extracts the named values from a "k: v, k: v" line.
func parseFields(line string, names ...string) ([]float64, error) {
	kv := make(map[string]string, 3)
	for _, part := range strings.Split(line, ",") {
		k, v, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: field %q", ErrMalformedFrame, part)
		}
		kv[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	out := make([]float64, len(names))
	for i, name := range names {
		raw, ok := kv[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s missing in %q", ErrMalformedFrame, name, line)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s=%q", ErrMalformedFrame, name, raw)
		}
		out[i] = f
	}
	return out, nil
}

// FormatBlock renders a sample in the legacy multi-line layout, terminator included.
func FormatBlock(s Sample) string {
	return fmt.Sprintf("time: %d ms\naccel_x: %.6f, accel_y: %.6f, accel_z: 9.810\ngyro_x: 0.000, gyro_y: 0.000, gyro_z: %.6f\ntemp_c: %.2f\n---\n",
		s.DeviceTime.Milliseconds(), s.AccelX, s.AccelY, s.GyroZ, s.Temperature)
}
