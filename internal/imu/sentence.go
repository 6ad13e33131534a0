// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// TypeIMU is the proprietary sentence type emitted by the checksumming
// firmware: $PIMU,<ms>,<gyro_z>,<accel_x>,<accel_y>,<temp_c>*HH
const TypeIMU = "IMU"

// IMUSentence is the parsed form of a $PIMU sentence.
type IMUSentence struct {
	nmea.BaseSentence
	TimeMS      int64
	GyroZ       float64
	AccelX      float64
	AccelY      float64
	Temperature float64
}

func parseIMUSentence(s nmea.BaseSentence) (nmea.Sentence, error) {
	p := nmea.NewParser(s)
	if len(s.Fields) != 5 {
		return nil, fmt.Errorf("PIMU: expected 5 fields, got %d", len(s.Fields))
	}
	for i, f := range s.Fields {
		if f == "" {
			return nil, fmt.Errorf("PIMU: field %d is empty", i)
		}
	}
	m := IMUSentence{
		BaseSentence: s,
		TimeMS:       p.Int64(0, "time"),
		GyroZ:        p.Float64(1, "gyro_z"),
		AccelX:       p.Float64(2, "accel_x"),
		AccelY:       p.Float64(3, "accel_y"),
		Temperature:  p.Float64(4, "temp_c"),
	}
	return m, p.Err()
}

// SentenceDecoder parses single-line checksummed $PIMU sentences. A checksum
// mismatch or a field that fails to parse drops the frame.
type SentenceDecoder struct {
	parser nmea.SentenceParser
}

// NewSentenceDecoder returns a decoder with the $PIMU parser registered.
func NewSentenceDecoder() *SentenceDecoder {
	return &SentenceDecoder{
		parser: nmea.SentenceParser{
			CustomParsers: map[string]nmea.ParserFunc{
				TypeIMU:       parseIMUSentence,
				"P" + TypeIMU: parseIMUSentence,
			},
		},
	}
}

// Feed implements Decoder.
func (d *SentenceDecoder) Feed(line string, now time.Time) (Sample, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		// firmware chatter between sentences
		return Sample{}, false, nil
	}

	sentence, err := d.parser.Parse(line)
	if err != nil {
		return Sample{}, false, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	m, ok := sentence.(IMUSentence)
	if !ok {
		return Sample{}, false, fmt.Errorf("%w: unexpected sentence %s", ErrMalformedFrame, sentence.DataType())
	}
	for _, v := range []float64{m.GyroZ, m.AccelX, m.AccelY, m.Temperature} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, false, fmt.Errorf("%w: non-finite value in %q", ErrMalformedFrame, line)
		}
	}
	if m.TimeMS < 0 {
		return Sample{}, false, fmt.Errorf("%w: negative time in %q", ErrMalformedFrame, line)
	}

	return Sample{
		GyroZ:       m.GyroZ,
		AccelX:      m.AccelX,
		AccelY:      m.AccelY,
		Temperature: m.Temperature,
		CapturedAt:  now,
		DeviceTime:  time.Duration(m.TimeMS) * time.Millisecond,
	}, true, nil
}

// FormatSentence renders a sample as a $PIMU sentence with a valid checksum.
// Used by the simulator and tests.
func FormatSentence(s Sample) string {
	body := fmt.Sprintf("PIMU,%d,%.6f,%.6f,%.6f,%.2f",
		s.DeviceTime.Milliseconds(), s.GyroZ, s.AccelX, s.AccelY, s.Temperature)
	return "$" + body + "*" + nmea.Checksum(body)
}
