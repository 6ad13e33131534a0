// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hardware

import (
	"fmt"
	"strings"
)

// CollectorMode is the ball collector motor direction.
type CollectorMode int

const (
	CollectorStop CollectorMode = iota
	CollectorForward
	CollectorReverse
)

// ErrUnknownCollectorMode is returned by ParseCollectorMode.
var ErrUnknownCollectorMode = fmt.Errorf("unknown collector mode")

// ParseCollectorMode accepts forward, reverse or stop in any case.
func ParseCollectorMode(s string) (CollectorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward":
		return CollectorForward, nil
	case "reverse":
		return CollectorReverse, nil
	case "stop":
		return CollectorStop, nil
	}
	return CollectorStop, fmt.Errorf("%w: %q", ErrUnknownCollectorMode, s)
}

func (m CollectorMode) String() string {
	switch m {
	case CollectorForward:
		return "forward"
	case CollectorReverse:
		return "reverse"
	default:
		return "stop"
	}
}

// MarshalText lets CollectorMode appear by name in JSON.
func (m CollectorMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Encoding selects how collector modes are written to the actuator firmware.
type Encoding string

const (
	// EncodingWord writes the mode name, one per line.
	EncodingWord Encoding = "word"
	// EncodingLegacy writes the single-letter codes of the first firmware,
	// whose motor is wired reversed: forward is sent as R.
	EncodingLegacy Encoding = "legacy"
)

// Token returns the bytes written for m under enc.
func (m CollectorMode) Token(enc Encoding) string {
	if enc == EncodingLegacy {
		switch m {
		case CollectorForward:
			return "R"
		case CollectorReverse:
			return "F"
		default:
			return "S"
		}
	}
	return m.String() + "\n"
}
