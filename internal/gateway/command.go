// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gateway turns operator command messages into controller calls
// and carries them over UDP, WebSocket and MQTT.
package gateway

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/relabs-tech/drift_controller/internal/control"
	"github.com/relabs-tech/drift_controller/internal/hardware"
)

// ErrCommandParse is wrapped by every rejected message.
var ErrCommandParse = errors.New("command parse error")

// Kind identifies a command.
type Kind int

const (
	KindVelocity Kind = iota + 1
	KindStop
	KindCollector
	KindResetHeading
	KindStatus
	KindDriftComp
)

// Command is one parsed operator message.
type Command struct {
	Kind      Kind
	Velocity  control.Velocity
	Collector hardware.CollectorMode
	On        bool // DRIFT_COMP
}

// Parse decodes one message of the form KEYWORD[,arg...]. Keywords are
// case-insensitive and surrounding whitespace is ignored.
func Parse(msg string) (Command, error) {
	fields := strings.Split(strings.TrimSpace(msg), ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	keyword := strings.ToUpper(fields[0])
	args := fields[1:]

	switch keyword {
	case "VEL":
		if len(args) != 3 {
			return Command{}, parseErr("VEL takes vx,vy,omega")
		}
		var v [3]float64
		for i, a := range args {
			x, err := strconv.ParseFloat(a, 64)
			if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
				return Command{}, parseErr("bad number %q", a)
			}
			v[i] = x
		}
		return Command{Kind: KindVelocity, Velocity: control.Velocity{VX: v[0], VY: v[1], Omega: v[2]}}, nil

	case "COLLECTOR":
		if len(args) != 1 {
			return Command{}, parseErr("COLLECTOR takes one mode")
		}
		mode, err := hardware.ParseCollectorMode(args[0])
		if err != nil {
			return Command{}, parseErr("%v", err)
		}
		return Command{Kind: KindCollector, Collector: mode}, nil

	case "DRIFT_COMP":
		if len(args) != 1 {
			return Command{}, parseErr("DRIFT_COMP takes on or off")
		}
		switch strings.ToLower(args[0]) {
		case "on":
			return Command{Kind: KindDriftComp, On: true}, nil
		case "off":
			return Command{Kind: KindDriftComp, On: false}, nil
		}
		return Command{}, parseErr("DRIFT_COMP takes on or off")

	case "STOP", "RESET_HEADING", "STATUS":
		if len(args) != 0 {
			return Command{}, parseErr("%s takes no arguments", keyword)
		}
		kind := map[string]Kind{"STOP": KindStop, "RESET_HEADING": KindResetHeading, "STATUS": KindStatus}[keyword]
		return Command{Kind: kind}, nil

	case "":
		return Command{}, parseErr("empty message")
	}
	return Command{}, parseErr("unknown command %q", fields[0])
}

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCommandParse, fmt.Sprintf(format, args...))
}
