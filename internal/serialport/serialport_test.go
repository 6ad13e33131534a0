// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"errors"
	"testing"
)

func fakeLister(ports ...PortInfo) Lister {
	return func() ([]PortInfo, error) { return ports, nil }
}

func TestResolve_ExplicitNameUntouched(t *testing.T) {
	called := false
	list := func() ([]PortInfo, error) { called = true; return nil, nil }

	got, err := Resolve("/dev/ttyACM0", "0483", list)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/dev/ttyACM0" {
		t.Errorf("got %q", got)
	}
	if called {
		t.Error("lister should not be consulted for an explicit port")
	}
}

func TestResolve_AutoByVendor(t *testing.T) {
	list := fakeLister(
		PortInfo{Name: "/dev/ttyS0"},
		PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10c4", PID: "ea60"},
		PortInfo{Name: "/dev/ttyACM0", IsUSB: true, VID: "0483", PID: "374b"},
	)

	got, err := Resolve(Auto, "0483", list)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/dev/ttyACM0" {
		t.Errorf("movement: got %q, want /dev/ttyACM0", got)
	}

	got, err = Resolve(Auto, "10C4", list)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/dev/ttyUSB0" {
		t.Errorf("sensor: got %q, want /dev/ttyUSB0", got)
	}
}

func TestResolve_ExcludesClaimedPort(t *testing.T) {
	list := fakeLister(
		PortInfo{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86"},
		PortInfo{Name: "/dev/ttyUSB1", IsUSB: true, VID: "1a86"},
	)
	got, err := Resolve(Auto, "1a86", list, "/dev/ttyUSB0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "/dev/ttyUSB1" {
		t.Errorf("got %q, want /dev/ttyUSB1", got)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	_, err := Resolve(Auto, "dead", fakeLister(PortInfo{Name: "/dev/ttyS0"}))
	if !errors.Is(err, ErrNoMatchingPort) {
		t.Errorf("got %v, want ErrNoMatchingPort", err)
	}
}

func TestResolve_ListerError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Resolve(Auto, "0483", func() ([]PortInfo, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}
