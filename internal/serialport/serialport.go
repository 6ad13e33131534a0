// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serialport opens the duplex byte channels to the two
// microcontrollers and finds them on the USB bus when asked to.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"
	"go.bug.st/serial/enumerator"
)

// Auto is the port name that requests USB auto-detection.
const Auto = "auto"

// ErrNoMatchingPort is returned when auto-detection finds no candidate.
var ErrNoMatchingPort = errors.New("no matching serial port")

// Open opens name at baud 8N1. Reads block until at least one byte arrives;
// there is no read timeout.
func Open(name string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              name,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("serial %s: %w", name, err)
	}
	log.Printf("serial: opened %s at %d baud", name, baud)
	return port, nil
}

// PortInfo describes one serial device found on the system.
type PortInfo struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"is_usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

// Lister enumerates serial ports. The default lister asks the OS.
type Lister func() ([]PortInfo, error)

// SystemPorts lists the serial ports present on this machine.
func SystemPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial: enumerate ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     strings.ToLower(d.VID),
			PID:     strings.ToLower(d.PID),
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports, nil
}

// Resolve returns name unchanged unless it is Auto, in which case the first
// USB port whose vendor ID matches vid and which is not in exclude is chosen.
func Resolve(name, vid string, list Lister, exclude ...string) (string, error) {
	if name != Auto {
		return name, nil
	}
	if list == nil {
		list = SystemPorts
	}
	ports, err := list()
	if err != nil {
		return "", err
	}

	vid = strings.ToLower(vid)
	for _, p := range ports {
		if !p.IsUSB || p.VID != vid || contains(exclude, p.Name) {
			continue
		}
		log.Printf("serial: auto-detected %s (vid=%s pid=%s %s)", p.Name, p.VID, p.PID, p.Product)
		return p.Name, nil
	}
	return "", fmt.Errorf("%w: vid %s", ErrNoMatchingPort, vid)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
