// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"os"

	"github.com/relabs-tech/drift_controller/internal/serialport"
)

// RunPortList prints the serial ports on this machine so MOVEMENT_USB_VID
// and SENSOR_USB_VID can be filled in.
func RunPortList() error {
	ports, err := serialport.SystemPorts()
	if err != nil {
		return err
	}
	printPorts(os.Stdout, ports)
	return nil
}

func printPorts(w io.Writer, ports []serialport.PortInfo) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return
	}
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Fprintf(w, "%-16s (not USB)\n", p.Name)
			continue
		}
		fmt.Fprintf(w, "%-16s vid=%s pid=%s serial=%s %s\n", p.Name, p.VID, p.PID, p.Serial, p.Product)
	}
}
