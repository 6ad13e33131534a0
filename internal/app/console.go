// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

// RunConsole is an operator console over UDP: each stdin line is sent to
// addr as one command and the reply is printed.
func RunConsole(addr string) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("console: dial %s: %w", addr, err)
	}
	defer conn.Close()
	log.Printf("console: sending commands to %s", addr)
	return runConsole(conn, os.Stdin, os.Stdout, 2*time.Second)
}

func runConsole(conn net.Conn, in io.Reader, out io.Writer, timeout time.Duration) error {
	buf := make([]byte, 512)
	return sendLines(in, func(cmd string) error {
		if _, err := conn.Write([]byte(cmd)); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(timeout))
		n, err := conn.Read(buf)
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			fmt.Fprintf(out, "%s: no reply\n", cmd)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, strings.TrimRight(string(buf[:n]), "\n"))
		return nil
	})
}
