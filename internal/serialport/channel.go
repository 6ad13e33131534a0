// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// ErrChannelClosed is returned by a Channel after Close.
var ErrChannelClosed = errors.New("serial channel closed")

// Opener opens a named port. Open is the production opener.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

// Channel is a serial port that survives the device dropping off the bus.
// After a failed read or write the port is marked broken and the next
// operation, or an explicit Reopen, opens it again by name.
type Channel struct {
	name string
	baud int
	open Opener

	mu     sync.Mutex
	port   io.ReadWriteCloser
	broken bool
	closed bool
}

// OpenChannel opens name with open (Open when nil).
func OpenChannel(name string, baud int, open Opener) (*Channel, error) {
	if open == nil {
		open = Open
	}
	c := &Channel{name: name, baud: baud, open: open}
	port, err := open(name, baud)
	if err != nil {
		return nil, err
	}
	c.port = port
	return c, nil
}

// Name returns the port name.
func (c *Channel) Name() string {
	return c.name
}

// Read reads from the current port. The lock is not held while blocked, so
// Close can interrupt a pending read.
func (c *Channel) Read(p []byte) (int, error) {
	port, err := c.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(p)
	if err != nil {
		c.fail(port)
	}
	return n, err
}

// Write writes to the current port.
func (c *Channel) Write(p []byte) (int, error) {
	port, err := c.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Write(p)
	if err != nil {
		c.fail(port)
	}
	return n, err
}

// Reopen closes the current port and opens it again.
func (c *Channel) Reopen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	return c.reopenLocked()
}

// Close closes the port. Further operations fail with ErrChannelClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

func (c *Channel) current() (io.ReadWriteCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	if c.port == nil || c.broken {
		if err := c.reopenLocked(); err != nil {
			return nil, err
		}
	}
	return c.port, nil
}

func (c *Channel) fail(port io.ReadWriteCloser) {
	c.mu.Lock()
	if c.port == port {
		c.broken = true
	}
	c.mu.Unlock()
}

func (c *Channel) reopenLocked() error {
	if c.port != nil {
		_ = c.port.Close()
		c.port = nil
	}
	port, err := c.open(c.name, c.baud)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", c.name, err)
	}
	c.port = port
	c.broken = false
	log.Printf("serial: reopened %s", c.name)
	return nil
}
