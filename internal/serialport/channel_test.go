// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
)

// fakePort records writes and fails every operation once broken.
type fakePort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	broken bool
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken || p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.buf.Read(b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.broken || p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type fakeOpener struct {
	ports []*fakePort
	fail  bool
}

func (o *fakeOpener) open(name string, baud int) (io.ReadWriteCloser, error) {
	if o.fail {
		return nil, errors.New("no such device")
	}
	p := &fakePort{}
	o.ports = append(o.ports, p)
	return p, nil
}

func TestChannel_WriteFailureReopensOnNextWrite(t *testing.T) {
	op := &fakeOpener{}
	ch, err := OpenChannel("/dev/ttyACM0", 115200, op.open)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}

	op.ports[0].broken = true
	if _, err := ch.Write([]byte("STOP\n")); err == nil {
		t.Fatal("expected write error on broken port")
	}

	if _, err := ch.Write([]byte("STOP\n")); err != nil {
		t.Fatalf("write after reopen: %v", err)
	}
	if len(op.ports) != 2 {
		t.Fatalf("got %d opens, want 2", len(op.ports))
	}
	if !op.ports[0].closed {
		t.Error("old port should be closed on reopen")
	}
	if got := op.ports[1].buf.String(); got != "STOP\n" {
		t.Errorf("new port got %q", got)
	}
}

func TestChannel_ReopenFailureKeepsRetrying(t *testing.T) {
	op := &fakeOpener{}
	ch, err := OpenChannel("/dev/ttyACM0", 115200, op.open)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	op.ports[0].broken = true
	ch.Write([]byte("x"))

	op.fail = true
	if _, err := ch.Write([]byte("x")); err == nil {
		t.Fatal("expected error while device is absent")
	}
	op.fail = false
	if _, err := ch.Write([]byte("y")); err != nil {
		t.Fatalf("write once device is back: %v", err)
	}
}

func TestChannel_Close(t *testing.T) {
	op := &fakeOpener{}
	ch, err := OpenChannel("/dev/ttyUSB0", 115200, op.open)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := ch.Write([]byte("x")); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("write after close: got %v", err)
	}
	if err := ch.Reopen(); !errors.Is(err, ErrChannelClosed) {
		t.Errorf("reopen after close: got %v", err)
	}
}

func TestOpenChannel_OpenError(t *testing.T) {
	op := &fakeOpener{fail: true}
	if _, err := OpenChannel("/dev/none", 115200, op.open); err == nil {
		t.Fatal("expected error")
	}
}
