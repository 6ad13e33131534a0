// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package estop

import (
	"context"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type recordingInhibitor struct {
	mu    sync.Mutex
	calls []bool
}

func (r *recordingInhibitor) Inhibit(on bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, on)
	r.mu.Unlock()
	return nil
}

func (r *recordingInhibitor) Calls() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.calls...)
}

func waitCalls(t *testing.T, r *recordingInhibitor, n int) []bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		calls := r.Calls()
		if len(calls) >= n {
			return calls
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d inhibit calls, want %d", len(calls), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWatcher_ActiveLowSwitch(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", Num: 17, EdgesChan: make(chan gpio.Level)}
	rec := &recordingInhibitor{}

	w, err := NewWatcher(pin, true, rec)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.poll = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// pulled up: released at start, nothing to report
	time.Sleep(20 * time.Millisecond)
	if calls := rec.Calls(); len(calls) != 0 {
		t.Fatalf("unexpected calls at rest: %v", calls)
	}

	pin.EdgesChan <- gpio.Low
	calls := waitCalls(t, rec, 1)
	if !calls[0] || !w.Engaged() {
		t.Errorf("after press: calls %v engaged %v", calls, w.Engaged())
	}

	pin.EdgesChan <- gpio.High
	calls = waitCalls(t, rec, 2)
	if calls[1] {
		t.Errorf("after release: calls %v", calls)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestWatcher_ActiveHighEngagedAtStart(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO27", Num: 27, EdgesChan: make(chan gpio.Level)}
	rec := &recordingInhibitor{}

	w, err := NewWatcher(pin, false, rec)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.poll = 5 * time.Millisecond
	pin.Lock()
	pin.L = gpio.High
	pin.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	calls := waitCalls(t, rec, 1)
	if !calls[0] {
		t.Errorf("switch held at start should inhibit, got %v", calls)
	}
}
