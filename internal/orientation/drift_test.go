// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"math/rand"
	"testing"
)

const floatTolerance = 1e-9

func mustEstimator(t *testing.T, alpha float64) *DriftEstimator {
	t.Helper()
	e, err := NewDriftEstimator(alpha, DefaultStaticAccelThreshold)
	if err != nil {
		t.Fatalf("NewDriftEstimator: %v", err)
	}
	return e
}

func TestNewDriftEstimator_Validation(t *testing.T) {
	for _, alpha := range []float64{-0.1, 1, 1.5, math.NaN()} {
		if _, err := NewDriftEstimator(alpha, 0.5); err == nil {
			t.Errorf("alpha=%v: expected error", alpha)
		}
	}
	if _, err := NewDriftEstimator(0.5, -1); err == nil {
		t.Error("negative threshold: expected error")
	}
	if _, err := NewDriftEstimator(0, 0); err != nil {
		t.Errorf("alpha=0: %v", err)
	}
}

func TestDriftEstimator_SingleStep(t *testing.T) {
	e := mustEstimator(t, 0.98)
	got := e.Update(1.0, 0, 0, 0.01)
	if math.Abs(got-0.02) > floatTolerance {
		t.Errorf("got %v, want 0.02", got)
	}
}

func TestDriftEstimator_ConvergesToConstantDrift(t *testing.T) {
	e := mustEstimator(t, DefaultAlpha)
	var got float64
	for i := 0; i < 2000; i++ {
		got = e.Update(0.1, 0.05, -0.05, 0.01)
	}
	if math.Abs(got-0.1) > 1e-6 {
		t.Errorf("got %v, want ~0.1", got)
	}
}

func TestDriftEstimator_HoldsUnderAcceleration(t *testing.T) {
	e := mustEstimator(t, 0.9)
	e.Update(0.2, 0, 0, 0.01)
	before := e.Drift()

	after := e.Update(5.0, 2.0, 0, 0.01)
	if after != before {
		t.Errorf("estimate moved under acceleration: %v -> %v", before, after)
	}
}

func TestDriftEstimator_IgnoresNonPositiveInterval(t *testing.T) {
	e := mustEstimator(t, 0.5)
	if got := e.Update(1, 0, 0, 0); got != 0 {
		t.Errorf("dt=0: got %v, want 0", got)
	}
	if got := e.Update(1, 0, 0, -0.01); got != 0 {
		t.Errorf("dt<0: got %v, want 0", got)
	}
}

func TestDriftEstimator_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	type in struct{ gz, ax, ay, dt float64 }
	inputs := make([]in, 500)
	for i := range inputs {
		inputs[i] = in{rng.NormFloat64() * 0.1, rng.Float64() - 0.5, rng.Float64() - 0.5, 0.008 + rng.Float64()*0.004}
	}

	run := func() []float64 {
		e := mustEstimator(t, DefaultAlpha)
		out := make([]float64, len(inputs))
		for i, v := range inputs {
			out[i] = e.Update(v.gz, v.ax, v.ay, v.dt)
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("outputs diverge at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestDriftEstimator_InstancesIndependent(t *testing.T) {
	a := mustEstimator(t, 0.5)
	b := mustEstimator(t, 0.5)
	a.Update(1, 0, 0, 0.01)
	if b.Drift() != 0 {
		t.Errorf("second instance changed: %v", b.Drift())
	}
	a.Reset()
	if a.Drift() != 0 {
		t.Errorf("Reset: got %v", a.Drift())
	}
}
