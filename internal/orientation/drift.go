// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation estimates the robot's unintended yaw rate.
package orientation

import (
	"fmt"
	"math"
)

const (
	DefaultAlpha                = 0.98
	DefaultStaticAccelThreshold = 0.5 // m/s²
)

// DriftEstimator is a complementary filter over the residual yaw rate.
//
// While the chassis is not accelerating in the plane, whatever rotation the
// gyro reports beyond what was commanded is drift, and it is blended in:
//
//	drift = alpha*drift + (1-alpha)*gyroZ
//
// Under planar acceleration wheel slip makes the gyro a poor drift reference,
// so the previous estimate is held.
type DriftEstimator struct {
	alpha     float64
	threshold float64
	drift     float64
}

// NewDriftEstimator returns an estimator starting at zero drift.
// alpha must be in [0,1); threshold is the planar acceleration magnitude in
// m/s² below which the robot counts as static.
func NewDriftEstimator(alpha, threshold float64) (*DriftEstimator, error) {
	if alpha < 0 || alpha >= 1 || math.IsNaN(alpha) {
		return nil, fmt.Errorf("drift estimator: alpha must be in [0,1), got %g", alpha)
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("drift estimator: threshold must not be negative, got %g", threshold)
	}
	return &DriftEstimator{alpha: alpha, threshold: threshold}, nil
}

// Update folds one sample into the estimate and returns it. gyroZ is the
// residual rate in rad/s, dt the interval since the previous sample in seconds.
func (e *DriftEstimator) Update(gyroZ, accelX, accelY, dt float64) float64 {
	if dt <= 0 {
		return e.drift
	}
	if math.Hypot(accelX, accelY) < e.threshold {
		e.drift = e.alpha*e.drift + (1-e.alpha)*gyroZ
	}
	return e.drift
}

// Drift returns the current estimate in rad/s.
func (e *DriftEstimator) Drift() float64 {
	return e.drift
}

// Reset returns the estimator to zero drift.
func (e *DriftEstimator) Reset() {
	e.drift = 0
}
