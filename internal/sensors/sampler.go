// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/drift_controller/internal/imu"
	"github.com/relabs-tech/drift_controller/internal/orientation"
)

// ErrSensorLinkLost is reported when the sensor channel read fails. The
// integrated heading is frozen at its last value until samples resume.
var ErrSensorLinkLost = errors.New("sensor link lost")

// Snapshot is one complete generation of sampler output.
type Snapshot struct {
	Heading    float64    `json:"heading"`    // rad, integrated since last reset
	DriftRate  float64    `json:"drift_rate"` // rad/s
	Sample     imu.Sample `json:"sample"`
	HaveSample bool       `json:"have_sample"`
	LinkLost   bool       `json:"link_lost"`
	Generation uint64     `json:"generation"`
	Malformed  uint64     `json:"malformed"`
}

// Options configures a Sampler.
type Options struct {
	Decoder   imu.Decoder
	Estimator *orientation.DriftEstimator

	// Now defaults to time.Now.
	Now func() time.Time

	// Reopen, when set, is called every ReconnectInterval after the channel
	// fails until it returns a working reader.
	Reopen            func() (io.ReadCloser, error)
	ReconnectInterval time.Duration
}

// Sampler reads orientation frames from the sensor channel in its own
// goroutine, integrates heading and publishes the result for any number of
// readers. It is the only writer of its Snapshot.
type Sampler struct {
	decoder   imu.Decoder
	estimator *orientation.DriftEstimator
	now       func() time.Time
	reopen    func() (io.ReadCloser, error)
	interval  time.Duration

	// commanded is the last omega sent to the movement controller, as float64 bits.
	commanded atomic.Uint64

	mu       sync.RWMutex
	snap     Snapshot
	prev     imu.Sample
	havePrev bool

	srcMu    sync.Mutex
	src      io.ReadCloser
	stopping atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
}

// NewSampler returns a sampler reading from src. Call Start to begin reading.
func NewSampler(src io.ReadCloser, opts Options) (*Sampler, error) {
	if opts.Decoder == nil {
		return nil, errors.New("sampler: decoder is required")
	}
	if opts.Estimator == nil {
		est, err := orientation.NewDriftEstimator(orientation.DefaultAlpha, orientation.DefaultStaticAccelThreshold)
		if err != nil {
			return nil, err
		}
		opts.Estimator = est
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = time.Second
	}
	return &Sampler{
		decoder:   opts.Decoder,
		estimator: opts.Estimator,
		now:       opts.Now,
		reopen:    opts.Reopen,
		interval:  opts.ReconnectInterval,
		src:       src,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the read loop. Calls after the first, or after Stop, do nothing.
func (s *Sampler) Start() {
	if s.stopping.Load() || s.started.Swap(true) {
		return
	}
	go s.run()
}

// Stop ends the read loop and closes the channel. Safe to call more than once.
func (s *Sampler) Stop() {
	if !s.stopping.Swap(true) {
		close(s.stop)

		// blocked serial reads only return once the port is closed
		s.srcMu.Lock()
		if s.src != nil {
			_ = s.src.Close()
		}
		s.srcMu.Unlock()
	}
	if s.started.Load() {
		<-s.done
	}
}

// Done is closed when the read loop has exited.
func (s *Sampler) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the latest published state.
func (s *Sampler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ResetHeading zeroes the integrated heading. It takes the same lock as
// integration, so every increment lands entirely before or after the reset.
func (s *Sampler) ResetHeading() {
	s.mu.Lock()
	s.snap.Heading = 0
	s.snap.Generation++
	s.mu.Unlock()
}

// SetCommandedRate records the rotation rate last sent to the movement
// controller; the drift estimator only sees rotation beyond it.
func (s *Sampler) SetCommandedRate(omega float64) {
	s.commanded.Store(math.Float64bits(omega))
}

func (s *Sampler) run() {
	defer close(s.done)

	for {
		s.srcMu.Lock()
		src := s.src
		s.srcMu.Unlock()

		err := s.readFrom(src)
		if s.stopping.Load() {
			return
		}
		s.markLinkLost(err)

		if s.reopen == nil {
			return
		}
		if !s.reconnect() {
			return
		}
	}
}

// readFrom consumes lines until the reader fails.
func (s *Sampler) readFrom(src io.Reader) error {
	reader := bufio.NewReader(src)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		s.ingest(line)
	}
}

func (s *Sampler) ingest(line string) {
	sample, ok, err := s.decoder.Feed(line, s.now())
	if err != nil {
		s.mu.Lock()
		s.snap.Malformed++
		n := s.snap.Malformed
		s.mu.Unlock()
		if n == 1 || n%100 == 0 {
			log.Printf("sampler: dropped frame (%d so far): %v", n, err)
		}
		return
	}
	if !ok {
		return
	}
	s.publish(sample)
}

func (s *Sampler) publish(sample imu.Sample) {
	commanded := math.Float64frombits(s.commanded.Load())

	s.mu.Lock()
	defer s.mu.Unlock()

	var dt time.Duration
	if s.havePrev {
		dt = sample.Interval(s.prev)
	}
	s.prev = sample
	s.havePrev = true

	if s.snap.LinkLost {
		log.Printf("sampler: sensor link restored")
	}

	s.snap.Heading += sample.GyroZ * dt.Seconds()
	s.snap.DriftRate = s.estimator.Update(sample.GyroZ-commanded, sample.AccelX, sample.AccelY, dt.Seconds())
	s.snap.Sample = sample
	s.snap.HaveSample = true
	s.snap.LinkLost = false
	s.snap.Generation++
}

func (s *Sampler) markLinkLost(cause error) {
	s.mu.Lock()
	already := s.snap.LinkLost
	s.snap.LinkLost = true
	s.snap.Generation++
	// the gap is unknown, so the next sample starts a fresh interval
	s.havePrev = false
	s.mu.Unlock()

	if !already {
		log.Printf("sampler: %v: %v (heading frozen)", ErrSensorLinkLost, cause)
	}
}

func (s *Sampler) reconnect() bool {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return false
		case <-ticker.C:
		}

		src, err := s.reopen()
		if err != nil {
			continue
		}

		s.srcMu.Lock()
		if s.stopping.Load() {
			s.srcMu.Unlock()
			_ = src.Close()
			return false
		}
		s.src = src
		s.srcMu.Unlock()
		log.Printf("sampler: sensor channel reopened")
		return true
	}
}
