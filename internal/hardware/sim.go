// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package hardware

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/drift_controller/internal/imu"
)

// Plant simulates the robot base and its orientation sensor. The chassis
// turns at the last commanded rate plus a constant drift, and the planar
// accelerometer shows a small vibration while the base is moving.
type Plant struct {
	drift float64

	mu      sync.Mutex
	vx, vy  float64
	omega   float64
	device  time.Duration
	moves   []string
	tokens  []string
	heading float64
}

// NewPlant returns a plant that drifts at drift rad/s.
func NewPlant(drift float64) *Plant {
	return &Plant{drift: drift}
}

// Movement returns the writer standing in for the movement controller.
func (p *Plant) Movement() io.Writer {
	return plantMovement{p}
}

// Command returns the last velocity the movement controller accepted.
func (p *Plant) Command() (vx, vy, omega float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vx, p.vy, p.omega
}

// MovementLines returns every command line written to the movement side.
func (p *Plant) MovementLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.moves...)
}

// CollectorTokens returns every token written to the actuator side.
func (p *Plant) CollectorTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.tokens...)
}

// Heading returns the true yaw of the simulated chassis.
func (p *Plant) Heading() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heading
}

// Next advances the simulation by dt and returns the sample the sensor reports.
func (p *Plant) Next(dt time.Duration) imu.Sample {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.device += dt
	gz := p.omega + p.drift
	p.heading += gz * dt.Seconds()

	elapsed := p.device.Seconds()
	var ax, ay float64
	if p.vx != 0 || p.vy != 0 {
		ax = 0.05 * math.Sin(elapsed*7)
		ay = 0.05 * math.Cos(elapsed*5)
	}
	return imu.Sample{
		GyroZ:       gz,
		AccelX:      ax,
		AccelY:      ay,
		Temperature: 24 + 0.5*math.Sin(elapsed*0.1),
		DeviceTime:  p.device,
	}
}

func (p *Plant) apply(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves = append(p.moves, line)

	if line == "STOP" {
		p.vx, p.vy, p.omega = 0, 0, 0
		return
	}
	fields := strings.Split(line, ",")
	if len(fields) != 4 || fields[0] != "VEL" {
		return
	}
	var v [3]float64
	for i, f := range fields[1:] {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return
		}
		v[i] = x
	}
	p.vx, p.vy, p.omega = v[0], v[1], v[2]
}

type plantMovement struct{ p *Plant }

func (m plantMovement) Write(b []byte) (int, error) {
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			m.p.apply(line)
		}
	}
	return len(b), nil
}

// SensorLink returns a duplex channel standing in for the sensor/actuator
// controller. It emits one frame every period in the given format ("block"
// or "nmea") until closed; writes are recorded as collector tokens.
func (p *Plant) SensorLink(period time.Duration, format string) io.ReadWriteCloser {
	pr, pw := io.Pipe()
	l := &sensorLink{plant: p, pr: pr, pw: pw, stop: make(chan struct{})}
	encode := imu.FormatSentence
	if format == "block" || format == "" {
		encode = func(s imu.Sample) string { return strings.TrimSuffix(imu.FormatBlock(s), "\n") }
	}
	go l.run(period, encode)
	return l
}

type sensorLink struct {
	plant *Plant
	pr    *io.PipeReader
	pw    *io.PipeWriter
	stop  chan struct{}
	once  sync.Once
}

func (l *sensorLink) run(period time.Duration, encode func(imu.Sample) string) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
		if _, err := io.WriteString(l.pw, encode(l.plant.Next(period))+"\n"); err != nil {
			return
		}
	}
}

func (l *sensorLink) Read(b []byte) (int, error) {
	return l.pr.Read(b)
}

func (l *sensorLink) Write(b []byte) (int, error) {
	select {
	case <-l.stop:
		return 0, io.ErrClosedPipe
	default:
	}
	l.plant.mu.Lock()
	l.plant.tokens = append(l.plant.tokens, strings.TrimSpace(string(b)))
	l.plant.mu.Unlock()
	return len(b), nil
}

func (l *sensorLink) Close() error {
	l.once.Do(func() {
		close(l.stop)
		l.pr.Close()
		l.pw.Close()
	})
	return nil
}

const samplePeriod = 10 * time.Millisecond
