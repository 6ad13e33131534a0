// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gateway

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/relabs-tech/drift_controller/internal/config"
	"github.com/relabs-tech/drift_controller/internal/control"
	"github.com/relabs-tech/drift_controller/internal/hardware"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"VEL,0.5,-0.1,0.25", Command{Kind: KindVelocity, Velocity: control.Velocity{VX: 0.5, VY: -0.1, Omega: 0.25}}},
		{"  vel , 1 , 0 , 0 \n", Command{Kind: KindVelocity, Velocity: control.Velocity{VX: 1}}},
		{"STOP", Command{Kind: KindStop}},
		{"stop\r\n", Command{Kind: KindStop}},
		{"COLLECTOR,forward", Command{Kind: KindCollector, Collector: hardware.CollectorForward}},
		{"COLLECTOR,Reverse", Command{Kind: KindCollector, Collector: hardware.CollectorReverse}},
		{"collector,stop", Command{Kind: KindCollector, Collector: hardware.CollectorStop}},
		{"RESET_HEADING", Command{Kind: KindResetHeading}},
		{"STATUS", Command{Kind: KindStatus}},
		{"DRIFT_COMP,off", Command{Kind: KindDriftComp, On: false}},
		{"DRIFT_COMP,ON", Command{Kind: KindDriftComp, On: true}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"VEL",
		"VEL,1,2",
		"VEL,1,2,3,4",
		"VEL,a,0,0",
		"VEL,NaN,0,0",
		"VEL,0,Inf,0",
		"COLLECTOR",
		"COLLECTOR,sideways",
		"STOP,now",
		"STATUS,1",
		"DRIFT_COMP,maybe",
		"JUMP",
	} {
		if _, err := Parse(in); !errors.Is(err, ErrCommandParse) {
			t.Errorf("Parse(%q): got %v, want ErrCommandParse", in, err)
		}
	}
}

// fakeController records the calls the gateway makes.
type fakeController struct {
	mu        sync.Mutex
	calls     []string
	velocity  control.Velocity
	status    control.Status
	velErr    error
	driftComp bool
}

func (f *fakeController) record(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Velocity() control.Velocity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.velocity
}

func (f *fakeController) SetVelocity(vx, vy, omega float64) error {
	f.record("vel")
	f.mu.Lock()
	f.velocity = control.Velocity{VX: vx, VY: vy, Omega: omega}
	f.mu.Unlock()
	return f.velErr
}

func (f *fakeController) Stop() error { f.record("stop"); return nil }

func (f *fakeController) SetCollector(mode hardware.CollectorMode) error {
	f.record("collector:" + mode.String())
	return nil
}

func (f *fakeController) ResetHeading() { f.record("reset") }

func (f *fakeController) SetDriftCompensation(on bool) {
	f.record("driftcomp")
	f.driftComp = on
}

func (f *fakeController) Status() control.Status {
	f.record("status")
	return f.status
}

func TestGateway_HandleRoutes(t *testing.T) {
	fc := &fakeController{}
	g := New(fc)

	replies := []string{
		g.Handle("VEL,0.2,0,0.1"),
		g.Handle("COLLECTOR,reverse"),
		g.Handle("RESET_HEADING"),
		g.Handle("DRIFT_COMP,off"),
		g.Handle("STOP"),
	}
	for i, r := range replies {
		if r != "OK" {
			t.Errorf("reply %d: got %q, want OK", i, r)
		}
	}
	want := []string{"vel", "collector:reverse", "reset", "driftcomp", "stop"}
	got := fc.Calls()
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("calls: got %v, want %v", got, want)
	}
}

func TestGateway_ParseErrorNeverReachesController(t *testing.T) {
	fc := &fakeController{}
	g := New(fc)

	reply := g.Handle("VEL,1,x,0")
	if !strings.HasPrefix(reply, "ERR ") {
		t.Errorf("reply: got %q", reply)
	}
	if len(fc.Calls()) != 0 {
		t.Errorf("controller was called: %v", fc.Calls())
	}
	if g.Rejected() != 1 {
		t.Errorf("rejected: got %d", g.Rejected())
	}
}

func TestGateway_ControllerErrorIsReported(t *testing.T) {
	fc := &fakeController{velErr: control.ErrInhibited}
	reply := New(fc).Handle("VEL,1,0,0")
	if reply != "ERR "+control.ErrInhibited.Error() {
		t.Errorf("reply: got %q", reply)
	}
}

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		name string
		s    control.Status
		want string
	}{
		{
			"locked",
			control.Status{State: control.HeadingLocked, Heading: 0.12345, DriftRate: -0.01, HaveSample: true, LastSampleAge: 12 * time.Millisecond},
			"STATUS,0.1235,-0.0100,0.012,heading_locked,ok",
		},
		{
			"no sample yet",
			control.Status{State: control.Stopped},
			"STATUS,0.0000,0.0000,-1.000,stopped,waiting",
		},
		{
			"link lost",
			control.Status{State: control.FreeRotation, Heading: 1, HaveSample: true, SensorLinkLost: true, LastSampleAge: 2 * time.Second},
			"STATUS,1.0000,0.0000,2.000,free_rotation,lost",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatStatus(tt.s); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// simRig is the real controller and hardware interface over a simulated plant.
type simRig struct {
	plant *hardware.Plant
	ctl   *control.Controller
	g     *Gateway
	clock *stepClock
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newSimRig(t *testing.T) *simRig {
	t.Helper()
	cfg := config.Default()
	cfg.SensorFrameFormat = "nmea"
	plant := hardware.NewPlant(0)
	hw, err := hardware.OpenSimulated(cfg, plant)
	if err != nil {
		t.Fatalf("OpenSimulated: %v", err)
	}
	t.Cleanup(func() { hw.Close() })

	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts := control.OptionsFromConfig(cfg)
	opts.Now = clock.Now
	ctl, err := control.New(hw, opts)
	if err != nil {
		t.Fatalf("control.New: %v", err)
	}
	return &simRig{plant: plant, ctl: ctl, g: New(ctl), clock: clock}
}

func (r *simRig) tick(t *testing.T) {
	t.Helper()
	if err := r.ctl.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func (r *simRig) lastMove() string {
	lines := r.plant.MovementLines()
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func TestScenario_CollectorForwardLeavesVelocityAlone(t *testing.T) {
	rig := newSimRig(t)

	rig.g.Handle("VEL,0.4,0.1,0.3")
	rig.tick(t)
	before := rig.ctl.Snapshot().Desired

	if reply := rig.g.Handle("COLLECTOR,forward"); reply != "OK" {
		t.Fatalf("reply: %q", reply)
	}
	tokens := rig.plant.CollectorTokens()
	if len(tokens) != 1 || tokens[0] != "forward" {
		t.Errorf("actuator tokens: got %v, want exactly [forward]", tokens)
	}
	if after := rig.ctl.Snapshot().Desired; after != before {
		t.Errorf("desired velocity changed: %+v -> %+v", before, after)
	}
}

func TestScenario_StopThenVelocityResumes(t *testing.T) {
	rig := newSimRig(t)

	rig.g.Handle("VEL,0.5,0,0.3")
	rig.tick(t)
	rig.g.Handle("STOP")
	rig.tick(t)
	if rig.lastMove() != "STOP" {
		t.Fatalf("after STOP: last movement %q", rig.lastMove())
	}

	rig.clock.Advance(100 * time.Millisecond)
	if reply := rig.g.Handle("VEL,1,0,0"); reply != "OK" {
		t.Fatalf("reply: %q", reply)
	}
	rig.tick(t)
	if got := rig.lastMove(); !strings.HasPrefix(got, "VEL,1.000,0.000,") {
		t.Errorf("after VEL: last movement %q, want motion", got)
	}
}

func TestScenario_ParseErrorDoesNotFeedWatchdog(t *testing.T) {
	rig := newSimRig(t)

	rig.g.Handle("VEL,0.5,0,0.3")
	rig.clock.Advance(900 * time.Millisecond)
	if reply := rig.g.Handle("VEL,0.5,zero,0.3"); !strings.HasPrefix(reply, "ERR") {
		t.Fatalf("reply: %q", reply)
	}
	rig.clock.Advance(200 * time.Millisecond)
	rig.tick(t)

	if rig.ctl.Snapshot().State != control.Stopped {
		t.Error("malformed command refreshed the watchdog")
	}
	if rig.lastMove() != "STOP" {
		t.Errorf("last movement %q, want STOP", rig.lastMove())
	}
}

func TestScenario_StatusReply(t *testing.T) {
	rig := newSimRig(t)
	rig.g.Handle("VEL,0,0,0")
	rig.tick(t)

	reply := rig.g.Handle("status")
	fields := strings.Split(reply, ",")
	if len(fields) != 6 || fields[0] != "STATUS" {
		t.Fatalf("reply: %q", reply)
	}
	if fields[4] != "heading_locked" {
		t.Errorf("state field: %q", fields[4])
	}
}
