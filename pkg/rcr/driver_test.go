// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

// robotResponder answers like a dongle with a robot in range: config
// packets as echoDongle does, motion packets with a sensor report.
func robotResponder(sonar [3]byte) func([]byte) []byte {
	dongle := echoDongle()
	return func(packet []byte) []byte {
		if ClassifyPacket(packet) == KindMotion {
			return []byte{ReportHeader, 0, sonar[0], sonar[1], sonar[2], 0, 0, 0}
		}
		return dongle(packet)
	}
}

// silentRobot answers config packets but never reports.
func silentRobot() func([]byte) []byte {
	dongle := echoDongle()
	return func(packet []byte) []byte {
		if ClassifyPacket(packet) == KindMotion {
			return nil
		}
		return dongle(packet)
	}
}

func startDriver(t *testing.T, devices fakeDevices) *Driver {
	t.Helper()
	link, _ := newTestLink(t, devices)
	d := NewDriver(link, DriverConfig{
		PollInterval:    5 * time.Millisecond,
		WatchdogTimeout: 60 * time.Millisecond,
		MoveWindow:      250 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return d
}

// waitEvent reads events until one of type E satisfies match.
func waitEvent[E Event](t *testing.T, d *Driver, match func(E) bool) E {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-d.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if e, ok := ev.(E); ok && (match == nil || match(e)) {
				return e
			}
		case <-timeout:
			var zero E
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func isState(s LinkState) func(StateEvent) bool {
	return func(e StateEvent) bool { return e.State == s }
}

// waitWrite waits until the port has been sent want.
func waitWrite(t *testing.T, port *fakePort, want []byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, w := range port.writes() {
			if bytes.Equal(w, want) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("packet % X never written", want)
}

func TestDriver_ConnectPublishesStateSettingsAndSonar(t *testing.T) {
	port := &fakePort{respond: robotResponder([3]byte{30, 60, 90})}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitEvent(t, d, isState(Connected))
	if d.State() != Connected {
		t.Errorf("State() = %s, want connected", d.State())
	}

	settings := waitEvent[SettingsEvent](t, d, nil)
	want := Settings{Channel: 3, Speed: 56, Power: 0, Sensitivity: 1, BufferSize: 32}
	if settings.Settings != want {
		t.Errorf("settings = %+v, want %+v", settings.Settings, want)
	}

	sonar := waitEvent[SonarEvent](t, d, nil)
	if sonar.Reading != (SonarReading{30, 60, 90}) {
		t.Errorf("sonar = %v, want [30 60 90]", sonar.Reading)
	}

	waitWrite(t, port, IdleCommand.Bytes())
}

func TestDriver_WatchdogDisconnectsSilentLink(t *testing.T) {
	port := &fakePort{respond: silentRobot()}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, d, isState(Connected))

	down := waitEvent(t, d, isState(Disconnected))
	if down.Reason != "no communication" {
		t.Errorf("reason = %q, want %q", down.Reason, "no communication")
	}
	if d.State() != Disconnected {
		t.Errorf("State() = %s", d.State())
	}

	stats, err := d.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Disconnects != 1 {
		t.Errorf("Disconnects = %d, want 1", stats.Disconnects)
	}
	if stats.NoReply == 0 {
		t.Error("NoReply = 0, want unanswered polls counted")
	}
}

func TestDriver_ReportsKeepLinkAlive(t *testing.T) {
	port := &fakePort{respond: robotResponder([3]byte{1, 2, 3})}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, d, isState(Connected))

	// Several watchdog timeouts pass while the robot keeps reporting.
	time.Sleep(200 * time.Millisecond)
	if d.State() != Connected {
		t.Fatalf("State() = %s, want connected", d.State())
	}

	port.setRespond(silentRobot())
	waitEvent(t, d, isState(Disconnected))
}

func TestDriver_MoveAndSpeed(t *testing.T) {
	port := &fakePort{respond: robotResponder([3]byte{1, 2, 3})}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := d.SetSpeed(ctx, 100); err != nil {
		t.Fatalf("SetSpeed() error = %v", err)
	}
	if err := d.Move(ctx, Forward); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	waitWrite(t, port, []byte{0xFC, 0x0A, 0x00, 0x00})

	if err := d.SetSpeed(ctx, 101); !errors.Is(err, ErrInvalidSpeed) {
		t.Errorf("SetSpeed(101) error = %v, want ErrInvalidSpeed", err)
	}
}

func TestDriver_Set(t *testing.T) {
	port := &fakePort{respond: robotResponder([3]byte{1, 2, 3})}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var invalid *InvalidParameterValueError
	if err := d.Set(ctx, Channel, 10); !errors.As(err, &invalid) {
		t.Fatalf("Set(channel, 10) error = %v", err)
	}
	for _, w := range port.writes() {
		if ClassifyPacket(w) == KindConfigWrite {
			t.Fatalf("invalid value transmitted: % X", w)
		}
	}

	if err := d.Set(ctx, Channel, 4); err != nil {
		t.Fatalf("Set(channel, 4) error = %v", err)
	}
	status := waitEvent[StatusEvent](t, d, nil)
	if status.Parameter != Channel || status.Value != 4 {
		t.Errorf("status = %+v", status)
	}
	if want := []byte{0x43, 0x78, 0x1E, 0x07, 4}; !bytes.Equal(status.Status, want) {
		t.Errorf("status bytes = % X, want % X", status.Status, want)
	}

	got, err := d.Get(ctx, Channel)
	if err != nil || got != 4 {
		t.Errorf("Get(channel) = %d, %v, want 4", got, err)
	}
}

func TestDriver_DisconnectClearsSonar(t *testing.T) {
	port := &fakePort{respond: robotResponder([3]byte{30, 60, 90})}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent[SonarEvent](t, d, nil)

	if err := d.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	waitEvent(t, d, func(e SonarEvent) bool { return e.Reading == SonarReading{} })
	down := waitEvent(t, d, isState(Disconnected))
	if down.Reason != "disconnected" {
		t.Errorf("reason = %q", down.Reason)
	}
	if !port.isClosed() {
		t.Error("port left open")
	}
	if !d.Link().IsClosed() {
		t.Error("link not closed")
	}
}

func TestDriver_ClosedPortStopsPolling(t *testing.T) {
	port := &fakePort{respond: robotResponder([3]byte{1, 2, 3})}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, d, isState(Connected))

	d.Link().Close()

	down := waitEvent(t, d, isState(Disconnected))
	if down.Reason != "port closed" {
		t.Errorf("reason = %q, want %q", down.Reason, "port closed")
	}
}

func TestDriver_SelectPortStopsPolling(t *testing.T) {
	usb0 := &fakePort{respond: robotResponder([3]byte{1, 2, 3})}
	usb1 := &fakePort{respond: robotResponder([3]byte{1, 2, 3})}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": usb0, "/dev/ttyUSB1": usb1})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, d, isState(Connected))

	if err := d.SelectPort(ctx, "ttyUSB1"); err != nil {
		t.Fatalf("SelectPort() error = %v", err)
	}
	down := waitEvent(t, d, isState(Disconnected))
	if down.Reason != "port changed" {
		t.Errorf("reason = %q", down.Reason)
	}
	if !usb0.isClosed() {
		t.Error("previous port left open")
	}
	if d.Link().Name() != "ttyUSB1" {
		t.Errorf("Name() = %q", d.Link().Name())
	}

	before := len(usb1.writes())
	time.Sleep(50 * time.Millisecond)
	if after := len(usb1.writes()); after != before {
		t.Errorf("new port polled %d times before connect", after-before)
	}
}

func TestDriver_ConnectErrors(t *testing.T) {
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": &fakePort{}})
	ctx := context.Background()

	var unknown *UnknownPortError
	if err := d.Connect(ctx, "ttyACM9"); !errors.As(err, &unknown) {
		t.Errorf("Connect(unknown) error = %v, want UnknownPortError", err)
	}
	if err := d.Connect(ctx, ""); !errors.Is(err, ErrLinkClosed) {
		t.Errorf("Connect(\"\") error = %v, want ErrLinkClosed", err)
	}
	if d.State() != Disconnected {
		t.Errorf("State() = %s", d.State())
	}
}

func TestDriver_MoveWhileDisconnectedStaysDown(t *testing.T) {
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": &fakePort{}})

	if err := d.Move(context.Background(), Forward); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if d.State() != Disconnected {
		t.Errorf("State() = %s, want disconnected", d.State())
	}
}

func TestDriver_StoppedRejectsRequests(t *testing.T) {
	link, _ := newTestLink(t, fakeDevices{})
	d := NewDriver(link, DriverConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := d.Get(context.Background(), Channel); !errors.Is(err, ErrDriverStopped) {
		t.Errorf("Get() error = %v, want ErrDriverStopped", err)
	}
	if _, ok := <-d.Events(); ok {
		t.Error("event stream still open")
	}
}

func TestDriver_OperatorActivityKeepsSilentLinkUp(t *testing.T) {
	tests := []struct {
		name string
		act  func(ctx context.Context, d *Driver) error
	}{
		{"move", func(ctx context.Context, d *Driver) error { return d.Move(ctx, Forward) }},
		{"set", func(ctx context.Context, d *Driver) error { return d.Set(ctx, Channel, 4) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{respond: silentRobot()}
			d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
			ctx := context.Background()

			if err := d.Connect(ctx, "ttyUSB0"); err != nil {
				t.Fatalf("Connect() error = %v", err)
			}
			waitEvent(t, d, isState(Connected))

			// The robot never reports, yet several watchdog timeouts pass.
			for end := time.Now().Add(200 * time.Millisecond); time.Now().Before(end); {
				if err := tt.act(ctx, d); err != nil {
					t.Fatalf("%s error = %v", tt.name, err)
				}
				if d.State() != Connected {
					t.Fatalf("State() = %s during %s, want connected", d.State(), tt.name)
				}
				time.Sleep(20 * time.Millisecond)
			}

			down := waitEvent(t, d, isState(Disconnected))
			if down.Reason != "no communication" {
				t.Errorf("reason = %q, want %q", down.Reason, "no communication")
			}
			expectNoStateEvent(t, d, 150*time.Millisecond)

			stats, err := d.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats() error = %v", err)
			}
			if stats.Disconnects != 1 {
				t.Errorf("Disconnects = %d, want 1", stats.Disconnects)
			}
		})
	}
}

func TestDriver_DisconnectAfterWatchdogPublishesNothing(t *testing.T) {
	port := &fakePort{respond: silentRobot()}
	d := startDriver(t, fakeDevices{"/dev/ttyUSB0": port})
	ctx := context.Background()

	if err := d.Connect(ctx, "ttyUSB0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitEvent(t, d, isState(Connected))
	waitEvent(t, d, isState(Disconnected))

	if err := d.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if !port.isClosed() {
		t.Error("port left open")
	}
	expectNoStateEvent(t, d, 50*time.Millisecond)
}

func TestDriver_FullBufferKeepsStateEvents(t *testing.T) {
	link, _ := newTestLink(t, fakeDevices{})
	d := NewDriver(link, DriverConfig{EventBuffer: 3}, nil)

	up := StateEvent{State: Connected}
	down := StateEvent{State: Disconnected, Reason: "no communication"}
	d.emit(up)
	d.emit(SonarEvent{Reading: SonarReading{1, 1, 1}})
	d.emit(SonarEvent{Reading: SonarReading{2, 2, 2}})
	d.emit(SonarEvent{Reading: SonarReading{3, 3, 3}})
	d.emit(down)

	want := []Event{up, SonarEvent{Reading: SonarReading{2, 2, 2}}, down}
	for i, w := range want {
		if got := <-d.Events(); got != w {
			t.Errorf("event %d = %#v, want %#v", i, got, w)
		}
	}

	// With only state changes queued the oldest one gives way.
	for _, s := range []LinkState{Connected, Disconnected, Connected, Disconnected} {
		d.emit(StateEvent{State: s})
	}
	for i, s := range []LinkState{Disconnected, Connected, Disconnected} {
		got, ok := (<-d.Events()).(StateEvent)
		if !ok || got.State != s {
			t.Errorf("event %d = %#v, want state %s", i, got, s)
		}
	}
	select {
	case ev := <-d.Events():
		t.Errorf("unexpected event %#v", ev)
	default:
	}
}

// expectNoStateEvent fails if a StateEvent arrives within the given time.
func expectNoStateEvent(t *testing.T, d *Driver, within time.Duration) {
	t.Helper()
	timeout := time.After(within)
	for {
		select {
		case ev := <-d.Events():
			if e, ok := ev.(StateEvent); ok {
				t.Fatalf("unexpected state event %s (%s)", e.State, e.Reason)
			}
		case <-timeout:
			return
		}
	}
}
