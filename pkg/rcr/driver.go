// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DriverConfig holds the poll loop timing.
type DriverConfig struct {
	PollInterval    time.Duration
	WatchdogTimeout time.Duration
	MoveWindow      time.Duration
	EventBuffer     int
}

// DefaultDriverConfig returns the timing the robot was tuned with.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		PollInterval:    DefaultPollInterval,
		WatchdogTimeout: DefaultWatchdog,
		MoveWindow:      DefaultMoveWindow,
		EventBuffer:     64,
	}
}

// Event is published by the driver for collaborators.
type Event interface {
	event()
}

// StateEvent reports a link state transition.
type StateEvent struct {
	State  LinkState
	Reason string
	Time   time.Time
}

// SonarEvent carries an averaged sonar reading. A zero reading is
// published when the link goes down.
type SonarEvent struct {
	Reading SonarReading
	Time    time.Time
}

// StatusEvent carries the dongle's raw reply to a configuration write.
type StatusEvent struct {
	Parameter Parameter
	Value     int
	Status    []byte
}

// SettingsEvent carries the dongle settings read on connect.
type SettingsEvent struct {
	Settings Settings
}

// ErrorEvent reports a failure that happened on the poll cycle.
type ErrorEvent struct {
	Err error
}

func (StateEvent) event()    {}
func (SonarEvent) event()    {}
func (StatusEvent) event()   {}
func (SettingsEvent) event() {}
func (ErrorEvent) event()    {}

// Driver runs the poll cycle against the robot on a single timeline.
//
// Run owns every piece of protocol state. The exported methods hand their
// work to the Run goroutine and wait for it, so a configuration exchange
// never interleaves with a poll on the half-duplex link.
type Driver struct {
	link     *Link
	dongle   *Dongle
	motion   *Motion
	watchdog *Watchdog
	sonar    SonarAverager
	stats    *Statistics
	cfg      DriverConfig
	logger   *zap.Logger
	now      func() time.Time

	events   chan Event
	requests chan func()
	done     chan struct{}
	state    atomic.Int32

	ticker  *time.Ticker
	wdTimer *time.Timer
}

// NewDriver creates a driver over link. Zero config fields take defaults.
func NewDriver(link *Link, cfg DriverConfig, logger *zap.Logger) *Driver {
	def := DefaultDriverConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = def.WatchdogTimeout
	}
	if cfg.MoveWindow <= 0 {
		cfg.MoveWindow = def.MoveWindow
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wdTimer := time.NewTimer(time.Hour)
	wdTimer.Stop()

	return &Driver{
		link:     link,
		dongle:   NewDongle(link),
		motion:   NewMotion(cfg.MoveWindow),
		watchdog: NewWatchdog(cfg.WatchdogTimeout),
		stats:    NewStatistics(),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		events:   make(chan Event, cfg.EventBuffer),
		requests: make(chan func()),
		done:     make(chan struct{}),
		wdTimer:  wdTimer,
	}
}

// Events returns the event stream. It is closed when Run returns.
func (d *Driver) Events() <-chan Event {
	return d.events
}

// State returns the current link state. It is safe to call from any goroutine.
func (d *Driver) State() LinkState {
	return LinkState(d.state.Load())
}

// Link returns the serial link the driver transacts on.
func (d *Driver) Link() *Link {
	return d.link
}

// Run processes requests, poll ticks and watchdog expiry until ctx is done.
// The port is closed on return.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.events)
	defer close(d.done)
	defer d.shutdown()

	d.logger.Info("Driver started",
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Duration("watchdog", d.cfg.WatchdogTimeout),
		zap.Duration("move_window", d.cfg.MoveWindow))

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-d.requests:
			fn()
		case <-d.pollC():
			d.poll()
		case <-d.wdTimer.C:
			d.checkWatchdog()
		}
	}
}

func (d *Driver) shutdown() {
	d.stopPolling()
	d.watchdog.Stop()
	d.wdTimer.Stop()
	d.link.Close()
	d.setState(Disconnected)
	d.logger.Info("Driver stopped")
}

// do runs fn on the Run goroutine and returns its error.
func (d *Driver) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case d.requests <- func() { errc <- fn() }:
	case <-d.done:
		return ErrDriverStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SelectPort opens the named port, closing any previous session. An active
// poll cycle is stopped since it belonged to the old port.
func (d *Driver) SelectPort(ctx context.Context, name string) error {
	return d.do(ctx, func() error {
		if d.ticker != nil {
			d.goDown("port changed")
		}
		return d.link.Open(name)
	})
}

// Connect starts the poll cycle on the named port, opening it if the link
// is closed or a different port is named. An empty name reuses the open
// port. The dongle's settings are read and published as a SettingsEvent.
func (d *Driver) Connect(ctx context.Context, name string) error {
	return d.do(ctx, func() error {
		if name != "" && name != d.link.Name() {
			if err := d.link.Open(name); err != nil {
				return err
			}
		}
		if d.link.IsClosed() {
			return &LinkWriteError{Op: "connect", Err: ErrLinkClosed}
		}

		d.startPolling()
		d.keepAlive(d.now())

		settings, err := d.dongle.Settings()
		if err != nil {
			d.logger.Warn("Failed to read dongle settings", zap.Error(err))
			d.emit(ErrorEvent{Err: err})
		} else {
			d.emit(SettingsEvent{Settings: settings})
		}
		return nil
	})
}

// Disconnect stops the poll cycle, clears the sonar display and closes the port.
func (d *Driver) Disconnect(ctx context.Context) error {
	return d.do(ctx, func() error {
		d.goDown("disconnected")
		return d.link.Close()
	})
}

// Move makes dir the active motion command for the move window. Asking to
// move counts as evidence the link is alive and resets the watchdog.
func (d *Driver) Move(ctx context.Context, dir Direction) error {
	return d.do(ctx, func() error {
		now := d.now()
		d.keepAlive(now)
		_, err := d.motion.Drive(dir, now)
		return err
	})
}

// SetSpeed sets the motion speed from a 0-100 slider position.
func (d *Driver) SetSpeed(ctx context.Context, percent int) error {
	speed, err := SpeedFromPercent(percent)
	if err != nil {
		return err
	}
	return d.do(ctx, func() error {
		return d.motion.SetSpeed(speed)
	})
}

// Get reads one dongle parameter.
func (d *Driver) Get(ctx context.Context, p Parameter) (int, error) {
	var value int
	err := d.do(ctx, func() error {
		var err error
		value, err = d.dongle.Get(p)
		return err
	})
	return value, err
}

// Set writes one dongle parameter and publishes the reply as a StatusEvent.
func (d *Driver) Set(ctx context.Context, p Parameter, value int) error {
	if !p.Accepts(value) {
		return &InvalidParameterValueError{Parameter: p, Value: value}
	}
	return d.do(ctx, func() error {
		d.keepAlive(d.now())
		if err := d.dongle.Set(p, value); err != nil {
			return err
		}
		d.stats.ConfigWrites++
		d.emit(StatusEvent{Parameter: p, Value: value, Status: d.dongle.Status()})
		return nil
	})
}

// Settings reads all five dongle parameters.
func (d *Driver) Settings(ctx context.Context) (Settings, error) {
	var s Settings
	err := d.do(ctx, func() error {
		var err error
		s, err = d.dongle.Settings()
		return err
	})
	return s, err
}

// Stats returns a snapshot of the link statistics.
func (d *Driver) Stats(ctx context.Context) (Statistics, error) {
	var s Statistics
	err := d.do(ctx, func() error {
		d.stats.CalculateRates()
		s = *d.stats
		return nil
	})
	return s, err
}

func (d *Driver) pollC() <-chan time.Time {
	if d.ticker == nil {
		return nil
	}
	return d.ticker.C
}

func (d *Driver) startPolling() {
	if d.ticker != nil {
		return
	}
	d.ticker = time.NewTicker(d.cfg.PollInterval)
	d.logger.Info("Polling started", zap.String("port", d.link.Name()))
}

func (d *Driver) stopPolling() {
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	d.ticker = nil
	d.logger.Info("Polling stopped")
}

// keepAlive restarts the watchdog window. It has no effect while the poll
// cycle is stopped, since nothing would keep the link alive afterwards.
func (d *Driver) keepAlive(now time.Time) {
	if d.ticker == nil {
		return
	}
	if d.watchdog.Reset(now) {
		d.setState(Connected)
		d.logger.Info("Link up", zap.String("port", d.link.Name()))
		d.emit(StateEvent{State: Connected, Time: now})
	}
	d.wdTimer.Reset(d.watchdog.Timeout())
}

func (d *Driver) poll() {
	cmd := d.motion.Command(d.now())
	reply, err := d.link.Transact(cmd.Bytes())
	d.stats.RecordPoll(reply, err)
	if err != nil {
		d.emit(ErrorEvent{Err: err})
		var lwe *LinkWriteError
		if errors.As(err, &lwe) && errors.Is(lwe.Err, ErrLinkClosed) {
			d.goDown("port closed")
		}
		return
	}

	report, ok := DecodeReport(reply)
	if !ok {
		return
	}

	now := d.now()
	d.keepAlive(now)
	if reading, ok := d.sonar.Add(report); ok {
		d.stats.SonarReadings++
		d.emit(SonarEvent{Reading: reading, Time: now})
	}
}

func (d *Driver) checkWatchdog() {
	now := d.now()
	if d.watchdog.Expired(now) {
		d.logger.Warn("No communication with robot", zap.Duration("timeout", d.watchdog.Timeout()))
		d.goDown("no communication")
		return
	}
	if d.watchdog.State() == Connected {
		d.wdTimer.Reset(d.watchdog.Deadline().Sub(now))
	}
}

// goDown stops polling and, if the link was up, clears the sonar display
// and publishes the transition to Disconnected.
func (d *Driver) goDown(reason string) {
	now := d.now()
	wasUp := d.State() == Connected
	d.stopPolling()
	d.watchdog.Stop()
	d.wdTimer.Stop()
	d.motion.Revert()
	d.sonar.Reset()
	d.setState(Disconnected)
	if !wasUp {
		return
	}
	d.stats.Disconnects++
	d.emit(SonarEvent{Time: now})
	d.emit(StateEvent{State: Disconnected, Reason: reason, Time: now})
}

func (d *Driver) setState(s LinkState) {
	d.state.Store(int32(s))
}

// emit queues ev without blocking. With the buffer full, other events are
// dropped but a StateEvent takes the place of the oldest queued event that
// is not one.
func (d *Driver) emit(ev Event) {
	select {
	case d.events <- ev:
		return
	default:
	}
	if _, ok := ev.(StateEvent); !ok {
		d.logger.Warn("Event buffer full, event dropped", zap.String("event", fmt.Sprintf("%T", ev)))
		return
	}

	if dropped := d.evict(); dropped != nil {
		d.logger.Warn("Event buffer full, queued event dropped", zap.String("event", fmt.Sprintf("%T", dropped)))
	}
	select {
	case d.events <- ev:
	default:
		d.logger.Warn("Event buffer full, state event dropped", zap.Stringer("state", ev.(StateEvent).State))
	}
}

// evict removes the oldest queued event that is not a StateEvent, or the
// oldest event if all are, and returns it. Only the Run goroutine sends on
// the channel, so requeueing the rest keeps their order.
func (d *Driver) evict() Event {
	var queued []Event
drain:
	for {
		select {
		case e := <-d.events:
			queued = append(queued, e)
		default:
			break drain
		}
	}
	if len(queued) == 0 {
		return nil
	}

	victim := 0
	for i, e := range queued {
		if _, ok := e.(StateEvent); !ok {
			victim = i
			break
		}
	}
	dropped := queued[victim]
	for i, e := range queued {
		if i != victim {
			d.events <- e
		}
	}
	return dropped
}
