// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import "time"

// LinkState is the liveness of the robot link.
type LinkState int

// Link states
const (
	Disconnected LinkState = iota
	Connected
)

func (s LinkState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Watchdog detects a silently lost robot link. The serial transport gives
// no disconnect signal of its own, so the link is declared lost when no
// reset arrives within the timeout.
type Watchdog struct {
	timeout  time.Duration
	state    LinkState
	deadline time.Time
}

// NewWatchdog creates a disconnected watchdog.
func NewWatchdog(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdog
	}
	return &Watchdog{timeout: timeout}
}

// Timeout returns the silence window.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Reset restarts the silence window at now and marks the link connected.
// It reports whether the state changed.
func (w *Watchdog) Reset(now time.Time) bool {
	changed := w.state != Connected
	w.state = Connected
	w.deadline = now.Add(w.timeout)
	return changed
}

// Expired fires the watchdog if the link is connected and the window has
// elapsed at now. It returns true once per silence period.
func (w *Watchdog) Expired(now time.Time) bool {
	if w.state != Connected || now.Before(w.deadline) {
		return false
	}
	w.state = Disconnected
	w.deadline = time.Time{}
	return true
}

// Stop disarms the watchdog without firing.
func (w *Watchdog) Stop() {
	w.state = Disconnected
	w.deadline = time.Time{}
}

// State returns the current link state.
func (w *Watchdog) State() LinkState {
	return w.state
}

// Deadline returns when the watchdog fires, or the zero time if disarmed.
func (w *Watchdog) Deadline() time.Time {
	return w.deadline
}
