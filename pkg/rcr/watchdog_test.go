// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"testing"
	"time"
)

func TestWatchdog_StartsDisconnected(t *testing.T) {
	w := NewWatchdog(0)
	if w.State() != Disconnected {
		t.Errorf("State() = %s", w.State())
	}
	if w.Timeout() != DefaultWatchdog {
		t.Errorf("Timeout() = %v, want %v", w.Timeout(), DefaultWatchdog)
	}
	if w.Expired(time.Unix(1e6, 0)) {
		t.Error("disarmed watchdog fired")
	}
}

func TestWatchdog_ResetReportsTransition(t *testing.T) {
	now := time.Unix(1000, 0)
	w := NewWatchdog(2 * time.Second)

	if !w.Reset(now) {
		t.Error("first Reset() = false, want true")
	}
	if w.Reset(now.Add(time.Second)) {
		t.Error("second Reset() = true, want false")
	}
	if want := now.Add(3 * time.Second); !w.Deadline().Equal(want) {
		t.Errorf("Deadline() = %v, want %v", w.Deadline(), want)
	}
}

func TestWatchdog_FiresOncePerSilence(t *testing.T) {
	now := time.Unix(1000, 0)
	w := NewWatchdog(2 * time.Second)
	w.Reset(now)

	if w.Expired(now.Add(1999 * time.Millisecond)) {
		t.Fatal("fired before timeout")
	}
	if !w.Expired(now.Add(2 * time.Second)) {
		t.Fatal("did not fire at timeout")
	}
	if w.State() != Disconnected {
		t.Errorf("State() after firing = %s", w.State())
	}

	fired := 0
	for i := 3; i < 10; i++ {
		if w.Expired(now.Add(time.Duration(i) * time.Second)) {
			fired++
		}
	}
	if fired != 0 {
		t.Errorf("fired %d more times during the same silence", fired)
	}

	later := now.Add(20 * time.Second)
	if !w.Reset(later) {
		t.Error("Reset() after firing did not reconnect")
	}
	if !w.Expired(later.Add(2 * time.Second)) {
		t.Error("did not fire for the second silence")
	}
}

func TestWatchdog_Stop(t *testing.T) {
	now := time.Unix(1000, 0)
	w := NewWatchdog(time.Second)
	w.Reset(now)
	w.Stop()

	if w.Expired(now.Add(time.Hour)) {
		t.Error("stopped watchdog fired")
	}
	if !w.Deadline().IsZero() {
		t.Errorf("Deadline() = %v, want zero", w.Deadline())
	}
}
