// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"testing"

	"github.com/fwioo/me4l/pkg/bridge"
	"github.com/fwioo/me4l/pkg/rcr"
)

func TestParseBridgeCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    bridge.Command
		wantErr bool
	}{
		{"connect:ttyUSB0", bridge.Command{Op: "connect", Port: "ttyUSB0"}, false},
		{"connect", bridge.Command{Op: "connect"}, false},
		{"disconnect", bridge.Command{Op: "disconnect"}, false},
		{"move:left", bridge.Command{Op: "move", Direction: "left"}, false},
		{"speed:60", bridge.Command{Op: "speed", Value: 60}, false},
		{"speed:fast", bridge.Command{}, true},
		{"get:channel", bridge.Command{Op: "get", Parameter: "channel"}, false},
		{"set:buffer:128", bridge.Command{Op: "set", Parameter: "buffer", Value: 128}, false},
		{"set:buffer", bridge.Command{}, true},
		{"SETTINGS", bridge.Command{Op: "settings"}, false},
		{"jump", bridge.Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseBridgeCommand(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseBridgeCommand(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseBridgeCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatFrame(t *testing.T) {
	settings := rcr.Settings{Channel: 1, Speed: 2, Power: 3, Sensitivity: 0, BufferSize: 4}
	tests := []struct {
		frame bridge.Frame
		want  string
	}{
		{bridge.Frame{Kind: bridge.KindState, State: "disconnected", Reason: "no communication"}, "STATE disconnected (no communication)"},
		{bridge.Frame{Kind: bridge.KindSonar, Sonar: []uint8{1, 2, 3}}, "SONAR [1 2 3]"},
		{bridge.Frame{Kind: bridge.KindStatus, Parameter: "power", Value: 3, Status: []byte{0x43, 0x78}}, "STATUS power=3 43 78"},
		{bridge.Frame{Kind: bridge.KindSettings, Settings: &settings}, "SETTINGS channel=1 speed=2 power=3 sensitivity=0 buffer=4"},
		{bridge.Frame{Kind: bridge.KindError, Error: "boom"}, "ERROR boom"},
		{bridge.Frame{Kind: bridge.KindReply, Seq: 3}, "<- #3 OK"},
		{bridge.Frame{Kind: bridge.KindReply, Seq: 4, Parameter: "channel", Value: 7}, "<- #4 OK channel=7"},
		{bridge.Frame{Kind: bridge.KindReply, Seq: 5, Error: "no reply"}, "<- #5 ERROR no reply"},
	}

	for _, tt := range tests {
		if got := formatFrame(tt.frame); got != tt.want {
			t.Errorf("formatFrame() = %q, want %q", got, tt.want)
		}
	}
}
