// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 The me4l Authors

package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fwioo/me4l/pkg/rcr"
)

func TestSettingsYAMLRoundTrip(t *testing.T) {
	want := rcr.Settings{Channel: 4, Speed: 56, Power: 7, Sensitivity: 2, BufferSize: 128}

	var buf bytes.Buffer
	if err := writeSettings(&buf, "ttyUSB0", want, "yaml"); err != nil {
		t.Fatalf("writeSettings() error = %v", err)
	}
	if !strings.Contains(buf.String(), "buffer: 128") {
		t.Errorf("yaml output:\n%s", buf.String())
	}

	got, err := readSettingsFile("-", &buf)
	if err != nil {
		t.Fatalf("readSettingsFile() error = %v", err)
	}
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
}

func TestReadSettingsFile_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing parameter", "channel: 1\nspeed: 2\npower: 3\nsensitivity: 0\n"},
		{"unknown parameter", "channel: 1\nspeed: 2\npower: 3\nsensitivity: 0\nbuffer: 4\nvolume: 9\n"},
		{"out of range", "channel: 10\nspeed: 2\npower: 3\nsensitivity: 0\nbuffer: 4\n"},
		{"not yaml", "channel: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := readSettingsFile("-", strings.NewReader(tt.input)); err == nil {
				t.Error("readSettingsFile() error = nil")
			}
		})
	}
}

func TestReadSettingsFile_Aliases(t *testing.T) {
	input := "channel: 1\nspeed: 2\npower: 3\nsens: 0\nbuffer-size: 4\n"
	s, err := readSettingsFile("-", strings.NewReader(input))
	if err != nil {
		t.Fatalf("readSettingsFile() error = %v", err)
	}
	if s.Sensitivity != 0 || s.BufferSize != 4 {
		t.Errorf("settings = %+v", s)
	}
}

func TestReadSettingsFile_OutOfRangeIsTyped(t *testing.T) {
	input := "channel: 1\nspeed: 57\npower: 3\nsensitivity: 0\nbuffer: 4\n"
	_, err := readSettingsFile("-", strings.NewReader(input))
	var invalid *rcr.InvalidParameterValueError
	if !errors.As(err, &invalid) || invalid.Parameter != rcr.Speed {
		t.Errorf("error = %v, want invalid speed", err)
	}
}

func TestWriteSettings_Text(t *testing.T) {
	var buf bytes.Buffer
	s := rcr.Settings{Channel: 3, Speed: 19, Power: 5, Sensitivity: 1, BufferSize: 32}
	if err := writeSettings(&buf, "ttyUSB1", s, "text"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ttyUSB1", "channel", "(1-128)", "  19"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
