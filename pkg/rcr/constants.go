// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

// Package rcr drives a MOBOT-RCR radio dongle and the robot behind it.
//
// The dongle shows up as a serial port. Its own settings are read and
// written with 5-byte configuration packets, while the robot is polled with
// 4-byte motion packets and answers with 8-byte sensor reports. The link is
// half-duplex with no framing or checksums: every exchange is a write, a
// fixed settle pause, and a read of whatever arrived in the meantime.
package rcr

import "time"

// Serial link settings
const (
	BaudRate = 56000

	DefaultSettle       = 16 * time.Millisecond
	DefaultReadPoll     = 1 * time.Millisecond
	DefaultPollInterval = 40 * time.Millisecond
	DefaultWatchdog     = 2000 * time.Millisecond
	DefaultMoveWindow   = 250 * time.Millisecond
)

// Candidate device paths probed during discovery
var DefaultPatterns = []string{"/dev/ttyS*", "/dev/ttyUSB*"}

// Configuration packet layout: [0x43, 0x78, 0x1E, code, value]
const (
	ConfigHeader0 = 0x43
	ConfigHeader1 = 0x78
	ConfigHeader2 = 0x1E

	ConfigPacketSize = 5
	ConfigReadValue  = 254
)

// Parameter codes
const (
	CodeChannel     = 0x07
	CodeSpeed       = 0x08
	CodePower       = 0x09
	CodeSensitivity = 0x10
	CodeBufferSize  = 0x11
)

// Motion packet layout: [0xFC, mode, left, right]
const (
	MotionHeader     = 0xFC
	MotionPacketSize = 4

	ModeDrive = 0x0A
	ModeStop  = 0x00

	MotorNeutral = 0x64

	ForwardBase  = 0x4B
	BackwardBase = 0x7D

	MaxSpeed    = 75
	SpeedFactor = 0.75
)

// Sensor report layout: [0xFE, ?, sonar0, sonar1, sonar2, ?, ?, ?]
const (
	ReportHeader     = 0xFE
	ReportPacketSize = 8
	ReportSonarStart = 2
	SonarCount       = 3

	// Reports averaged per published sonar reading
	SonarSamples = 3
)
