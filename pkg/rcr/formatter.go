// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"fmt"
	"strings"
)

// Packet kinds recognised by the formatter
const (
	KindUnknown = iota
	KindConfigRead
	KindConfigWrite
	KindMotion
	KindReport
)

// ClassifyPacket identifies what a raw byte sequence is on this link.
func ClassifyPacket(b []byte) int {
	switch {
	case len(b) == ConfigPacketSize && b[0] == ConfigHeader0 && b[1] == ConfigHeader1 && b[2] == ConfigHeader2:
		if b[4] == ConfigReadValue {
			return KindConfigRead
		}
		return KindConfigWrite
	case len(b) == MotionPacketSize && b[0] == MotionHeader:
		return KindMotion
	case len(b) == ReportPacketSize && b[0] == ReportHeader:
		return KindReport
	}
	return KindUnknown
}

// FormatPacket formats a raw packet into a one-line human-readable string
func FormatPacket(b []byte) string {
	if b == nil {
		return "(no reply)"
	}

	switch ClassifyPacket(b) {
	case KindConfigRead:
		return fmt.Sprintf("CONFIG_READ %s", formatParameterCode(b[3]))
	case KindConfigWrite:
		return fmt.Sprintf("CONFIG_WRITE %s=%d", formatParameterCode(b[3]), b[4])
	case KindMotion:
		cmd := MotionCommand{b[0], b[1], b[2], b[3]}
		return fmt.Sprintf("MOTION %s left=0x%02X right=0x%02X", formatMotion(cmd), cmd.Left(), cmd.Right())
	case KindReport:
		r, _ := DecodeReport(b)
		s := r.Sonar()
		return fmt.Sprintf("REPORT sonar=%d,%d,%d raw=%s", s[0], s[1], s[2], FormatHex(b))
	}
	return FormatHex(b)
}

// FormatHex returns space separated hex bytes
func FormatHex(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

func formatParameterCode(code byte) string {
	for _, p := range Parameters {
		if p.Code() == code {
			return p.String()
		}
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", code)
}

func formatMotion(cmd MotionCommand) string {
	switch cmd {
	case IdleCommand:
		return "IDLE"
	case StopCommand:
		return "STOP"
	}
	if cmd.Mode() != ModeDrive {
		return fmt.Sprintf("MODE(0x%02X)", cmd.Mode())
	}

	left, right := motorSense(cmd.Left()), motorSense(cmd.Right())
	switch {
	case left > 0 && right > 0:
		return "FORWARD"
	case left < 0 && right < 0:
		return "BACKWARD"
	case left < 0 && right > 0:
		return "RIGHT"
	case left > 0 && right < 0:
		return "LEFT"
	}
	return "DRIVE"
}

// motorSense returns 1 for forward bytes, -1 for backward bytes and 0 for
// anything in between.
func motorSense(v byte) int {
	switch {
	case v <= ForwardBase:
		return 1
	case v >= BackwardBase:
		return -1
	}
	return 0
}
