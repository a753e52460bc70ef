// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"fmt"
	"strings"
	"time"
)

// Direction is a drive request.
type Direction int

// Drive directions
const (
	Idle Direction = iota
	Forward
	Backward
	TurnLeft
	TurnRight
	Stop
)

var directionNames = [...]string{
	Idle:      "idle",
	Forward:   "forward",
	Backward:  "backward",
	TurnLeft:  "left",
	TurnRight: "right",
	Stop:      "stop",
}

func (d Direction) String() string {
	if d < Idle || d > Stop {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection resolves a direction by name.
func ParseDirection(name string) (Direction, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d, n := range directionNames {
		if n == name {
			return Direction(d), nil
		}
	}
	return Idle, fmt.Errorf("unknown direction %q", name)
}

// MotionCommand is a 4-byte motion packet: header, mode, left, right.
type MotionCommand [MotionPacketSize]byte

// Fixed motion packets
var (
	// IdleCommand keeps the robot still and asks for a sensor report.
	IdleCommand = MotionCommand{MotionHeader, ModeDrive, MotorNeutral, MotorNeutral}
	// StopCommand halts the motors.
	StopCommand = MotionCommand{MotionHeader, ModeStop, MotorNeutral, MotorNeutral}
)

// Mode returns the mode byte.
func (c MotionCommand) Mode() byte { return c[1] }

// Left returns the left motor byte.
func (c MotionCommand) Left() byte { return c[2] }

// Right returns the right motor byte.
func (c MotionCommand) Right() byte { return c[3] }

// Bytes returns the packet as a slice.
func (c MotionCommand) Bytes() []byte {
	return c[:]
}

// EncodeMotion builds the packet for dir at speed (0...MaxSpeed). Motor bytes
// are offsets from ForwardBase (subtracted) and BackwardBase (added).
func EncodeMotion(dir Direction, speed int) (MotionCommand, error) {
	if speed < 0 || speed > MaxSpeed {
		return IdleCommand, fmt.Errorf("%w: %d (max %d)", ErrInvalidSpeed, speed, MaxSpeed)
	}

	fwd := byte(ForwardBase - speed)
	back := byte(BackwardBase + speed)

	switch dir {
	case Idle:
		return IdleCommand, nil
	case Stop:
		return StopCommand, nil
	case Forward:
		return MotionCommand{MotionHeader, ModeDrive, fwd, fwd}, nil
	case Backward:
		return MotionCommand{MotionHeader, ModeDrive, back, back}, nil
	case TurnRight:
		return MotionCommand{MotionHeader, ModeDrive, back, fwd}, nil
	case TurnLeft:
		return MotionCommand{MotionHeader, ModeDrive, fwd, back}, nil
	}
	return IdleCommand, fmt.Errorf("unknown %s", dir)
}

// SpeedFromPercent maps a 0-100 slider position to a motor speed.
func SpeedFromPercent(percent int) (int, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: %d%% (want 0-100)", ErrInvalidSpeed, percent)
	}
	return int(SpeedFactor * float64(percent)), nil
}

// Motion tracks the command sent on each poll. A drive request stays
// active for the move window and then reverts to IdleCommand, so a burst
// of motion is bounded even if no stop is ever requested.
type Motion struct {
	window time.Duration
	speed  int

	dir    Direction
	active MotionCommand
	until  time.Time
}

// NewMotion creates an idle motion state with the given move window.
func NewMotion(window time.Duration) *Motion {
	if window <= 0 {
		window = DefaultMoveWindow
	}
	return &Motion{
		window: window,
		active: IdleCommand,
	}
}

// SetSpeed sets the speed used by subsequent drive requests.
func (m *Motion) SetSpeed(speed int) error {
	if speed < 0 || speed > MaxSpeed {
		return fmt.Errorf("%w: %d (max %d)", ErrInvalidSpeed, speed, MaxSpeed)
	}
	m.speed = speed
	return nil
}

// Speed returns the current speed.
func (m *Motion) Speed() int {
	return m.speed
}

// Drive makes dir the active command until now plus the move window.
func (m *Motion) Drive(dir Direction, now time.Time) (MotionCommand, error) {
	cmd, err := EncodeMotion(dir, m.speed)
	if err != nil {
		return m.active, err
	}
	if dir == Idle {
		m.Revert()
		return cmd, nil
	}
	m.dir = dir
	m.active = cmd
	m.until = now.Add(m.window)
	return cmd, nil
}

// Command returns the packet to send at now, reverting to idle once the
// move window has passed.
func (m *Motion) Command(now time.Time) MotionCommand {
	if m.dir != Idle && !now.Before(m.until) {
		m.Revert()
	}
	return m.active
}

// Direction returns the active direction at now.
func (m *Motion) Direction(now time.Time) Direction {
	m.Command(now)
	return m.dir
}

// Revert drops any active drive request.
func (m *Motion) Revert() {
	m.dir = Idle
	m.active = IdleCommand
	m.until = time.Time{}
}
