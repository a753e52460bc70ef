// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

// Package bridge exposes a robot driver to remote clients over WebSocket.
// Driver events are broadcast as CBOR frames and clients send CBOR
// commands back.
package bridge

import (
	"context"
	"fmt"

	"github.com/fwioo/me4l/pkg/rcr"
	"github.com/fxamacker/cbor/v2"
)

// Frame kinds
const (
	KindState    = "state"
	KindSonar    = "sonar"
	KindStatus   = "status"
	KindSettings = "settings"
	KindError    = "error"
	KindReply    = "reply"
)

// Command operations
const (
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpMove       = "move"
	OpSpeed      = "speed"
	OpGet        = "get"
	OpSet        = "set"
	OpSettings   = "settings"
)

// Frame is sent from the bridge to clients. Integer keys keep frames small
// on the wire.
type Frame struct {
	Kind      string        `cbor:"0,keyasint"`
	Seq       uint64        `cbor:"1,keyasint,omitempty"`
	State     string        `cbor:"2,keyasint,omitempty"`
	Reason    string        `cbor:"3,keyasint,omitempty"`
	Sonar     []uint8       `cbor:"4,keyasint,omitempty"`
	Parameter string        `cbor:"5,keyasint,omitempty"`
	Value     int           `cbor:"6,keyasint,omitempty"`
	Status    []byte        `cbor:"7,keyasint,omitempty"`
	Settings  *rcr.Settings `cbor:"8,keyasint,omitempty"`
	Error     string        `cbor:"9,keyasint,omitempty"`
}

// Command is sent from a client to the bridge. Seq is echoed in the reply.
type Command struct {
	Op        string `cbor:"0,keyasint"`
	Seq       uint64 `cbor:"1,keyasint,omitempty"`
	Port      string `cbor:"2,keyasint,omitempty"`
	Direction string `cbor:"3,keyasint,omitempty"`
	Parameter string `cbor:"4,keyasint,omitempty"`
	Value     int    `cbor:"5,keyasint,omitempty"`
}

// EncodeFrame serializes a frame.
func EncodeFrame(f Frame) ([]byte, error) {
	return cbor.Marshal(f)
}

// DecodeFrame parses a frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// EncodeCommand serializes a command.
func EncodeCommand(c Command) ([]byte, error) {
	return cbor.Marshal(c)
}

// DecodeCommand parses a command.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	if err := cbor.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode command: %w", err)
	}
	if c.Op == "" {
		return c, fmt.Errorf("decode command: missing op")
	}
	return c, nil
}

// FrameFromEvent converts a driver event. Unknown events yield false.
func FrameFromEvent(ev rcr.Event) (Frame, bool) {
	switch e := ev.(type) {
	case rcr.StateEvent:
		return Frame{Kind: KindState, State: e.State.String(), Reason: e.Reason}, true
	case rcr.SonarEvent:
		return Frame{Kind: KindSonar, Sonar: e.Reading[:]}, true
	case rcr.StatusEvent:
		return Frame{
			Kind:      KindStatus,
			Parameter: e.Parameter.String(),
			Value:     e.Value,
			Status:    e.Status,
		}, true
	case rcr.SettingsEvent:
		s := e.Settings
		return Frame{Kind: KindSettings, Settings: &s}, true
	case rcr.ErrorEvent:
		return Frame{Kind: KindError, Error: e.Err.Error()}, true
	}
	return Frame{}, false
}

// Controller is the part of the driver the bridge drives. *rcr.Driver
// satisfies it.
type Controller interface {
	Connect(ctx context.Context, name string) error
	Disconnect(ctx context.Context) error
	Move(ctx context.Context, dir rcr.Direction) error
	SetSpeed(ctx context.Context, percent int) error
	Get(ctx context.Context, p rcr.Parameter) (int, error)
	Set(ctx context.Context, p rcr.Parameter, value int) error
	Settings(ctx context.Context) (rcr.Settings, error)
}

// Apply runs cmd against ctrl and returns the reply frame.
func Apply(ctx context.Context, ctrl Controller, cmd Command) Frame {
	reply := Frame{Kind: KindReply, Seq: cmd.Seq}
	if err := apply(ctx, ctrl, cmd, &reply); err != nil {
		reply.Error = err.Error()
	}
	return reply
}

func apply(ctx context.Context, ctrl Controller, cmd Command, reply *Frame) error {
	switch cmd.Op {
	case OpConnect:
		return ctrl.Connect(ctx, cmd.Port)
	case OpDisconnect:
		return ctrl.Disconnect(ctx)
	case OpMove:
		dir, err := rcr.ParseDirection(cmd.Direction)
		if err != nil {
			return err
		}
		return ctrl.Move(ctx, dir)
	case OpSpeed:
		return ctrl.SetSpeed(ctx, cmd.Value)
	case OpGet:
		p, err := rcr.ParseParameter(cmd.Parameter)
		if err != nil {
			return err
		}
		v, err := ctrl.Get(ctx, p)
		if err != nil {
			return err
		}
		reply.Parameter = p.String()
		reply.Value = v
		return nil
	case OpSet:
		p, err := rcr.ParseParameter(cmd.Parameter)
		if err != nil {
			return err
		}
		reply.Parameter = p.String()
		reply.Value = cmd.Value
		return ctrl.Set(ctx, p, cmd.Value)
	case OpSettings:
		s, err := ctrl.Settings(ctx)
		if err != nil {
			return err
		}
		reply.Settings = &s
		return nil
	}
	return fmt.Errorf("unknown op %q", cmd.Op)
}
