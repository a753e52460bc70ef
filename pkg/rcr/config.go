// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"fmt"
	"strings"
)

// Parameter identifies one of the dongle's five settings.
type Parameter int

// Dongle parameters
const (
	Channel Parameter = iota
	Speed
	Power
	Sensitivity
	BufferSize
)

// Parameters lists every parameter in packet-code order.
var Parameters = []Parameter{Channel, Speed, Power, Sensitivity, BufferSize}

type parameterSpec struct {
	name string
	code byte
	min  int
	max  int
}

var parameterSpecs = [...]parameterSpec{
	Channel:     {name: "channel", code: CodeChannel, min: 0, max: 9},
	Speed:       {name: "speed", code: CodeSpeed, min: 1, max: 56},
	Power:       {name: "power", code: CodePower, min: 0, max: 7},
	Sensitivity: {name: "sensitivity", code: CodeSensitivity, min: 0, max: 3},
	BufferSize:  {name: "buffer", code: CodeBufferSize, min: 1, max: 128},
}

func (p Parameter) valid() bool {
	return p >= Channel && p <= BufferSize
}

// String returns the parameter's name.
func (p Parameter) String() string {
	if !p.valid() {
		return fmt.Sprintf("parameter(%d)", int(p))
	}
	return parameterSpecs[p].name
}

// Code returns the parameter's packet code.
func (p Parameter) Code() byte {
	if !p.valid() {
		return 0
	}
	return parameterSpecs[p].code
}

// Range returns the inclusive legal value range.
func (p Parameter) Range() (lo, hi int) {
	if !p.valid() {
		return 0, -1
	}
	s := parameterSpecs[p]
	return s.min, s.max
}

// Accepts reports whether value is within the legal range.
func (p Parameter) Accepts(value int) bool {
	lo, hi := p.Range()
	return value >= lo && value <= hi
}

// ReadPacket returns the query form of the parameter's packet.
func (p Parameter) ReadPacket() []byte {
	return []byte{ConfigHeader0, ConfigHeader1, ConfigHeader2, p.Code(), ConfigReadValue}
}

// WritePacket returns the assignment form of the parameter's packet, or an
// InvalidParameterValueError if value is out of range.
func (p Parameter) WritePacket(value int) ([]byte, error) {
	if !p.Accepts(value) {
		return nil, &InvalidParameterValueError{Parameter: p, Value: value}
	}
	return []byte{ConfigHeader0, ConfigHeader1, ConfigHeader2, p.Code(), byte(value)}, nil
}

// ParseParameter resolves a parameter by name. "sens" and "buffer-size"
// are accepted as aliases.
func ParseParameter(name string) (Parameter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "channel":
		return Channel, nil
	case "speed":
		return Speed, nil
	case "power":
		return Power, nil
	case "sensitivity", "sens":
		return Sensitivity, nil
	case "buffer", "buffer-size", "buffersize":
		return BufferSize, nil
	}
	return 0, fmt.Errorf("unknown parameter %q (want channel, speed, power, sensitivity or buffer)", name)
}

// Transactor performs one write-then-read exchange. *Link satisfies it.
type Transactor interface {
	Transact(packet []byte) ([]byte, error)
}

// Settings holds all five dongle parameters.
type Settings struct {
	Channel     int `yaml:"channel"`
	Speed       int `yaml:"speed"`
	Power       int `yaml:"power"`
	Sensitivity int `yaml:"sensitivity"`
	BufferSize  int `yaml:"buffer"`
}

// Value returns the setting for p.
func (s Settings) Value(p Parameter) int {
	switch p {
	case Channel:
		return s.Channel
	case Speed:
		return s.Speed
	case Power:
		return s.Power
	case Sensitivity:
		return s.Sensitivity
	case BufferSize:
		return s.BufferSize
	}
	return 0
}

// SetValue stores v as the setting for p.
func (s *Settings) SetValue(p Parameter, v int) {
	switch p {
	case Channel:
		s.Channel = v
	case Speed:
		s.Speed = v
	case Power:
		s.Power = v
	case Sensitivity:
		s.Sensitivity = v
	case BufferSize:
		s.BufferSize = v
	}
}

// Validate checks every setting against its parameter's range.
func (s Settings) Validate() error {
	for _, p := range Parameters {
		if v := s.Value(p); !p.Accepts(v) {
			return &InvalidParameterValueError{Parameter: p, Value: v}
		}
	}
	return nil
}

// Dongle reads and writes the dongle's own settings.
type Dongle struct {
	link   Transactor
	status []byte
}

// NewDongle creates a configuration client over link.
func NewDongle(link Transactor) *Dongle {
	return &Dongle{link: link}
}

// Get queries a parameter and returns the single byte the dongle answers.
func (d *Dongle) Get(p Parameter) (int, error) {
	if !p.valid() {
		return 0, fmt.Errorf("get: unknown %s", p)
	}
	reply, err := d.link.Transact(p.ReadPacket())
	if err != nil {
		return 0, err
	}
	if reply == nil {
		return 0, fmt.Errorf("get %s: %w", p, ErrNoReply)
	}
	if len(reply) != 1 {
		return 0, fmt.Errorf("get %s: %w (% X)", p, ErrMalformedReply, reply)
	}
	return int(reply[0]), nil
}

// Set validates value and writes it. The raw reply is kept as the
// dongle's last status. Out of range values are rejected before anything
// is transmitted.
func (d *Dongle) Set(p Parameter, value int) error {
	packet, err := p.WritePacket(value)
	if err != nil {
		return err
	}
	reply, err := d.link.Transact(packet)
	if err != nil {
		return err
	}
	d.status = reply
	return nil
}

// Status returns the raw reply to the last successful Set.
func (d *Dongle) Status() []byte {
	return d.status
}

// Settings reads all five parameters.
func (d *Dongle) Settings() (Settings, error) {
	var s Settings
	for _, p := range Parameters {
		v, err := d.Get(p)
		if err != nil {
			return s, err
		}
		s.SetValue(p, v)
	}
	return s, nil
}

// Apply validates s as a whole and then writes every parameter.
func (d *Dongle) Apply(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, p := range Parameters {
		if err := d.Set(p, s.Value(p)); err != nil {
			return fmt.Errorf("apply %s: %w", p, err)
		}
	}
	return nil
}
