// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkClosed is returned when transacting on a link with no open session.
	ErrLinkClosed = errors.New("serial link closed")
	// ErrNoReply is returned when a configuration read gets no answer.
	ErrNoReply = errors.New("no reply from dongle")
	// ErrMalformedReply is returned when a configuration read is not answered
	// with exactly one byte.
	ErrMalformedReply = errors.New("malformed reply from dongle")
	// ErrInvalidSpeed is returned for speeds outside the slider or motor range.
	ErrInvalidSpeed = errors.New("speed out of range")
	// ErrDriverStopped is returned when the driver loop is no longer running.
	ErrDriverStopped = errors.New("driver stopped")
)

// UnknownPortError reports a port name that the catalog did not discover.
type UnknownPortError struct {
	Name string
}

// Error implements error.
func (e *UnknownPortError) Error() string {
	return fmt.Sprintf("port %q not found", e.Name)
}

// PortOpenError reports a failure to open a discovered port.
type PortOpenError struct {
	Name string
	Path string
	Err  error
}

// Error implements error.
func (e *PortOpenError) Error() string {
	return fmt.Sprintf("failed to open port %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *PortOpenError) Unwrap() error {
	return e.Err
}

// LinkWriteError reports a transaction that failed mid-flight.
type LinkWriteError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *LinkWriteError) Error() string {
	return fmt.Sprintf("serial %s failed: %v", e.Op, e.Err)
}

func (e *LinkWriteError) Unwrap() error {
	return e.Err
}

// InvalidParameterValueError reports a configuration value outside the
// parameter's legal range. Nothing is transmitted when it is returned.
type InvalidParameterValueError struct {
	Parameter Parameter
	Value     int
}

// Error implements error.
func (e *InvalidParameterValueError) Error() string {
	lo, hi := e.Parameter.Range()
	return fmt.Sprintf("%s value %d out of range %d...%d", e.Parameter, e.Value, lo, hi)
}
