// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package rcr

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// maxReply bounds a single pending-input read
const maxReply = 256

// Port is the part of a serial port the link needs. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	Drain() error
	SetReadTimeout(t time.Duration) error
}

// Opener opens the device at path with the given mode.
type Opener func(path string, mode *serial.Mode) (Port, error)

// OpenSerial opens a real serial port.
func OpenSerial(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

func linkMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// LinkConfig holds the empirical timing of a transaction.
type LinkConfig struct {
	// Settle is the pause between writing a packet and looking for a reply.
	Settle time.Duration
	// ReadPoll is how long a pending-input read waits before concluding
	// nothing more is buffered. It is never used as a reply timeout.
	ReadPoll time.Duration
}

// DefaultLinkConfig returns the timing the dongle was tuned with.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Settle:   DefaultSettle,
		ReadPoll: DefaultReadPoll,
	}
}

// Link owns at most one open serial session to the dongle.
type Link struct {
	catalog *Catalog
	open    Opener
	cfg     LinkConfig
	logger  *zap.Logger
	sleep   func(time.Duration)

	mu   sync.Mutex
	port Port
	name string
}

// NewLink creates a closed link that resolves port names through catalog.
func NewLink(catalog *Catalog, open Opener, cfg LinkConfig, logger *zap.Logger) *Link {
	if open == nil {
		open = OpenSerial
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.ReadPoll <= 0 {
		cfg.ReadPoll = DefaultReadPoll
	}
	if catalog == nil {
		catalog = NewCatalog(nil, open, logger)
	}
	return &Link{
		catalog: catalog,
		open:    open,
		cfg:     cfg,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Catalog returns the catalog used to resolve port names.
func (l *Link) Catalog() *Catalog {
	return l.catalog
}

// Open closes any current session and opens the named port.
func (l *Link) Open(name string) error {
	path, ok := l.catalog.Lookup(name)
	if !ok {
		return &UnknownPortError{Name: name}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked()

	port, err := l.open(path, linkMode())
	if err != nil {
		return &PortOpenError{Name: name, Path: path, Err: err}
	}
	if err := port.SetReadTimeout(l.cfg.ReadPoll); err != nil {
		port.Close()
		return &PortOpenError{Name: name, Path: path, Err: fmt.Errorf("set read timeout: %w", err)}
	}

	l.port = port
	l.name = name
	l.logger.Info("Port opened",
		zap.String("port", name),
		zap.String("path", path),
		zap.Int("baud", BaudRate))
	return nil
}

// Close closes the open session, if any. It is safe to call repeatedly.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Link) closeLocked() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.logger.Info("Port closed", zap.String("port", l.name))
	l.port = nil
	l.name = ""
	return err
}

// IsClosed reports whether no session is open.
func (l *Link) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port == nil
}

// Name returns the name of the open port, or "" when closed.
func (l *Link) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.name
}

// Transact writes packet, waits the settle interval, flushes output and
// returns whatever input is pending. A nil reply with a nil error means the
// remote end did not answer, which is normal on a lossy radio link.
func (l *Link) Transact(packet []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil, &LinkWriteError{Op: "write", Err: ErrLinkClosed}
	}

	if _, err := l.port.Write(packet); err != nil {
		l.logger.Warn("Write failed", zap.String("port", l.name), zap.Error(err))
		return nil, &LinkWriteError{Op: "write", Err: err}
	}

	l.sleep(l.cfg.Settle)

	if err := l.port.Drain(); err != nil {
		l.logger.Warn("Flush failed", zap.String("port", l.name), zap.Error(err))
		return nil, &LinkWriteError{Op: "flush", Err: err}
	}

	reply, err := l.readPending()
	if err != nil {
		l.logger.Warn("Read failed", zap.String("port", l.name), zap.Error(err))
		return nil, &LinkWriteError{Op: "read", Err: err}
	}

	if ce := l.logger.Check(zap.DebugLevel, "Transaction"); ce != nil {
		ce.Write(
			zap.String("tx", FormatPacket(packet)),
			zap.String("rx", FormatPacket(reply)))
	}
	return reply, nil
}

// readPending drains input that is already buffered. The port's read
// timeout is ReadPoll, so a read returning zero bytes means nothing is left.
func (l *Link) readPending() ([]byte, error) {
	var reply []byte
	buf := make([]byte, 64)
	for len(reply) < maxReply {
		n, err := l.port.Read(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		reply = append(reply, buf[:n]...)
	}
	return reply, nil
}
