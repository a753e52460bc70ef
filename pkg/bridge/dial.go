// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The me4l Authors

package bridge

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed bridge connection
var ErrConnectionClosed = errors.New("bridge connection closed")

// DialOptions configures a bridge connection.
type DialOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Conn is a client connection to a bridge.
type Conn struct {
	conn   *websocket.Conn
	wmu    sync.Mutex
	seq    atomic.Uint64
	closed atomic.Bool
}

// Dial connects to a bridge at a ws:// or wss:// URL, sending HTTP Basic
// credentials when a username and password are given.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("bridge connection failed: %w", err)
	}

	return &Conn{conn: conn}, nil
}

// Send transmits cmd with a fresh sequence number and returns it.
func (c *Conn) Send(cmd Command) (uint64, error) {
	cmd.Seq = c.seq.Add(1)
	data, err := EncodeCommand(cmd)
	if err != nil {
		return 0, err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return 0, err
	}
	return cmd.Seq, nil
}

// Next blocks for the next frame. Non-binary messages are skipped. A normal
// close by the bridge is reported as ErrConnectionClosed.
func (c *Conn) Next() (Frame, error) {
	if c.closed.Load() {
		return Frame{}, ErrConnectionClosed
	}
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.closed.Store(true)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return Frame{}, ErrConnectionClosed
			}
			return Frame{}, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return DecodeFrame(data)
	}
}

// Close closes the connection.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}
