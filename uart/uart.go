// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uart provides the byte-oriented serial link used to reach
// a remote debug bus.
//
// The link has no protocol knowledge: it moves bytes and reports an
// empty read when the per-read timeout elapses.
package uart // import "github.com/go-lpc/litescope/uart"

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrTimeout is returned by Conn.ReadByte when no byte arrived before
// the read timeout of the link elapsed.
var ErrTimeout = errors.New("uart: read timeout")

// Port is a raw serial port.
//
// Read must return (0, nil) when its timeout elapses without data.
type Port interface {
	io.Reader
	io.Writer
	io.Closer

	ResetInputBuffer() error
	ResetOutputBuffer() error
	Drain() error
}

const (
	defaultBaudRate    = 115200
	defaultReadTimeout = 250 * time.Millisecond
)

type config struct {
	baud    int
	timeout time.Duration
}

func newConfig() config {
	return config{
		baud:    defaultBaudRate,
		timeout: defaultReadTimeout,
	}
}

// Option configures how a serial link is opened.
type Option func(*config)

// WithBaudRate sets the baud rate of the link.
func WithBaudRate(baud int) Option {
	return func(cfg *config) {
		if baud > 0 {
			cfg.baud = baud
		}
	}
}

// WithReadTimeout sets the timeout of a single read call.
func WithReadTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// Conn is an opened serial link.
type Conn struct {
	name string
	port Port
	buf  [1]byte
}

// NewConn wraps an already opened port.
func NewConn(name string, port Port) *Conn {
	return &Conn{name: name, port: port}
}

// Name returns the name of the underlying port.
func (c *Conn) Name() string { return c.name }

// ReadByte reads exactly one byte from the link.
// It returns ErrTimeout if the link stayed silent for the whole read timeout.
func (c *Conn) ReadByte() (byte, error) {
	n, err := c.port.Read(c.buf[:])
	switch {
	case err != nil:
		return 0, fmt.Errorf("uart: could not read from %q: %w", c.name, err)
	case n == 0:
		return 0, ErrTimeout
	}
	return c.buf[0], nil
}

// Write writes all of p to the link.
func (c *Conn) Write(p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		n, err := c.port.Write(p[sent:])
		sent += n
		if err != nil {
			return sent, fmt.Errorf("uart: could not write to %q: %w", c.name, err)
		}
		if n <= 0 {
			return sent, fmt.Errorf("uart: could not write to %q: %w", c.name, io.ErrShortWrite)
		}
	}
	return sent, nil
}

// FlushInput discards any byte received but not yet read.
func (c *Conn) FlushInput() error {
	err := c.port.ResetInputBuffer()
	if err != nil {
		return fmt.Errorf("uart: could not flush input of %q: %w", c.name, err)
	}
	return nil
}

// FlushOutput waits until every written byte has been transmitted.
func (c *Conn) FlushOutput() error {
	err := c.port.Drain()
	if err != nil {
		return fmt.Errorf("uart: could not flush output of %q: %w", c.name, err)
	}
	return nil
}

// DiscardOutput drops any byte written but not yet transmitted.
func (c *Conn) DiscardOutput() error {
	err := c.port.ResetOutputBuffer()
	if err != nil {
		return fmt.Errorf("uart: could not discard output of %q: %w", c.name, err)
	}
	return nil
}

// Close closes the link.
func (c *Conn) Close() error {
	err := c.port.Close()
	if err != nil {
		return fmt.Errorf("uart: could not close %q: %w", c.name, err)
	}
	return nil
}

var (
	_ io.Writer     = (*Conn)(nil)
	_ io.ByteReader = (*Conn)(nil)
	_ io.Closer     = (*Conn)(nil)
)
