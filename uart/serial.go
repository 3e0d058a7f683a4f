// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uart

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

type serialPort interface {
	Port
	SetReadTimeout(t time.Duration) error
}

var (
	serialOpen = serialOpenImpl
)

func serialOpenImpl(name string, mode *serial.Mode) (serialPort, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Open opens the serial port name, configured as 8N1.
func Open(name string, opts ...Option) (*Conn, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	port, err := serialOpen(name, &serial.Mode{
		BaudRate: cfg.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("uart: could not open serial port %q (baud=%d): %w", name, cfg.baud, err)
	}

	err = port.SetReadTimeout(cfg.timeout)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("uart: could not set read timeout of %q to %v: %w", name, cfg.timeout, err)
	}

	return NewConn(name, port), nil
}
