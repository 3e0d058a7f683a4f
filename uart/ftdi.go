// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uart

import (
	"fmt"
	"io"
	"time"

	"github.com/ziutek/ftdi"
)

type ftdiDevice interface {
	Reset() error

	SetBitmode(iomask byte, mode ftdi.Mode) error
	SetFlowControl(flowctrl ftdi.FlowCtrl) error
	SetLatencyTimer(lt int) error
	SetBaudrate(br int) error
	PurgeReadBuffer() error
	PurgeWriteBuffer() error
	PurgeBuffers() error

	io.Writer
	io.Reader
	io.Closer
}

var (
	ftdiOpen = ftdiOpenImpl

	ftdiPollInterval = 2 * time.Millisecond
)

func ftdiOpenImpl(vid, pid uint16) (ftdiDevice, error) {
	dev, err := ftdi.OpenFirst(int(vid), int(pid), ftdi.ChannelAny)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// OpenFTDI opens the first FTDI USB-UART bridge matching vid and pid.
func OpenFTDI(vid, pid uint16, opts ...Option) (*Conn, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dev, err := ftdiOpen(vid, pid)
	if err != nil {
		return nil, fmt.Errorf("uart: could not open FTDI device (vid=0x%x, pid=0x%x): %w", vid, pid, err)
	}

	port := &ftdiPort{dev: dev, timeout: cfg.timeout}
	err = port.init(cfg.baud)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("uart: could not initialize FTDI device (vid=0x%x, pid=0x%x): %w", vid, pid, err)
	}

	return NewConn(fmt.Sprintf("ftdi:0x%04x:0x%04x", vid, pid), port), nil
}

// ftdiPort adapts an FTDI device to the Port interface.
// The device reads never block, so the read timeout is emulated by polling.
type ftdiPort struct {
	dev     ftdiDevice
	timeout time.Duration
}

func (p *ftdiPort) init(baud int) error {
	var err error

	err = p.dev.Reset()
	if err != nil {
		return fmt.Errorf("could not reset USB: %w", err)
	}

	err = p.dev.SetBitmode(0, ftdi.ModeReset)
	if err != nil {
		return fmt.Errorf("could not reset bit mode: %w", err)
	}

	err = p.dev.SetFlowControl(ftdi.FlowCtrlDisable)
	if err != nil {
		return fmt.Errorf("could not disable flow control: %w", err)
	}

	err = p.dev.SetLatencyTimer(2)
	if err != nil {
		return fmt.Errorf("could not set latency timer to 2: %w", err)
	}

	err = p.dev.SetBaudrate(baud)
	if err != nil {
		return fmt.Errorf("could not set baud rate to %d: %w", baud, err)
	}

	err = p.dev.PurgeBuffers()
	if err != nil {
		return fmt.Errorf("could not purge USB buffers: %w", err)
	}

	return nil
}

func (p *ftdiPort) Read(b []byte) (int, error) {
	deadline := time.Now().Add(p.timeout)
	for {
		n, err := p.dev.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(ftdiPollInterval)
	}
}

func (p *ftdiPort) Write(b []byte) (int, error) { return p.dev.Write(b) }
func (p *ftdiPort) Close() error               { return p.dev.Close() }

func (p *ftdiPort) ResetInputBuffer() error  { return p.dev.PurgeReadBuffer() }
func (p *ftdiPort) ResetOutputBuffer() error { return p.dev.PurgeWriteBuffer() }

// Drain is a no-op: FTDI writes return once the USB transfer completed.
func (p *ftdiPort) Drain() error { return nil }

var _ Port = (*ftdiPort)(nil)
