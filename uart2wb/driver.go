// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uart2wb drives a remote SoC through its UART-to-bus bridge.
//
// Every transaction is a fixed binary frame:
//
//	opcode (1 byte) | burst (1 byte) | word address (4 bytes, big-endian) | payload
//
// with opcode 0x01 for writes and 0x02 for reads. Writes carry burst
// big-endian 32-bit words; reads are answered with burst big-endian words.
// The protocol has no delimiter and no checksum.
package uart2wb // import "github.com/go-lpc/litescope/uart2wb"

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/uart"
)

// SelectRegister is the name of the register handing the remote bus
// over to the UART bridge.
const SelectRegister = "uart2wb_sel"

// Driver owns a serial link, the bus running on it and the register
// map of the remote SoC.
type Driver struct {
	conn *uart.Conn
	bus  *Bus
	regs *csr.Map
	msg  log.MsgStream
}

var (
	uartOpen     = uart.Open
	uartOpenFTDI = uart.OpenFTDI
)

// Dial opens the serial port and returns a driver for the SoC behind it.
//
// A port of the form "ftdi:VID:PID" selects the first FTDI USB-UART
// bridge with these USB identifiers, e.g. "ftdi:0x0403:0x6001".
// Any other port is opened as a serial device.
func Dial(port string, opts ...Option) (*Driver, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := openLink(port, cfg.uart)
	if err != nil {
		return nil, fmt.Errorf("uart2wb: could not open link: %w", err)
	}

	drv, err := newDriver(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return drv, nil
}

func openLink(port string, opts []uart.Option) (*uart.Conn, error) {
	if !strings.HasPrefix(port, "ftdi:") {
		return uartOpen(port, opts...)
	}

	ids := strings.Split(strings.TrimPrefix(port, "ftdi:"), ":")
	if len(ids) != 2 {
		return nil, fmt.Errorf("invalid FTDI port %q (want ftdi:VID:PID)", port)
	}
	vid, err := strconv.ParseUint(ids[0], 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid FTDI vendor id in %q: %w", port, err)
	}
	pid, err := strconv.ParseUint(ids[1], 0, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid FTDI product id in %q: %w", port, err)
	}
	return uartOpenFTDI(uint16(vid), uint16(pid), opts...)
}

// New returns a driver for the SoC reachable through conn.
func New(conn *uart.Conn, opts ...Option) (*Driver, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newDriver(conn, cfg)
}

func newDriver(conn *uart.Conn, cfg config) (*Driver, error) {
	drv := &Driver{
		conn: conn,
		msg:  cfg.msgStream(),
	}
	drv.bus = &Bus{link: conn, msg: drv.msg}

	var err error
	switch {
	case cfg.addrmap != "":
		drv.regs, err = csr.OpenMap(drv.bus, cfg.busword, cfg.addrmap)
	default:
		drv.regs, err = csr.NewMap(drv.bus, cfg.busword, cfg.regs)
	}
	if err != nil {
		return nil, fmt.Errorf("uart2wb: could not build register map: %w", err)
	}

	return drv, nil
}

// Bus returns the bus of the driver.
func (drv *Driver) Bus() *Bus { return drv.bus }

// Regs returns the register map of the remote SoC.
func (drv *Driver) Regs() *csr.Map { return drv.regs }

// Read reads n consecutive words at addr.
func (drv *Driver) Read(addr uint32, n int) ([]uint32, error) {
	return drv.bus.Read(addr, n)
}

// Write writes data at addr.
func (drv *Driver) Write(addr uint32, data ...uint32) error {
	return drv.bus.Write(addr, data...)
}

// Open resets the link buffers and hands the remote bus over to the bridge.
func (drv *Driver) Open() error {
	err := drv.conn.DiscardOutput()
	if err != nil {
		return fmt.Errorf("uart2wb: could not open driver: %w", err)
	}

	err = drv.conn.FlushInput()
	if err != nil {
		return fmt.Errorf("uart2wb: could not open driver: %w", err)
	}

	drv.selectBus(1)
	return nil
}

// Close releases the remote bus, flushes and closes the link.
func (drv *Driver) Close() error {
	drv.selectBus(0)

	err := drv.conn.FlushOutput()
	if err != nil {
		_ = drv.conn.Close()
		return fmt.Errorf("uart2wb: could not close driver: %w", err)
	}

	err = drv.conn.Close()
	if err != nil {
		return fmt.Errorf("uart2wb: could not close driver: %w", err)
	}
	return nil
}

// selectBus writes v to the select register.
// Failures are logged and never returned: Open and Close proceed
// whether or not the SoC has a select register.
func (drv *Driver) selectBus(v uint64) {
	if !drv.regs.Has(SelectRegister) {
		drv.msg.Debugf("no %s register, skipping bus select=%d", SelectRegister, v)
		return
	}

	reg, err := drv.regs.Reg(SelectRegister)
	if err == nil {
		err = reg.Write(v)
	}
	if err != nil {
		drv.msg.Warnf("could not write %s=%d: %+v", SelectRegister, v, err)
	}
}
