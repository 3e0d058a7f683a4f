// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uart2wb

import (
	"os"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/uart"
)

type config struct {
	msg   log.MsgStream
	debug bool

	busword int
	addrmap string     // path to a csr.csv address map
	regs    []csr.Desc // registers, when no address map file is given

	uart []uart.Option
}

func newConfig() config {
	return config{
		busword: csr.DefaultBusWord,
	}
}

func (cfg config) msgStream() log.MsgStream {
	if cfg.msg != nil {
		return cfg.msg
	}
	lvl := log.LvlInfo
	if cfg.debug {
		lvl = log.LvlDebug
	}
	return log.NewMsgStream("uart2wb", lvl, os.Stdout)
}

// Option configures a Bus or a Driver.
type Option func(*config)

// WithDebug enables the logging of every word read or written.
func WithDebug(v bool) Option {
	return func(cfg *config) {
		cfg.debug = v
	}
}

// WithMsgStream sets the message stream used for logging.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithBusWord sets the number of register bits carried by each bus word.
func WithBusWord(n int) Option {
	return func(cfg *config) {
		cfg.busword = n
	}
}

// WithAddrMap loads the register map from the named csr.csv file.
func WithAddrMap(fname string) Option {
	return func(cfg *config) {
		cfg.addrmap = fname
	}
}

// WithRegisters declares the registers reachable through the bus.
func WithRegisters(regs ...csr.Desc) Option {
	return func(cfg *config) {
		cfg.regs = append(cfg.regs, regs...)
	}
}

// WithBaudRate sets the baud rate of the serial link opened by Dial.
func WithBaudRate(baud int) Option {
	return func(cfg *config) {
		cfg.uart = append(cfg.uart, uart.WithBaudRate(baud))
	}
}
