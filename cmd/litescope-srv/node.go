// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/litescope/la"
	"github.com/go-lpc/litescope/uart2wb"
)

var errNotConfigured = errors.New("litescope-srv: logic analyzer not configured")

// setup is the capture setup carried by the /init command.
//
// Its binary form is, in order:
//   - u32 subsampler (0: no subsampling)
//   - u64 pre-trigger offset
//   - u64 length (0: recorder depth)
//   - str trigger sum expression (empty: unchanged)
//   - u32 trigger port
//   - u32 number of trigger fields, then (str name, u64 value) pairs.
type setup struct {
	subsampler uint32
	offset     uint64
	length     uint64
	sum        string
	port       uint32
	cond       map[string]uint64
}

func (s *setup) UnmarshalTDAQ(p []byte) error {
	dec := tdaq.NewDecoder(bytes.NewReader(p))
	s.subsampler = dec.ReadU32()
	s.offset = dec.ReadU64()
	s.length = dec.ReadU64()
	s.sum = dec.ReadStr()
	s.port = dec.ReadU32()
	n := int(dec.ReadU32())
	s.cond = make(map[string]uint64, n)
	for i := 0; i < n && dec.Err() == nil; i++ {
		name := dec.ReadStr()
		s.cond[name] = dec.ReadU64()
	}
	return dec.Err()
}

func (s setup) MarshalTDAQ() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(s.subsampler)
	enc.WriteU64(s.offset)
	enc.WriteU64(s.length)
	enc.WriteStr(s.sum)
	enc.WriteU32(s.port)
	enc.WriteU32(uint32(len(s.cond)))
	for name, v := range s.cond {
		enc.WriteStr(name)
		enc.WriteU64(v)
	}
	return buf.Bytes(), enc.Err()
}

type node struct {
	name    string
	port    string
	addrmap string
	lacfg   string

	dial func(port string, opts ...uart2wb.Option) (*uart2wb.Driver, error)

	mu    sync.Mutex
	bus   *uart2wb.Driver
	la    *la.Driver
	setup setup

	n    int
	data chan []byte
}

func newNode(name, port, addrmap, lacfg string) *node {
	return &node{
		name:    name,
		port:    port,
		addrmap: addrmap,
		lacfg:   lacfg,
		dial:    uart2wb.Dial,
		data:    make(chan []byte, 16),
	}
}

func (dev *node) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.close(ctx)

	cfg, err := la.OpenConfig(dev.lacfg)
	if err != nil {
		ctx.Msg.Errorf("could not load logic analyzer description: %+v", err)
		return err
	}

	bus, err := dev.dial(dev.port, uart2wb.WithAddrMap(dev.addrmap), uart2wb.WithMsgStream(ctx.Msg))
	if err != nil {
		ctx.Msg.Errorf("could not dial %q: %+v", dev.port, err)
		return err
	}

	err = bus.Open()
	if err != nil {
		_ = bus.Close()
		ctx.Msg.Errorf("could not open bus: %+v", err)
		return err
	}

	drv, err := la.New(bus.Regs(), dev.name, cfg, la.WithMsgStream(ctx.Msg))
	if err != nil {
		_ = bus.Close()
		ctx.Msg.Errorf("could not create logic analyzer driver: %+v", err)
		return err
	}

	dev.bus = bus
	dev.la = drv
	ctx.Msg.Infof("logic analyzer: dw=%d, depth=%d, ports=%d", cfg.DataWidth, cfg.Depth, drv.Ports())
	return nil
}

func (dev *node) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.la == nil {
		return errNotConfigured
	}

	var s setup
	if len(req.Body) > 0 {
		err := s.UnmarshalTDAQ(req.Body)
		if err != nil {
			ctx.Msg.Errorf("could not decode /init request: %+v", err)
			return fmt.Errorf("litescope-srv: could not decode /init request: %w", err)
		}
	}
	if s.subsampler == 0 {
		s.subsampler = 1
	}
	if s.length == 0 {
		s.length = uint64(dev.la.Config().Depth)
	}

	var err error
	if s.subsampler != 1 || dev.la.HasSubsampler() {
		err = dev.la.ConfigureSubsampler(int(s.subsampler))
		if err != nil {
			ctx.Msg.Errorf("could not configure subsampler: %+v", err)
			return err
		}
	}
	if len(s.cond) > 0 {
		err = dev.la.ConfigureTerm(int(s.port), 0, 0, s.cond)
		if err != nil {
			ctx.Msg.Errorf("could not configure trigger: %+v", err)
			return err
		}
	}
	if s.sum != "" {
		err = dev.la.ConfigureSum(s.sum)
		if err != nil {
			ctx.Msg.Errorf("could not configure trigger sum: %+v", err)
			return err
		}
	}

	dev.setup = s
	dev.reset()
	return nil
}

func (dev *node) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.reset()
	return nil
}

func (dev *node) reset() {
	dev.data = make(chan []byte, 16)
	dev.n = 0
}

func (dev *node) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.la == nil {
		return errNotConfigured
	}
	dev.n = 0
	return nil
}

func (dev *node) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	dev.mu.Lock()
	n := dev.n
	dev.mu.Unlock()
	ctx.Msg.Debugf("received /stop command... -> n=%d", n)
	return nil
}

func (dev *node) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.close(ctx)
	return nil
}

func (dev *node) close(ctx tdaq.Context) {
	if dev.bus == nil {
		return
	}
	err := dev.bus.Close()
	if err != nil {
		ctx.Msg.Warnf("could not close bus: %+v", err)
	}
	dev.bus = nil
	dev.la = nil
}

func (dev *node) samples(ctx tdaq.Context, dst *tdaq.Frame) error {
	dev.mu.Lock()
	data := dev.data
	dev.mu.Unlock()

	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case raw := <-data:
		dst.Body = raw
	}
	return nil
}

func (dev *node) run(ctx tdaq.Context) error {
	for {
		err := dev.capture(ctx)
		switch {
		case ctx.Ctx.Err() != nil:
			return nil
		case err != nil:
			ctx.Msg.Errorf("could not capture: %+v", err)
			return err
		}
	}
}

// capture arms the analyzer, waits for its trigger and queues the
// uploaded samples.
func (dev *node) capture(ctx tdaq.Context) error {
	dev.mu.Lock()
	drv, s := dev.la, dev.setup
	dev.mu.Unlock()

	if drv == nil {
		return errNotConfigured
	}

	err := drv.Run(s.offset, s.length)
	if err != nil {
		return err
	}

	err = drv.Wait(ctx.Ctx)
	if err != nil {
		return err
	}

	dat, err := drv.Upload(ctx.Ctx)
	if err != nil {
		return err
	}

	dev.mu.Lock()
	defer dev.mu.Unlock()

	raw, err := encodeSamples(uint32(dev.n), dat)
	if err != nil {
		return fmt.Errorf("litescope-srv: could not encode capture: %w", err)
	}

	select {
	case dev.data <- raw:
		dev.n++
	default:
		ctx.Msg.Warnf("dropping capture #%d: output queue full", dev.n)
	}
	return nil
}

// encodeSamples encodes a capture as its index, its number of samples
// and the samples themselves.
func encodeSamples(id uint32, dat *la.Dat) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := tdaq.NewEncoder(buf)
	enc.WriteU32(id)
	enc.WriteU32(uint32(dat.Len()))
	for _, v := range dat.Words {
		enc.WriteU64(v)
	}
	return buf.Bytes(), enc.Err()
}
