// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedev holds types to fake a remote SoC reachable through
// a UART-to-bus bridge.
package fakedev // import "github.com/go-lpc/litescope/internal/fakedev"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/uart"
	"github.com/go-lpc/litescope/uart2wb"
)

const hdrSize = 6

var errClosed = errors.New("fakedev: device closed")

// Write is a register write seen by the device.
type Write struct {
	Name  string
	Value uint64
}

type register struct {
	desc    csr.Desc
	onRead  func(r *Regs)
	onWrite func(r *Regs, v uint64)
}

// Device is an in-memory SoC.
//
// It implements uart.Port: command frames written to it are executed
// as soon as they are complete and read answers are queued for the host.
type Device struct {
	mu sync.Mutex

	busword int
	regs    map[string]*register
	first   map[uint32]*register // register by address of its first bus word
	last    map[uint32]*register // register by address of its last bus word
	mem     map[uint32]uint32

	in      []byte // bytes sent by the host, not yet executed
	out     []byte // bytes queued for the host
	budget  int    // number of answer bytes still sent; negative means unlimited
	closed  bool
	drains  int
	journal []Write
}

// New returns a device holding the described registers.
// New panics if two registers share a name.
func New(busword int, descs ...csr.Desc) *Device {
	dev := &Device{
		busword: busword,
		regs:    make(map[string]*register, len(descs)),
		first:   make(map[uint32]*register, len(descs)),
		last:    make(map[uint32]*register, len(descs)),
		mem:     make(map[uint32]uint32),
		budget:  -1,
	}
	for _, desc := range descs {
		if _, dup := dev.regs[desc.Name]; dup {
			panic(fmt.Errorf("fakedev: duplicate register %q", desc.Name))
		}
		reg := &register{desc: desc}
		dev.regs[desc.Name] = reg
		dev.first[desc.Addr] = reg
		dev.last[desc.Addr+uint32(4*(desc.Length-1))] = reg
	}
	return dev
}

// Conn returns a serial link to the device.
func (dev *Device) Conn() *uart.Conn {
	return uart.NewConn("fakedev", dev)
}

// Bus returns a word-level bus to the device, bypassing the serial link.
func (dev *Device) Bus() *Bus {
	return &Bus{dev: dev}
}

// Load returns the value of the named register.
func (dev *Device) Load(name string) uint64 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.load(dev.reg(name))
}

// Store sets the value of the named register, without firing any hook.
func (dev *Device) Store(name string, v uint64) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.store(dev.reg(name), v)
}

// OnRead installs a hook fired before the named register is read.
// Hooks run with the device locked: they must only use the Regs they
// are handed.
func (dev *Device) OnRead(name string, f func(r *Regs)) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.reg(name).onRead = f
}

// OnWrite installs a hook fired after the named register was written.
// Hooks run with the device locked: they must only use the Regs they
// are handed.
func (dev *Device) OnWrite(name string, f func(r *Regs, v uint64)) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.reg(name).onWrite = f
}

// Writes returns the register writes seen so far.
func (dev *Device) Writes() []Write {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return append([]Write(nil), dev.journal...)
}

// ResetWrites clears the register writes journal.
func (dev *Device) ResetWrites() {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.journal = dev.journal[:0]
}

// Starve limits the number of answer bytes the device still sends.
// A negative n removes the limit.
func (dev *Device) Starve(n int) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.budget = n
}

// Feed queues stale bytes for the host.
func (dev *Device) Feed(p []byte) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.out = append(dev.out, p...)
}

// Drains returns how many times the link output was drained.
func (dev *Device) Drains() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.drains
}

// Closed returns whether the link was closed.
func (dev *Device) Closed() bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.closed
}

// Read implements uart.Port.
// Read returns (0, nil) when no answer byte is pending.
func (dev *Device) Read(p []byte) (int, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.closed {
		return 0, errClosed
	}
	n := copy(p, dev.out)
	dev.out = dev.out[n:]
	return n, nil
}

// Write implements uart.Port.
func (dev *Device) Write(p []byte) (int, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.closed {
		return 0, errClosed
	}

	dev.in = append(dev.in, p...)
	for len(dev.in) >= hdrSize {
		cmd := uart2wb.Command{Op: uart2wb.Op(dev.in[0]), Burst: int(dev.in[1])}
		n := cmd.Size()
		if len(dev.in) < n {
			break
		}
		err := cmd.UnmarshalBinary(dev.in[:n])
		if err != nil {
			dev.in = dev.in[:0]
			return len(p), fmt.Errorf("fakedev: could not decode command: %w", err)
		}
		dev.in = dev.in[n:]
		dev.exec(cmd)
	}
	return len(p), nil
}

func (dev *Device) ResetInputBuffer() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.out = dev.out[:0]
	return nil
}

func (dev *Device) ResetOutputBuffer() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.in = dev.in[:0]
	return nil
}

func (dev *Device) Drain() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.drains++
	return nil
}

func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.closed = true
	return nil
}

func (dev *Device) exec(cmd uart2wb.Command) {
	switch cmd.Op {
	case uart2wb.OpWrite:
		for i, v := range cmd.Data {
			dev.write(cmd.Addr+uint32(4*i), v)
		}
	case uart2wb.OpRead:
		var buf [4]byte
		for i := 0; i < cmd.Burst; i++ {
			binary.BigEndian.PutUint32(buf[:], dev.read(cmd.Addr+uint32(4*i)))
			dev.emit(buf[:])
		}
	}
}

func (dev *Device) emit(p []byte) {
	for _, b := range p {
		switch {
		case dev.budget == 0:
			return
		case dev.budget > 0:
			dev.budget--
		}
		dev.out = append(dev.out, b)
	}
}

func (dev *Device) read(addr uint32) uint32 {
	if reg, ok := dev.first[addr]; ok && reg.onRead != nil {
		reg.onRead(&Regs{dev: dev})
	}
	return dev.mem[addr]
}

func (dev *Device) write(addr, v uint32) {
	dev.mem[addr] = v
	reg, ok := dev.last[addr]
	if !ok {
		return
	}
	val := dev.load(reg)
	dev.journal = append(dev.journal, Write{Name: reg.desc.Name, Value: val})
	if reg.onWrite != nil {
		reg.onWrite(&Regs{dev: dev}, val)
	}
}

func (dev *Device) reg(name string) *register {
	reg, ok := dev.regs[name]
	if !ok {
		panic(fmt.Errorf("fakedev: unknown register %q", name))
	}
	return reg
}

func (dev *Device) load(reg *register) uint64 {
	var (
		v    uint64
		mask = uint64(1)<<dev.busword - 1
	)
	for i := 0; i < reg.desc.Length; i++ {
		v = v<<dev.busword | uint64(dev.mem[reg.desc.Addr+uint32(4*i)])&mask
	}
	return v
}

func (dev *Device) store(reg *register, v uint64) {
	mask := uint64(1)<<dev.busword - 1
	for i := reg.desc.Length - 1; i >= 0; i-- {
		dev.mem[reg.desc.Addr+uint32(4*i)] = uint32(v & mask)
		v >>= dev.busword
	}
}

// Regs gives hooks access to the registers of a locked device.
type Regs struct {
	dev *Device
}

// Load returns the value of the named register.
func (r *Regs) Load(name string) uint64 {
	return r.dev.load(r.dev.reg(name))
}

// Store sets the value of the named register.
func (r *Regs) Store(name string, v uint64) {
	r.dev.store(r.dev.reg(name), v)
}

// Bus is a word-level bus to a device.
type Bus struct {
	dev *Device
}

func (bus *Bus) Read(addr uint32, n int) ([]uint32, error) {
	bus.dev.mu.Lock()
	defer bus.dev.mu.Unlock()
	vs := make([]uint32, n)
	for i := range vs {
		vs[i] = bus.dev.read(addr + uint32(4*i))
	}
	return vs, nil
}

func (bus *Bus) Write(addr uint32, data ...uint32) error {
	bus.dev.mu.Lock()
	defer bus.dev.mu.Unlock()
	for i, v := range data {
		bus.dev.write(addr+uint32(4*i), v)
	}
	return nil
}

var (
	_ uart.Port      = (*Device)(nil)
	_ csr.ReadWriter = (*Bus)(nil)
)
