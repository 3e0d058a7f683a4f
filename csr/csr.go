// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package csr exposes the control and status registers of a remote SoC
// as named, typed accessors.
//
// A register spans Length bus words. Each bus word carries BusWord bits
// of the register value on its own 32-bit aligned address, the most
// significant chunk first.
package csr // import "github.com/go-lpc/litescope/csr"

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultBusWord is the number of register bits carried by a bus word
// on a default SoC configuration.
const DefaultBusWord = 8

var (
	ErrUnknownRegister = errors.New("csr: unknown register")
	ErrMode            = errors.New("csr: invalid access mode")
	ErrWidth           = errors.New("csr: value does not fit register")
)

// ReadWriter issues word-addressed bus transactions.
type ReadWriter interface {
	Read(addr uint32, n int) ([]uint32, error)
	Write(addr uint32, data ...uint32) error
}

// Mode is the access mode of a register.
type Mode uint8

const (
	ReadWrite Mode = iota
	ReadOnly
	WriteOnly
)

func (m Mode) String() string {
	switch m {
	case ReadWrite:
		return "rw"
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses the textual access mode of a register.
// An empty string is a read-write register.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rw", "":
		return ReadWrite, nil
	case "ro":
		return ReadOnly, nil
	case "wo":
		return WriteOnly, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrMode, s)
	}
}

// Desc describes a register.
type Desc struct {
	Name   string
	Addr   uint32 // byte address of the first bus word
	Length int    // number of bus words
	Mode   Mode
}

// Register is a named register reachable through a bus.
type Register struct {
	Desc

	busword int
	rw      ReadWriter
}

// Width returns the width in bits of the register.
func (reg *Register) Width() int { return reg.Length * reg.busword }

// ReadWords reads the raw bus words of the register, most significant first.
func (reg *Register) ReadWords() ([]uint32, error) {
	if reg.Mode == WriteOnly {
		return nil, fmt.Errorf("csr: could not read %q: %w (mode=%v)", reg.Name, ErrMode, reg.Mode)
	}
	ws, err := reg.rw.Read(reg.Addr, reg.Length)
	if err != nil {
		return nil, fmt.Errorf("csr: could not read %q: %w", reg.Name, err)
	}
	return ws, nil
}

// WriteWords writes the raw bus words of the register, most significant first.
func (reg *Register) WriteWords(ws ...uint32) error {
	if reg.Mode == ReadOnly {
		return fmt.Errorf("csr: could not write %q: %w (mode=%v)", reg.Name, ErrMode, reg.Mode)
	}
	if len(ws) != reg.Length {
		return fmt.Errorf(
			"csr: could not write %q: %w (words=%d, want=%d)",
			reg.Name, ErrWidth, len(ws), reg.Length,
		)
	}
	err := reg.rw.Write(reg.Addr, ws...)
	if err != nil {
		return fmt.Errorf("csr: could not write %q: %w", reg.Name, err)
	}
	return nil
}

// Read reads the value of the register.
func (reg *Register) Read() (uint64, error) {
	if reg.Width() > 64 {
		return 0, fmt.Errorf("csr: could not read %q: %w (width=%d)", reg.Name, ErrWidth, reg.Width())
	}
	ws, err := reg.ReadWords()
	if err != nil {
		return 0, err
	}

	var (
		v    uint64
		mask = uint64(1)<<reg.busword - 1
	)
	for _, w := range ws {
		v = v<<reg.busword | uint64(w)&mask
	}
	return v, nil
}

// Write writes v to the register.
func (reg *Register) Write(v uint64) error {
	if w := reg.Width(); w > 64 || (w < 64 && v>>w != 0) {
		return fmt.Errorf("csr: could not write 0x%x to %q: %w (width=%d)", v, reg.Name, ErrWidth, w)
	}

	var (
		ws   = make([]uint32, reg.Length)
		mask = uint64(1)<<reg.busword - 1
	)
	for i := len(ws) - 1; i >= 0; i-- {
		ws[i] = uint32(v & mask)
		v >>= reg.busword
	}
	return reg.WriteWords(ws...)
}

// Map is the set of registers of a SoC.
type Map struct {
	busword int
	regs    map[string]*Register
}

// NewMap returns the register map described by descs.
func NewMap(rw ReadWriter, busword int, descs []Desc) (*Map, error) {
	if busword < 1 || busword > 32 {
		return nil, fmt.Errorf("csr: invalid bus word width %d", busword)
	}

	m := &Map{
		busword: busword,
		regs:    make(map[string]*Register, len(descs)),
	}
	for _, desc := range descs {
		switch {
		case desc.Name == "":
			return nil, fmt.Errorf("csr: register @0x%08x has no name", desc.Addr)
		case desc.Length < 1:
			return nil, fmt.Errorf("csr: register %q has invalid length %d", desc.Name, desc.Length)
		case desc.Addr%4 != 0:
			return nil, fmt.Errorf("csr: register %q is not word aligned (addr=0x%08x)", desc.Name, desc.Addr)
		}
		if _, dup := m.regs[desc.Name]; dup {
			return nil, fmt.Errorf("csr: duplicate register %q", desc.Name)
		}
		m.regs[desc.Name] = &Register{
			Desc:    desc,
			busword: busword,
			rw:      rw,
		}
	}
	return m, nil
}

// BusWord returns the number of register bits carried by a bus word.
func (m *Map) BusWord() int { return m.busword }

// Has returns whether the map holds the named register.
func (m *Map) Has(name string) bool {
	_, ok := m.regs[name]
	return ok
}

// Reg returns the named register.
func (m *Map) Reg(name string) (*Register, error) {
	reg, ok := m.regs[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownRegister, name)
	}
	return reg, nil
}

// Names returns the sorted names of all registers.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.regs))
	for name := range m.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind returns a binder resolving registers named prefix+"_"+name.
// An empty prefix resolves names verbatim.
func (m *Map) Bind(prefix string) *Binder {
	return &Binder{m: m, prefix: prefix}
}

// Binder resolves a fixed set of register handles.
// The first unknown name is kept and reported by Err; later lookups
// return nil.
type Binder struct {
	m      *Map
	prefix string
	err    error
}

// Reg returns the named register, or nil if any lookup failed.
func (b *Binder) Reg(name string) *Register {
	if b.err != nil {
		return nil
	}
	if b.prefix != "" {
		name = b.prefix + "_" + name
	}
	var reg *Register
	reg, b.err = b.m.Reg(name)
	return reg
}

// Err returns the first lookup error.
func (b *Binder) Err() error { return b.err }
