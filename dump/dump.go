// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dump exports captured samples as waveforms, tables or scripts.
package dump // import "github.com/go-lpc/litescope/dump"

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrUnsupportedFormat = errors.New("dump: unsupported format")

// Var is a named signal and its value at every sample.
type Var struct {
	Name   string
	Width  int // in bits
	Values []uint64
}

// Field is a named bit-field of a sample word.
type Field struct {
	Name  string
	Width int
}

// Dump is a set of signals sampled at the same instants.
type Dump struct {
	Timescale string // VCD time unit of a sample, 1ns if empty
	Vars      []*Var
}

// New returns a dump holding vars.
func New(vars ...*Var) *Dump {
	return &Dump{Vars: vars}
}

// FromLayout splits each sample word into the given fields, packed in
// order from bit 0, and returns one signal per field.
func FromLayout(fields []Field, words []uint64) *Dump {
	d := &Dump{Vars: make([]*Var, len(fields))}
	shift := 0
	for i, f := range fields {
		mask := ^uint64(0)
		if f.Width < 64 {
			mask = uint64(1)<<f.Width - 1
		}
		v := &Var{
			Name:   f.Name,
			Width:  f.Width,
			Values: make([]uint64, len(words)),
		}
		for j, w := range words {
			v.Values[j] = (w >> shift) & mask
		}
		d.Vars[i] = v
		shift += f.Width
	}
	return d
}

// Add appends a signal to the dump.
func (d *Dump) Add(v *Var) {
	d.Vars = append(d.Vars, v)
}

// Len returns the number of samples of the longest signal.
func (d *Dump) Len() int {
	n := 0
	for _, v := range d.Vars {
		if len(v.Values) > n {
			n = len(v.Values)
		}
	}
	return n
}

func (d *Dump) timescale() string {
	if d.Timescale == "" {
		return "1ns"
	}
	return d.Timescale
}

// Save writes the dump to fname, in the format given by its extension:
// .vcd, .csv or .py.
func Save(fname string, d *Dump) error {
	var write func(f *os.File, d *Dump) error
	switch ext := strings.ToLower(filepath.Ext(fname)); ext {
	case ".vcd":
		write = func(f *os.File, d *Dump) error { return WriteVCD(f, d) }
	case ".csv":
		write = func(f *os.File, d *Dump) error { return WriteCSV(f, d) }
	case ".py":
		write = func(f *os.File, d *Dump) error { return WritePY(f, d) }
	default:
		return fmt.Errorf("%w %q (file=%q)", ErrUnsupportedFormat, ext, fname)
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("dump: could not create output file: %w", err)
	}
	defer f.Close()

	err = write(f, d)
	if err != nil {
		return err
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("dump: could not close output file %q: %w", fname, err)
	}
	return nil
}
