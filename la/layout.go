// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"errors"
	"fmt"
)

var ErrUnknownField = errors.New("la: unknown layout field")

// Field is a named sub-field of a sample.
type Field struct {
	Name  string
	Width int // in bits
}

type slot struct {
	shift  int
	offset uint64 // positional weight: 1<<shift
	mask   uint64
}

// Layout describes how fields are packed into a sample word.
//
// Fields are packed in declaration order from bit 0. A layout is
// immutable once built.
type Layout struct {
	fields []Field
	slots  map[string]slot
	width  int
}

// NewLayout packs fields in order. The packed width may not exceed 64 bits.
func NewLayout(fields []Field) (*Layout, error) {
	lay := &Layout{
		fields: append([]Field(nil), fields...),
		slots:  make(map[string]slot, len(fields)),
	}

	for _, f := range fields {
		switch {
		case f.Name == "":
			return nil, fmt.Errorf("la: layout field #%d has no name", len(lay.slots))
		case f.Width < 1:
			return nil, fmt.Errorf("la: layout field %q has invalid width %d", f.Name, f.Width)
		case lay.width+f.Width > 64:
			return nil, fmt.Errorf("la: layout field %q overflows 64 bits (offset=%d, width=%d)", f.Name, lay.width, f.Width)
		}
		if _, dup := lay.slots[f.Name]; dup {
			return nil, fmt.Errorf("la: duplicate layout field %q", f.Name)
		}

		lay.slots[f.Name] = slot{
			shift:  lay.width,
			offset: uint64(1) << lay.width,
			mask:   bitmask(f.Width) << lay.width,
		}
		lay.width += f.Width
	}

	return lay, nil
}

func bitmask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<n - 1
}

// Fields returns the fields of the layout, in packing order.
func (lay *Layout) Fields() []Field {
	return append([]Field(nil), lay.fields...)
}

// Width returns the packed width in bits.
func (lay *Layout) Width() int { return lay.width }

func (lay *Layout) slot(name string) (slot, error) {
	s, ok := lay.slots[name]
	if !ok {
		return s, fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	return s, nil
}

// Offset returns the positional weight of the named field:
// a field value v contributes v*Offset to the packed word.
func (lay *Layout) Offset(name string) (uint64, error) {
	s, err := lay.slot(name)
	return s.offset, err
}

// Mask returns the bits of the packed word covered by the named field.
func (lay *Layout) Mask(name string) (uint64, error) {
	s, err := lay.slot(name)
	return s.mask, err
}

// Extract returns the value of the named field within word.
func (lay *Layout) Extract(name string, word uint64) (uint64, error) {
	s, err := lay.slot(name)
	if err != nil {
		return 0, err
	}
	return (word & s.mask) >> s.shift, nil
}

// Term returns the trigger value and mask matching the given field values.
// A value wider than its field is rejected instead of spilling into the
// next field.
func (lay *Layout) Term(cond map[string]uint64) (value, mask uint64, err error) {
	for name, v := range cond {
		s, err := lay.slot(name)
		if err != nil {
			return 0, 0, err
		}
		if v&^(s.mask>>s.shift) != 0 {
			return 0, 0, fmt.Errorf("la: value 0x%x overflows field %q (mask=0x%x)", v, name, s.mask>>s.shift)
		}
		value |= v * s.offset
		mask |= s.mask
	}
	return value, mask, nil
}
