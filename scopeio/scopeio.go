// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scopeio drives an IO core: a pair of registers sampling inputs
// and driving outputs of the remote design.
package scopeio // import "github.com/go-lpc/litescope/scopeio"

import (
	"fmt"

	"github.com/go-lpc/litescope/csr"
)

// Driver drives the IO core named name.
type Driver struct {
	name string
	in   *csr.Register
	out  *csr.Register
}

// New binds the <name>_i and <name>_o registers of the IO core.
func New(m *csr.Map, name string) (*Driver, error) {
	b := m.Bind(name)
	drv := &Driver{
		name: name,
		in:   b.Reg("i"),
		out:  b.Reg("o"),
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("scopeio: could not bind registers of %q: %w", name, err)
	}
	return drv, nil
}

// Read samples the inputs.
func (drv *Driver) Read() (uint64, error) {
	v, err := drv.in.Read()
	if err != nil {
		return 0, fmt.Errorf("scopeio: could not read inputs of %q: %w", drv.name, err)
	}
	return v, nil
}

// Write drives the outputs.
func (drv *Driver) Write(v uint64) error {
	err := drv.out.Write(v)
	if err != nil {
		return fmt.Errorf("scopeio: could not write outputs of %q: %w", drv.name, err)
	}
	return nil
}
