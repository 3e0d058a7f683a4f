// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uart2wb

import (
	"errors"
	"io"
	"sync"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/litescope/uart"
	"golang.org/x/xerrors"
)

// ErrShortRead is returned when the remote end sent fewer bytes than
// a read command requires before the link timed out.
var ErrShortRead = errors.New("uart2wb: short read")

// Link is the byte stream a Bus runs on.
// ReadByte must return an error wrapping uart.ErrTimeout when no byte
// arrived in time.
type Link interface {
	io.Writer
	io.ByteReader
	FlushInput() error
}

// Bus issues word-addressed transactions over a Link.
// Transactions never interleave: a Bus may be shared between goroutines.
type Bus struct {
	mu   sync.Mutex
	link Link
	msg  log.MsgStream
}

// NewBus returns a bus running on link.
func NewBus(link Link, opts ...Option) *Bus {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newBus(link, cfg)
}

func newBus(link Link, cfg config) *Bus {
	return &Bus{
		link: link,
		msg:  cfg.msgStream(),
	}
}

// ReadU32 reads the word at addr.
func (bus *Bus) ReadU32(addr uint32) (uint32, error) {
	vs, err := bus.Read(addr, 1)
	if err != nil {
		return 0, err
	}
	return vs[0], nil
}

// Read reads n consecutive words starting at addr.
// Read returns an error wrapping ErrShortRead if the remote end
// stopped answering before all the 4*n bytes were received.
func (bus *Bus) Read(addr uint32, n int) ([]uint32, error) {
	raw, err := ReadCommand(addr, n).MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("uart2wb: invalid read @0x%08x: %w", addr, err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	err = bus.link.FlushInput()
	if err != nil {
		return nil, xerrors.Errorf("uart2wb: could not flush input before read @0x%08x: %w", addr, err)
	}

	_, err = bus.link.Write(raw)
	if err != nil {
		return nil, xerrors.Errorf("uart2wb: could not send read command @0x%08x: %w", addr, err)
	}

	vs := make([]uint32, n)
	for i := range vs {
		var v uint32
		for j := 0; j < wordSize; j++ {
			b, err := bus.link.ReadByte()
			if err != nil {
				if errors.Is(err, uart.ErrTimeout) {
					return nil, xerrors.Errorf(
						"uart2wb: read @0x%08x (burst=%d) timed out after %d/%d bytes: %w",
						addr, n, wordSize*i+j, wordSize*n, ErrShortRead,
					)
				}
				return nil, xerrors.Errorf("uart2wb: could not read word @0x%08x: %w", addr+uint32(wordSize*i), err)
			}
			v = v<<8 | uint32(b)
		}
		bus.msg.Debugf("RD %08X @ %08X", v, addr+uint32(wordSize*i))
		vs[i] = v
	}

	return vs, nil
}

// Write writes data at consecutive words starting at addr.
// The burst length is len(data), at most MaxBurst.
func (bus *Bus) Write(addr uint32, data ...uint32) error {
	raw, err := WriteCommand(addr, data...).MarshalBinary()
	if err != nil {
		return xerrors.Errorf("uart2wb: invalid write @0x%08x: %w", addr, err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	_, err = bus.link.Write(raw)
	if err != nil {
		return xerrors.Errorf("uart2wb: could not send write command @0x%08x: %w", addr, err)
	}

	for i, v := range data {
		bus.msg.Debugf("WR %08X @ %08X", v, addr+uint32(wordSize*i))
	}
	return nil
}
