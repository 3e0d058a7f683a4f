// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package uart2wb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/xerrors"
)

// Op is the opcode of a bus command.
type Op uint8

const (
	OpWrite Op = 0x01
	OpRead  Op = 0x02
)

func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	default:
		return "invalid"
	}
}

const (
	// MaxBurst is the maximum number of words carried by a single command.
	MaxBurst = 255

	hdrSize  = 6 // opcode + burst + word address
	wordSize = 4
)

var (
	ErrBurst     = errors.New("uart2wb: invalid burst length")
	ErrAlignment = errors.New("uart2wb: address not word aligned")
	ErrOpcode    = errors.New("uart2wb: invalid opcode")
	ErrAddress   = errors.New("uart2wb: word address overflows the byte address space")
)

// Command is a single bus transaction.
//
// Addr is a byte address. It must be word aligned: the wire carries the
// word index Addr/4.
type Command struct {
	Op    Op
	Burst int      // number of words to read or write
	Addr  uint32   // byte address
	Data  []uint32 // payload of a write command
}

// ReadCommand returns the command reading n consecutive words at addr.
func ReadCommand(addr uint32, n int) Command {
	return Command{Op: OpRead, Burst: n, Addr: addr}
}

// WriteCommand returns the command writing data at addr.
// The burst length is the number of data words.
func WriteCommand(addr uint32, data ...uint32) Command {
	return Command{Op: OpWrite, Burst: len(data), Addr: addr, Data: data}
}

// Size returns the size in bytes of the encoded command.
func (cmd Command) Size() int {
	n := hdrSize
	if cmd.Op == OpWrite {
		n += wordSize * cmd.Burst
	}
	return n
}

func (cmd Command) validate() error {
	switch cmd.Op {
	case OpRead, OpWrite:
	default:
		return fmt.Errorf("%w (got=0x%02x)", ErrOpcode, uint8(cmd.Op))
	}
	if cmd.Burst < 1 || cmd.Burst > MaxBurst {
		return fmt.Errorf("%w (got=%d)", ErrBurst, cmd.Burst)
	}
	if cmd.Addr%wordSize != 0 {
		return fmt.Errorf("%w (addr=0x%08x)", ErrAlignment, cmd.Addr)
	}
	if cmd.Op == OpWrite && len(cmd.Data) != cmd.Burst {
		return fmt.Errorf("%w (burst=%d, data=%d)", ErrBurst, cmd.Burst, len(cmd.Data))
	}
	return nil
}

// MarshalBinary encodes the command into its wire format.
func (cmd Command) MarshalBinary() ([]byte, error) {
	err := cmd.validate()
	if err != nil {
		return nil, err
	}

	p := make([]byte, cmd.Size())
	p[0] = byte(cmd.Op)
	p[1] = byte(cmd.Burst)
	binary.BigEndian.PutUint32(p[2:hdrSize], cmd.Addr/wordSize)
	if cmd.Op == OpWrite {
		for i, v := range cmd.Data {
			beg := hdrSize + i*wordSize
			binary.BigEndian.PutUint32(p[beg:beg+wordSize], v)
		}
	}
	return p, nil
}

// UnmarshalBinary decodes a command from its wire format.
func (cmd *Command) UnmarshalBinary(p []byte) error {
	if len(p) < hdrSize {
		return xerrors.Errorf("uart2wb: could not decode command header: %w", io.ErrUnexpectedEOF)
	}

	hdr := Command{
		Op:    Op(p[0]),
		Burst: int(p[1]),
	}
	switch hdr.Op {
	case OpRead, OpWrite:
	default:
		return fmt.Errorf("%w (got=0x%02x)", ErrOpcode, p[0])
	}
	idx := binary.BigEndian.Uint32(p[2:hdrSize])
	if idx > math.MaxUint32/wordSize {
		return fmt.Errorf("%w (got=0x%08x)", ErrAddress, idx)
	}
	hdr.Addr = idx * wordSize
	if hdr.Burst == 0 {
		return fmt.Errorf("%w (got=%d)", ErrBurst, hdr.Burst)
	}

	n := hdr.Size()
	switch {
	case len(p) < n:
		return xerrors.Errorf("uart2wb: could not decode %v command payload: %w", hdr.Op, io.ErrUnexpectedEOF)
	case len(p) > n:
		return xerrors.Errorf("uart2wb: trailing bytes after %v command (got=%d, want=%d)", hdr.Op, len(p), n)
	}

	if hdr.Op == OpWrite {
		hdr.Data = make([]uint32, hdr.Burst)
		for i := range hdr.Data {
			beg := hdrSize + i*wordSize
			hdr.Data[i] = binary.BigEndian.Uint32(p[beg : beg+wordSize])
		}
	}

	*cmd = hdr
	return nil
}

// Decoder reads a stream of commands.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
}

// NewDecoder returns a decoder reading commands from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, hdrSize, hdrSize+wordSize*MaxBurst),
	}
}

// Decode reads the next command from the stream.
// Decode returns io.EOF when the stream ends on a command boundary.
func (dec *Decoder) Decode(cmd *Command) error {
	dec.buf = dec.buf[:hdrSize]
	dec.read(dec.buf)
	if dec.err != nil {
		if errors.Is(dec.err, io.EOF) {
			return io.EOF
		}
		return xerrors.Errorf("uart2wb: could not read command header: %w", dec.err)
	}

	if Op(dec.buf[0]) == OpWrite {
		n := wordSize * int(dec.buf[1])
		dec.buf = dec.buf[:hdrSize+n]
		dec.read(dec.buf[hdrSize:])
		if dec.err != nil {
			if errors.Is(dec.err, io.EOF) {
				dec.err = io.ErrUnexpectedEOF
			}
			return xerrors.Errorf("uart2wb: could not read write payload: %w", dec.err)
		}
	}

	return cmd.UnmarshalBinary(dec.buf)
}

func (dec *Decoder) read(p []byte) {
	if dec.err != nil {
		return
	}
	_, dec.err = io.ReadFull(dec.r, p)
}
