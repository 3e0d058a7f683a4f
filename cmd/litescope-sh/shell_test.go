// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/internal/fakedev"
	"github.com/go-lpc/litescope/uart2wb"
	"github.com/google/go-cmp/cmp"
)

func newTestShell(t *testing.T) (*fakedev.Device, *shell) {
	t.Helper()

	descs := []csr.Desc{
		{Name: "ctrl_scratch", Addr: 0x04, Length: 4},
		{Name: "ctrl_id", Addr: 0x14, Length: 2, Mode: csr.ReadOnly},
		{Name: "io_i", Addr: 0x800, Length: 1, Mode: csr.ReadOnly},
		{Name: "io_o", Addr: 0x804, Length: 1},
		{Name: "wide", Addr: 0x900, Length: 12, Mode: csr.ReadOnly},
	}
	dev := fakedev.New(8, descs...)
	dev.Store("ctrl_id", 0xbeef)
	dev.OnWrite("io_o", func(r *fakedev.Regs, v uint64) {
		r.Store("io_i", v<<1&0xff)
	})

	drv, err := uart2wb.New(
		dev.Conn(),
		uart2wb.WithRegisters(descs...),
		uart2wb.WithMsgStream(log.NewMsgStream("uart2wb", log.LvlInfo, io.Discard)),
	)
	if err != nil {
		t.Fatalf("could not create driver: %+v", err)
	}
	return dev, newShell(drv)
}

func TestShell(t *testing.T) {
	_, sh := newTestShell(t)

	for _, tc := range []struct {
		line string
		want string
	}{
		{line: "", want: ""},
		{line: "read ctrl_id", want: "ctrl_id = 0xbeef\n"},
		{line: "write ctrl_scratch 0x12345678", want: ""},
		{line: "read ctrl_scratch", want: "ctrl_scratch = 0x12345678\n"},
		{line: "rd 0x4 4", want: "0x00000004: 0x00000012\n0x00000008: 0x00000034\n0x0000000c: 0x00000056\n0x00000010: 0x00000078\n"},
		{line: "wr 0x8 0xff", want: ""},
		{line: "read ctrl_scratch", want: "ctrl_scratch = 0x12ff5678\n"},
		{line: "io io 0x21", want: ""},
		{line: "io io", want: "io = 0x42\n"},
		{line: "read wide", want: "wide = 0x" + strings.Repeat("00000000", 12) + "\n"},
		{
			line: "regs ctrl",
			want: "0x00000014 ctrl_id                                   2 ro\n" +
				"0x00000004 ctrl_scratch                              4 rw\n",
		},
	} {
		t.Run(tc.line, func(t *testing.T) {
			o := new(strings.Builder)
			err := sh.exec(o, tc.line)
			if err != nil {
				t.Fatalf("could not execute %q: %+v", tc.line, err)
			}
			if diff := cmp.Diff(tc.want, o.String()); diff != "" {
				t.Fatalf("invalid output (-want +got):\n%s", diff)
			}
		})
	}
}

func TestShellErrors(t *testing.T) {
	_, sh := newTestShell(t)

	for _, tc := range []struct {
		line string
		want error
		err  string
	}{
		{line: "quit", want: errQuit},
		{line: "exit", want: errQuit},
		{line: "read", want: errUsage, err: "invalid usage: read NAME"},
		{line: "rd", want: errUsage, err: "invalid usage: rd ADDR [N]"},
		{line: "read nope", want: csr.ErrUnknownRegister},
		{line: "write ctrl_id 1", want: csr.ErrMode},
		{line: "write ctrl_scratch 0x100000000", want: csr.ErrWidth},
		{line: "wr 0x3 1", want: uart2wb.ErrAlignment},
		{line: "io gpio", want: csr.ErrUnknownRegister},
		{line: "launch", err: `unknown command "launch" (try help)`},
		{line: "rd 0x0 0x1ff", err: `invalid value "0x1ff": strconv.ParseUint: parsing "0x1ff": value out of range`},
	} {
		t.Run(tc.line, func(t *testing.T) {
			err := sh.exec(io.Discard, tc.line)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("invalid error: got=%+v, want=%v", err, tc.want)
			}
			if tc.err != "" && err.Error() != tc.err {
				t.Fatalf("invalid error message:\ngot= %q\nwant=%q", err.Error(), tc.err)
			}
		})
	}
}

func TestShellHelp(t *testing.T) {
	_, sh := newTestShell(t)
	o := new(strings.Builder)
	err := sh.exec(o, "help")
	if err != nil {
		t.Fatalf("could not run help: %+v", err)
	}
	if got, want := strings.Count(o.String(), "\n"), len(commands); got != want {
		t.Fatalf("invalid number of help lines: got=%d, want=%d", got, want)
	}
}

func TestShellComplete(t *testing.T) {
	_, sh := newTestShell(t)

	for _, tc := range []struct {
		line string
		want []string
	}{
		{line: "r", want: []string{"rd", "read", "regs"}},
		{line: "read ctrl_", want: []string{"read ctrl_id", "read ctrl_scratch"}},
		{line: "io ", want: []string{"io ctrl_id", "io ctrl_scratch", "io io_i", "io io_o", "io wide"}},
		{line: "rd 0x", want: nil},
	} {
		t.Run(tc.line, func(t *testing.T) {
			got := sh.complete(tc.line)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("invalid completion (-want +got):\n%s", diff)
			}
		})
	}
}
