// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/scopeio"
	"github.com/go-lpc/litescope/uart2wb"
)

var (
	errQuit  = errors.New("quit")
	errUsage = errors.New("invalid usage")
)

type command struct {
	usage string
	help  string
	run   func(sh *shell, w io.Writer, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":  {"help", "list available commands", (*shell).help},
		"regs":  {"regs [PREFIX]", "list registers of the address map", (*shell).regs},
		"read":  {"read NAME", "read register NAME", (*shell).read},
		"write": {"write NAME VALUE", "write VALUE to register NAME", (*shell).write},
		"rd":    {"rd ADDR [N]", "read N bus words at byte address ADDR", (*shell).rd},
		"wr":    {"wr ADDR VALUE...", "write bus words at byte address ADDR", (*shell).wr},
		"io":    {"io NAME [VALUE]", "sample inputs or drive outputs of IO core NAME", (*shell).io},
		"quit":  {"quit", "leave the shell", (*shell).quit},
	}
}

type shell struct {
	drv    *uart2wb.Driver
	regmap *csr.Map
}

func newShell(drv *uart2wb.Driver) *shell {
	return &shell{drv: drv, regmap: drv.Regs()}
}

func (sh *shell) exec(w io.Writer, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	name := args[0]
	if name == "exit" {
		name = "quit"
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}
	err := cmd.run(sh, w, args[1:])
	if errors.Is(err, errUsage) {
		return fmt.Errorf("%w: %s", err, cmd.usage)
	}
	return err
}

func (sh *shell) complete(line string) []string {
	args := strings.Fields(line)
	switch {
	case len(args) == 0:
		return sortedCommands()
	case len(args) == 1 && !strings.HasSuffix(line, " "):
		var out []string
		for _, name := range sortedCommands() {
			if strings.HasPrefix(name, args[0]) {
				out = append(out, name)
			}
		}
		return out
	}

	switch args[0] {
	case "read", "write", "regs", "io":
	default:
		return nil
	}

	pre := ""
	if !strings.HasSuffix(line, " ") {
		pre = args[len(args)-1]
		line = strings.TrimSuffix(line, pre)
	}
	var out []string
	for _, name := range sh.regmap.Names() {
		if strings.HasPrefix(name, pre) {
			out = append(out, line+name)
		}
	}
	return out
}

func sortedCommands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (sh *shell) help(w io.Writer, args []string) error {
	for _, name := range sortedCommands() {
		cmd := commands[name]
		fmt.Fprintf(w, "%-20s %s\n", cmd.usage, cmd.help)
	}
	return nil
}

func (sh *shell) quit(w io.Writer, args []string) error {
	return errQuit
}

func (sh *shell) regs(w io.Writer, args []string) error {
	if len(args) > 1 {
		return errUsage
	}
	pre := ""
	if len(args) == 1 {
		pre = args[0]
	}
	for _, name := range sh.regmap.Names() {
		if !strings.HasPrefix(name, pre) {
			continue
		}
		reg, err := sh.regmap.Reg(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "0x%08x %-40s %2d %s\n", reg.Addr, reg.Name, reg.Length, reg.Mode)
	}
	return nil
}

func (sh *shell) read(w io.Writer, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	reg, err := sh.regmap.Reg(args[0])
	if err != nil {
		return err
	}
	if reg.Width() > 64 {
		ws, err := reg.ReadWords()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s = %s\n", reg.Name, hexWords(ws))
		return nil
	}
	v, err := reg.Read()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = 0x%x\n", reg.Name, v)
	return nil
}

func (sh *shell) write(w io.Writer, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	reg, err := sh.regmap.Reg(args[0])
	if err != nil {
		return err
	}
	v, err := parseUint(args[1], 64)
	if err != nil {
		return err
	}
	return reg.Write(v)
}

func (sh *shell) rd(w io.Writer, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	addr, err := parseUint(args[0], 32)
	if err != nil {
		return err
	}
	n := uint64(1)
	if len(args) == 2 {
		n, err = parseUint(args[1], 8)
		if err != nil {
			return err
		}
	}
	ws, err := sh.drv.Read(uint32(addr), int(n))
	if err != nil {
		return err
	}
	for i, v := range ws {
		fmt.Fprintf(w, "0x%08x: 0x%08x\n", uint32(addr)+uint32(4*i), v)
	}
	return nil
}

func (sh *shell) wr(w io.Writer, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	addr, err := parseUint(args[0], 32)
	if err != nil {
		return err
	}
	data := make([]uint32, len(args)-1)
	for i, arg := range args[1:] {
		v, err := parseUint(arg, 32)
		if err != nil {
			return err
		}
		data[i] = uint32(v)
	}
	return sh.drv.Write(uint32(addr), data...)
}

func (sh *shell) io(w io.Writer, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	dev, err := scopeio.New(sh.regmap, args[0])
	if err != nil {
		return err
	}
	if len(args) == 2 {
		v, err := parseUint(args[1], 64)
		if err != nil {
			return err
		}
		return dev.Write(v)
	}
	v, err := dev.Read()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s = 0x%x\n", args[0], v)
	return nil
}

func parseUint(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return v, nil
}

func hexWords(ws []uint32) string {
	var o strings.Builder
	o.WriteString("0x")
	for _, v := range ws {
		fmt.Fprintf(&o, "%08x", v)
	}
	return o.String()
}
