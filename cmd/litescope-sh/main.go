// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command litescope-sh is an interactive shell to inspect and drive the
// registers of a SoC through its UART bridge.
//
// Usage:
//
//	$> litescope-sh -dev /dev/ttyUSB0 -csr csr.csv
//	litescope> regs
//	litescope> read ctrl_scratch
//	litescope> write ctrl_scratch 0xcafe
//	litescope> rd 0x1000 4
//	litescope> io io 0x3
//
// A single command may also be given on the command line:
//
//	$> litescope-sh -csr csr.csv read ctrl_scratch
package main // import "github.com/go-lpc/litescope/cmd/litescope-sh"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-lpc/litescope"
	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/uart2wb"
	"github.com/peterh/liner"
)

func main() {
	var (
		dev     = flag.String("dev", "/dev/ttyUSB0", "serial port of the UART bridge (or ftdi:VID:PID)")
		baud    = flag.Int("baud", 115200, "baud rate of the serial port")
		addrmap = flag.String("csr", "csr.csv", "address map of the SoC")
		busword = flag.Int("busword", csr.DefaultBusWord, "number of register bits per bus word")
		hist    = flag.String("history", histFile(), "shell history file")
		verbose = flag.Bool("v", false, "enable verbose mode")
	)

	flag.Parse()

	log.SetPrefix("litescope-sh: ")
	log.SetFlags(0)

	drv, err := uart2wb.Dial(
		*dev,
		uart2wb.WithBaudRate(*baud),
		uart2wb.WithAddrMap(*addrmap),
		uart2wb.WithBusWord(*busword),
		uart2wb.WithDebug(*verbose),
	)
	if err != nil {
		log.Fatalf("could not dial %q: %+v", *dev, err)
	}

	err = drv.Open()
	if err != nil {
		log.Fatalf("could not open bus: %+v", err)
	}
	defer drv.Close()

	sh := newShell(drv)

	if flag.NArg() > 0 {
		err = sh.exec(os.Stdout, strings.Join(flag.Args(), " "))
		if err != nil && !errors.Is(err, errQuit) {
			_ = drv.Close()
			log.Fatalf("%+v", err)
		}
		return
	}

	v, _ := litescope.Version()
	fmt.Printf("litescope-sh %s (%s, %d registers)\n", v, *dev, len(drv.Regs().Names()))

	err = sh.loop(*hist)
	if err != nil {
		_ = drv.Close()
		log.Fatalf("%+v", err)
	}
}

func histFile() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".litescope_history")
}

func (sh *shell) loop(hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	if hist != "" {
		if f, err := os.Open(hist); err == nil {
			_, _ = term.ReadHistory(f)
			_ = f.Close()
		}
	}

	defer func() {
		if hist == "" {
			return
		}
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = term.WriteHistory(f)
	}()

	for {
		line, err := term.Prompt("litescope> ")
		switch {
		case err == nil:
		case errors.Is(err, liner.ErrPromptAborted), errors.Is(err, io.EOF):
			fmt.Println()
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = sh.exec(os.Stdout, line)
		switch {
		case err == nil:
		case errors.Is(err, errQuit):
			return nil
		default:
			fmt.Fprintf(os.Stdout, "error: %+v\n", err)
		}
	}
}
