// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command litescope-srv starts a TDAQ node driving a logic analyzer.
//
// The node takes the serial port of the UART bridge, the address map of
// the SoC and the logic analyzer description as arguments:
//
//	$> litescope-srv -id litescope-01 /dev/ttyUSB0 csr.csv analyzer.csv
//
// An optional fourth argument names the logic analyzer core (default: analyzer).
//
// Once started, the node repeatedly arms the analyzer and publishes each
// capture on its /samples output.
package main // import "github.com/go-lpc/litescope/cmd/litescope-srv"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
)

func main() {
	cmd := flags.New()

	log.SetPrefix("litescope-srv: ")
	log.SetFlags(0)

	if len(cmd.Args) < 3 {
		log.Fatalf("missing arguments: want <serial-port> <csr.csv> <analyzer.csv> [core-name]")
	}

	name := "analyzer"
	if len(cmd.Args) > 3 {
		name = cmd.Args[3]
	}

	dev := newNode(name, cmd.Args[0], cmd.Args[1], cmd.Args[2])

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/samples", dev.samples)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
