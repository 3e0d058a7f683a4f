// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command litescope-capture arms a logic analyzer, waits for its trigger
// and exports the captured samples.
//
// Usage:
//
//	$> litescope-capture -dev /dev/ttyUSB0 -csr csr.csv -trig state=5 -o out.vcd -o out.csv
package main // import "github.com/go-lpc/litescope/cmd/litescope-capture"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/litescope"
	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/dump"
	"github.com/go-lpc/litescope/la"
	"github.com/go-lpc/litescope/uart2wb"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		dev     = flag.String("dev", "/dev/ttyUSB0", "serial port of the UART bridge (or ftdi:VID:PID)")
		baud    = flag.Int("baud", 115200, "baud rate of the serial port")
		addrmap = flag.String("csr", "csr.csv", "address map of the SoC")
		busword = flag.Int("busword", csr.DefaultBusWord, "number of register bits per bus word")
		name    = flag.String("name", "analyzer", "name of the logic analyzer core")
		cfg     = flag.String("cfg", "", "logic analyzer description (default: <name>.csv)")
		tport   = flag.Int("trig-port", 0, "trigger port configured by -trig")
		sum     = flag.String("sum", "", "boolean equation combining the trigger ports")
		sub     = flag.Int("subsampler", 1, "keep one sample every n cycles")
		qual    = flag.Int64("qualifier", -1, "recorder qualifier (negative: unchanged)")
		rle     = flag.Bool("rle", false, "enable run-length encoding")
		offset  = flag.Uint64("offset", 0, "number of samples recorded before the trigger")
		length  = flag.Uint64("length", 0, "number of samples to record (default: recorder depth)")
		timeout = flag.Duration("timeout", 0, "capture timeout (0: wait forever)")
		verbose = flag.Bool("v", false, "enable verbose mode")
		vers    = flag.Bool("version", false, "print version and exit")

		conds = make(conditions)
		outs  outputs
	)
	flag.Var(conds, "trig", "trigger fields of the term (name=value,...)")
	flag.Var(&outs, "o", "output file (.vcd, .csv or .py), may be repeated")

	flag.Parse()

	log.SetPrefix("litescope-capture: ")
	log.SetFlags(0)

	if *vers {
		v, sum := litescope.Version()
		fmt.Printf("litescope-capture %s %s\n", v, sum)
		return
	}

	if *cfg == "" {
		*cfg = *name + ".csv"
	}
	if len(outs) == 0 {
		outs = append(outs, *name+".vcd")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

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

	err = run(ctx, drv, params{
		name:       *name,
		cfg:        *cfg,
		tport:      *tport,
		cond:       conds,
		sum:        *sum,
		subsampler: *sub,
		qualifier:  *qual,
		rle:        *rle,
		offset:     *offset,
		length:     *length,
		timeout:    *timeout,
		outputs:    outs,
		verbose:    *verbose,
	})
	if err != nil {
		log.Fatalf("could not capture: %+v", err)
	}
}

type params struct {
	name string
	cfg  string

	tport      int
	cond       map[string]uint64
	sum        string
	subsampler int
	qualifier  int64
	rle        bool

	offset  uint64
	length  uint64
	timeout time.Duration

	outputs []string
	verbose bool
	msg     tlog.MsgStream
}

func run(ctx context.Context, drv *uart2wb.Driver, p params) error {
	err := drv.Open()
	if err != nil {
		return fmt.Errorf("could not open bus: %w", err)
	}
	defer drv.Close()

	cfg, err := la.OpenConfig(p.cfg)
	if err != nil {
		return fmt.Errorf("could not load logic analyzer description: %w", err)
	}

	opts := []la.Option{la.WithDebug(p.verbose), la.WithRLE(p.rle)}
	if p.msg != nil {
		opts = append(opts, la.WithMsgStream(p.msg))
	}
	analyzer, err := la.New(drv.Regs(), p.name, cfg, opts...)
	if err != nil {
		return fmt.Errorf("could not create logic analyzer driver: %w", err)
	}

	if len(p.cond) > 0 {
		err = analyzer.ConfigureTerm(p.tport, 0, 0, p.cond)
		if err != nil {
			return err
		}
	}
	if p.sum != "" {
		err = analyzer.ConfigureSum(p.sum)
		if err != nil {
			return err
		}
	}
	if p.subsampler != 1 || analyzer.HasSubsampler() {
		err = analyzer.ConfigureSubsampler(p.subsampler)
		if err != nil {
			return err
		}
	}
	if p.qualifier >= 0 {
		err = analyzer.ConfigureQualifier(uint64(p.qualifier))
		if err != nil {
			return err
		}
	}

	length := p.length
	if length == 0 {
		length = uint64(cfg.Depth)
	}

	log.Printf("capturing %d samples (offset=%d) with %q...", length, p.offset, p.name)
	err = analyzer.Run(p.offset, length)
	if err != nil {
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err = analyzer.Wait(ctx)
	if err != nil {
		return err
	}

	dat, err := analyzer.Upload(ctx)
	if err != nil {
		return err
	}
	log.Printf("uploaded %d samples", dat.Len())

	var (
		grp errgroup.Group
		out = analyzer.Dump()
	)
	for _, fname := range p.outputs {
		fname := fname
		grp.Go(func() error {
			err := dump.Save(fname, out)
			if err != nil {
				return err
			}
			log.Printf("saved %q", fname)
			return nil
		})
	}

	err = grp.Wait()
	if err != nil {
		return fmt.Errorf("could not export capture: %w", err)
	}
	return nil
}

type outputs []string

func (o *outputs) String() string { return strings.Join(*o, ",") }
func (o *outputs) Set(v string) error {
	*o = append(*o, v)
	return nil
}

type conditions map[string]uint64

func (c conditions) String() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		keys[i] = fmt.Sprintf("%s=0x%x", k, c[k])
	}
	return strings.Join(keys, ",")
}

func (c conditions) Set(v string) error {
	for _, kv := range strings.Split(v, ",") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		i := strings.Index(kv, "=")
		if i < 0 {
			return fmt.Errorf("invalid trigger field %q (want name=value)", kv)
		}
		x, err := strconv.ParseUint(strings.TrimSpace(kv[i+1:]), 0, 64)
		if err != nil {
			return fmt.Errorf("invalid value for trigger field %q: %w", kv[:i], err)
		}
		c[strings.TrimSpace(kv[:i])] = x
	}
	return nil
}
