// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakedev

import (
	"fmt"

	"github.com/go-lpc/litescope/csr"
)

// LARegisters returns the registers of a logic analyzer named prefix,
// with the given number of trigger ports, laid out from base for an
// 8-bit bus word.
func LARegisters(prefix string, base uint32, ports int, withRLE bool) []csr.Desc {
	var (
		descs []csr.Desc
		addr  = base
	)
	add := func(name string, n int, mode csr.Mode) {
		descs = append(descs, csr.Desc{
			Name:   prefix + "_" + name,
			Addr:   addr,
			Length: n,
			Mode:   mode,
		})
		addr += uint32(4 * n)
	}

	for i := 0; i < ports; i++ {
		port := fmt.Sprintf("trigger_port%d_", i)
		add(port+"trig", 8, csr.ReadWrite)
		add(port+"mask", 8, csr.ReadWrite)
		add(port+"low", 8, csr.ReadWrite)
		add(port+"high", 8, csr.ReadWrite)
		add(port+"rising_mask", 8, csr.ReadWrite)
		add(port+"falling_mask", 8, csr.ReadWrite)
		add(port+"both_mask", 8, csr.ReadWrite)
	}
	add("trigger_sum_prog_adr", 1, csr.ReadWrite)
	add("trigger_sum_prog_dat", 1, csr.ReadWrite)
	add("trigger_sum_prog_we", 1, csr.WriteOnly)
	add("subsampler_value", 4, csr.ReadWrite)
	add("recorder_trigger", 1, csr.WriteOnly)
	add("recorder_qualifier", 1, csr.ReadWrite)
	add("recorder_length", 4, csr.ReadWrite)
	add("recorder_offset", 4, csr.ReadWrite)
	add("recorder_done", 1, csr.ReadOnly)
	add("recorder_source_stb", 1, csr.ReadOnly)
	add("recorder_source_ack", 1, csr.WriteOnly)
	add("recorder_source_data", 8, csr.ReadOnly)
	if withRLE {
		add("rle_enable", 1, csr.ReadWrite)
	}
	return descs
}

// Recorder emulates the sample recorder of a logic analyzer.
//
// Writing 1 to the trigger register arms it: after the configured
// number of done polls, done rises and the first recorder_length
// samples are offered on the stb/ack source stream.
type Recorder struct {
	dev    *Device
	prefix string

	samples []uint64
	delay   int

	armed   bool
	polls   int
	pending []uint64
	runs    int
	acks    int
}

// AttachRecorder installs a recorder on the logic analyzer registers
// named prefix. Done reads 0 for the first delay polls after a trigger.
func (dev *Device) AttachRecorder(prefix string, samples []uint64, delay int) *Recorder {
	rec := &Recorder{
		dev:     dev,
		prefix:  prefix,
		samples: samples,
		delay:   delay,
	}

	dev.OnWrite(rec.name("recorder_trigger"), func(r *Regs, v uint64) {
		if v == 0 {
			return
		}
		rec.runs++
		rec.armed = true
		rec.polls = 0
		rec.pending = nil
		r.Store(rec.name("recorder_done"), 0)
		rec.update(r)
		if rec.delay == 0 {
			rec.complete(r)
		}
	})

	dev.OnRead(rec.name("recorder_done"), func(r *Regs) {
		if !rec.armed {
			return
		}
		rec.polls++
		if rec.polls > rec.delay {
			rec.complete(r)
		}
	})

	dev.OnWrite(rec.name("recorder_source_ack"), func(r *Regs, v uint64) {
		if v == 0 || len(rec.pending) == 0 {
			return
		}
		rec.acks++
		rec.pending = rec.pending[1:]
		rec.update(r)
	})

	return rec
}

// Runs returns the number of triggers seen by the recorder.
func (rec *Recorder) Runs() int {
	rec.dev.mu.Lock()
	defer rec.dev.mu.Unlock()
	return rec.runs
}

// Acks returns the number of acknowledged samples.
func (rec *Recorder) Acks() int {
	rec.dev.mu.Lock()
	defer rec.dev.mu.Unlock()
	return rec.acks
}

// Polls returns the number of done polls since the last trigger.
func (rec *Recorder) Polls() int {
	rec.dev.mu.Lock()
	defer rec.dev.mu.Unlock()
	return rec.polls
}

func (rec *Recorder) name(reg string) string {
	return rec.prefix + "_" + reg
}

func (rec *Recorder) complete(r *Regs) {
	rec.armed = false
	n := int(r.Load(rec.name("recorder_length")))
	if n > len(rec.samples) {
		n = len(rec.samples)
	}
	rec.pending = append([]uint64(nil), rec.samples[:n]...)
	r.Store(rec.name("recorder_done"), 1)
	rec.update(r)
}

func (rec *Recorder) update(r *Regs) {
	if len(rec.pending) == 0 {
		r.Store(rec.name("recorder_source_stb"), 0)
		r.Store(rec.name("recorder_source_data"), 0)
		return
	}
	r.Store(rec.name("recorder_source_stb"), 1)
	r.Store(rec.name("recorder_source_data"), rec.pending[0])
}
