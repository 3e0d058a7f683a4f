// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/dump"
	"github.com/go-lpc/litescope/internal/fakedev"
	"github.com/go-lpc/litescope/la"
	"github.com/go-lpc/litescope/uart2wb"
	"github.com/google/go-cmp/cmp"
)

const (
	name = "analyzer"

	analyzerCSV = `# logic analyzer description
config,dw,16
config,depth,64
config,with_rle,0
config,clk_freq,100000000
layout,clk,1
layout,state,3
layout,data,12
`
)

func loadConfig(t *testing.T, withRLE bool) la.Config {
	t.Helper()
	txt := analyzerCSV
	if withRLE {
		txt = strings.Replace(txt, "with_rle,0", "with_rle,1", 1)
	}
	cfg, err := la.LoadConfig(strings.NewReader(txt))
	if err != nil {
		t.Fatalf("could not load configuration: %+v", err)
	}
	return cfg
}

type testbed struct {
	dev *fakedev.Device
	rec *fakedev.Recorder
	drv *la.Driver
}

func newTestbed(t *testing.T, withRLE bool, samples []uint64, delay int, opts ...la.Option) testbed {
	t.Helper()

	descs := fakedev.LARegisters(name, 0x1000, 2, withRLE)
	dev := fakedev.New(8, descs...)
	rec := dev.AttachRecorder(name, samples, delay)

	m, err := csr.NewMap(dev.Bus(), 8, descs)
	if err != nil {
		t.Fatalf("could not create register map: %+v", err)
	}

	opts = append([]la.Option{
		la.WithMsgStream(log.NewMsgStream("la", log.LvlDebug, io.Discard)),
		la.WithPollInterval(time.Millisecond),
	}, opts...)
	drv, err := la.New(m, name, loadConfig(t, withRLE), opts...)
	if err != nil {
		t.Fatalf("could not create driver: %+v", err)
	}

	return testbed{dev: dev, rec: rec, drv: drv}
}

func prefixed(ws ...fakedev.Write) []fakedev.Write {
	for i := range ws {
		ws[i].Name = name + "_" + ws[i].Name
	}
	return ws
}

func TestLoadConfig(t *testing.T) {
	cfg := loadConfig(t, true)
	if cfg.DataWidth != 16 || cfg.Depth != 64 || !cfg.WithRLE {
		t.Fatalf("invalid configuration: %+v", cfg)
	}
	if got, want := cfg.Extra, map[string]int64{"clk_freq": 100000000}; !cmp.Equal(got, want) {
		t.Fatalf("invalid extra parameters: got=%v, want=%v", got, want)
	}
	want := []la.Field{{Name: "clk", Width: 1}, {Name: "state", Width: 3}, {Name: "data", Width: 12}}
	if diff := cmp.Diff(want, cfg.Layout.Fields()); diff != "" {
		t.Fatalf("invalid layout (-want +got):\n%s", diff)
	}

	noDW, err := la.LoadConfig(strings.NewReader("layout,a,3\nlayout,b,4\n"))
	if err != nil {
		t.Fatalf("could not load configuration: %+v", err)
	}
	if noDW.DataWidth != 7 {
		t.Fatalf("invalid default data width: got=%d, want=7", noDW.DataWidth)
	}

	for _, tc := range []struct {
		name string
		csv  string
		err  string
	}{
		{
			name: "kind",
			csv:  "layout,a,1\nparam,x,1\n",
			err:  `la: invalid configuration line 2: unknown row kind "param"`,
		},
		{
			name: "value",
			csv:  "config,dw,sixteen\n",
			err:  `la: invalid configuration line 1: could not parse "dw": strconv.ParseInt: parsing "sixteen": invalid syntax`,
		},
		{
			name: "no-layout",
			csv:  "config,depth,16\n",
			err:  "la: invalid data width 0",
		},
		{
			name: "rle-width",
			csv:  "config,with_rle,1\nlayout,a,1\n",
			err:  "la: data width 1 too small for run-length encoding",
		},
		{
			name: "fields",
			csv:  "config,dw\n",
			err:  "la: could not read configuration: record on line 1: wrong number of fields",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := la.LoadConfig(strings.NewReader(tc.csv))
			switch {
			case err == nil:
				t.Fatalf("expected an error")
			case err.Error() != tc.err:
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", err, tc.err)
			}
		})
	}
}

func TestOpenConfig(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "analyzer.csv")
	err := os.WriteFile(fname, []byte(analyzerCSV), 0644)
	if err != nil {
		t.Fatalf("could not write configuration: %+v", err)
	}

	cfg, err := la.OpenConfig(fname)
	if err != nil {
		t.Fatalf("could not open configuration: %+v", err)
	}
	if cfg.Layout.Width() != 16 {
		t.Fatalf("invalid layout width: %d", cfg.Layout.Width())
	}

	_, err = la.OpenConfig(fname + ".missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestNew(t *testing.T) {
	tb := newTestbed(t, false, nil, 0)
	if got, want := tb.drv.Ports(), 2; got != want {
		t.Fatalf("invalid number of ports: got=%d, want=%d", got, want)
	}
	if got, want := tb.drv.Name(), name; got != want {
		t.Fatalf("invalid name: got=%q, want=%q", got, want)
	}

	descs := fakedev.LARegisters(name, 0, 1, false)
	var partial []csr.Desc
	for _, d := range descs {
		if d.Name != name+"_recorder_done" {
			partial = append(partial, d)
		}
	}
	m, err := csr.NewMap(fakedev.New(8, partial...).Bus(), 8, partial)
	if err != nil {
		t.Fatalf("could not create register map: %+v", err)
	}
	_, err = la.New(m, name, loadConfig(t, false))
	switch {
	case !errors.Is(err, csr.ErrUnknownRegister):
		t.Fatalf("invalid error: %+v", err)
	case !strings.Contains(err.Error(), `"analyzer_recorder_done"`):
		t.Fatalf("error does not name the missing register: %v", err)
	}

	full, err := csr.NewMap(fakedev.New(8, descs...).Bus(), 8, descs)
	if err != nil {
		t.Fatalf("could not create register map: %+v", err)
	}
	_, err = la.New(full, name, loadConfig(t, true))
	if !errors.Is(err, csr.ErrUnknownRegister) {
		t.Fatalf("missing rle_enable not detected: %+v", err)
	}

	_, err = la.New(full, name, loadConfig(t, false), la.WithRLE(true))
	if !errors.Is(err, la.ErrNoRLE) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func without(descs []csr.Desc, names ...string) []csr.Desc {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[name+"_"+n] = true
	}
	var out []csr.Desc
	for _, d := range descs {
		if !drop[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

func TestTermOnlyCore(t *testing.T) {
	descs := without(
		fakedev.LARegisters(name, 0x1000, 1, false),
		"trigger_port0_low", "trigger_port0_high",
		"trigger_port0_rising_mask", "trigger_port0_falling_mask", "trigger_port0_both_mask",
		"subsampler_value",
	)
	dev := fakedev.New(8, descs...)
	rec := dev.AttachRecorder(name, []uint64{0x11, 0x22}, 0)

	m, err := csr.NewMap(dev.Bus(), 8, descs)
	if err != nil {
		t.Fatalf("could not create register map: %+v", err)
	}
	drv, err := la.New(m, name, loadConfig(t, false),
		la.WithMsgStream(log.NewMsgStream("la", log.LvlInfo, io.Discard)),
		la.WithPollInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("could not bind term-only core: %+v", err)
	}
	if drv.Ports() != 1 || drv.HasSubsampler() {
		t.Fatalf("invalid core: ports=%d, subsampler=%v", drv.Ports(), drv.HasSubsampler())
	}

	for _, tc := range []struct {
		name string
		f    func() error
		err  string
	}{
		{
			name: "range",
			f:    func() error { return drv.ConfigureRangeDetector(0, 1, 2) },
			err:  `la: port 0 has no range detector: csr: unknown register "analyzer_trigger_port0_low"`,
		},
		{
			name: "edge",
			f:    func() error { return drv.ConfigureEdgeDetector(0, 1, 2, 4) },
			err:  `la: port 0 has no edge detector: csr: unknown register "analyzer_trigger_port0_rising_mask"`,
		},
		{
			name: "subsampler",
			f:    func() error { return drv.ConfigureSubsampler(2) },
			err:  `la: could not configure subsampler: csr: unknown register "analyzer_subsampler_value"`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f()
			if !errors.Is(err, csr.ErrUnknownRegister) {
				t.Fatalf("invalid error: %+v", err)
			}
			if got := err.Error(); got != tc.err {
				t.Fatalf("invalid error message:\ngot= %s\nwant=%s", got, tc.err)
			}
		})
	}

	err = drv.ConfigureTerm(0, 0, 0, map[string]uint64{"state": 1})
	if err != nil {
		t.Fatalf("could not configure term: %+v", err)
	}
	err = drv.Run(0, 2)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	err = drv.Wait(context.Background())
	if err != nil {
		t.Fatalf("could not wait for capture: %+v", err)
	}
	dat, err := drv.Upload(context.Background())
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}
	if diff := cmp.Diff([]uint64{0x11, 0x22}, dat.Words); diff != "" {
		t.Fatalf("invalid samples (-want +got):\n%s", diff)
	}
	if rec.Runs() != 1 {
		t.Fatalf("invalid number of runs: %d", rec.Runs())
	}

	noTrig := without(fakedev.LARegisters(name, 0x1000, 1, false), "trigger_port0_mask")
	m, err = csr.NewMap(fakedev.New(8, noTrig...).Bus(), 8, noTrig)
	if err != nil {
		t.Fatalf("could not create register map: %+v", err)
	}
	_, err = la.New(m, name, loadConfig(t, false))
	if !errors.Is(err, csr.ErrUnknownRegister) {
		t.Fatalf("port without mask register not detected: %+v", err)
	}
}

func TestConfigureTerm(t *testing.T) {
	tb := newTestbed(t, false, nil, 0)

	for i := 0; i < 16; i++ {
		tb.dev.ResetWrites()
		err := tb.drv.ConfigureTerm(1, 0, 0, map[string]uint64{"state": 5, "data": 0xabc})
		if err != nil {
			t.Fatalf("could not configure term: %+v", err)
		}
		want := prefixed(
			fakedev.Write{Name: "trigger_port1_trig", Value: 0xabca},
			fakedev.Write{Name: "trigger_port1_mask", Value: 0xfffe},
		)
		if diff := cmp.Diff(want, tb.dev.Writes()); diff != "" {
			t.Fatalf("invalid writes (-want +got):\n%s", diff)
		}
	}

	tb.dev.ResetWrites()
	err := tb.drv.ConfigureTerm(0, 0x8001, 0x8001, nil)
	if err != nil {
		t.Fatalf("could not configure raw term: %+v", err)
	}
	want := prefixed(
		fakedev.Write{Name: "trigger_port0_trig", Value: 0x8001},
		fakedev.Write{Name: "trigger_port0_mask", Value: 0x8001},
	)
	if diff := cmp.Diff(want, tb.dev.Writes()); diff != "" {
		t.Fatalf("invalid writes (-want +got):\n%s", diff)
	}
}

// Raw bits and field bits given in the same call are OR-combined, even
// when they overlap.
func TestConfigureTermMixesRawAndFieldBits(t *testing.T) {
	tb := newTestbed(t, false, nil, 0)

	err := tb.drv.ConfigureTerm(0, 0x4|0x1, 0x1, map[string]uint64{"state": 1})
	if err != nil {
		t.Fatalf("could not configure term: %+v", err)
	}
	want := prefixed(
		fakedev.Write{Name: "trigger_port0_trig", Value: 0x7},
		fakedev.Write{Name: "trigger_port0_mask", Value: 0xf},
	)
	if diff := cmp.Diff(want, tb.dev.Writes()); diff != "" {
		t.Fatalf("invalid writes (-want +got):\n%s", diff)
	}
}

func TestConfigureErrors(t *testing.T) {
	tb := newTestbed(t, false, nil, 0)

	for _, tc := range []struct {
		name string
		f    func() error
		err  error
	}{
		{
			name: "term-port",
			f:    func() error { return tb.drv.ConfigureTerm(2, 0, 0, nil) },
			err:  la.ErrPort,
		},
		{
			name: "term-field",
			f:    func() error { return tb.drv.ConfigureTerm(0, 0, 0, map[string]uint64{"nope": 1}) },
			err:  la.ErrUnknownField,
		},
		{
			name: "range-port",
			f:    func() error { return tb.drv.ConfigureRangeDetector(-1, 0, 1) },
			err:  la.ErrPort,
		},
		{
			name: "edge-port",
			f:    func() error { return tb.drv.ConfigureEdgeDetector(5, 0, 0, 0) },
			err:  la.ErrPort,
		},
		{
			name: "rle",
			f:    func() error { return tb.drv.ConfigureRLE(true) },
			err:  la.ErrNoRLE,
		},
		{
			name: "register-width",
			f:    func() error { return tb.drv.ConfigureQualifier(0x100) },
			err:  csr.ErrWidth,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f()
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
			}
		})
	}

	err := tb.drv.ConfigureSubsampler(0)
	if got, want := err.Error(), "la: invalid subsampler ratio 0"; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}

	err = tb.drv.ConfigureSum("a +")
	if err == nil {
		t.Fatalf("expected an error")
	}

	if got := tb.dev.Writes(); len(got) != 0 {
		t.Fatalf("failed configuration wrote registers: %+v", got)
	}
}

func TestConfigureDetectors(t *testing.T) {
	tb := newTestbed(t, true, nil, 0)

	err := tb.drv.ConfigureRangeDetector(1, 0x20, 0x10)
	if err != nil {
		t.Fatalf("could not configure range detector: %+v", err)
	}
	err = tb.drv.ConfigureEdgeDetector(0, 0x1, 0x2, 0x4)
	if err != nil {
		t.Fatalf("could not configure edge detector: %+v", err)
	}
	err = tb.drv.ConfigureSubsampler(4)
	if err != nil {
		t.Fatalf("could not configure subsampler: %+v", err)
	}
	err = tb.drv.ConfigureQualifier(1)
	if err != nil {
		t.Fatalf("could not configure qualifier: %+v", err)
	}
	err = tb.drv.ConfigureRLE(true)
	if err != nil {
		t.Fatalf("could not configure RLE: %+v", err)
	}

	want := prefixed(
		fakedev.Write{Name: "trigger_port1_low", Value: 0x20},
		fakedev.Write{Name: "trigger_port1_high", Value: 0x10},
		fakedev.Write{Name: "trigger_port0_rising_mask", Value: 0x1},
		fakedev.Write{Name: "trigger_port0_falling_mask", Value: 0x2},
		fakedev.Write{Name: "trigger_port0_both_mask", Value: 0x4},
		fakedev.Write{Name: "subsampler_value", Value: 3},
		fakedev.Write{Name: "recorder_qualifier", Value: 1},
		fakedev.Write{Name: "rle_enable", Value: 1},
	)
	if diff := cmp.Diff(want, tb.dev.Writes()); diff != "" {
		t.Fatalf("invalid writes (-want +got):\n%s", diff)
	}
}

func TestConfigureSum(t *testing.T) {
	tb := newTestbed(t, false, nil, 0)

	err := tb.drv.ConfigureSum("a & b")
	if err != nil {
		t.Fatalf("could not configure sum: %+v", err)
	}

	var want []fakedev.Write
	for adr, dat := range []uint64{0, 0, 0, 1} {
		want = append(want, prefixed(
			fakedev.Write{Name: "trigger_sum_prog_adr", Value: uint64(adr)},
			fakedev.Write{Name: "trigger_sum_prog_dat", Value: dat},
			fakedev.Write{Name: "trigger_sum_prog_we", Value: 1},
		)...)
	}
	if diff := cmp.Diff(want, tb.dev.Writes()); diff != "" {
		t.Fatalf("invalid writes (-want +got):\n%s", diff)
	}
}

func TestDoneBeforeRun(t *testing.T) {
	tb := newTestbed(t, false, []uint64{1, 2, 3}, 0)

	done, err := tb.drv.Done()
	if err != nil {
		t.Fatalf("could not read done flag: %+v", err)
	}
	if done {
		t.Fatalf("recorder done before run")
	}
	if got := tb.dev.Writes(); len(got) != 0 {
		t.Fatalf("done wrote registers: %+v", got)
	}
	if tb.rec.Runs() != 0 {
		t.Fatalf("done armed the recorder")
	}
}

func TestCapture(t *testing.T) {
	samples := make([]uint64, 32)
	for i := range samples {
		samples[i] = uint64(i*3) & 0x7fff
	}

	tb := newTestbed(t, false, samples, 3)

	err := tb.drv.Run(4, 20)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	want := prefixed(
		fakedev.Write{Name: "recorder_offset", Value: 4},
		fakedev.Write{Name: "recorder_length", Value: 20},
		fakedev.Write{Name: "recorder_trigger", Value: 1},
	)
	if diff := cmp.Diff(want, tb.dev.Writes()); diff != "" {
		t.Fatalf("invalid writes (-want +got):\n%s", diff)
	}

	err = tb.drv.Wait(context.Background())
	if err != nil {
		t.Fatalf("could not wait for capture: %+v", err)
	}
	if got, want := tb.rec.Polls(), 4; got != want {
		t.Fatalf("invalid number of polls: got=%d, want=%d", got, want)
	}

	dat, err := tb.drv.Upload(context.Background())
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}
	if diff := cmp.Diff(samples[:20], dat.Words); diff != "" {
		t.Fatalf("invalid samples (-want +got):\n%s", diff)
	}
	if got, want := tb.rec.Acks(), 20; got != want {
		t.Fatalf("invalid number of handshakes: got=%d, want=%d", got, want)
	}
	if tb.drv.Dat() != dat {
		t.Fatalf("driver does not hold the uploaded samples")
	}

	// a second capture starts from a fresh buffer.
	err = tb.drv.Run(0, 2)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	if tb.drv.Dat().Len() != 0 {
		t.Fatalf("run did not reset the sample buffer")
	}
	err = tb.drv.Wait(context.Background())
	if err != nil {
		t.Fatalf("could not wait for capture: %+v", err)
	}
	dat2, err := tb.drv.Upload(context.Background())
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}
	if diff := cmp.Diff(samples[:2], dat2.Words); diff != "" {
		t.Fatalf("invalid samples (-want +got):\n%s", diff)
	}
	if dat.Len() != 20 {
		t.Fatalf("previous capture was mutated: len=%d", dat.Len())
	}
}

func TestCaptureEmpty(t *testing.T) {
	tb := newTestbed(t, false, []uint64{1, 2, 3}, 0)

	err := tb.drv.Run(0, 0)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	dat, err := tb.drv.Upload(context.Background())
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}
	if dat.Len() != 0 {
		t.Fatalf("invalid empty capture: %v", dat.Words)
	}
}

func TestCaptureRLE(t *testing.T) {
	words := []uint64{0x8002, 0x0005, 0x8003, 0x0007, 0x8000, 0x8001}
	tb := newTestbed(t, true, words, 0, la.WithRLE(true))

	err := tb.drv.Run(0, uint64(len(words)))
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	want := prefixed(
		fakedev.Write{Name: "rle_enable", Value: 1},
		fakedev.Write{Name: "recorder_offset", Value: 0},
		fakedev.Write{Name: "recorder_length", Value: uint64(len(words))},
		fakedev.Write{Name: "recorder_trigger", Value: 1},
	)
	if diff := cmp.Diff(want, tb.dev.Writes()); diff != "" {
		t.Fatalf("invalid writes (-want +got):\n%s", diff)
	}

	dat, err := tb.drv.Upload(context.Background())
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}
	if diff := cmp.Diff([]uint64{5, 5, 5, 5, 7, 7}, dat.Words); diff != "" {
		t.Fatalf("invalid decoded samples (-want +got):\n%s", diff)
	}

	// disabling RLE is re-applied on the next run and leaves words as-is.
	err = tb.drv.ConfigureRLE(false)
	if err != nil {
		t.Fatalf("could not configure RLE: %+v", err)
	}
	tb.dev.ResetWrites()
	err = tb.drv.Run(0, 2)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	if got := tb.dev.Writes()[0]; got != (fakedev.Write{Name: name + "_rle_enable", Value: 0}) {
		t.Fatalf("run did not re-apply RLE setting: %+v", got)
	}
	dat, err = tb.drv.Upload(context.Background())
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}
	if diff := cmp.Diff(words[:2], dat.Words); diff != "" {
		t.Fatalf("invalid raw samples (-want +got):\n%s", diff)
	}
}

func TestRunErrors(t *testing.T) {
	tb := newTestbed(t, false, nil, 0)

	for _, tc := range []struct {
		name           string
		offset, length uint64
		err            string
	}{
		{"depth", 0, 65, "la: capture length 65 exceeds recorder depth 64"},
		{"offset", 9, 8, "la: capture offset 9 exceeds length 8"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tb.drv.Run(tc.offset, tc.length)
			switch {
			case err == nil:
				t.Fatalf("expected an error")
			case err.Error() != tc.err:
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", err, tc.err)
			}
		})
	}
}

func TestWaitTimeout(t *testing.T) {
	tb := newTestbed(t, false, []uint64{1}, 1<<30)

	err := tb.drv.Run(0, 1)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = tb.drv.Wait(ctx)
	if !errors.Is(err, la.ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, la.ErrTimeout)
	}
	if tb.rec.Polls() == 0 {
		t.Fatalf("done flag was never polled")
	}
}

func TestWaitWithoutPollInterval(t *testing.T) {
	tb := newTestbed(t, false, []uint64{1}, 5, la.WithPollInterval(0))

	err := tb.drv.Run(0, 1)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	err = tb.drv.Wait(context.Background())
	if err != nil {
		t.Fatalf("could not wait for capture: %+v", err)
	}
	if got, want := tb.rec.Polls(), 6; got != want {
		t.Fatalf("invalid number of polls: got=%d, want=%d", got, want)
	}
}

func TestUploadCanceled(t *testing.T) {
	tb := newTestbed(t, false, []uint64{1, 2, 3}, 0)

	err := tb.drv.Run(0, 3)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = tb.drv.Upload(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, context.Canceled)
	}
	if tb.rec.Acks() != 0 {
		t.Fatalf("canceled upload acknowledged samples")
	}
}

// stopAfter is a context whose Err reports a deadline once it was
// consulted n times.
type stopAfter struct {
	context.Context
	n int
}

func (ctx *stopAfter) Err() error {
	if ctx.n == 0 {
		return context.DeadlineExceeded
	}
	ctx.n--
	return nil
}

func TestUploadTimeoutKeepsDrainedSamples(t *testing.T) {
	tb := newTestbed(t, false, []uint64{1, 2, 3}, 0)

	err := tb.drv.Run(0, 3)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	dat, err := tb.drv.Upload(&stopAfter{Context: context.Background(), n: 2})
	if !errors.Is(err, la.ErrTimeout) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, la.ErrTimeout)
	}
	if dat == nil {
		t.Fatalf("drained samples were dropped")
	}
	if diff := cmp.Diff([]uint64{1, 2}, dat.Words); diff != "" {
		t.Fatalf("invalid partial upload (-want +got):\n%s", diff)
	}
	if tb.drv.Dat() != dat {
		t.Fatalf("partial upload not kept as last upload")
	}
	if got := tb.rec.Acks(); got != 2 {
		t.Fatalf("invalid number of acks: got=%d, want=2", got)
	}
}

func TestSave(t *testing.T) {
	tb := newTestbed(t, false, []uint64{0x0013, 0x0024}, 0)

	err := tb.drv.Run(0, 2)
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}
	_, err = tb.drv.Upload(context.Background())
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}

	d := tb.drv.Dump()
	want := []*dump.Var{
		{Name: "clk", Width: 1, Values: []uint64{1, 0}},
		{Name: "state", Width: 3, Values: []uint64{1, 2}},
		{Name: "data", Width: 12, Values: []uint64{1, 2}},
	}
	if diff := cmp.Diff(want, d.Vars); diff != "" {
		t.Fatalf("invalid dump (-want +got):\n%s", diff)
	}

	tmp := t.TempDir()
	err = tb.drv.Save(filepath.Join(tmp, "capture.py"))
	if err != nil {
		t.Fatalf("could not save capture: %+v", err)
	}
	raw, err := os.ReadFile(filepath.Join(tmp, "capture.py"))
	if err != nil {
		t.Fatalf("could not read capture: %+v", err)
	}
	if !strings.Contains(string(raw), `"state": [1, 2],`) {
		t.Fatalf("invalid capture:\n%s", raw)
	}

	err = tb.drv.Save(filepath.Join(tmp, "capture.bin"))
	if !errors.Is(err, dump.ErrUnsupportedFormat) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, dump.ErrUnsupportedFormat)
	}
}

func TestCaptureOverSerialLink(t *testing.T) {
	descs := append(fakedev.LARegisters(name, 0x1000, 1, true),
		csr.Desc{Name: "uart2wb_sel", Addr: 0x0, Length: 1},
	)
	dev := fakedev.New(8, descs...)
	samples := []uint64{0x0001, 0x8002, 0x0010}
	dev.AttachRecorder(name, samples, 2)

	bus, err := uart2wb.New(dev.Conn(),
		uart2wb.WithRegisters(descs...),
		uart2wb.WithMsgStream(log.NewMsgStream("uart2wb", log.LvlInfo, io.Discard)),
	)
	if err != nil {
		t.Fatalf("could not create bus driver: %+v", err)
	}
	err = bus.Open()
	if err != nil {
		t.Fatalf("could not open bus driver: %+v", err)
	}
	defer bus.Close()

	drv, err := la.New(bus.Regs(), name, loadConfig(t, true),
		la.WithRLE(true),
		la.WithPollInterval(time.Millisecond),
		la.WithMsgStream(log.NewMsgStream("la", log.LvlInfo, io.Discard)),
	)
	if err != nil {
		t.Fatalf("could not create driver: %+v", err)
	}

	err = drv.ConfigureTerm(0, 0, 0, map[string]uint64{"clk": 1})
	if err != nil {
		t.Fatalf("could not configure term: %+v", err)
	}
	err = drv.ConfigureSum("p0")
	if err != nil {
		t.Fatalf("could not configure sum: %+v", err)
	}
	err = drv.Run(0, uint64(len(samples)))
	if err != nil {
		t.Fatalf("could not run capture: %+v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = drv.Wait(ctx)
	if err != nil {
		t.Fatalf("could not wait for capture: %+v", err)
	}
	dat, err := drv.Upload(ctx)
	if err != nil {
		t.Fatalf("could not upload samples: %+v", err)
	}
	if diff := cmp.Diff([]uint64{1, 1, 1, 0x10}, dat.Words); diff != "" {
		t.Fatalf("invalid samples (-want +got):\n%s", diff)
	}
	if got := dev.Load(name + "_trigger_port0_mask"); got != 0x1 {
		t.Fatalf("invalid trigger mask: got=0x%x", got)
	}
}
