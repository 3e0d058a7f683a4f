// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package la drives a logic analyzer core: trigger configuration,
// capture arming and the upload of recorded samples.
package la // import "github.com/go-lpc/litescope/la"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/litescope/csr"
	"github.com/go-lpc/litescope/dump"
	"github.com/go-lpc/litescope/internal/truthtable"
)

var (
	ErrTimeout = errors.New("la: timeout")
	ErrPort    = errors.New("la: invalid trigger port")
	ErrNoRLE   = errors.New("la: core has no run-length encoder")
)

type config struct {
	msg    log.MsgStream
	debug  bool
	rle    bool
	period time.Duration
}

func newConfig() config {
	return config{
		period: 10 * time.Millisecond,
	}
}

// Option configures a Driver.
type Option func(*config)

// WithDebug enables the logging of every capture step.
func WithDebug(v bool) Option {
	return func(cfg *config) {
		cfg.debug = v
	}
}

// WithMsgStream sets the message stream used for logging.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithRLE enables run-length encoding of the recorded samples, on cores
// carrying an encoder.
func WithRLE(v bool) Option {
	return func(cfg *config) {
		cfg.rle = v
	}
}

// WithPollInterval sets the delay between two polls of the done flag.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.period = d
	}
}

type port struct {
	trig    *csr.Register
	mask    *csr.Register
	low     *csr.Register
	high    *csr.Register
	rising  *csr.Register
	falling *csr.Register
	both    *csr.Register
}

// Driver drives the logic analyzer core named name.
// A Driver is not safe for concurrent use.
type Driver struct {
	name string
	cfg  Config
	msg  log.MsgStream

	useRLE bool
	period time.Duration

	ports []port
	sum   struct {
		adr *csr.Register
		dat *csr.Register
		we  *csr.Register
	}
	subsampler *csr.Register
	rec        struct {
		trigger   *csr.Register
		qualifier *csr.Register
		length    *csr.Register
		offset    *csr.Register
		done      *csr.Register
		stb       *csr.Register
		ack       *csr.Register
		data      *csr.Register
	}
	rle *csr.Register // nil if the core has no encoder

	dat *Dat
	err error
}

// New binds the registers of the logic analyzer core named name.
//
// New fails if a recorder or trigger sum register of the core is missing
// from m, or if a trigger port lacks its trig or mask register.
// Range and edge detector registers, the subsampler and the RLE encoder
// are optional: the matching Configure methods fail on a core built
// without them.
func New(m *csr.Map, name string, cfg Config, opts ...Option) (*Driver, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}

	oc := newConfig()
	for _, opt := range opts {
		opt(&oc)
	}
	if oc.msg == nil {
		lvl := log.LvlInfo
		if oc.debug {
			lvl = log.LvlDebug
		}
		oc.msg = log.NewMsgStream("la", lvl, os.Stdout)
	}

	drv := &Driver{
		name:   name,
		cfg:    cfg,
		msg:    oc.msg,
		useRLE: oc.rle,
		period: oc.period,
		dat:    NewDat(cfg.DataWidth),
	}
	if drv.useRLE && !cfg.WithRLE {
		return nil, fmt.Errorf("la: could not enable RLE on %q: %w", name, ErrNoRLE)
	}

	b := m.Bind(name)
	for i := 0; m.Has(fmt.Sprintf("%s_trigger_port%d_trig", name, i)); i++ {
		pre := fmt.Sprintf("trigger_port%d_", i)
		drv.ports = append(drv.ports, port{
			trig:    b.Reg(pre + "trig"),
			mask:    b.Reg(pre + "mask"),
			low:     optReg(m, name, pre+"low"),
			high:    optReg(m, name, pre+"high"),
			rising:  optReg(m, name, pre+"rising_mask"),
			falling: optReg(m, name, pre+"falling_mask"),
			both:    optReg(m, name, pre+"both_mask"),
		})
	}
	drv.sum.adr = b.Reg("trigger_sum_prog_adr")
	drv.sum.dat = b.Reg("trigger_sum_prog_dat")
	drv.sum.we = b.Reg("trigger_sum_prog_we")
	drv.subsampler = optReg(m, name, "subsampler_value")
	drv.rec.trigger = b.Reg("recorder_trigger")
	drv.rec.qualifier = b.Reg("recorder_qualifier")
	drv.rec.length = b.Reg("recorder_length")
	drv.rec.offset = b.Reg("recorder_offset")
	drv.rec.done = b.Reg("recorder_done")
	drv.rec.stb = b.Reg("recorder_source_stb")
	drv.rec.ack = b.Reg("recorder_source_ack")
	drv.rec.data = b.Reg("recorder_source_data")
	if cfg.WithRLE {
		drv.rle = b.Reg("rle_enable")
	}

	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("la: could not bind registers of %q: %w", name, err)
	}

	if len(drv.ports) == 0 {
		drv.msg.Warnf("logic analyzer %q has no trigger port", name)
	}

	return drv, nil
}

// optReg returns the register <name>_<reg>, or nil if the core was
// built without it.
func optReg(m *csr.Map, name, reg string) *csr.Register {
	r, err := m.Reg(name + "_" + reg)
	if err != nil {
		return nil
	}
	return r
}

func (drv *Driver) missing(reg string) error {
	return fmt.Errorf("%w %q", csr.ErrUnknownRegister, drv.name+"_"+reg)
}

// HasSubsampler reports whether the core has a subsampler.
func (drv *Driver) HasSubsampler() bool { return drv.subsampler != nil }

// Name returns the name of the core.
func (drv *Driver) Name() string { return drv.name }

// Config returns the static description of the core.
func (drv *Driver) Config() Config { return drv.cfg }

// Ports returns the number of trigger ports of the core.
func (drv *Driver) Ports() int { return len(drv.ports) }

// Dat returns the samples of the last upload.
func (drv *Driver) Dat() *Dat { return drv.dat }

func (drv *Driver) read(reg *csr.Register) uint64 {
	if drv.err != nil {
		return 0
	}
	var v uint64
	v, drv.err = reg.Read()
	return v
}

func (drv *Driver) write(reg *csr.Register, v uint64) {
	if drv.err != nil {
		return
	}
	drv.err = reg.Write(v)
}

func (drv *Driver) port(i int) (port, error) {
	if i < 0 || i >= len(drv.ports) {
		return port{}, fmt.Errorf("%w %d (ports=%d)", ErrPort, i, len(drv.ports))
	}
	return drv.ports[i], nil
}

// ConfigureTerm programs the trigger term of port i.
//
// The term value and mask are trig and mask, OR-ed with the contribution
// of every layout field listed in cond: the field value at its offset,
// and the full field mask.
func (drv *Driver) ConfigureTerm(i int, trig, mask uint64, cond map[string]uint64) error {
	p, err := drv.port(i)
	if err != nil {
		return fmt.Errorf("la: could not configure term: %w", err)
	}

	v, m, err := drv.cfg.Layout.Term(cond)
	if err != nil {
		return fmt.Errorf("la: could not configure term of port %d: %w", i, err)
	}
	trig |= v
	mask |= m

	if len(cond) > 0 {
		names := make([]string, 0, len(cond))
		for name := range cond {
			names = append(names, name)
		}
		sort.Strings(names)
		drv.msg.Debugf("port%d: term fields=%v", i, names)
	}

	drv.err = nil
	drv.write(p.trig, trig)
	drv.write(p.mask, mask)
	if drv.err != nil {
		return fmt.Errorf("la: could not configure term of port %d: %w", i, drv.err)
	}
	return nil
}

// ConfigureRangeDetector programs the bounds of the range detector of port i.
// The bounds are written as given.
func (drv *Driver) ConfigureRangeDetector(i int, low, high uint64) error {
	p, err := drv.port(i)
	if err != nil {
		return fmt.Errorf("la: could not configure range detector: %w", err)
	}
	if p.low == nil || p.high == nil {
		return fmt.Errorf(
			"la: port %d has no range detector: %w",
			i, drv.missing(fmt.Sprintf("trigger_port%d_low", i)),
		)
	}

	drv.err = nil
	drv.write(p.low, low)
	drv.write(p.high, high)
	if drv.err != nil {
		return fmt.Errorf("la: could not configure range detector of port %d: %w", i, drv.err)
	}
	return nil
}

// ConfigureEdgeDetector programs the edge masks of port i.
func (drv *Driver) ConfigureEdgeDetector(i int, rising, falling, both uint64) error {
	p, err := drv.port(i)
	if err != nil {
		return fmt.Errorf("la: could not configure edge detector: %w", err)
	}
	if p.rising == nil || p.falling == nil || p.both == nil {
		return fmt.Errorf(
			"la: port %d has no edge detector: %w",
			i, drv.missing(fmt.Sprintf("trigger_port%d_rising_mask", i)),
		)
	}

	drv.err = nil
	drv.write(p.rising, rising)
	drv.write(p.falling, falling)
	drv.write(p.both, both)
	if drv.err != nil {
		return fmt.Errorf("la: could not configure edge detector of port %d: %w", i, drv.err)
	}
	return nil
}

// ConfigureSum programs the lookup table combining the trigger ports
// with the boolean expression expr.
// Each table entry is written as an address, data and write-enable
// sequence, in ascending address order.
func (drv *Driver) ConfigureSum(expr string) error {
	tbl, err := truthtable.Generate(expr)
	if err != nil {
		return fmt.Errorf("la: could not configure sum: %w", err)
	}
	drv.msg.Debugf("sum %q: operands=%v entries=%d", expr, tbl.Operands, len(tbl.Out))

	drv.err = nil
	for adr, bit := range tbl.Out {
		drv.write(drv.sum.adr, uint64(adr))
		drv.write(drv.sum.dat, uint64(bit))
		drv.write(drv.sum.we, 1)
	}
	if drv.err != nil {
		return fmt.Errorf("la: could not configure sum %q: %w", expr, drv.err)
	}
	return nil
}

// ConfigureSubsampler keeps one sample every n cycles.
func (drv *Driver) ConfigureSubsampler(n int) error {
	if n < 1 {
		return fmt.Errorf("la: invalid subsampler ratio %d", n)
	}
	if drv.subsampler == nil {
		return fmt.Errorf("la: could not configure subsampler: %w", drv.missing("subsampler_value"))
	}

	drv.err = nil
	drv.write(drv.subsampler, uint64(n-1))
	if drv.err != nil {
		return fmt.Errorf("la: could not configure subsampler: %w", drv.err)
	}
	return nil
}

// ConfigureQualifier sets the recorder qualifier.
func (drv *Driver) ConfigureQualifier(v uint64) error {
	drv.err = nil
	drv.write(drv.rec.qualifier, v)
	if drv.err != nil {
		return fmt.Errorf("la: could not configure qualifier: %w", drv.err)
	}
	return nil
}

// ConfigureRLE enables or disables run-length encoding.
// The setting is applied again on every Run.
func (drv *Driver) ConfigureRLE(v bool) error {
	if drv.rle == nil {
		return fmt.Errorf("la: could not configure RLE: %w", ErrNoRLE)
	}

	drv.useRLE = v
	drv.err = nil
	drv.write(drv.rle, b2u(v))
	if drv.err != nil {
		return fmt.Errorf("la: could not configure RLE: %w", drv.err)
	}
	return nil
}

func b2u(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// Run arms the recorder to capture length samples, offset of which
// precede the trigger.
func (drv *Driver) Run(offset, length uint64) error {
	if drv.cfg.Depth > 0 && length > uint64(drv.cfg.Depth) {
		return fmt.Errorf("la: capture length %d exceeds recorder depth %d", length, drv.cfg.Depth)
	}
	if offset > length {
		return fmt.Errorf("la: capture offset %d exceeds length %d", offset, length)
	}
	drv.msg.Debugf("run offset=%d length=%d rle=%v", offset, length, drv.useRLE)

	drv.dat = NewDat(drv.cfg.DataWidth)

	drv.err = nil
	if drv.rle != nil {
		drv.write(drv.rle, b2u(drv.useRLE))
	}
	drv.write(drv.rec.offset, offset)
	drv.write(drv.rec.length, length)
	drv.write(drv.rec.trigger, 1)
	if drv.err != nil {
		return fmt.Errorf("la: could not run capture: %w", drv.err)
	}
	return nil
}

// Done reports whether the recorder finished its capture.
func (drv *Driver) Done() (bool, error) {
	drv.err = nil
	v := drv.read(drv.rec.done)
	if drv.err != nil {
		return false, fmt.Errorf("la: could not read done flag: %w", drv.err)
	}
	return v != 0, nil
}

// Wait polls the done flag until it is set or ctx is done.
// Wait returns ErrTimeout when the deadline of ctx expires first.
func (drv *Driver) Wait(ctx context.Context) error {
	var tick <-chan time.Time
	if drv.period > 0 {
		ticker := time.NewTicker(drv.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for polls := 1; ; polls++ {
		done, err := drv.Done()
		if err != nil {
			return err
		}
		if done {
			drv.msg.Debugf("capture done after %d polls", polls)
			return nil
		}

		if tick == nil {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("la: could not wait for capture: %w", ctxErr(err))
			}
			continue
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("la: could not wait for capture: %w", ctxErr(ctx.Err()))
		case <-tick:
		}
	}
}

// Upload drains the recorder source stream, one sample per handshake,
// until the stream is empty or ctx is done.
// The samples are run-length decoded when RLE is enabled.
//
// When ctx is done first, Upload returns the samples drained so far
// along with the error: the recorder released them and cannot offer
// them again.
func (drv *Driver) Upload(ctx context.Context) (*Dat, error) {
	drv.msg.Debugf("upload")

	dat := NewDat(drv.cfg.DataWidth)
	drv.err = nil
	for {
		if err := ctx.Err(); err != nil {
			dat = drv.decode(dat)
			drv.dat = dat
			return dat, fmt.Errorf("la: could not upload samples (got=%d): %w", dat.Len(), ctxErr(err))
		}
		if drv.read(drv.rec.stb) == 0 {
			break
		}
		v := drv.read(drv.rec.data)
		drv.write(drv.rec.ack, 1)
		if drv.err != nil {
			break
		}
		dat.Append(v)
	}
	if drv.err != nil {
		return nil, fmt.Errorf("la: could not upload samples (got=%d): %w", dat.Len(), drv.err)
	}

	drv.dat = drv.decode(dat)
	return drv.dat, nil
}

func (drv *Driver) decode(dat *Dat) *Dat {
	if drv.rle == nil || !drv.useRLE {
		return dat
	}
	n := dat.Len()
	dat = dat.DecodeRLE()
	drv.msg.Debugf("rle: %d words -> %d samples", n, dat.Len())
	return dat
}

func ctxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// Save exports the samples of the last upload to fname, in the format
// given by its extension.
func (drv *Driver) Save(fname string) error {
	drv.msg.Debugf("save to %s", fname)
	return dump.Save(fname, drv.Dump())
}

// Dump returns the samples of the last upload, split along the layout.
func (drv *Driver) Dump() *dump.Dump {
	var (
		lay    = drv.cfg.Layout.Fields()
		fields = make([]dump.Field, len(lay))
	)
	for i, f := range lay {
		fields[i] = dump.Field{Name: f.Name, Width: f.Width}
	}
	return dump.FromLayout(fields, drv.dat.Words)
}
