// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config is the static description of a logic analyzer core.
type Config struct {
	DataWidth int  // width of a sample, in bits
	Depth     int  // number of samples the recorder can hold; zero if unknown
	WithRLE   bool // whether the core carries a run-length encoder

	Extra  map[string]int64 // any other scalar parameter
	Layout *Layout
}

// LoadConfig reads a logic analyzer description from r.
//
// Each row is one of:
//
//	config,<key>,<integer>
//	layout,<field>,<width>
//
// Lines starting with '#' are comments. When no dw key is given, the
// data width is the width of the layout.
func LoadConfig(r io.Reader) (Config, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var (
		cfg    = Config{Extra: make(map[string]int64)}
		fields []Field
	)
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return cfg, fmt.Errorf("la: could not read configuration: %w", err)
		}
		line, _ := cr.FieldPos(0)
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}

		v, err := strconv.ParseInt(rec[2], 0, 64)
		if err != nil {
			return cfg, fmt.Errorf("la: invalid configuration line %d: could not parse %q: %w", line, rec[1], err)
		}

		switch rec[0] {
		case "config":
			switch rec[1] {
			case "dw":
				cfg.DataWidth = int(v)
			case "depth":
				cfg.Depth = int(v)
			case "with_rle":
				cfg.WithRLE = v != 0
			default:
				cfg.Extra[rec[1]] = v
			}
		case "layout":
			fields = append(fields, Field{Name: rec[1], Width: int(v)})
		default:
			return cfg, fmt.Errorf("la: invalid configuration line %d: unknown row kind %q", line, rec[0])
		}
	}

	lay, err := NewLayout(fields)
	if err != nil {
		return cfg, err
	}
	cfg.Layout = lay
	if cfg.DataWidth == 0 {
		cfg.DataWidth = cfg.Layout.Width()
	}

	err = cfg.validate()
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// OpenConfig loads the logic analyzer description stored in fname.
func OpenConfig(fname string) (Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Config{}, fmt.Errorf("la: could not open configuration: %w", err)
	}
	defer f.Close()

	return LoadConfig(f)
}

func (cfg Config) validate() error {
	switch {
	case cfg.Layout == nil:
		return fmt.Errorf("la: configuration has no layout")
	case cfg.DataWidth < 1 || cfg.DataWidth > 64:
		return fmt.Errorf("la: invalid data width %d", cfg.DataWidth)
	case cfg.WithRLE && cfg.DataWidth < 2:
		return fmt.Errorf("la: data width %d too small for run-length encoding", cfg.DataWidth)
	case cfg.Depth < 0:
		return fmt.Errorf("la: invalid depth %d", cfg.Depth)
	}
	return nil
}
