// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csr

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadCSV reads register descriptions from an address map.
//
// Two row shapes are understood:
//
//	csr_register,<name>,<addr>,<length>,<mode>
//	<name>,<addr>,<length>,<mode>
//
// Rows describing bases, regions, constants or memory regions are
// ignored. Lines starting with '#' are comments.
func ReadCSV(r io.Reader) ([]Desc, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var descs []Desc
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csr: could not read address map: %w", err)
		}
		line, _ := cr.FieldPos(0)

		switch strings.TrimSpace(rec[0]) {
		case "csr_base", "csr_region", "constant", "memory_region":
			continue
		case "csr_register":
			rec = rec[1:]
		}

		desc, err := parseDesc(rec)
		if err != nil {
			return nil, fmt.Errorf("csr: invalid address map line %d: %w", line, err)
		}
		descs = append(descs, desc)
	}

	return descs, nil
}

func parseDesc(rec []string) (Desc, error) {
	if len(rec) < 3 || len(rec) > 4 {
		return Desc{}, fmt.Errorf("invalid number of fields (got=%d, want=3 or 4)", len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}

	addr, err := strconv.ParseUint(rec[1], 0, 32)
	if err != nil {
		return Desc{}, fmt.Errorf("could not parse address of %q: %w", rec[0], err)
	}

	n, err := strconv.Atoi(rec[2])
	if err != nil {
		return Desc{}, fmt.Errorf("could not parse length of %q: %w", rec[0], err)
	}

	var mode Mode
	if len(rec) == 4 {
		mode, err = ParseMode(rec[3])
		if err != nil {
			return Desc{}, fmt.Errorf("could not parse mode of %q: %w", rec[0], err)
		}
	}

	return Desc{
		Name:   rec[0],
		Addr:   uint32(addr),
		Length: n,
		Mode:   mode,
	}, nil
}

// LoadMap reads an address map from r and returns the register map
// running on rw.
func LoadMap(rw ReadWriter, busword int, r io.Reader) (*Map, error) {
	descs, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return NewMap(rw, busword, descs)
}

// OpenMap loads the address map stored in the named file.
func OpenMap(rw ReadWriter, busword int, fname string) (*Map, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("csr: could not open address map: %w", err)
	}
	defer f.Close()

	return LoadMap(rw, busword, f)
}
