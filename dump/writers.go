// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dump

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteVCD writes the dump as a value change dump, one time step per sample.
func WriteVCD(w io.Writer, d *Dump) error {
	bw := bufio.NewWriter(w)

	ids := make([]string, len(d.Vars))
	fmt.Fprintf(bw, "$version\n\tlitescope\n$end\n")
	fmt.Fprintf(bw, "$timescale\n\t%s\n$end\n", d.timescale())
	fmt.Fprintf(bw, "$scope module dump $end\n")
	for i, v := range d.Vars {
		ids[i] = vcdID(i)
		fmt.Fprintf(bw, "$var wire %d %s %s $end\n", v.Width, ids[i], v.Name)
	}
	fmt.Fprintf(bw, "$upscope $end\n$enddefinitions $end\n")

	n := d.Len()
	for t := 0; t < n; t++ {
		stamped := false
		for i, v := range d.Vars {
			if t >= len(v.Values) || (t > 0 && v.Values[t] == v.Values[t-1]) {
				continue
			}
			if !stamped {
				fmt.Fprintf(bw, "#%d\n", t)
				stamped = true
			}
			if v.Width == 1 {
				fmt.Fprintf(bw, "%d%s\n", v.Values[t]&1, ids[i])
				continue
			}
			fmt.Fprintf(bw, "b%b %s\n", v.Values[t], ids[i])
		}
	}
	fmt.Fprintf(bw, "#%d\n", n)

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("dump: could not write VCD: %w", err)
	}
	return nil
}

// vcdID returns the short identifier of the i-th VCD variable.
func vcdID(i int) string {
	var id []byte
	for i >= 0 {
		id = append(id, byte('!'+i%94))
		i = i/94 - 1
	}
	return string(id)
}

// WriteCSV writes the dump as a table: a header row of signal names,
// then one row of decimal values per sample.
func WriteCSV(w io.Writer, d *Dump) error {
	cw := csv.NewWriter(w)

	row := make([]string, len(d.Vars))
	for i, v := range d.Vars {
		row[i] = v.Name
	}
	_ = cw.Write(row)

	n := d.Len()
	for t := 0; t < n; t++ {
		for i, v := range d.Vars {
			row[i] = ""
			if t < len(v.Values) {
				row[i] = strconv.FormatUint(v.Values[t], 10)
			}
		}
		_ = cw.Write(row)
	}

	cw.Flush()
	err := cw.Error()
	if err != nil {
		return fmt.Errorf("dump: could not write CSV: %w", err)
	}
	return nil
}

// WritePY writes the dump as a Python dictionary named dump, mapping
// each signal name to the list of its values.
func WritePY(w io.Writer, d *Dump) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "dump = {\n")
	for _, v := range d.Vars {
		fmt.Fprintf(bw, "    %q: [", v.Name)
		for i, x := range v.Values {
			if i > 0 {
				bw.WriteString(", ")
			}
			bw.WriteString(strconv.FormatUint(x, 10))
		}
		bw.WriteString("],\n")
	}
	fmt.Fprintf(bw, "}\n")

	err := bw.Flush()
	if err != nil {
		return fmt.Errorf("dump: could not write Python dump: %w", err)
	}
	return nil
}
