// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package la

// Dat is the ordered sequence of samples uploaded from a recorder.
type Dat struct {
	Width int // width of a sample, in bits
	Words []uint64
}

// NewDat returns an empty buffer of width-bit samples.
func NewDat(width int) *Dat {
	return &Dat{Width: width}
}

// Append appends a sample.
func (dat *Dat) Append(v uint64) {
	dat.Words = append(dat.Words, v)
}

// Len returns the number of samples.
func (dat *Dat) Len() int { return len(dat.Words) }

// DecodeRLE returns the run-length decoded samples of dat.
//
// A word with its most significant bit (bit Width-1) set is a run: its
// low Width-1 bits count how many more times the previous literal
// sample repeats. Runs seen before the first literal carry no sample
// and are dropped.
func (dat *Dat) DecodeRLE() *Dat {
	out := &Dat{
		Width: dat.Width,
		Words: make([]uint64, 0, len(dat.Words)),
	}
	if dat.Width < 2 {
		out.Words = append(out.Words, dat.Words...)
		return out
	}

	var (
		flag = uint64(1) << (dat.Width - 1)
		cnt  = flag - 1
		last uint64
		lit  bool
	)
	for _, w := range dat.Words {
		if w&flag == 0 {
			last = w
			lit = true
			out.Words = append(out.Words, w)
			continue
		}
		if !lit {
			continue
		}
		for n := w & cnt; n > 0; n-- {
			out.Words = append(out.Words, last)
		}
	}
	return out
}

// Field returns the values of the named layout field for every sample.
func (dat *Dat) Field(lay *Layout, name string) ([]uint64, error) {
	vs := make([]uint64, len(dat.Words))
	for i, w := range dat.Words {
		v, err := lay.Extract(name, w)
		if err != nil {
			return nil, err
		}
		vs[i] = v
	}
	return vs, nil
}
