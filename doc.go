// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package litescope holds the host side of LiteScope: a driver for the
// logic analyzer cores embedded in a SoC, reached through a UART to
// wishbone bridge.
//
// The sub-packages are layered as follows:
//   - uart: the serial link to the bridge,
//   - uart2wb: the bridge framing and the bus driver,
//   - csr: named registers of the SoC address map,
//   - la: the logic analyzer capture controller,
//   - scopeio: the IO core,
//   - dump: waveform exports of the captured samples.
package litescope // import "github.com/go-lpc/litescope"

import "runtime/debug"

const modPath = "github.com/go-lpc/litescope"

// Version returns the version of litescope and its checksum.
// Binaries built from the litescope module itself report the main module
// version, which is "(devel)" for builds outside a tagged release.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}
	if b.Main.Path == modPath {
		return modVersion(&b.Main)
	}
	for _, m := range b.Deps {
		if m != nil && m.Path == modPath {
			return modVersion(m)
		}
	}
	return "", ""
}

// modVersion describes m, following its replacement if any.
// A replacement without path nor version is a local checkout of m.
func modVersion(m *debug.Module) (version, sum string) {
	r := m.Replace
	switch {
	case r == nil:
		return m.Version, m.Sum
	case r.Path == "" && r.Version == "":
		return m.Version + "*", ""
	case r.Path == "":
		return r.Version, r.Sum
	case r.Version == "":
		return r.Path, r.Sum
	}
	return r.Path + " " + r.Version, r.Sum
}
