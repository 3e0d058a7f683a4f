// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package litescope

import (
	"runtime/debug"
	"testing"
)

func TestVersionOf(t *testing.T) {
	const root = "github.com/go-lpc/litescope"
	for _, tc := range []struct {
		name string
		main debug.Module
		mod  *debug.Module
		vers string
		sum  string
	}{
		{
			name: "nil",
		},
		{
			name: "missing",
			mod:  &debug.Module{Path: "github.com/go-daq/tdaq", Version: "v0.14.2"},
		},
		{
			name: "main-devel",
			main: debug.Module{Path: root, Version: "(devel)"},
			vers: "(devel)",
		},
		{
			name: "main-release",
			main: debug.Module{Path: root, Version: "v0.3.1", Sum: "h1:zzz"},
			mod:  &debug.Module{Path: "github.com/go-daq/tdaq", Version: "v0.14.2"},
			vers: "v0.3.1",
			sum:  "h1:zzz",
		},
		{
			name: "other-main",
			main: debug.Module{Path: "example.org/daq", Version: "(devel)"},
			mod:  &debug.Module{Path: root, Version: "v0.2.0", Sum: "h1:xxx"},
			vers: "v0.2.0",
			sum:  "h1:xxx",
		},
		{
			name: "release",
			mod:  &debug.Module{Path: root, Version: "v0.2.0", Sum: "h1:xxx"},
			vers: "v0.2.0",
			sum:  "h1:xxx",
		},
		{
			name: "replace-path-version",
			mod: &debug.Module{
				Path: root, Version: "v0.2.0",
				Replace: &debug.Module{Path: "example.org/fork", Version: "v0.3.0", Sum: "h1:yyy"},
			},
			vers: "example.org/fork v0.3.0",
			sum:  "h1:yyy",
		},
		{
			name: "replace-version",
			mod: &debug.Module{
				Path: root, Version: "v0.2.0",
				Replace: &debug.Module{Version: "v0.3.0", Sum: "h1:yyy"},
			},
			vers: "v0.3.0",
			sum:  "h1:yyy",
		},
		{
			name: "replace-path",
			mod: &debug.Module{
				Path: root, Version: "v0.2.0",
				Replace: &debug.Module{Path: "../litescope"},
			},
			vers: "../litescope",
		},
		{
			name: "replace-local",
			mod: &debug.Module{
				Path: root, Version: "v0.2.0",
				Replace: &debug.Module{},
			},
			vers: "v0.2.0*",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var b *debug.BuildInfo
			switch {
			case tc.mod != nil:
				b = &debug.BuildInfo{Main: tc.main, Deps: []*debug.Module{tc.mod}}
			case tc.main.Path != "":
				b = &debug.BuildInfo{Main: tc.main}
			}
			vers, sum := versionOf(b)
			if vers != tc.vers || sum != tc.sum {
				t.Fatalf("invalid version: got=(%q, %q), want=(%q, %q)", vers, sum, tc.vers, tc.sum)
			}
		})
	}
}
