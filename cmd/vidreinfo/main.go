// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Command vidreinfo opens a rendering backend and reports what the
// device and the library offer: texture formats, scaling filters and
// tone mapping curves.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/gogpu/vidre"
	"github.com/gogpu/vidre/backend"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/tonemap"

	_ "github.com/gogpu/vidre/backend/soft"
	_ "github.com/gogpu/vidre/backend/wgpu"
)

func main() {
	var (
		name    = flag.String("backend", "", "backend to open (default: first available)")
		formats = flag.Bool("formats", true, "probe renderable texture formats")
		filters = flag.Bool("filters", true, "list scaling filters")
		curves  = flag.Bool("curves", true, "list tone mapping curves")
	)
	flag.Parse()

	dev, err := openDevice(*name)
	if err != nil {
		log.Fatalf("open backend: %v", err)
	}
	defer dev.Close()

	fmt.Printf("backends: %s\n", strings.Join(backend.Available(), ", "))
	fmt.Printf("device:   %s\n", dev.Name())
	lim := dev.Limits()
	fmt.Printf("limits:   shared mem %d, storage buf %d, mapped vram %d\n",
		lim.MaxSharedMem, lim.MaxStorageBuf, lim.MaxMappedVRAM)

	if *formats {
		printFormats(dev)
	}
	if *filters {
		printFilters()
	}
	if *curves {
		printCurves()
	}
}

func openDevice(name string) (gpux.Device, error) {
	if name == "" {
		return backend.Default()
	}
	return backend.Open(name)
}

// printFormats probes the render target formats the library would pick
// for intermediate images, per component count.
func printFormats(dev gpux.Device) {
	fmt.Println("\nrender formats:")
	caps := gpux.CapSampleable | gpux.CapRenderable
	for comps := 1; comps <= 4; comps++ {
		f, ok := dev.FindFormat(gpux.ClassFloat, comps, 16, caps)
		if !ok {
			f, ok = dev.FindFormat(gpux.ClassUnorm, comps, 8, caps)
		}
		if !ok {
			fmt.Printf("  %d comps: none\n", comps)
			continue
		}
		fmt.Printf("  %d comps: %v (caps %04b)\n", comps, f, dev.FormatCaps(f))
	}
}

func printFilters() {
	fmt.Println("\nfilters:")
	for _, f := range vidre.Filters {
		kind := "orthogonal"
		switch {
		case f.Oversample:
			kind = "oversample"
		case f.Kernel == nil:
			kind = "built-in"
		case f.Polar:
			kind = "polar"
		}
		fmt.Printf("  %-12s %-10s radius %.1f\n", f.Name, kind, f.Radius)
	}
}

func printCurves() {
	fmt.Println("\ntone mapping curves:")
	for _, fn := range tonemap.Functions {
		fmt.Printf("  %-12s %s\n", fn.Name, fn.Description)
	}
}
