// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rpi maps the BCM2835 PWM, DMA, GPIO and clock-manager register
// blocks into user space and exposes the fixed addresses and bit layouts
// the signal compiler's committer needs to wire a control-block graph to
// real hardware.
//
// It knows nothing about bitstreams or the compiled control-block graph;
// beyond the DMA descriptor layout and the default pin assignment, it is a
// thin, typed window onto four fixed peripheral register windows, grounded on
// the same struct-over-mmap technique used throughout this codebase for
// I/O register access.
package rpi

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strconv"
	"strings"
)

// peripheralBase is the datasheet default for a Raspberry Pi 1; newer
// boards advertise their real base through the device tree, queried by
// baseAddress.
const peripheralBase = 0x20000000

// Peripheral register block offsets from the peripheral base, per the
// BCM2835 ARM Peripherals datasheet.
const (
	gpioOffset  = 0x200000
	clockOffset = 0x101000
	pwmOffset   = 0x20C000
	dmaOffset   = 0x007000
)

// dmaChannelStride is the byte distance between two DMA channels' register
// blocks.
const dmaChannelStride = 0x100

// baseAddress queries the device tree for the SoC's real peripheral base,
// falling back to the BCM2835 default if it cannot be determined (e.g. not
// running on a Raspberry Pi).
func baseAddress() uint64 {
	items, err := ioutil.ReadDir("/sys/bus/platform/drivers/pinctrl-bcm2835/")
	if err != nil {
		return peripheralBase
	}
	for _, item := range items {
		if item.Mode()&os.ModeSymlink == 0 {
			continue
		}
		parts := strings.SplitN(path.Base(item.Name()), ".", 2)
		if len(parts) != 2 {
			continue
		}
		base, err := strconv.ParseUint(parts[0], 16, 64)
		if err != nil {
			continue
		}
		return base
	}
	return peripheralBase
}

// busAddress converts a physical peripheral address into the bus address
// the DMA engine must use to reach it uncached, per page 7 of the
// datasheet: "Software accessing RAM using the DMA engines must use bus
// addresses (based at 0xC0000000)".
func busAddress(phys uint64) uint64 {
	return (phys &^ 0xC0000000) | 0xC0000000
}

// fmtErr is a small helper kept to match the rest of the package's
// wrapped-error style.
func fmtErr(format string, args ...interface{}) error {
	return fmt.Errorf("rpi: "+format, args...)
}
