// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

// Register offsets from the GPIO peripheral base, page 90 of the BCM2835
// ARM Peripherals datasheet.
const (
	gpioRegFSEL0  = 0x00 // 6 consecutive function-select words, 10 pins each.
	gpioRegSET0   = 0x1C // 2 consecutive output-set words, GPIO0-31 / 32-53.
	gpioRegCLR0   = 0x28 // 2 consecutive output-clear words, GPIO0-31 / 32-53.
	gpioRegLEVEL0 = 0x34
)

// Function selects one of a pin's eight alternate functions.
type Function uint8

const (
	Input  Function = 0
	Output Function = 1
	Alt0   Function = 4
	Alt5   Function = 2
)

// GPIO is a handle to the BCM2835 GPIO register block.
type GPIO struct {
	r *region
}

// OpenGPIO maps the GPIO register block.
func OpenGPIO() (*GPIO, error) {
	r, err := mapPeripheral(baseAddress()+gpioOffset, 0xB4)
	if err != nil {
		return nil, err
	}
	return &GPIO{r: r}, nil
}

// Close unmaps the register block.
func (g *GPIO) Close() error { return g.r.Close() }

// SetFunction configures pin's alternate function.
func (g *GPIO) SetFunction(pin int, f Function) {
	regs := g.r.uint32s()
	word := pin / 10
	shift := uint(pin%10) * 3
	idx := gpioRegFSEL0/4 + word
	regs[idx] = (regs[idx] &^ (7 << shift)) | (uint32(f) << shift)
}

// Set drives pin high immediately (bypassing the DMA-driven waveform;
// used only for one-shot configuration of RailCom/Debug pins at startup
// and shutdown).
func (g *GPIO) Set(pin int) {
	regs := g.r.uint32s()
	regs[gpioRegSET0/4+pin/32] = 1 << uint(pin%32)
}

// Clear drives pin low immediately.
func (g *GPIO) Clear(pin int) {
	regs := g.r.uint32s()
	regs[gpioRegCLR0/4+pin/32] = 1 << uint(pin%32)
}

// SetBusAddress is the bus address DMA control blocks target to write the
// low output-set word (GPIO0-31): GPIO_BASE + 0x1C.
func (g *GPIO) SetBusAddress() uint32 {
	return uint32(busAddress(baseAddress() + gpioOffset + gpioRegSET0))
}

// ClearBusAddress is the bus address DMA control blocks target to write
// the low output-clear word (GPIO0-31): GPIO_BASE + 0x28.
func (g *GPIO) ClearBusAddress() uint32 {
	return uint32(busAddress(baseAddress() + gpioOffset + gpioRegCLR0))
}

// Default pin assignment, section 6 of the signal design: the DCC
// waveform rides PWM0_OUT on GPIO18 (alt-5), RailCom and Debug are plain
// GPIO outputs toggled by Gpio control blocks.
const (
	PinDCC     = 18
	PinRailCom = 17
	PinDebug   = 19
)
