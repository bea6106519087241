// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

// PWM control register bits. Pages 141-143 of the BCM2835 ARM Peripherals
// datasheet; only channel 1 is used since the signal runs on PWM0_OUT via
// GPIO18's alt-5 function.
const (
	msen1    pwmControl = 1 << 7 // M/S transmission instead of the PWM algorithm.
	clrf1    pwmControl = 1 << 6 // Clear the FIFO; self-clearing.
	usef1    pwmControl = 1 << 5 // Use the FIFO for transmission instead of PWM_DAT1.
	pola1    pwmControl = 1 << 4 // Invert the output.
	rptl1    pwmControl = 1 << 2 // Repeat the last FIFO word instead of gapping when empty.
	mode1    pwmControl = 1 << 1 // Serializer mode instead of PWM mode.
	pwen1    pwmControl = 1 << 0 // Enable channel 1.
	pwm1Mask pwmControl = msen1 | usef1 | pola1 | rptl1 | mode1 | pwen1
)

type pwmControl uint32

// PWM status register bits, pages 144-145. All are write-1-to-clear.
const (
	busErr pwmStatus = 1 << 8 // BERR: register write collision.
	gapo1  pwmStatus = 1 << 4 // GAPO1: FIFO ran dry between two words.
	rerr1  pwmStatus = 1 << 3 // RERR1: read attempted on an empty FIFO.
	werr1  pwmStatus = 1 << 2 // WERR1: write attempted on a full FIFO.
)

type pwmStatus uint32

// PWM DMA configuration register bits, page 145.
const (
	dmaEnable pwmDMACfg = 1 << 31
	panicMask pwmDMACfg = 0xFF << 8
	dreqMask  pwmDMACfg = 0xFF
)

type pwmDMACfg uint32

// Register offsets from the PWM peripheral base.
const (
	pwmRegCTL  = 0x00
	pwmRegSTA  = 0x04
	pwmRegDMAC = 0x08
	pwmRegRNG1 = 0x10
	pwmRegDAT1 = 0x14
	pwmRegFIF1 = 0x18
)

// PWM is a handle to the BCM2835 PWM peripheral's channel-1 registers.
type PWM struct {
	r *region
}

// OpenPWM maps the PWM register block.
func OpenPWM() (*PWM, error) {
	r, err := mapPeripheral(baseAddress()+pwmOffset, 0x28)
	if err != nil {
		return nil, err
	}
	return &PWM{r: r}, nil
}

// Close unmaps the register block.
func (p *PWM) Close() error { return p.r.Close() }

// ConfigureSerializer puts channel 1 into the mode the compiled control
// block graph expects: FIFO-fed serializer mode, MSB-first, DREQ threshold
// 1, no gap-fill repeat (RNG transitions are driven by Range blocks, not
// left implicit).
func (p *PWM) ConfigureSerializer() {
	regs := p.r.uint32s()
	regs[pwmRegCTL/4] = 0
	regs[pwmRegCTL/4] = uint32(clrf1)
	regs[pwmRegDMAC/4] = uint32(dmaEnable) | 1<<8 | 1
	regs[pwmRegCTL/4] = uint32(usef1 | mode1 | pwen1)
}

// ClearErrors writes 1 to every set error bit in the status register, per
// the watchdog policy: observed, cleared, never escalated.
//
// The BERR bit has been observed set on every tick on at least one board
// revision; this is cleared unconditionally along with the rest rather
// than treated as a real bus error.
func (p *PWM) ClearErrors() pwmStatus {
	regs := p.r.uint32s()
	status := pwmStatus(regs[pwmRegSTA/4])
	if status&(busErr|gapo1|rerr1|werr1) != 0 {
		regs[pwmRegSTA/4] = uint32(status & (busErr | gapo1 | rerr1 | werr1))
	}
	return status
}

// FIFOBusAddress is the bus address DMA control blocks target to push a
// word into the PWM FIFO: PWM_BASE + 0x18.
func (p *PWM) FIFOBusAddress() uint32 {
	return uint32(busAddress(baseAddress() + pwmOffset + pwmRegFIF1))
}

// RNG1BusAddress is the bus address DMA control blocks target to switch
// the active word width: PWM_BASE + 0x10.
func (p *PWM) RNG1BusAddress() uint32 {
	return uint32(busAddress(baseAddress() + pwmOffset + pwmRegRNG1))
}
