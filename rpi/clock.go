// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

import "time"

// Clock manager control register bits, page 107. Must not be changed
// while busy is set or a glitch may occur.
const (
	clockPasswd clockCtl = 0x5A << 24
	clockBusy   clockCtl = 1 << 7
	clockKill   clockCtl = 1 << 5
	clockEnable clockCtl = 1 << 4
	clockSrcOsc clockCtl = 1 // 19.2MHz oscillator.
)

type clockCtl uint32

// Clock manager divisor register, page 108: a 12.12 fixed point value.
const (
	clockPasswdDiv clockDiv = 0x5A << 24
	diviShift               = 12
)

type clockDiv uint32

// oscillatorHz is the fixed 19.2 MHz reference the clock manager divides
// down from.
const oscillatorHz = 19200000

// PWMClockID addresses the clock manager's PWM clock generator, the one
// that paces PWM channel 1's serializer.
const PWMClockID = 0xA0 // offset of CM_PWMCTL/CM_PWMDIV from the clock manager base.

// Clock is a handle to one of the BCM2835 clock manager's generators.
type Clock struct {
	r *region
}

// OpenClock maps the clock manager register block and returns a handle to
// the generator at the given register offset (see PWMClockID).
func OpenClock(id uint32) (*Clock, error) {
	r, err := mapPeripheral(baseAddress()+clockOffset+uint64(id), 8)
	if err != nil {
		return nil, err
	}
	return &Clock{r: r}, nil
}

// Close unmaps the register block.
func (c *Clock) Close() error { return c.r.Close() }

// SetWordDuration configures the generator so that one PWM word-clock
// tick takes approximately wordDuration, by picking the integer divisor
// of the 19.2 MHz oscillator closest to it: divisor = round(wordDuration
// in microseconds * oscillatorHz / 1e6).
func (c *Clock) SetWordDuration(wordDuration time.Duration) {
	divi := uint32(float64(wordDuration)*oscillatorHz/float64(time.Second) + 0.5)
	if divi == 0 {
		divi = 1
	}
	regs := c.r.uint32s()
	regs[0] = uint32(clockPasswd | clockKill)
	for clockCtl(regs[0])&clockBusy != 0 {
	}
	regs[1] = uint32(clockPasswdDiv) | divi<<diviShift
	regs[0] = uint32(clockPasswd | clockSrcOsc)
	regs[0] = uint32(clockPasswd | clockSrcOsc | clockEnable)
}
