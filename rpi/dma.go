// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

// DMA channel control-and-status register bits, pages 47-50 of the
// BCM2835 ARM Peripherals datasheet.
const (
	dmaReset dmaCS = 1 << 31
	dmaAbort dmaCS = 1 << 30
	// dmaErrorFlag is latched on read/write/FIFO errors and must be cleared
	// manually; the watchdog observes it via Debug instead, see ClearErrors.
	dmaErrorFlag dmaCS = 1 << 8
	dmaEnd       dmaCS = 1 << 1 // write 1 to clear.
	dmaActive    dmaCS = 1 << 0
)

type dmaCS uint32

// DMA debug register bits, page 55. All three error bits are
// write-1-to-clear.
const (
	dmaReadError           dmaDebug = 1 << 2
	dmaFIFOError           dmaDebug = 1 << 1
	dmaReadLastNotSetError dmaDebug = 1 << 0
)

type dmaDebug uint32

// TransferInfo configures one DMA control block's transfer: source/dest
// addressing mode, DREQ pacing and 2D-mode. Pages 50-52.
type TransferInfo uint32

const (
	NoWideBursts TransferInfo = 1 << 26
	SrcDReq      TransferInfo = 1 << 10
	SrcInc       TransferInfo = 1 << 8
	DstDReq      TransferInfo = 1 << 6
	DstInc       TransferInfo = 1 << 4
	WaitResp     TransferInfo = 1 << 3
	// 2D mode interprets TransferLength as (yLength<<16 | xLength); only
	// channels 0-6 support it. Used for the Gpio block kind's four-word
	// set/clear transfer.
	Transfer2DMode  TransferInfo = 1 << 1
	InterruptEnable TransferInfo = 1 << 0
	// PermapPWM is the DREQ peripheral-mapping value (bits 21:16 of
	// TransferInfo) selecting the PWM FIFO's ready signal for pacing.
	PermapPWM TransferInfo = 5 << 16
)

// Descriptor is the 32-byte DMA control block the BCM2835 DMA engine
// fetches to perform one transfer and chain to the next. Field order and
// size are fixed by the hardware; TDStride is only meaningful when
// TransferInfo has Transfer2DMode set, and Reserved must be zero.
type Descriptor struct {
	TransferInfo   TransferInfo
	SourceAddr     uint32
	DestAddr       uint32
	TransferLength uint32
	TDStride       uint32
	NextCB         uint32
	Reserved       [2]uint32
}

// DescriptorWords is sizeof(Descriptor) expressed in native 32-bit words,
// the unit the compiler's data-pool offsets are measured in once the
// committer lays out blocks ahead of the data pool.
const DescriptorWords = 8

// registers offsets within one DMA channel's register block.
const (
	dmaRegCS       = 0x00
	dmaRegCONBLKAD = 0x04
	dmaRegDEBUG    = 0x20
)

// DMA is a handle to one of the BCM2835's DMA channels.
type DMA struct {
	channel int
	r       *region
}

// OpenDMA maps the register block of the given DMA channel (0-15; only
// channels 0-6 support 2D transfers, required for the Gpio block kind).
func OpenDMA(channel int) (*DMA, error) {
	r, err := mapPeripheral(baseAddress()+dmaOffset+uint64(channel)*dmaChannelStride, 0x24)
	if err != nil {
		return nil, err
	}
	return &DMA{channel: channel, r: r}, nil
}

// Close unmaps the register block.
func (d *DMA) Close() error { return d.r.Close() }

// Reset aborts any in-flight transfer and resets the channel.
func (d *DMA) Reset() {
	regs := d.r.uint32s()
	regs[dmaRegCS/4] = uint32(dmaReset)
}

// Start writes the bus address of the first control block and sets the
// channel active, kicking off hardware traversal of the compiled graph.
func (d *DMA) Start(firstCB uint32) {
	regs := d.r.uint32s()
	regs[dmaRegCONBLKAD/4] = firstCB
	regs[dmaRegCS/4] = uint32(dmaActive)
}

// Active reports whether the channel is currently transferring.
func (d *DMA) Active() bool {
	regs := d.r.uint32s()
	return dmaCS(regs[dmaRegCS/4])&dmaActive != 0
}

// ClearErrors writes 1 to every set error bit in the debug register,
// matching the PWM watchdog's observed-and-cleared policy.
func (d *DMA) ClearErrors() dmaDebug {
	regs := d.r.uint32s()
	debug := dmaDebug(regs[dmaRegDEBUG/4])
	if debug&(dmaReadError|dmaFIFOError|dmaReadLastNotSetError) != 0 {
		regs[dmaRegDEBUG/4] = uint32(debug & (dmaReadError | dmaFIFOError | dmaReadLastNotSetError))
	}
	return debug
}
