// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package queue relocates a compiled control-block graph into uncached,
// DMA-addressable memory and tracks the committed result's run-state
// sentinel, exposing the handoff primitive a scheduler uses to stitch two
// bitstreams together without a gap in the waveform.
package queue

import (
	"fmt"

	"modelrail.io/x/dcc/compiler"
	"modelrail.io/x/dcc/dmamem"
	"modelrail.io/x/dcc/rpi"
)

// Destinations is the fixed set of peripheral bus addresses a Committer
// wires Data/Range/Gpio blocks to. It is computed once from the mapped
// register handles and shared by every bitstream committed during the
// process lifetime.
type Destinations struct {
	PWMFIFO   uint32
	PWMRange  uint32
	GPIOSet   uint32
	GPIOClear uint32
}

// DestinationsFromHandles reads the bus addresses a Committer needs off the
// already-opened peripheral handles.
func DestinationsFromHandles(pwm *rpi.PWM, gpio *rpi.GPIO) Destinations {
	return Destinations{
		PWMFIFO:   pwm.FIFOBusAddress(),
		PWMRange:  pwm.RNG1BusAddress(),
		GPIOSet:   gpio.SetBusAddress(),
		GPIOClear: gpio.ClearBusAddress(),
	}
}

// Committer relocates compiler.Program values into uncached memory,
// rewriting the block-local offsets the compiler emitted into the absolute
// bus addresses the DMA engine requires.
type Committer struct {
	dst Destinations
}

// NewCommitter returns a Committer that wires Data/Range/Gpio blocks to dst.
func NewCommitter(dst Destinations) *Committer {
	return &Committer{dst: dst}
}

// wordSize is the native transfer width in bytes; every peripheral and data
// pool word on this platform is 32 bits.
const wordSize = 4

// Commit allocates a region sized to hold p's block list and data pool,
// writes both, and rewrites every block's source/destination/next fields
// from compiler-local offsets into absolute bus addresses. On any failure
// the partially-allocated region is released and the error returned; no
// QueuedBitstream is produced.
func (c *Committer) Commit(p *compiler.Program) (*QueuedBitstream, error) {
	blocksBytes := len(p.Blocks) * rpi.DescriptorWords * wordSize
	dataBytes := len(p.Data) * wordSize
	region, err := dmamem.Alloc(blocksBytes + dataBytes)
	if err != nil {
		return nil, fmt.Errorf("queue: commit: %v", err)
	}

	blockBase := region.BusAddress()
	dataBase := blockBase + uint32(blocksBytes)

	words := region.Uint32s()
	dataWords := words[blocksBytes/wordSize:]
	copy(dataWords, p.Data)

	for i, b := range p.Blocks {
		writeDescriptor(words[i*rpi.DescriptorWords:], c.descriptorFor(b, blockBase, dataBase))
	}

	return &QueuedBitstream{
		region:      region,
		blockBase:   blockBase,
		dataBase:    dataBase,
		blockCount:  len(p.Blocks),
		breakpoints: p.Breakpoints,
		repeatEntry: p.RepeatEntry,
	}, nil
}

// descriptorFor builds the 32-byte DMA descriptor for block b, translating
// its compiler-local Source/Range/Next offsets into absolute bus addresses
// per the committer's three translation rules: data-pool offsets gain
// dataBase, block-list offsets gain blockBase, and peripheral destinations
// are left untouched.
func (c *Committer) descriptorFor(b compiler.Block, blockBase, dataBase uint32) rpi.Descriptor {
	next := blockBase + uint32(b.Next*rpi.DescriptorWords*wordSize)
	switch b.Kind {
	case compiler.BlockStart:
		return rpi.Descriptor{
			TransferInfo:   rpi.SrcInc | rpi.DstInc | rpi.WaitResp,
			SourceAddr:     dataBase + uint32(b.Source*wordSize),
			DestAddr:       dataBase,
			TransferLength: wordSize,
			NextCB:         next,
		}
	case compiler.BlockData:
		return rpi.Descriptor{
			TransferInfo:   rpi.SrcInc | rpi.DstDReq | rpi.PermapPWM | rpi.WaitResp,
			SourceAddr:     dataBase + uint32(b.Source*wordSize),
			DestAddr:       c.dst.PWMFIFO,
			TransferLength: uint32(b.Length * wordSize),
			NextCB:         next,
		}
	case compiler.BlockRange:
		return rpi.Descriptor{
			TransferInfo:   rpi.SrcInc | rpi.DstDReq | rpi.PermapPWM | rpi.WaitResp,
			SourceAddr:     dataBase + uint32(b.Range*wordSize),
			DestAddr:       c.dst.PWMRange,
			TransferLength: wordSize,
			NextCB:         next,
		}
	case compiler.BlockGpio:
		// Four words: set0, set1, clear0, clear1. SET0/SET1 and CLR0/CLR1
		// are each a contiguous 8-byte pair (at GPIO_BASE+0x1C and
		// +0x28); 2D mode writes two 2-word rows, skipping the 4-byte gap
		// between them on the destination side only.
		return rpi.Descriptor{
			TransferInfo:   rpi.SrcInc | rpi.DstInc | rpi.WaitResp | rpi.Transfer2DMode,
			SourceAddr:     dataBase + uint32(b.Source*wordSize),
			DestAddr:       c.dst.GPIOSet,
			TransferLength: 2<<16 | 2*wordSize,
			TDStride:       4 << 16,
			NextCB:         next,
		}
	case compiler.BlockEnd:
		return rpi.Descriptor{
			TransferInfo:   rpi.SrcInc | rpi.DstInc | rpi.WaitResp,
			SourceAddr:     dataBase + uint32(b.Source*wordSize),
			DestAddr:       dataBase,
			TransferLength: wordSize,
			NextCB:         next,
		}
	default:
		panic(fmt.Sprintf("queue: unhandled block kind %v", b.Kind))
	}
}

// writeDescriptor lays out d into the DescriptorWords-wide window dst, in
// the fixed field order the BCM2835 DMA engine expects.
func writeDescriptor(dst []uint32, d rpi.Descriptor) {
	dst[0] = uint32(d.TransferInfo)
	dst[1] = d.SourceAddr
	dst[2] = d.DestAddr
	dst[3] = d.TransferLength
	dst[4] = d.TDStride
	dst[5] = d.NextCB
	dst[6] = d.Reserved[0]
	dst[7] = d.Reserved[1]
}
