// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package compiler turns a delayed bitstream event sequence into a linked
// graph of DMA control blocks and a flat data pool, as described for the
// "bitstream compiler" in the design: it merges runs of same-width words,
// inserts width-range blocks on transitions, coalesces GPIO edges into
// their own block, and unrolls the loop tail when necessary so that a
// GPIO event delayed past the end of the stream still lands on the
// correct cycle.
package compiler

import "fmt"

// BlockKind identifies which of the five DMA descriptor shapes a Block
// represents.
type BlockKind int

const (
	// BlockStart copies the literal 1 into data-pool slot 0.
	BlockStart BlockKind = iota
	// BlockData transfers Length words starting at Source to the PWM FIFO.
	BlockData
	// BlockRange transfers one word (the active bit width) to PWM_RNG1.
	BlockRange
	// BlockGpio transfers four consecutive words to the GPIO set/clear
	// register pair in 2D mode.
	BlockGpio
	// BlockEnd copies the literal -1 into data-pool slot 0.
	BlockEnd
)

func (k BlockKind) String() string {
	switch k {
	case BlockStart:
		return "Start"
	case BlockData:
		return "Data"
	case BlockRange:
		return "Range"
	case BlockGpio:
		return "Gpio"
	case BlockEnd:
		return "End"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// Block is one node of the compiled control-block graph. Only the fields
// relevant to Kind are meaningful; see the BlockKind constants.
type Block struct {
	Kind BlockKind

	// Source is a word index into Program.Data: the literal for
	// Start/End, the first payload word for Data, or the first of the
	// four words for Gpio. Unused for Range.
	Source int
	// Length is the number of consecutive words a Data block transfers.
	// Always 1 for a freshly emitted block; grows as runs merge.
	Length int
	// Range is a word index into Program.Data holding the active bit
	// width. Only meaningful for BlockRange.
	Range int

	// Next is the index, within Program.Blocks, of the block this one
	// transfers control to once its own transfer completes. The
	// Committer rewrites this to an absolute bus address.
	Next int
}

// Program is the output of Compile: a flat, indexable block graph (cycles
// are expressed purely through Next indices) plus the data pool they draw
// from and transfer to.
type Program struct {
	// Blocks is the full control-block list in emission order. Index 0 is
	// always the unique Start block.
	Blocks []Block
	// Data is the flat native-word data pool. Slot 0 is the run-state
	// sentinel; slot 1 holds the literal 1 consumed by Start.
	Data []uint32

	// RepeatEntry is the block index the loop repeats from: either the
	// position of the LoopStart marker, or 1 (the first operational
	// block) if the stream carried none. Without tail unrolling the End
	// block's Next targets it; with unrolling the first End targets the
	// unrolled section and the final End targets a matching block at or
	// after RepeatEntry.
	RepeatEntry int
	// Breakpoints lists the block indices recorded at each Breakpoint
	// event, in source order. They are handoff-permitted boundaries for
	// QueuedBitstream.TransferOffsets.
	Breakpoints []int
}

// SentinelRun and SentinelRepeat are the two literal values Start and End
// write into data-pool slot 0.
const (
	SentinelRun    uint32 = 1
	SentinelRepeat uint32 = 0xFFFFFFFF // all-ones; read back as int32(-1).
)
