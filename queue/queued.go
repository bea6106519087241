// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package queue

import (
	"modelrail.io/x/dcc/dmamem"
)

// QueuedBitstream is a compiled, committed bitstream living in uncached
// memory: its control-block graph has been relocated to absolute bus
// addresses and is ready for the DMA engine to traverse. It is created by
// Committer.Commit (or, in tests, NewQueuedBitstreamForTesting).
type QueuedBitstream struct {
	region *dmamem.Region

	blockBase  uint32
	dataBase   uint32
	blockCount int

	breakpoints []int
	repeatEntry int
}

// BusAddress is the address to write into the DMA channel's CONBLK_AD
// register (or a previous graph's End.Next field) to begin or resume
// traversal at this bitstream's Start block.
func (q *QueuedBitstream) BusAddress() uint32 { return q.blockBase }

// sentinel reads data-pool slot 0, the run-state word Start sets to
// compiler.SentinelRun and End sets to compiler.SentinelRepeat.
func (q *QueuedBitstream) sentinel() uint32 {
	return q.region.Uint32s()[(q.dataBase-q.blockBase)/wordSize]
}

// IsTransmitting reports whether this bitstream's Start block has executed
// at least once (slot 0 holds the literal 1) and no End has yet run.
func (q *QueuedBitstream) IsTransmitting() bool {
	return q.sentinel() == 1
}

// IsRepeating reports whether this bitstream has played to completion at
// least once (its End block has executed, writing the all-ones sentinel).
func (q *QueuedBitstream) IsRepeating() bool {
	return q.sentinel() == 0xFFFFFFFF
}

// Close releases the underlying uncached memory region. The caller must
// ensure the DMA engine is no longer traversing this bitstream's blocks
// before calling Close; a QueuedBitstream still reachable through another
// graph's Next pointer must not be closed.
func (q *QueuedBitstream) Close() error {
	return q.region.Close()
}

// TransferOffsets is the set of block indices, within a QueuedBitstream's
// own graph, whose Next fields a handoff to a freshly committed successor
// must patch.
type TransferOffsets []int

// TransferOffsets reports the block indices a scheduler may patch, via
// PatchNext, to redirect previous's Next pointers at a successor once the
// successor has committed. When the source bitstream carried explicit
// Breakpoint events, those recorded positions are returned, allowing a
// mid-loop handoff before previous's End block is next reached. Otherwise
// the sole offset is previous's own End block, the coarsest handoff point
// that is always safe: once End next executes, it lands on the successor
// instead of looping back into previous.
func (previous *QueuedBitstream) TransferOffsets() TransferOffsets {
	if len(previous.breakpoints) == 0 {
		return TransferOffsets{previous.blockCount - 1}
	}
	offsets := make(TransferOffsets, len(previous.breakpoints))
	copy(offsets, previous.breakpoints)
	return offsets
}

// NewQueuedBitstreamForTesting wraps an already-built region as a
// QueuedBitstream, so packages that consume one (scheduler) can exercise
// their own sequencing logic against a fake region without a real
// Committer.Commit call. The data pool is taken to start at the region's
// first word, so the sentinel is SentinelWordsForTesting()[0].
func NewQueuedBitstreamForTesting(region *dmamem.Region, blockCount int, breakpoints []int) *QueuedBitstream {
	return &QueuedBitstream{
		region:      region,
		blockBase:   region.BusAddress(),
		dataBase:    region.BusAddress(),
		blockCount:  blockCount,
		breakpoints: breakpoints,
	}
}

// SentinelWordsForTesting exposes q's backing region as a []uint32, so a
// test driving a fake DMA engine can poke slot 0 directly to simulate the
// sentinel transitions the real hardware would produce.
func (q *QueuedBitstream) SentinelWordsForTesting() []uint32 {
	return q.region.Uint32s()
}

// PatchNext rewrites the Next field of each block at offsets (indices into
// q's own graph) to point at successor's Start block. Each patch is a
// single aligned word write, observed atomically by the DMA engine since
// the targeted block has not yet been fetched — only blocks reachable
// through the not-yet-traversed tail of the graph are ever offsets here.
func (q *QueuedBitstream) PatchNext(offsets TransferOffsets, successor *QueuedBitstream) {
	words := q.region.Uint32s()
	for _, blockIdx := range offsets {
		words[blockIdx*8+5] = successor.BusAddress() // NextCB is word 5 of the descriptor.
	}
}
