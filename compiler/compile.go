// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package compiler

import (
	"fmt"

	"modelrail.io/x/dcc/bitstream"
)

// state holds everything threaded through one Compile call.
type state struct {
	blocks []Block
	data   []uint32

	// entryPending/entryWidth snapshot the Delayer queue and the active
	// bit width as they stood when blocks[i] was appended; used only to
	// find a matching state during tail unrolling.
	entryPending [][]bitstream.PendingEdge
	entryWidth   []uint8

	lastDataIdx   int // index into blocks of the extendable Data run, -1 if none
	lastDataSize  uint8
	lastRangeSize int // width value of the most recently emitted Range, -1 if none
	currentWidth  uint8

	breakpoints []int

	// subWordPending is true immediately after a Data event narrower than
	// wordSize is appended, until the next event is processed. It is used
	// only to detect a GpioEvent released immediately after such a word,
	// which appendGpio rejects as ErrSubWordGpioDelay.
	subWordPending bool
	wordSize       uint8
}

// Compile walks b's event stream (after applying the fixed GPIO delay) and
// produces the control-block graph and data pool described by the design.
//
// It fails with ErrNoData if b carries no Data events, or a LoopStartEvent
// with none following it.
func Compile(b *bitstream.Bitstream) (*Program, error) {
	s := &state{
		lastDataIdx:   -1,
		lastRangeSize: -1,
		wordSize:      b.WordSize,
	}
	// Block 0: Start. Data pool slot 0 is the sentinel (zero until
	// written at runtime); slot 1 is the literal 1 it copies from.
	s.data = append(s.data, 0, 1)
	s.blocks = append(s.blocks, Block{Kind: BlockStart, Source: 1, Next: 1})
	s.recordEntry(nil)

	delayer := bitstream.NewDelayer()
	repeatEntry := -1
	sawData := false
	loopSeen := false
	dataAfterLoop := false

	for _, raw := range b.Events {
		emitted := delayer.Feed(raw)
		pending := delayer.Pending()
		for _, e := range emitted {
			switch ev := e.(type) {
			case bitstream.DataEvent:
				sawData = true
				if loopSeen {
					dataAfterLoop = true
				}
				s.appendData(ev.Word, ev.Size, pending)
				s.subWordPending = ev.Size < s.wordSize
			case bitstream.GpioEvent:
				if s.subWordPending {
					return nil, ErrSubWordGpioDelay
				}
				s.appendGpio(ev.SetMask, ev.ClearMask, pending)
			case bitstream.LoopStartEvent:
				loopSeen = true
				repeatEntry = len(s.blocks)
				s.lastDataIdx = -1
			case bitstream.BreakpointEvent:
				s.breakpoints = append(s.breakpoints, len(s.blocks))
			}
		}
	}

	if loopSeen && !dataAfterLoop {
		return nil, ErrNoData
	}
	if !sawData {
		return nil, ErrNoData
	}
	if repeatEntry < 0 {
		repeatEntry = 1
	}
	mainBlockCount := len(s.blocks)

	trailing := delayer.Pending()
	if len(trailing) == 0 {
		s.recordEntry(nil)
		s.appendEnd(repeatEntry)
	} else {
		if err := s.unroll(b, repeatEntry, mainBlockCount, trailing); err != nil {
			return nil, err
		}
	}

	return &Program{
		Blocks:      s.blocks,
		Data:        s.data,
		RepeatEntry: repeatEntry,
		Breakpoints: s.breakpoints,
	}, nil
}

// recordEntry snapshots the delayer's pending queue and the active width
// for the block about to be appended (index len(s.blocks)).
func (s *state) recordEntry(pending []bitstream.PendingEdge) {
	s.entryPending = append(s.entryPending, pending)
	s.entryWidth = append(s.entryWidth, s.currentWidth)
}

// appendData merges into the open Data run if sizes match, else closes it
// and emits a fresh Data block, followed by a Range block if the width
// changed (or none has been emitted yet). The Range block configures the
// PWM for the *next* traversal of this width, whether that is the next
// loop iteration or a subsequent differently-sized run; the very first
// transfer of a freshly committed graph relies on the PWM having already
// been configured to word_size by the external peripheral setup this
// package does not own.
func (s *state) appendData(word uint32, size uint8, pending []bitstream.PendingEdge) {
	if s.lastDataIdx >= 0 && s.lastDataSize == size {
		s.data = append(s.data, word)
		s.blocks[s.lastDataIdx].Length++
		return
	}
	s.currentWidth = size
	s.recordEntry(pending)
	idx := len(s.data)
	s.data = append(s.data, word)
	s.blocks = append(s.blocks, Block{Kind: BlockData, Source: idx, Length: 1, Next: len(s.blocks) + 1})
	s.lastDataIdx = len(s.blocks) - 1
	s.lastDataSize = size

	if s.lastRangeSize != int(size) {
		s.recordEntry(pending)
		rangeIdx := len(s.data)
		s.data = append(s.data, uint32(size))
		s.blocks = append(s.blocks, Block{Kind: BlockRange, Range: rangeIdx, Next: len(s.blocks) + 1})
		s.lastRangeSize = int(size)
		// The Range's literal now sits in the data pool between this Data
		// block's words and whatever comes next, so a following word of
		// the same size cannot extend this block's window; it must open
		// its own Data block instead, mirroring the reset appendGpio does
		// when it closes a run.
		s.lastDataIdx = -1
	}
}

// appendGpio closes any open Data run and emits one Gpio block carrying
// the four set/clear words.
func (s *state) appendGpio(setMask, clearMask uint32, pending []bitstream.PendingEdge) {
	s.lastDataIdx = -1
	s.recordEntry(pending)
	idx := len(s.data)
	s.data = append(s.data, setMask, 0, clearMask, 0)
	s.blocks = append(s.blocks, Block{Kind: BlockGpio, Source: idx, Next: len(s.blocks) + 1})
}

// appendEnd emits the terminating End block, pointing at target.
func (s *state) appendEnd(target int) {
	idx := len(s.data)
	s.data = append(s.data, SentinelRepeat)
	s.blocks = append(s.blocks, Block{Kind: BlockEnd, Source: idx, Next: target})
}

// unroll synthesizes the unrolled continuation described for GPIO tail
// unrolling: it closes the main graph with an End block pointing at a
// fresh replay of the loop body, seeded with the edges still queued at
// end-of-stream, and stitches the replay back into the original graph as
// soon as the machine state matches a position at or after repeatEntry.
func (s *state) unroll(b *bitstream.Bitstream, repeatEntry, mainBlockCount int, trailing []bitstream.PendingEdge) error {
	loopIdx := b.LoopStartIndex()
	start := 0
	if loopIdx >= 0 {
		start = loopIdx + 1
	}
	replayLen := len(b.Events) - start
	if replayLen <= 0 {
		return ErrNoData
	}

	s.recordEntry(trailing)
	unrollEntry := len(s.blocks) + 1
	s.appendEnd(unrollEntry)
	// The End block just appended breaks any open Data run; the replay
	// below must start a fresh block rather than merge into the run that
	// was open going into end-of-stream.
	s.lastDataIdx = -1

	rd := bitstream.NewDelayerWithPending(trailing)
	maxIterations := 2*replayLen + 4
	for i := 0; i < maxIterations; i++ {
		ev := b.Events[start+(i%replayLen)]
		for _, out := range rd.Feed(ev) {
			switch x := out.(type) {
			case bitstream.DataEvent:
				s.appendData(x.Word, x.Size, rd.Pending())
				s.subWordPending = x.Size < s.wordSize
			case bitstream.GpioEvent:
				if s.subWordPending {
					return ErrSubWordGpioDelay
				}
				s.appendGpio(x.SetMask, x.ClearMask, rd.Pending())
			default:
				// LoopStart/Breakpoint replayed inside the unroll: pass
				// through without emitting a block or re-arming repeatEntry.
			}
			if match, ok := s.findMatch(repeatEntry, mainBlockCount, rd.Pending(), s.currentWidth); ok {
				s.recordEntry(rd.Pending())
				s.appendEnd(match)
				return nil
			}
		}
	}
	return fmt.Errorf("compiler: gpio tail unroll failed to converge after %d replayed words", maxIterations)
}

// findMatch looks, among the original blocks in [from, to), for the one
// closest to the end of that range whose (kind, pending queue, width)
// equals the state just reached during the unroll replay.
func (s *state) findMatch(from, to int, pending []bitstream.PendingEdge, width uint8) (int, bool) {
	kind := s.blocks[len(s.blocks)-1].Kind
	best := -1
	for i := from; i < to; i++ {
		if s.blocks[i].Kind != kind {
			continue
		}
		if s.entryWidth[i] != width {
			continue
		}
		if !pendingEqual(s.entryPending[i], pending) {
			continue
		}
		if i > best {
			best = i
		}
	}
	return best, best >= 0
}

func pendingEqual(a, b []bitstream.PendingEdge) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
