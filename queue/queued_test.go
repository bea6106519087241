// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package queue

import (
	"testing"

	"modelrail.io/x/dcc/dmamem"
)

func fakeQueued(breakpoints []int) *QueuedBitstream {
	return &QueuedBitstream{
		region:      dmamem.NewRegionForTesting(0x100+64, 0xC0001000),
		blockBase:   0xC0001000,
		dataBase:    0xC0001100,
		breakpoints: breakpoints,
	}
}

func TestSentinelLifecycle(t *testing.T) {
	q := fakeQueued(nil)
	if q.IsTransmitting() || q.IsRepeating() {
		t.Fatal("fresh region should read neither transmitting nor repeating")
	}
	slot0 := &q.region.Uint32s()[(q.dataBase-q.blockBase)/wordSize]
	*slot0 = 1
	if !q.IsTransmitting() {
		t.Error("IsTransmitting() = false after sentinel = 1")
	}
	if q.IsRepeating() {
		t.Error("IsRepeating() = true before End has run")
	}
	*slot0 = 0xFFFFFFFF
	if q.IsTransmitting() {
		t.Error("IsTransmitting() = true after sentinel = -1")
	}
	if !q.IsRepeating() {
		t.Error("IsRepeating() = false after sentinel = -1")
	}
}

func TestTransferOffsetsCopiesBreakpoints(t *testing.T) {
	q := fakeQueued([]int{3, 7})
	offsets := q.TransferOffsets()
	if len(offsets) != 2 || offsets[0] != 3 || offsets[1] != 7 {
		t.Fatalf("offsets = %v", offsets)
	}
	offsets[0] = 99
	if q.breakpoints[0] == 99 {
		t.Error("TransferOffsets() must return a copy, not alias breakpoints")
	}
}

func TestPatchNextRewritesNextCB(t *testing.T) {
	q := fakeQueued([]int{1})
	successor := fakeQueued(nil)
	successor.blockBase = 0xC0002000
	q.PatchNext(q.TransferOffsets(), successor)
	if got := q.region.Uint32s()[1*8+5]; got != 0xC0002000 {
		t.Errorf("NextCB word = %#x, want successor bus address", got)
	}
}
