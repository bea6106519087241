// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dmamem

import "testing"

func TestNewMailboxPacketFraming(t *testing.T) {
	p := newMailboxPacket(10, 3, 1, 2, 3)
	want := []uint32{0x24, 0x0, 0xa, 0xc, 0xc, 0x1, 0x2, 0x3, 0x0}
	if !uint32Equals(p.words, want) {
		t.Fatalf("words = %#x, want %#x", p.words, want)
	}
}

func TestNewMailboxPacketReplyLargerThanArgs(t *testing.T) {
	// A 2-word reply with no arguments still reserves room for the
	// response payload in the framed buffer.
	p := newMailboxPacket(0x10005, 2)
	want := []uint32{0x20, 0x0, 0x10005, 0x0, 0x8, 0x0, 0x0, 0x0}
	if !uint32Equals(p.words, want) {
		t.Fatalf("words = %#x, want %#x", p.words, want)
	}
}

func TestMailboxPacketReplyRejectsWrongSize(t *testing.T) {
	p := newMailboxPacket(0x1, 1)
	p.words[1] = mbReplyBit
	p.words[4] = mbReplyBit | 8 // claims two words instead of one
	if _, err := p.reply(); err == nil {
		t.Fatal("reply() = nil error, want a size mismatch")
	}
}

func uint32Equals(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
