// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitstream

import "testing"

func TestBitstreamDuration(t *testing.T) {
	b := New(14.5, 32)
	b.Append(DataEvent{Word: 1, Size: 32})
	b.Append(GpioSetEvent{Pin: RailCom})
	b.Append(DataEvent{Word: 2, Size: 8})
	got := b.Duration()
	want := float32(32)*14.5 + float32(8)*14.5
	if got != want {
		t.Errorf("Duration() = %v, want %v", got, want)
	}
}

func TestBitstreamLoopStartIndex(t *testing.T) {
	b := New(14.5, 32)
	if idx := b.LoopStartIndex(); idx != -1 {
		t.Fatalf("LoopStartIndex() on empty stream = %d, want -1", idx)
	}
	b.Append(DataEvent{Word: 1, Size: 32})
	b.Append(LoopStartEvent{})
	b.Append(DataEvent{Word: 2, Size: 32})
	if idx := b.LoopStartIndex(); idx != 1 {
		t.Errorf("LoopStartIndex() = %d, want 1", idx)
	}
}

func TestPinString(t *testing.T) {
	cases := map[Pin]string{RailCom: "RailCom", Debug: "Debug", Pin(7): "Pin(7)"}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Pin(%d).String() = %q, want %q", uint8(p), got, want)
		}
	}
}
