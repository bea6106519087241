// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitstream

import (
	"reflect"
	"testing"
)

func TestDelayerNoGpio(t *testing.T) {
	in := []Event{
		DataEvent{Word: 1, Size: 32},
		DataEvent{Word: 2, Size: 32},
	}
	out := Delay(in)
	if !reflect.DeepEqual(out, in) {
		t.Errorf("Delay(no gpio) = %#v, want unchanged %#v", out, in)
	}
}

func TestDelayerTwoWordLatency(t *testing.T) {
	d := NewDelayer()
	var got []Event
	got = append(got, d.Feed(GpioSetEvent{Pin: RailCom})...)
	got = append(got, d.Feed(DataEvent{Word: 1, Size: 32})...)
	got = append(got, d.Feed(DataEvent{Word: 2, Size: 32})...)
	got = append(got, d.Feed(DataEvent{Word: 3, Size: 32})...)

	want := []Event{
		DataEvent{Word: 1, Size: 32},
		GpioEvent{SetMask: 1 << uint(RailCom)},
		DataEvent{Word: 2, Size: 32},
		DataEvent{Word: 3, Size: 32},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Feed sequence = %#v, want %#v", got, want)
	}
}

func TestDelayerCoalescesSimultaneousEdges(t *testing.T) {
	d := NewDelayer()
	d.Feed(GpioSetEvent{Pin: RailCom})
	d.Feed(GpioSetEvent{Pin: Debug})
	out := d.Feed(DataEvent{Word: 1, Size: 32})
	out = append(out, d.Feed(DataEvent{Word: 2, Size: 32})...)

	want := []Event{
		DataEvent{Word: 1, Size: 32},
		GpioEvent{SetMask: 1<<uint(RailCom) | 1<<uint(Debug)},
		DataEvent{Word: 2, Size: 32},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("coalesced sequence = %#v, want %#v", out, want)
	}
}

func TestDelayerLastWriteWinsPerPin(t *testing.T) {
	d := NewDelayer()
	d.Feed(GpioSetEvent{Pin: RailCom})
	d.Feed(GpioClearEvent{Pin: RailCom})
	out := d.Feed(DataEvent{Word: 1, Size: 32})
	out = append(out, d.Feed(DataEvent{Word: 2, Size: 32})...)

	want := []Event{
		DataEvent{Word: 1, Size: 32},
		GpioEvent{ClearMask: 1 << uint(RailCom)},
		DataEvent{Word: 2, Size: 32},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("last-write-wins sequence = %#v, want %#v", out, want)
	}
}

func TestDelayerPendingAtEndOfStream(t *testing.T) {
	d := NewDelayer()
	d.Feed(DataEvent{Word: 1, Size: 32})
	d.Feed(GpioSetEvent{Pin: Debug})
	pending := d.Pending()
	want := []PendingEdge{{Pin: Debug, Set: true, Residual: delayWords}}
	if !reflect.DeepEqual(pending, want) {
		t.Errorf("Pending() = %#v, want %#v", pending, want)
	}
}

func TestNewDelayerWithPendingResumes(t *testing.T) {
	seed := []PendingEdge{{Pin: RailCom, Set: true, Residual: 1}}
	d := NewDelayerWithPending(seed)
	out := d.Feed(DataEvent{Word: 1, Size: 32})
	want := []Event{
		GpioEvent{SetMask: 1 << uint(RailCom)},
		DataEvent{Word: 1, Size: 32},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("resumed Feed = %#v, want %#v", out, want)
	}
}
