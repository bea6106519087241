// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitstream defines the event-annotated bitstream consumed by the
// DCC signal compiler: an ordered sequence of physical-layer data words
// interleaved with GPIO events, a loop marker and breakpoint markers.
//
// The stream itself is produced by a DCC packet encoder and a bit-pattern
// expander; neither is part of this package. This package only models the
// stream and the fixed two-word GPIO delay that the PWM/DMA pipeline
// requires.
package bitstream

import "fmt"

// Pin identifies one of the auxiliary GPIOs toggled in alignment with the
// PWM output.
type Pin uint8

const (
	// RailCom is the GPIO that opens the RailCom cutout window.
	RailCom Pin = iota
	// Debug is the GPIO toggled for oscilloscope/logic-analyzer markers.
	Debug
)

func (p Pin) String() string {
	switch p {
	case RailCom:
		return "RailCom"
	case Debug:
		return "Debug"
	default:
		return fmt.Sprintf("Pin(%d)", uint8(p))
	}
}

// Event is one element of a Bitstream. It is implemented by DataEvent,
// GpioSetEvent, GpioClearEvent, LoopStartEvent and BreakpointEvent.
type Event interface {
	isEvent()
}

// DataEvent carries size bits of payload, the high bits of word (MSB-first).
//
// Size must be no greater than the owning Bitstream's WordSize.
type DataEvent struct {
	Word uint32
	Size uint8
}

func (DataEvent) isEvent() {}

// GpioSetEvent requests that Pin be driven high.
type GpioSetEvent struct {
	Pin Pin
}

func (GpioSetEvent) isEvent() {}

// GpioClearEvent requests that Pin be driven low.
type GpioClearEvent struct {
	Pin Pin
}

func (GpioClearEvent) isEvent() {}

// LoopStartEvent marks the start of the repeating tail of the stream. At
// most one may appear in a Bitstream.
type LoopStartEvent struct{}

func (LoopStartEvent) isEvent() {}

// BreakpointEvent marks a point where a successor Bitstream may seamlessly
// take over via QueuedBitstream.TransferOffsets and PatchNext. It carries
// no data of its own.
type BreakpointEvent struct{}

func (BreakpointEvent) isEvent() {}

// Bitstream is the high-level, event-annotated description of one physical
// waveform: an ordered list of Data/Gpio/Loop/Breakpoint events plus the
// timing parameters needed to interpret them.
type Bitstream struct {
	// BitDuration is the duration of a single bit, in microseconds.
	BitDuration float32
	// WordSize is the native word width, in bits, shared by every DataEvent
	// in this stream.
	WordSize uint8
	// Events is the ordered event sequence.
	Events []Event
}

// New returns an empty Bitstream with the given timing parameters.
func New(bitDuration float32, wordSize uint8) *Bitstream {
	return &Bitstream{BitDuration: bitDuration, WordSize: wordSize}
}

// Append adds one event to the end of the stream.
func (b *Bitstream) Append(e Event) {
	b.Events = append(b.Events, e)
}

// Duration returns the sum of size*BitDuration over every DataEvent,
// in microseconds.
func (b *Bitstream) Duration() float32 {
	var total float32
	for _, e := range b.Events {
		if d, ok := e.(DataEvent); ok {
			total += float32(d.Size) * b.BitDuration
		}
	}
	return total
}

// LoopStartIndex returns the index of the LoopStartEvent in b.Events, or -1
// if none is present.
func (b *Bitstream) LoopStartIndex() int {
	for i, e := range b.Events {
		if _, ok := e.(LoopStartEvent); ok {
			return i
		}
	}
	return -1
}
