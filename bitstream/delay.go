// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitstream

// delayWords is the fixed latency, in PWM words, between a GPIO event
// appearing in the source stream and the cycle where the PWM output
// actually carries the corresponding bits on the wire.
const delayWords = 2

// GpioEvent is the coalesced result of one or more GpioSetEvent/
// GpioClearEvent releases that became due on the same data word. SetMask
// and ClearMask are bitmasks indexed by Pin; a given pin is never set in
// both masks at once.
type GpioEvent struct {
	SetMask, ClearMask uint32
}

func (GpioEvent) isEvent() {}

// pendingEdge is one GPIO edge waiting in the Delayer's FIFO.
type pendingEdge struct {
	pin      Pin
	set      bool
	residual int
}

// Delayer applies the fixed delayWords latency to every GPIO event of a
// stream, emitting a GpioEvent immediately before the data event at which
// the delay has fully elapsed. Delayer is stateful and meant to be fed one
// event at a time, so that the compiler's loop-unrolling pass can resume a
// Delayer mid-stream with a non-empty queue.
type Delayer struct {
	pending []pendingEdge
}

// NewDelayer returns an empty Delayer.
func NewDelayer() *Delayer {
	return &Delayer{}
}

// NewDelayerWithPending returns a Delayer whose FIFO is pre-loaded with the
// given edges, used to resume draining a queue left over at end-of-stream.
func NewDelayerWithPending(pending []PendingEdge) *Delayer {
	d := &Delayer{pending: make([]pendingEdge, len(pending))}
	for i, p := range pending {
		d.pending[i] = pendingEdge{pin: p.Pin, set: p.Set, residual: p.Residual}
	}
	return d
}

// PendingEdge is the exported snapshot of one queued GPIO edge, used by the
// compiler to match loop-unrolling state and to seed a resumed Delayer.
type PendingEdge struct {
	Pin      Pin
	Set      bool
	Residual int
}

// Pending returns a snapshot of the edges still queued, in FIFO order.
func (d *Delayer) Pending() []PendingEdge {
	if len(d.pending) == 0 {
		return nil
	}
	out := make([]PendingEdge, len(d.pending))
	for i, p := range d.pending {
		out[i] = PendingEdge{Pin: p.pin, Set: p.set, Residual: p.residual}
	}
	return out
}

// Feed processes one source event and returns zero or more events to append
// to the delayed output stream: at most one coalesced GpioEvent (if the
// FIFO drained entries on this data event) followed by the event itself
// for Data/LoopStart/Breakpoint events. GpioSetEvent/GpioClearEvent never
// appear directly in the output; they are only ever queued.
func (d *Delayer) Feed(e Event) []Event {
	switch ev := e.(type) {
	case GpioSetEvent:
		d.pending = append(d.pending, pendingEdge{pin: ev.Pin, set: true, residual: delayWords})
		return nil
	case GpioClearEvent:
		d.pending = append(d.pending, pendingEdge{pin: ev.Pin, set: false, residual: delayWords})
		return nil
	case DataEvent:
		var out []Event
		if release := d.tick(); release != nil {
			out = append(out, *release)
		}
		out = append(out, ev)
		return out
	default:
		// LoopStartEvent, BreakpointEvent: pass through verbatim, untouched by
		// the delay queue.
		return []Event{e}
	}
}

// tick decrements every queued edge's residual by one and, if any reached
// zero, removes and coalesces them into a single GpioEvent. Coalescing
// ORs the set/clear masks of every edge that became due and applies
// last-write-wins per pin using the FIFO insertion order.
func (d *Delayer) tick() *GpioEvent {
	if len(d.pending) == 0 {
		return nil
	}
	var ready, remaining []pendingEdge
	for _, p := range d.pending {
		p.residual--
		if p.residual <= 0 {
			ready = append(ready, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	d.pending = remaining
	if len(ready) == 0 {
		return nil
	}
	return coalesce(ready)
}

// coalesce combines a set of simultaneously-due edges into one GpioEvent,
// applying last-write-wins per pin in insertion order.
func coalesce(edges []pendingEdge) *GpioEvent {
	state := map[Pin]bool{}
	order := make([]Pin, 0, len(edges))
	for _, e := range edges {
		if _, seen := state[e.pin]; !seen {
			order = append(order, e.pin)
		}
		state[e.pin] = e.set
	}
	var g GpioEvent
	for _, pin := range order {
		bit := uint32(1) << uint(pin)
		if state[pin] {
			g.SetMask |= bit
		} else {
			g.ClearMask |= bit
		}
	}
	return &g
}

// Delay runs a fresh Delayer over the whole stream and returns the delayed
// event sequence. Any edges still queued at end-of-stream are dropped from
// the result and must be retrieved by the caller via a separate Delayer if
// it needs to know about them (the compiler's tail-unrolling pass does
// exactly this instead of calling Delay).
func Delay(events []Event) []Event {
	d := NewDelayer()
	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, d.Feed(e)...)
	}
	return out
}
