// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package scheduler owns the DMA-driven bitstream queue end to end: it
// compiles and commits bitstreams handed to it, stitches each onto the
// tail of whatever is already playing, kicks the DMA engine the first
// time, and watches each committed bitstream's run-state sentinel to fire
// completion callbacks and trim the queue. It also runs the watchdog that
// clears PWM/DMA error flags.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"modelrail.io/x/dcc/bitstream"
	"modelrail.io/x/dcc/compiler"
	"modelrail.io/x/dcc/queue"
	"modelrail.io/x/dcc/rpi"
)

// watcherInterval is how often a newly queued bitstream's sentinel is
// polled; the design calls this out as a fixed, not configurable, value.
const watcherInterval = time.Millisecond

// watchdogInterval is how often PWM/DMA error flags are observed and
// cleared.
const watchdogInterval = 10 * time.Millisecond

// committer is the subset of *queue.Committer the Driver needs, broken out
// so tests can substitute a fake that skips the real mailbox allocation.
type committer interface {
	Commit(p *compiler.Program) (*queue.QueuedBitstream, error)
}

// entry is one bookkeeping record the Driver keeps per queued bitstream.
type entry struct {
	qb           *queue.QueuedBitstream
	duration     time.Duration
	completion   func(error)
	isTerminator bool
	repeating    bool

	enteredRepeatAt time.Time
	removed         bool
}

// Driver is the single-threaded cooperative scheduler described for the
// core's top-level component: every mutation of its queue and of the DMA
// registers happens on the goroutine draining work, so callers never race
// each other or a watcher.
type Driver struct {
	committer committer
	dma       *rpi.DMA
	pwm       *rpi.PWM

	powerOn  *bitstream.Bitstream
	powerOff *bitstream.Bitstream

	work chan func()

	mu              sync.Mutex // guards isRunning only; read from Shutdown/watchers outside the work goroutine
	isRunning       bool
	requiresPowerOn bool

	entries []*entry

	watcherWG sync.WaitGroup
	done      chan struct{}
}

// NewDriver starts the Driver's work goroutine and watchdog. powerOn and
// powerOff are the fixed, non-repeating bitstreams the design inserts
// around user traffic; each is compiled and committed afresh every time it
// is queued.
func NewDriver(c *queue.Committer, dma *rpi.DMA, pwm *rpi.PWM, powerOn, powerOff *bitstream.Bitstream) *Driver {
	return newDriver(c, dma, pwm, powerOn, powerOff)
}

// newDriver is NewDriver's implementation, taking the narrower committer
// interface so tests can substitute a fake that skips mailbox allocation.
func newDriver(c committer, dma *rpi.DMA, pwm *rpi.PWM, powerOn, powerOff *bitstream.Bitstream) *Driver {
	d := &Driver{
		committer: c,
		dma:       dma,
		pwm:       pwm,
		powerOn:   powerOn,
		powerOff:  powerOff,
		work:      make(chan func()),
		isRunning: true,
		done:      make(chan struct{}),
	}
	go d.run()
	go d.watchdog()
	return d
}

// run drains d.work until Shutdown closes d.done; every queue mutation and
// every watcher callback is executed here, one at a time.
func (d *Driver) run() {
	for {
		select {
		case fn := <-d.work:
			fn()
		case <-d.done:
			return
		}
	}
}

// post hands fn to the work goroutine and blocks until it has been
// accepted (not necessarily executed); it is safe to call from any
// goroutine, including from inside a watcher.
func (d *Driver) post(fn func()) {
	select {
	case d.work <- fn:
	case <-d.done:
	}
}

func (d *Driver) running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRunning
}

// Queue compiles and commits bitstream b, links it onto the tail of
// whatever is already playing, starts the DMA engine if it was idle, and
// arranges for completion to be invoked once b has played to completion at
// least once. If requiresPowerOn is set, the fixed power-on bitstream is
// queued first; if !repeating, the fixed power-off bitstream is queued
// right after b and requiresPowerOn is set for next time.
func (d *Driver) Queue(b *bitstream.Bitstream, repeating bool, completion func(error)) error {
	if !d.running() {
		return fmt.Errorf("scheduler: queue: driver is shut down")
	}
	errCh := make(chan error, 1)
	d.post(func() {
		errCh <- d.queueLocked(b, repeating, completion)
	})
	select {
	case err := <-errCh:
		return err
	case <-d.done:
		return fmt.Errorf("scheduler: queue: driver is shut down")
	}
}

// DriverStatus is a read-only snapshot of a Driver's state, for health
// reporting and for tests that need to assert on Driver state without
// reaching into its unexported fields.
type DriverStatus struct {
	// QueueDepth is the number of QueuedBitstream entries currently
	// tracked, including any power-on/power-off terminators.
	QueueDepth int
	// RequiresPowerOn reports whether the next Queue call will prepend the
	// fixed power-on bitstream.
	RequiresPowerOn bool
	// ActiveBusAddress is the bus address of the oldest tracked entry
	// (the one the DMA engine is presumed to be at or past), or 0 if the
	// queue is empty.
	ActiveBusAddress uint32
}

// Snapshot returns the Driver's current status. It is safe to call from
// any goroutine; the read runs on the work goroutine like every other
// queue mutation, so it never observes a torn intermediate state.
func (d *Driver) Snapshot() DriverStatus {
	if !d.running() {
		return DriverStatus{}
	}
	out := make(chan DriverStatus, 1)
	d.post(func() {
		s := DriverStatus{QueueDepth: len(d.entries), RequiresPowerOn: d.requiresPowerOn}
		if len(d.entries) > 0 {
			s.ActiveBusAddress = d.entries[0].qb.BusAddress()
		}
		out <- s
	})
	select {
	case s := <-out:
		return s
	case <-d.done:
		return DriverStatus{}
	}
}

func (d *Driver) queueLocked(b *bitstream.Bitstream, repeating bool, completion func(error)) error {
	if d.requiresPowerOn {
		if err := d.appendLocked(d.powerOn, false, nil, false); err != nil {
			return err
		}
		d.requiresPowerOn = false
	}
	if err := d.appendLocked(b, repeating, completion, !repeating); err != nil {
		return err
	}
	if !repeating {
		if err := d.appendLocked(d.powerOff, false, nil, true); err != nil {
			return err
		}
		d.requiresPowerOn = true
	}
	return nil
}

// appendLocked compiles and commits one bitstream, links it onto the
// current tail (or starts the DMA engine directly if the queue was
// empty), and registers a watcher for it. Must run on the work goroutine.
func (d *Driver) appendLocked(b *bitstream.Bitstream, repeating bool, completion func(error), isTerminator bool) error {
	program, err := compiler.Compile(b)
	if err != nil {
		return fmt.Errorf("scheduler: compile: %v", err)
	}
	qb, err := d.committer.Commit(program)
	if err != nil {
		return fmt.Errorf("scheduler: commit: %v", err)
	}

	e := &entry{qb: qb, duration: time.Duration(b.Duration() * float32(time.Microsecond)), completion: completion, isTerminator: isTerminator, repeating: repeating}

	if len(d.entries) == 0 {
		d.dma.Start(qb.BusAddress())
	} else {
		tail := d.entries[len(d.entries)-1]
		tail.qb.PatchNext(tail.qb.TransferOffsets(), qb)
	}
	d.entries = append(d.entries, e)
	d.watcherWG.Add(1)
	go d.watch(e)
	return nil
}

// watch polls e's sentinel at watcherInterval and posts the observed
// transitions back onto the work goroutine, until the Driver shuts down or
// e is retired.
func (d *Driver) watch(e *entry) {
	defer d.watcherWG.Done()
	ticker := time.NewTicker(watcherInterval)
	defer ticker.Stop()
	sawTransmitting := false
	for d.running() {
		<-ticker.C
		if e.qb.IsTransmitting() && !sawTransmitting {
			sawTransmitting = true
			d.post(func() { d.onStarted(e) })
		}
		if e.qb.IsRepeating() {
			// enteredRepeatAt is exclusively owned by this goroutine; no
			// other watcher or the work goroutine ever touches it.
			if e.enteredRepeatAt.IsZero() {
				e.enteredRepeatAt = now()
			} else if now().Sub(e.enteredRepeatAt) >= e.duration {
				d.post(func() { d.onCompleted(e) })
				return
			}
		}
	}
}

// now exists only so a future resumable-clock need (tests, replay)
// has one call site to intercept; today it is simply time.Now.
func now() time.Time { return time.Now() }

// onStarted removes the entry immediately before e from the queue: its
// sentinel flipping to 1 means the DMA engine has moved past it.
func (d *Driver) onStarted(e *entry) {
	for i, cur := range d.entries {
		if cur == e {
			if i > 0 {
				d.retire(d.entries[i-1])
			}
			return
		}
	}
}

// onCompleted invokes e's completion callback on its own goroutine (so it
// cannot re-enter the Driver's critical section) and, if e is a
// terminator, retires it.
func (d *Driver) onCompleted(e *entry) {
	if e.completion != nil {
		completion := e.completion
		go completion(nil)
	}
	if e.isTerminator {
		d.retire(e)
	}
}

// retire drops e from d.entries and releases its memory. Safe only from
// the work goroutine.
func (d *Driver) retire(e *entry) {
	if e.removed {
		return
	}
	e.removed = true
	for i, cur := range d.entries {
		if cur == e {
			d.entries = append(d.entries[:i], d.entries[i+1:]...)
			break
		}
	}
	e.qb.Close()
}

// Stop queues the fixed power-off bitstream with completion, powering the
// track down after whatever is currently repeating finishes its present
// cycle. If the Driver is already powered off, completion fires
// immediately.
func (d *Driver) Stop(completion func(error)) {
	d.post(func() {
		if d.requiresPowerOn {
			if completion != nil {
				go completion(nil)
			}
			return
		}
		if err := d.appendLocked(d.powerOff, false, completion, true); err != nil {
			if completion != nil {
				go completion(err)
			}
			return
		}
		d.requiresPowerOn = true
	})
}

// Shutdown waits for every outstanding watcher to drain, resets the DMA
// channel, clears the queue and releases every entry's memory, and resets
// the GPIO pins to their quiescent state. The PWM serializer is not
// disabled; it keeps its configuration. After Shutdown returns, the
// Driver must not be reused.
func (d *Driver) Shutdown(gpio *rpi.GPIO) {
	d.mu.Lock()
	d.isRunning = false
	d.mu.Unlock()

	close(d.done)
	d.watcherWG.Wait()

	d.dma.Reset()
	for _, e := range d.entries {
		e.qb.Close()
	}
	d.entries = nil

	gpio.Clear(rpi.PinDCC)
	gpio.Clear(rpi.PinRailCom)
	gpio.Clear(rpi.PinDebug)
}

// watchdog observes and clears PWM and DMA error flags every
// watchdogInterval, for as long as the Driver is running. Observed errors
// are never escalated: the DCC protocol is self-synchronizing on reset, so
// there is nothing a caller could usefully do with them beyond what the
// clear itself already accomplishes.
//
// The PWM bus-error flag is cleared unconditionally on every tick without
// being logged, matching behavior carried over unchanged from the source
// this design was distilled from, which notes it as always observed set.
// This is very likely a hardware-init quirk worth investigating rather
// than a real fault; clearing it is still correct either way.
func (d *Driver) watchdog() {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.pwm.ClearErrors()
			d.dma.ClearErrors()
		case <-d.done:
			return
		}
	}
}
