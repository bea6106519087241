// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scheduler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"modelrail.io/x/dcc/bitstream"
	"modelrail.io/x/dcc/compiler"
	"modelrail.io/x/dcc/dmamem"
	"modelrail.io/x/dcc/queue"
	"modelrail.io/x/dcc/rpi"
)

// fakeCommitter hands out QueuedBitstreams backed by plain process memory,
// one bus address apart, so Driver's sequencing can be exercised without a
// real mailbox allocation.
type fakeCommitter struct {
	mu   sync.Mutex
	next uint32
}

func (f *fakeCommitter) Commit(p *compiler.Program) (*queue.QueuedBitstream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next += 0x1000
	region := dmamem.NewRegionForTesting(len(p.Blocks)*rpi.DescriptorWords*4, 0xC0000000+f.next)
	return queue.NewQueuedBitstreamForTesting(region, len(p.Blocks), p.Breakpoints), nil
}

func oneWordBitstream() *bitstream.Bitstream {
	b := bitstream.New(0.001, 32)
	b.Append(bitstream.DataEvent{Word: 0xAAAAAAAA, Size: 32})
	return b
}

func newTestDriver() *Driver {
	c := &fakeCommitter{}
	dma := rpi.NewDMAForTesting(16)
	pwm := rpi.NewPWMForTesting(16)
	return newDriver(c, dma, pwm, oneWordBitstream(), oneWordBitstream())
}

func TestQueueStartsIdleDMA(t *testing.T) {
	d := newTestDriver()
	defer d.Shutdown(rpi.NewGPIOForTesting(64))

	done := make(chan error, 1)
	if err := d.Queue(oneWordBitstream(), true, func(err error) { done <- err }); err != nil {
		t.Fatalf("Queue() = %v", err)
	}
	if !d.dma.Active() {
		t.Error("DMA channel not started by first Queue()")
	}
	if len(d.entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (repeating queue needs no power-off)", len(d.entries))
	}
}

func TestSnapshotReportsQueueDepthAndActiveAddress(t *testing.T) {
	d := newTestDriver()
	defer d.Shutdown(rpi.NewGPIOForTesting(64))

	if got := d.Snapshot(); got.QueueDepth != 0 || got.ActiveBusAddress != 0 {
		t.Fatalf("Snapshot() on empty driver = %+v, want zero value", got)
	}
	if err := d.Queue(oneWordBitstream(), true, nil); err != nil {
		t.Fatalf("Queue() = %v", err)
	}
	got := d.Snapshot()
	if got.QueueDepth != 1 {
		t.Errorf("QueueDepth = %d, want 1", got.QueueDepth)
	}
	if got.ActiveBusAddress == 0 {
		t.Error("ActiveBusAddress = 0, want the queued entry's bus address")
	}
}

func TestQueueNonRepeatingAddsPowerOnAndOff(t *testing.T) {
	d := newTestDriver()
	defer d.Shutdown(rpi.NewGPIOForTesting(64))
	d.requiresPowerOn = true

	if err := d.Queue(oneWordBitstream(), false, nil); err != nil {
		t.Fatalf("Queue() = %v", err)
	}
	// power-on, the bitstream itself, power-off.
	if len(d.entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(d.entries))
	}
	if !d.requiresPowerOn {
		t.Error("requiresPowerOn should be reset to true after a non-repeating queue")
	}
}

func TestWatcherRetiresPredecessorOnTransmit(t *testing.T) {
	d := newTestDriver()
	defer d.Shutdown(rpi.NewGPIOForTesting(64))

	if err := d.Queue(oneWordBitstream(), true, nil); err != nil {
		t.Fatalf("Queue() = %v", err)
	}
	if err := d.Queue(oneWordBitstream(), true, nil); err != nil {
		t.Fatalf("Queue() = %v", err)
	}

	errCh := make(chan error, 1)
	d.post(func() {
		if len(d.entries) != 2 {
			errCh <- fmt.Errorf("len(entries) = %d, want 2 before the second starts", len(d.entries))
			return
		}
		errCh <- nil
	})
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}

	second := d.entries[1]
	// Simulate the DMA engine having reached the second bitstream's Start.
	second.qb.SentinelWordsForTesting()[0] = 1

	waitFor(t, func() bool {
		done := make(chan bool, 1)
		d.post(func() { done <- len(d.entries) == 1 })
		return <-done
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
