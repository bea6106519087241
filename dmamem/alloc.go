// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dmamem

import (
	"fmt"
	"os"
	"reflect"
	"sync"
	"syscall"
	"unsafe"
)

// pageSize is the mailbox allocator's and mmap's common granularity.
const pageSize = 4096

// Region is one mailbox-backed allocation: uncached physical memory, locked
// in place for the life of the Region and mapped into this process so the
// committer can write the relocated control-block graph and data pool
// directly into it.
type Region struct {
	handle     uint32
	busAddress uint32
	size       int
	mapped     []byte
}

// Pointer is the process-visible slice backing the allocation. Writes to it
// are observed by the DMA engine without a cache flush, since the
// allocation was made in the direct/uncached alias.
func (r *Region) Pointer() []byte { return r.mapped }

// BusAddress is the address DMA control blocks must use to reference bytes
// in this Region (source, destination or next-control-block links).
func (r *Region) BusAddress() uint32 { return r.busAddress }

// Uint32s is Pointer reinterpreted as the native register/data-pool word
// width, matching the layout the compiler emits.
func (r *Region) Uint32s() []uint32 {
	b := r.mapped
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&b))
	header.Len /= 4
	header.Cap /= 4
	return *(*[]uint32)(unsafe.Pointer(&header))
}

// Close unlocks and releases the mailbox allocation and unmaps it from this
// process. The Region must not be used afterwards.
func (r *Region) Close() error {
	var firstErr error
	if r.mapped != nil {
		if err := syscall.Munmap(r.mapped); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if _, err := mailboxTx32(mbUnlockMemory, r.handle); err != nil && firstErr == nil {
		firstErr = err
	}
	if _, err := mailboxTx32(mbReleaseMemory, r.handle); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

var (
	devMemMu  sync.Mutex
	devMem    *os.File
	devMemErr error
)

// openDevMem opens /dev/mem once and caches the handle, the same lazy-open
// pattern rpi uses for its own peripheral mappings.
func openDevMem() (*os.File, error) {
	devMemMu.Lock()
	defer devMemMu.Unlock()
	if devMem == nil && devMemErr == nil {
		devMem, devMemErr = os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	}
	return devMem, devMemErr
}

// Alloc reserves size bytes of uncached physical memory through the
// VideoCore mailbox, locks it to obtain a stable bus address, and maps that
// same physical memory into this process via /dev/mem so it can be written
// directly. size is rounded up to the page size, matching the GPU
// allocator's own granularity.
func Alloc(size int) (*Region, error) {
	if err := openMailbox(); err != nil {
		return nil, fmt.Errorf("dmamem: %v", err)
	}
	aligned := (size + pageSize - 1) &^ (pageSize - 1)
	handle, err := mailboxTx32(mbAllocateMemory, uint32(aligned), pageSize, flagDirect)
	if err != nil {
		return nil, fmt.Errorf("dmamem: allocate: %v", err)
	}
	if handle == 0 {
		return nil, fmt.Errorf("dmamem: allocate: out of memory")
	}
	bus, err := mailboxTx32(mbLockMemory, handle)
	if err != nil {
		mailboxTx32(mbReleaseMemory, handle)
		return nil, fmt.Errorf("dmamem: lock: %v", err)
	}

	phys := uint64(bus &^ 0xC0000000)
	mapped, err := mapPhysical(phys, aligned)
	if err != nil {
		mailboxTx32(mbUnlockMemory, handle)
		mailboxTx32(mbReleaseMemory, handle)
		return nil, fmt.Errorf("dmamem: mmap: %v", err)
	}

	return &Region{handle: handle, busAddress: bus, size: aligned, mapped: mapped}, nil
}

// NewRegionForTesting builds a Region backed by plain process memory
// instead of a mailbox allocation, for tests of code that only needs to
// read and write a Region's contents without real DMA-visible memory.
func NewRegionForTesting(size int, busAddress uint32) *Region {
	return &Region{busAddress: busAddress, size: size, mapped: make([]byte, size)}
}

// mapPhysical maps size bytes of physical memory through /dev/mem, the
// same technique rpi.mapPeripheral uses for register windows, applied here
// to GPU-owned RAM instead.
func mapPhysical(phys uint64, size int) ([]byte, error) {
	f, err := openDevMem()
	if err != nil {
		return nil, err
	}
	offset := int(phys & (pageSize - 1))
	aligned := phys &^ (pageSize - 1)
	length := (size + offset + pageSize - 1) &^ (pageSize - 1)
	b, err := syscall.Mmap(int(f.Fd()), int64(aligned), length, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return b[offset : offset+size], nil
}
