// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

import (
	"os"
	"reflect"
	"sync"
	"syscall"
	"unsafe"
)

// pageSize is the mmap granularity on Linux/ARM.
const pageSize = 4096

// region is a memory-mapped view of one peripheral register block, rounded
// to a 4Kb page and offset back down to the exact base the caller asked
// for.
type region struct {
	mapped []byte // the full page(s) returned by mmap; unmapped on Close.
	offset int    // byte offset of the requested base within mapped.
}

// uint32s returns the mapped window as a []uint32, the native width of
// every register in this address space.
func (r *region) uint32s() []uint32 {
	b := r.mapped[r.offset:]
	header := *(*reflect.SliceHeader)(unsafe.Pointer(&b))
	header.Len /= 4
	header.Cap /= 4
	return *(*[]uint32)(unsafe.Pointer(&header))
}

// Close unmaps the region. The kernel reclaims it on process exit
// regardless, so this is a courtesy rather than a hard requirement.
func (r *region) Close() error {
	return syscall.Munmap(r.mapped)
}

var (
	devMemMu  sync.Mutex
	devMem    *os.File
	devMemErr error
)

// openDevMem opens /dev/mem once and caches the handle for the life of the
// process; mapping additional peripheral windows only needs the fd, not a
// fresh open.
func openDevMem() (*os.File, error) {
	devMemMu.Lock()
	defer devMemMu.Unlock()
	if devMem == nil && devMemErr == nil {
		devMem, devMemErr = os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	}
	return devMem, devMemErr
}

// mapPeripheral maps size bytes of physical memory starting at phys,
// requiring root (or CAP_SYS_RAWIO) since it goes through /dev/mem rather
// than the restricted /dev/gpiomem window.
func mapPeripheral(phys uint64, size int) (*region, error) {
	f, err := openDevMem()
	if err != nil {
		return nil, fmtErr("opening /dev/mem: %v", err)
	}
	offset := int(phys & (pageSize - 1))
	aligned := phys &^ (pageSize - 1)
	length := (size + offset + pageSize - 1) &^ (pageSize - 1)
	b, err := syscall.Mmap(int(f.Fd()), int64(aligned), length, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmtErr("mapping 0x%x (%d bytes): %v", phys, size, err)
	}
	return &region{mapped: b, offset: offset}, nil
}
