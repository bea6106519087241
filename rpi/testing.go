// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rpi

// NewDMAForTesting, NewPWMForTesting and NewGPIOForTesting back a handle
// with plain process memory instead of a real /dev/mem mapping, so
// packages that consume rpi's handles (queue, scheduler) can exercise
// their own logic without real hardware.

func NewDMAForTesting(words int) *DMA {
	return &DMA{r: &region{mapped: make([]byte, words*4)}}
}

func NewPWMForTesting(words int) *PWM {
	return &PWM{r: &region{mapped: make([]byte, words*4)}}
}

func NewGPIOForTesting(words int) *GPIO {
	return &GPIO{r: &region{mapped: make([]byte, words*4)}}
}
