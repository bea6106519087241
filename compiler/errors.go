// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package compiler

import "errors"

// ErrNoData is returned by Compile when the source Bitstream has no Data
// events at all, or carries a LoopStartEvent with no Data event after it.
var ErrNoData = errors.New("compiler: bitstream contains no data")

// ErrSubWordGpioDelay is returned by Compile when a GPIO event's delayed
// release would fall immediately after a Data event narrower than the
// stream's WordSize. The Delayer's residual countdown is only defined in
// whole words, so the cycle such a release would land on is ambiguous;
// rather than guess, Compile rejects the input.
var ErrSubWordGpioDelay = errors.New("compiler: gpio event delayed past a sub-word data event")
