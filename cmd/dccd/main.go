// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command dccd is the composition root wiring the bitstream compiler and
// queue against real BCM2835 hardware: it opens the PWM/DMA/GPIO/Clock
// register handles, starts a scheduler.Driver, and serves a small
// health-check endpoint reporting the Driver's status. Building and
// encoding the actual DCC packet bitstreams is the job of an external
// collaborator this binary does not implement; dccd itself never calls
// Driver.Queue, so the Driver it starts (the driver variable in main)
// holds no traffic and only backs the health-check endpoint.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"modelrail.io/x/dcc/bitstream"
	"modelrail.io/x/dcc/queue"
	"modelrail.io/x/dcc/rpi"
	"modelrail.io/x/dcc/scheduler"
)

var logger = log.New(os.Stderr, "dccd: ", log.LstdFlags)

func main() {
	dmaChannel := flag.Int("dma-channel", 5, "BCM2835 DMA channel to drive the signal with (0-6 support 2D transfers)")
	wordDuration := flag.Duration("word-duration", 14500*time.Nanosecond, "PWM clock period: the duration of one serialized bit, matching the bitstreams' bit duration")
	addr := flag.String("http", ":8080", "address to serve the health-check endpoint on")
	flag.Parse()

	pwm, dma, gpio, clock, err := openHardware(*dmaChannel)
	if err != nil {
		logger.Fatalf("opening peripherals: %v", err)
	}
	defer pwm.Close()
	defer dma.Close()
	defer gpio.Close()
	defer clock.Close()

	configureHardware(pwm, gpio, clock, *wordDuration)

	committer := queue.NewCommitter(queue.DestinationsFromHandles(pwm, gpio))
	driver := scheduler.NewDriver(committer, dma, pwm, powerOnBitstream(), powerOffBitstream())
	defer driver.Shutdown(gpio)

	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(driver.Snapshot())
	})
	logger.Printf("serving health checks on %s", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Fatalf("http: %v", err)
	}
}

// openHardware maps the four peripheral register blocks dccd needs.
func openHardware(dmaChannel int) (*rpi.PWM, *rpi.DMA, *rpi.GPIO, *rpi.Clock, error) {
	pwm, err := rpi.OpenPWM()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	dma, err := rpi.OpenDMA(dmaChannel)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	gpio, err := rpi.OpenGPIO()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	clock, err := rpi.OpenClock(rpi.PWMClockID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return pwm, dma, gpio, clock, nil
}

// configureHardware puts the PWM clock and serializer into the state the
// compiled control-block graph expects, and the RailCom/Debug/DCC pins
// into their output functions.
func configureHardware(pwm *rpi.PWM, gpio *rpi.GPIO, clock *rpi.Clock, wordDuration time.Duration) {
	gpio.SetFunction(rpi.PinDCC, rpi.Alt5)
	gpio.SetFunction(rpi.PinRailCom, rpi.Output)
	gpio.SetFunction(rpi.PinDebug, rpi.Output)
	gpio.Clear(rpi.PinRailCom)
	gpio.Clear(rpi.PinDebug)

	clock.SetWordDuration(wordDuration)
	pwm.ConfigureSerializer()
}

// powerOnBitstream and powerOffBitstream are the fixed, non-repeating
// bitstreams the Driver inserts around non-repeating user traffic
// (spec.md §4.5, §2): a single idle word with no GPIO activity, since the
// actual DCC power-up/down sequencing on the layout side is driven by the
// external booster hardware this process's GPIO pins enable, not by the
// waveform itself.
func powerOnBitstream() *bitstream.Bitstream {
	b := bitstream.New(14.5, 32)
	b.Append(bitstream.DataEvent{Word: 0, Size: 32})
	return b
}

func powerOffBitstream() *bitstream.Bitstream {
	b := bitstream.New(14.5, 32)
	b.Append(bitstream.DataEvent{Word: 0, Size: 32})
	return b
}
