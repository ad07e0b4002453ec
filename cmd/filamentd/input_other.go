//go:build !linux

package main

import "os"

// startInputReaders starts one blocking reader per device.
func startInputReaders(files []*os.File, events chan<- deviceEvent, readErr chan<- error) {
	for i, f := range files {
		go readInputEvents(f, i, events, readErr)
	}
}
