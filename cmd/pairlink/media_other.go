//go:build !linux

package main

import (
	"fmt"

	"github.com/pion/mediadevices"
)

// newCodecSelector reports capture as unavailable on non-Linux platforms.
// Camera/mic capture via pion/mediadevices needs platform drivers that are
// only wired up for Linux here; sessions still work receive-only.
func newCodecSelector() (*mediadevices.CodecSelector, error) {
	return nil, fmt.Errorf("local capture is not supported on this platform")
}
