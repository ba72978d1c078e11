//go:build !tinygo

package core

import "time"

// spin busy-waits on the monotonic clock (regular Go implementation)
func spin(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
