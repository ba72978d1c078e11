//go:build tinygo

package core

import (
	"time"

	"tinygo.org/x/drivers/delay"
)

// spin busy-waits for d using cycle counting on the target CPU
func spin(d time.Duration) {
	delay.Sleep(d)
}
