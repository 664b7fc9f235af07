package chainmonitor

import "time"

// scheduleAfter is the shared time.AfterFunc wrapper used by both the block
// loop and the bytecode retry machine.
func (m *ChainMonitor) scheduleAfter(delay time.Duration, fn func()) {
	time.AfterFunc(delay, fn)
}
