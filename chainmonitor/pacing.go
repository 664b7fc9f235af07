package chainmonitor

import (
	"time"

	"github.com/goware/calc"
)

// adaptBlockPause implements the multiplicative pacing controller: on
// "increase" the poll interval grows by BlockPauseFactor, on "decrease" it
// shrinks by the same factor, clamped to [BlockPauseLowerLimit,
// BlockPauseUpperLimit].
func (m *ChainMonitor) adaptBlockPause(direction string) {
	cur := time.Duration(m.pollIntervalMs.Load()) * time.Millisecond

	var next time.Duration
	switch direction {
	case "increase":
		next = time.Duration(float64(cur) * m.options.BlockPauseFactor)
	case "decrease":
		next = time.Duration(float64(cur) / m.options.BlockPauseFactor)
	default:
		next = cur
	}

	next = calc.Max(m.options.BlockPauseLowerLimit, calc.Min(m.options.BlockPauseUpperLimit, next))
	m.pollIntervalMs.Store(int64(next / time.Millisecond))
}

func (m *ChainMonitor) currentPause() time.Duration {
	return time.Duration(m.pollIntervalMs.Load()) * time.Millisecond
}
