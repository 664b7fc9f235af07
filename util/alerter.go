package util

import (
	"context"
	"fmt"
	"sync"
)

// Alerter is a fire-and-forget sink for operator-facing alerts, separate from
// the structured per-block/per-address events published on the EventBus.
// ChainMonitor uses it to surface conditions worth paging on (a chain with
// no reachable RPC endpoint, a block tick running with no provider bound).
type Alerter interface {
	Alert(ctx context.Context, format string, v ...interface{})
}

func NoopAlerter() Alerter {
	return noopAlerter{}
}

type noopAlerter struct{}

func (noopAlerter) Alert(ctx context.Context, format string, v ...interface{}) {}

// RecordingAlerter captures alerts in-process. Useful in tests that assert a
// fatal condition was raised without standing up a real paging backend.
type RecordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func NewRecordingAlerter() *RecordingAlerter {
	return &RecordingAlerter{}
}

func (a *RecordingAlerter) Alert(ctx context.Context, format string, v ...interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, fmt.Sprintf(format, v...))
}

func (a *RecordingAlerter) Alerts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.alerts))
	copy(out, a.alerts)
	return out
}
