package chainmonitor

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goware/channel"

	"github.com/sourcifyeth/chain-monitor/util"
)

// Signal is one of the two upward lifecycle signals a ChainMonitor raises,
// re-emitted unchanged by MonitorSupervisor.
type Signal struct {
	Name    string
	ChainID *big.Int
	Address common.Address
}

// newSignalChannel gives each ChainMonitor an unbounded, non-blocking fan-out
// channel for its upward signals -- the same primitive ethmonitor.go uses to
// fan blocks out to subscribers, reused here for the much smaller signal
// stream: a slow or absent consumer must never block block processing.
func newSignalChannel(log *slog.Logger, alert util.Alerter, label string) channel.Channel[Signal] {
	return channel.NewUnboundedChan[Signal](10, 2000, channel.Options{
		Logger:  log,
		Alerter: alert,
		Label:   label,
	})
}
