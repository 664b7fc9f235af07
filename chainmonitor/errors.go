package chainmonitor

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when called on a ChainMonitor
	// that is already Starting or Running.
	ErrAlreadyRunning = errors.New("chainmonitor: already running")

	// ErrNoProvider marks the invariant violation of processBlock running
	// with no retained provider.
	ErrNoProvider = errors.New("chainmonitor: no rpc provider bound")

	// ErrNoReachableEndpoint is returned (and carried in the
	// Monitor.Error.CantStart event) when every configured RPC endpoint
	// failed its probe.
	ErrNoReachableEndpoint = errors.New("chainmonitor: no reachable rpc endpoint")
)
