package chainmonitor

import (
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/sourcifyeth/chain-monitor/util"
)

// DefaultOptions follows ethmonitor.DefaultOptions' convention of a
// package-level defaults var callers copy and override field-by-field.
var DefaultOptions = Options{
	Logger:                  slog.New(slog.NewTextHandler(io.Discard, nil)),
	Alerter:                 util.NoopAlerter(),
	BlockPauseFactor:        1.1,
	BlockPauseUpperLimit:    30000 * time.Millisecond,
	BlockPauseLowerLimit:    500 * time.Millisecond,
	ProviderTimeout:         3000 * time.Millisecond,
	GetBytecodeRetryPause:   5000 * time.Millisecond,
	GetBlockPause:           10000 * time.Millisecond,
	InitialGetBytecodeTries: 3,
	MaxConcurrentBytecodeTasks: 32,
}

// Options holds a ChainMonitor's runtime tunables. All are read once at
// construction.
type Options struct {
	// Logger used to log warnings, errors and debug info.
	Logger *slog.Logger

	// Alerter used for paging-worthy conditions (e.g. CantStart).
	Alerter util.Alerter

	// BLOCK_PAUSE_FACTOR: multiplicative pacing step, must be > 1.
	BlockPauseFactor float64

	// BLOCK_PAUSE_UPPER_LIMIT: pacing ceiling.
	BlockPauseUpperLimit time.Duration

	// BLOCK_PAUSE_LOWER_LIMIT: pacing floor.
	BlockPauseLowerLimit time.Duration

	// PROVIDER_TIMEOUT: advisory per-RPC-call timeout.
	ProviderTimeout time.Duration

	// GET_BYTECODE_RETRY_PAUSE: delay between bytecode retries.
	GetBytecodeRetryPause time.Duration

	// GET_BLOCK_PAUSE: initial polling interval.
	GetBlockPause time.Duration

	// INITIAL_GET_BYTECODE_TRIES: retry budget per address.
	InitialGetBytecodeTries int

	// MONITOR_START_<chainId>: optional explicit start block. nil means
	// "probe the current head".
	StartBlockNumber *big.Int

	// MaxConcurrentBytecodeTasks bounds how many bytecode tasks may be
	// in flight at once per chain, trading unbounded fan-out for a fixed
	// worst-case memory and RPC-concurrency footprint.
	MaxConcurrentBytecodeTasks int
}

// LoadOptionsFromEnv overlays the named environment options on top of
// DefaultOptions. chainID selects the per-chain MONITOR_START_<chainId>
// override.
func LoadOptionsFromEnv(env *util.Env, chainID *big.Int) Options {
	opts := DefaultOptions

	opts.BlockPauseFactor = env.Float64("BLOCK_PAUSE_FACTOR", opts.BlockPauseFactor)
	opts.BlockPauseUpperLimit = env.Duration("BLOCK_PAUSE_UPPER_LIMIT", opts.BlockPauseUpperLimit.Milliseconds())
	opts.BlockPauseLowerLimit = env.Duration("BLOCK_PAUSE_LOWER_LIMIT", opts.BlockPauseLowerLimit.Milliseconds())
	opts.ProviderTimeout = env.Duration("PROVIDER_TIMEOUT", opts.ProviderTimeout.Milliseconds())
	opts.GetBytecodeRetryPause = env.Duration("GET_BYTECODE_RETRY_PAUSE", opts.GetBytecodeRetryPause.Milliseconds())
	opts.GetBlockPause = env.Duration("GET_BLOCK_PAUSE", opts.GetBlockPause.Milliseconds())
	opts.InitialGetBytecodeTries = env.Int("INITIAL_GET_BYTECODE_TRIES", opts.InitialGetBytecodeTries)

	if chainID != nil {
		if v, ok := env.String("MONITOR_START_" + chainID.String()); ok {
			if n, ok := new(big.Int).SetString(v, 10); ok {
				opts.StartBlockNumber = n
			}
		}
	}

	return opts
}
