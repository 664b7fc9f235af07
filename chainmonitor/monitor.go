// Package chainmonitor implements the per-chain monitoring engine: the
// block-polling loop with adaptive pacing, contract-creation detection, the
// bytecode-retrieval retry machine, and the handoff to a source fetcher.
//
// Modeled on github.com/0xsequence/ethkit's ethmonitor.Monitor -- same
// Options-struct-with-defaults construction, same slog/superr/breaker
// ambient stack, same "running flag gates every reschedule" cooperative
// scheduling discipline -- but built around a narrower state machine
// (Idle/Starting/Running/Stopping/Stopped, no reorg handling, no block
// retention cache: this core's job ends at "found a new contract").
package chainmonitor

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goware/breaker"
	"github.com/goware/channel"
	"github.com/goware/superr"

	"github.com/sourcifyeth/chain-monitor/chainregistry"
	"github.com/sourcifyeth/chain-monitor/eventbus"
	"github.com/sourcifyeth/chain-monitor/metadata"
	"github.com/sourcifyeth/chain-monitor/rpcprovider"
	"github.com/sourcifyeth/chain-monitor/util"
)

// Dialer dials a single RPC endpoint. Overridable in Config for tests.
type Dialer func(ctx context.Context, url string) (rpcprovider.Provider, error)

// Config holds a ChainMonitor's construction inputs.
type Config struct {
	Descriptor chainregistry.ChainDescriptor

	SourceFetcher        SourceFetcher
	VerificationService  VerificationService
	RepositoryService    RepositoryService

	// Decoder/AddressFactory default to metadata.NewDecoder()/NewAddressFactory()
	// when nil.
	Decoder        metadata.Decoder
	AddressFactory metadata.AddressFactory

	// EventBus defaults to eventbus.NewNoop() when nil.
	EventBus eventbus.Bus

	Options Options

	// Dial defaults to rpcprovider.Dial when nil. Override in tests to
	// inject a fake provider without a network endpoint.
	Dial Dialer
}

// ChainMonitor drives one chain's polling loop.
type ChainMonitor struct {
	descriptor chainregistry.ChainDescriptor

	sourceFetcher SourceFetcher
	verification  VerificationService
	repository    RepositoryService
	decoder       metadata.Decoder
	addrFactory   metadata.AddressFactory
	eventBus      eventbus.Bus

	options Options
	log     *slog.Logger
	alert   util.Alerter

	dial Dialer

	mu       sync.Mutex
	state    State
	epoch    int64
	provider rpcprovider.Provider

	nextBlockMu     sync.Mutex
	nextBlockNumber *big.Int

	pollIntervalMs atomic.Int64

	bytecodeSem chan struct{}

	signalCh channel.Channel[Signal]
}

// New validates cfg and returns an idle ChainMonitor.
func New(cfg Config) (*ChainMonitor, error) {
	if cfg.Descriptor.ChainID == nil {
		return nil, fmt.Errorf("chainmonitor: descriptor.ChainID is required")
	}
	if len(cfg.Descriptor.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("chainmonitor: descriptor.RPCEndpoints is empty")
	}
	if cfg.SourceFetcher == nil || cfg.VerificationService == nil || cfg.RepositoryService == nil {
		return nil, fmt.Errorf("chainmonitor: SourceFetcher, VerificationService and RepositoryService are required")
	}

	opts := cfg.Options
	if opts == (Options{}) {
		opts = DefaultOptions
	}
	// A caller supplying a partially-populated Options (any single field set)
	// skips the whole-struct fallback above; default each pacing/timeout
	// field individually so an unset one never silently clamps pacing to
	// [0,0] instead of falling back to DefaultOptions.
	if opts.BlockPauseFactor == 0 {
		opts.BlockPauseFactor = DefaultOptions.BlockPauseFactor
	}
	if opts.BlockPauseUpperLimit <= 0 {
		opts.BlockPauseUpperLimit = DefaultOptions.BlockPauseUpperLimit
	}
	if opts.BlockPauseLowerLimit <= 0 {
		opts.BlockPauseLowerLimit = DefaultOptions.BlockPauseLowerLimit
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultOptions.ProviderTimeout
	}
	if opts.GetBytecodeRetryPause <= 0 {
		opts.GetBytecodeRetryPause = DefaultOptions.GetBytecodeRetryPause
	}
	if opts.GetBlockPause <= 0 {
		opts.GetBlockPause = DefaultOptions.GetBlockPause
	}
	if opts.BlockPauseFactor <= 1 {
		return nil, fmt.Errorf("chainmonitor: BlockPauseFactor must be > 1, got %f", opts.BlockPauseFactor)
	}
	if opts.InitialGetBytecodeTries < 1 {
		return nil, fmt.Errorf("chainmonitor: InitialGetBytecodeTries must be >= 1")
	}
	if opts.Logger == nil {
		opts.Logger = DefaultOptions.Logger
	}
	if opts.Alerter == nil {
		opts.Alerter = util.NoopAlerter()
	}
	if opts.MaxConcurrentBytecodeTasks <= 0 {
		opts.MaxConcurrentBytecodeTasks = DefaultOptions.MaxConcurrentBytecodeTasks
	}

	decoder := cfg.Decoder
	if decoder == nil {
		decoder = metadata.NewDecoder()
	}
	addrFactory := cfg.AddressFactory
	if addrFactory == nil {
		addrFactory = metadata.NewAddressFactory()
	}
	bus := cfg.EventBus
	if bus == nil {
		bus = eventbus.NewNoop()
	}
	dial := cfg.Dial
	if dial == nil {
		dial = rpcprovider.Dial
	}

	m := &ChainMonitor{
		descriptor:    cfg.Descriptor,
		sourceFetcher: cfg.SourceFetcher,
		verification:  cfg.VerificationService,
		repository:    cfg.RepositoryService,
		decoder:       decoder,
		addrFactory:   addrFactory,
		eventBus:      bus,
		options:       opts,
		log:           opts.Logger,
		alert:         opts.Alerter,
		dial:          dial,
		state:         StateIdle,
		bytecodeSem:   make(chan struct{}, opts.MaxConcurrentBytecodeTasks),
	}
	m.pollIntervalMs.Store(int64(opts.GetBlockPause / time.Millisecond))
	m.signalCh = newSignalChannel(m.log, m.alert, m.descriptor.Name)

	return m, nil
}

// ChainID returns the chain this monitor is bound to.
func (m *ChainMonitor) ChainID() *big.Int {
	return m.descriptor.ChainID
}

// State returns the current lifecycle state.
func (m *ChainMonitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Signals returns the channel MonitorSupervisor subscribes to for the two
// upward signals this monitor raises.
func (m *ChainMonitor) Signals() <-chan Signal {
	return m.signalCh.ReadChannel()
}

// Start attempts each RPC endpoint in order; the first to answer a
// "current block number" probe is retained, and block processing begins
// from the computed start block. Start never returns an error for a
// per-endpoint failure -- only when every endpoint failed.
func (m *ChainMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateStarting || m.state == StateRunning {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.epoch++
	epoch := m.epoch
	m.state = StateStarting
	m.mu.Unlock()

	for _, url := range m.descriptor.RPCEndpoints {
		provider, head, err := m.probe(ctx, url)
		if err != nil {
			m.log.Warn(fmt.Sprintf("chainmonitor: chain %s: rpc endpoint %s failed probe: %v", m.descriptor.Name, url, err))
			continue
		}

		m.mu.Lock()
		m.provider = provider
		m.state = StateRunning
		m.mu.Unlock()

		startBlock := m.computeStartBlock(head)
		m.setNextBlockNumber(startBlock)
		m.pollIntervalMs.Store(int64(m.options.GetBlockPause / time.Millisecond))

		m.emitEvent(EventStarted, map[string]any{
			"chainId":     m.descriptor.ChainID.String(),
			"providerURL": url,
			"startBlock":  startBlock.String(),
		})

		m.scheduleProcessBlock(epoch, startBlock, 0)
		return nil
	}

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()

	m.emitEvent(EventErrorCantStart, map[string]any{
		"chainId": m.descriptor.ChainID.String(),
		"error":   ErrNoReachableEndpoint.Error(),
	})
	m.alert.Alert(ctx, "chainmonitor: chain %s: no reachable rpc endpoint out of %d configured", m.descriptor.Name, len(m.descriptor.RPCEndpoints))

	return superr.New(ErrNoReachableEndpoint, fmt.Errorf("chain %s: all %d endpoints failed", m.descriptor.Name, len(m.descriptor.RPCEndpoints)))
}

// probe dials url and confirms it answers a "current block number" call,
// retrying transient failures a few times (same breaker.Do shape
// ethmonitor.go's getChainID uses) before giving up on this endpoint and
// letting Start move to the next one in the list.
func (m *ChainMonitor) probe(ctx context.Context, url string) (rpcprovider.Provider, uint64, error) {
	var provider rpcprovider.Provider
	var head uint64

	err := breaker.Do(ctx, func() error {
		pctx, cancel := context.WithTimeout(ctx, m.options.ProviderTimeout)
		defer cancel()

		p, err := m.dial(pctx, url)
		if err != nil {
			return err
		}

		h, err := p.BlockNumber(pctx)
		if err != nil {
			p.Close()
			return err
		}

		provider, head = p, h
		return nil
	}, nil, 250*time.Millisecond, 2, 3)
	if err != nil {
		return nil, 0, err
	}

	return provider, head, nil
}

func (m *ChainMonitor) computeStartBlock(probedHead uint64) *big.Int {
	if m.options.StartBlockNumber != nil {
		return new(big.Int).Set(m.options.StartBlockNumber)
	}
	return new(big.Int).SetUint64(probedHead)
}

// Stop marks the monitor not-running and emits Monitor.Stopped. Timers
// scheduled before Stop observe the state transition and perform no further
// RPC calls. Calling Stop twice is a no-op the second time.
func (m *ChainMonitor) Stop() {
	m.mu.Lock()
	if m.state == StateStopped || m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateStopping
	m.mu.Unlock()

	m.log.Info(fmt.Sprintf("chainmonitor: chain %s: stop", m.descriptor.Name))

	m.mu.Lock()
	m.state = StateStopped
	m.mu.Unlock()

	m.emitEvent(EventStopped, map[string]any{
		"chainId": m.descriptor.ChainID.String(),
	})

	m.signalCh.Close()
}

func (m *ChainMonitor) isRunningEpoch(epoch int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateRunning && m.epoch == epoch
}

func (m *ChainMonitor) getProvider() rpcprovider.Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}

func (m *ChainMonitor) setNextBlockNumber(n *big.Int) {
	m.nextBlockMu.Lock()
	defer m.nextBlockMu.Unlock()
	m.nextBlockNumber = n
}

func (m *ChainMonitor) getNextBlockNumber() *big.Int {
	m.nextBlockMu.Lock()
	defer m.nextBlockMu.Unlock()
	return new(big.Int).Set(m.nextBlockNumber)
}

func (m *ChainMonitor) emitEvent(name string, payload map[string]any) {
	m.eventBus.Trigger(context.Background(), name, payload)
}

func (m *ChainMonitor) emitSignal(sig Signal) {
	m.signalCh.Send(sig)
}

// deriveDeployedAddress computes the standard sender+nonce CREATE address
// for a contract-creating transaction.
func deriveDeployedAddress(chainID *big.Int, tx *types.Transaction) (common.Address, error) {
	signer := types.LatestSignerForChainID(chainID)
	sender, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("chainmonitor: failed to recover sender for tx %s: %w", tx.Hash().Hex(), err)
	}
	return crypto.CreateAddress(sender, tx.Nonce()), nil
}
