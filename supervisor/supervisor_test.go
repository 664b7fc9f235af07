package supervisor_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcifyeth/chain-monitor/chainmonitor"
	"github.com/sourcifyeth/chain-monitor/chainregistry"
	"github.com/sourcifyeth/chain-monitor/metadata"
	"github.com/sourcifyeth/chain-monitor/rpcprovider"
	"github.com/sourcifyeth/chain-monitor/supervisor"
)

// fakeChainProvider serves one block (at height 100, the fixed head this
// fake always reports) containing a single signed contract-creation
// transaction, then reports every later height as unmined. Driving a
// monitor to the already-verified short-circuit this way exercises the
// supervisor's signal fan-out without needing a source-fetcher round trip.
type fakeChainProvider struct {
	url        string
	deployedTx *types.Transaction
}

func newFakeChainProvider(t *testing.T, url string, chainID *big.Int) (*fakeChainProvider, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer := types.LatestSignerForChainID(chainID)
	tx, err := types.SignNewTx(key, signer, &types.LegacyTx{
		Nonce:    0,
		To:       nil,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	require.NoError(t, err)

	sender := crypto.PubkeyToAddress(key.PublicKey)
	deployedAddr := crypto.CreateAddress(sender, 0)

	return &fakeChainProvider{url: url, deployedTx: tx}, deployedAddr
}

func (p *fakeChainProvider) BlockNumber(ctx context.Context) (uint64, error) { return 100, nil }

func (p *fakeChainProvider) BlockByNumber(ctx context.Context, num *big.Int) (*types.Block, error) {
	if num.Uint64() != 100 {
		return nil, nil
	}
	header := &types.Header{Number: new(big.Int).SetUint64(100), Difficulty: big.NewInt(0)}
	return types.NewBlock(header, &types.Body{Transactions: []*types.Transaction{p.deployedTx}}, nil, trie.NewStackTrie(nil)), nil
}

func (p *fakeChainProvider) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return nil, nil
}
func (p *fakeChainProvider) URL() string { return p.url }
func (p *fakeChainProvider) Close()      {}

type noopFetcher struct {
	mu      sync.Mutex
	stopped int
	onStop  func()
}

func (f *noopFetcher) Assemble(ctx context.Context, addr metadata.SourceAddress, callback func(chainmonitor.CheckedContract, error)) {
}
func (f *noopFetcher) Stop() {
	if f.onStop != nil {
		f.onStop()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}
func (f *noopFetcher) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type alreadyVerifiedRepository struct{}

func (alreadyVerifiedRepository) CheckByChainAndAddress(ctx context.Context, address common.Address, chainID *big.Int) (bool, error) {
	return true, nil
}
func (alreadyVerifiedRepository) StoreMatch(ctx context.Context, contract chainmonitor.CheckedContract, outcome chainmonitor.VerificationOutcome) error {
	return nil
}

type noopVerifier struct{}

func (noopVerifier) VerifyDeployed(ctx context.Context, contract chainmonitor.CheckedContract, chainID *big.Int, address common.Address, creatorTxHash common.Hash) (chainmonitor.VerificationOutcome, error) {
	return chainmonitor.VerificationOutcome{}, nil
}

func recvSignalWithin(t *testing.T, ch <-chan chainmonitor.Signal, d time.Duration) chainmonitor.Signal {
	t.Helper()
	select {
	case sig := <-ch:
		return sig
	case <-time.After(d):
		t.Fatalf("timed out waiting for signal")
		return chainmonitor.Signal{}
	}
}

func testRegistry() chainregistry.Registry {
	return chainregistry.NewStatic(
		chainregistry.ChainDescriptor{ChainID: big.NewInt(1), Name: "chain-a", RPCEndpoints: []string{"fake://a"}},
		chainregistry.ChainDescriptor{ChainID: big.NewInt(2), Name: "chain-b", RPCEndpoints: []string{"fake://b"}},
	)
}

func fastOptions() chainmonitor.Options {
	opts := chainmonitor.DefaultOptions
	opts.GetBlockPause = 5 * time.Millisecond
	opts.BlockPauseLowerLimit = 1 * time.Millisecond
	opts.BlockPauseUpperLimit = 50 * time.Millisecond
	opts.ProviderTimeout = 2 * time.Second
	return opts
}

func newSignalingMonitorFactory(t *testing.T, fetcher *noopFetcher, providers map[string]rpcprovider.Provider) supervisor.MonitorFactory {
	return func(desc chainregistry.ChainDescriptor) (*chainmonitor.ChainMonitor, error) {
		return chainmonitor.New(chainmonitor.Config{
			Descriptor:          desc,
			SourceFetcher:       fetcher,
			VerificationService: noopVerifier{},
			RepositoryService:   alreadyVerifiedRepository{},
			Options:             fastOptions(),
			Dial: func(ctx context.Context, url string) (rpcprovider.Provider, error) {
				p, ok := providers[url]
				require.True(t, ok, "no fake provider configured for %s", url)
				return p, nil
			},
		})
	}
}

func TestMonitorSupervisor_AggregatesSignalsAcrossChains(t *testing.T) {
	providerA, addrA := newFakeChainProvider(t, "fake://a", big.NewInt(1))
	providerB, addrB := newFakeChainProvider(t, "fake://b", big.NewInt(2))

	fetcher := &noopFetcher{}
	sup, err := supervisor.New(nil, testRegistry(), fetcher, newSignalingMonitorFactory(t, fetcher, map[string]rpcprovider.Provider{
		"fake://a": providerA,
		"fake://b": providerB,
	}))
	require.NoError(t, err)

	require.NoError(t, sup.Start(context.Background()))

	seen := map[string]common.Address{}
	for i := 0; i < 2; i++ {
		sig := recvSignalWithin(t, sup.Signals(), 2*time.Second)
		assert.Equal(t, chainmonitor.SignalContractAlreadyVerified, sig.Name)
		seen[sig.ChainID.String()] = sig.Address
	}

	assert.Equal(t, addrA, seen["1"])
	assert.Equal(t, addrB, seen["2"])

	sup.Stop()
}

func TestMonitorSupervisor_StopOrdersMonitorsBeforeFetcher(t *testing.T) {
	providerA, _ := newFakeChainProvider(t, "fake://a", big.NewInt(1))
	providerB, _ := newFakeChainProvider(t, "fake://b", big.NewInt(2))

	fetcher := &noopFetcher{}
	factory := newSignalingMonitorFactory(t, fetcher, map[string]rpcprovider.Provider{
		"fake://a": providerA,
		"fake://b": providerB,
	})
	var monitors []*chainmonitor.ChainMonitor
	sup, err := supervisor.New(nil, testRegistry(), fetcher, func(desc chainregistry.ChainDescriptor) (*chainmonitor.ChainMonitor, error) {
		mon, err := factory(desc)
		if err == nil {
			monitors = append(monitors, mon)
		}
		return mon, err
	})
	require.NoError(t, err)
	require.Len(t, monitors, 2)

	// Record each monitor's state at the moment the fetcher is stopped.
	var statesAtFetcherStop []chainmonitor.State
	fetcher.onStop = func() {
		for _, mon := range monitors {
			statesAtFetcherStop = append(statesAtFetcherStop, mon.State())
		}
	}

	require.NoError(t, sup.Start(context.Background()))

	recvSignalWithin(t, sup.Signals(), 2*time.Second)
	recvSignalWithin(t, sup.Signals(), 2*time.Second)

	sup.Stop()

	assert.Equal(t, 1, fetcher.stopCount())
	assert.Equal(t, []chainmonitor.State{chainmonitor.StateStopped, chainmonitor.StateStopped}, statesAtFetcherStop)
}

func TestMonitorSupervisor_EmptyRegistryStartsAndStopsCleanly(t *testing.T) {
	fetcher := &noopFetcher{}
	sup, err := supervisor.New(nil, chainregistry.NewStatic(), fetcher, newSignalingMonitorFactory(t, fetcher, map[string]rpcprovider.Provider{}))
	require.NoError(t, err)

	assert.NoError(t, sup.Start(context.Background()))
	sup.Stop()
	assert.Equal(t, 1, fetcher.stopCount())
}
