// Package rpcprovider adapts the three JSON-RPC calls a ChainMonitor needs
// (getBlockNumber, getBlock, getCode) on top of go-ethereum's rpc/ethclient
// packages, which already select the http(s) vs ws(s) transport from the
// URL scheme -- the same dial path 0xkanth-polymarket-indexer's
// OnChainClient and ethmonitor's own rpc client rely on.
package rpcprovider

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Provider is the RpcProvider capability set ChainMonitor needs: current
// block number, a full block by number (with transactions), and code at an
// address. Bound to exactly one chain and one endpoint for its lifetime.
type Provider interface {
	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)

	// BlockByNumber returns the block at num with its full transaction
	// list, or (nil, nil) if the block has not been mined yet.
	BlockByNumber(ctx context.Context, num *big.Int) (*types.Block, error)

	// CodeAt returns the deployed bytecode at address. An empty slice means
	// no code is present at that address (the "0x" sentinel the bytecode
	// retry machine checks for).
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)

	// URL is the endpoint this provider is bound to, used in Monitor.Started
	// event payloads.
	URL() string

	Close()
}

type provider struct {
	url    string
	rpc    *rpc.Client
	client *ethclient.Client
}

// Dial connects to url, picking http(s) or ws(s) transport by scheme (the
// rpc package does this internally via rpc.DialContext).
func Dial(ctx context.Context, url string) (Provider, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("rpcprovider: dial %s: %w", url, err)
	}
	return &provider{
		url:    url,
		rpc:    rc,
		client: ethclient.NewClient(rc),
	}, nil
}

func (p *provider) BlockNumber(ctx context.Context) (uint64, error) {
	return p.client.BlockNumber(ctx)
}

func (p *provider) BlockByNumber(ctx context.Context, num *big.Int) (*types.Block, error) {
	block, err := p.client.BlockByNumber(ctx, num)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return block, nil
}

func (p *provider) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return p.client.CodeAt(ctx, address, nil)
}

func (p *provider) URL() string {
	return p.url
}

func (p *provider) Close() {
	p.client.Close()
}
