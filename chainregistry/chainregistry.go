// Package chainregistry describes the chains a MonitorSupervisor watches.
//
// The registry itself -- how chain descriptors and their RPC endpoints are
// sourced in production -- is treated as an external collaborator: this
// package only fixes the descriptor shape and supplies a minimal env-driven
// default so cmd/chainwatch has something concrete to boot from.
package chainregistry

import (
	"fmt"
	"math/big"

	"github.com/sourcifyeth/chain-monitor/util"
)

// ChainDescriptor is read-only to the monitoring core: chainId, a display
// name, and an ordered list of RPC endpoints to try on start (first
// reachable one wins).
type ChainDescriptor struct {
	ChainID     *big.Int
	Name        string
	RPCEndpoints []string
}

// Registry enumerates the chains to monitor.
type Registry interface {
	Chains() []ChainDescriptor
}

type staticRegistry struct {
	chains []ChainDescriptor
}

func NewStatic(chains ...ChainDescriptor) Registry {
	return staticRegistry{chains: chains}
}

func (r staticRegistry) Chains() []ChainDescriptor {
	out := make([]ChainDescriptor, len(r.chains))
	copy(out, r.chains)
	return out
}

// FromEnv builds the default chain set from environment variables:
//
//	CHAINS=mainnet,polygon
//	CHAIN_MAINNET_ID=1
//	CHAIN_MAINNET_RPC_URLS=https://rpc1,https://rpc2,wss://ws1
//
// Names in CHAINS are upper-cased and have non-alphanumeric characters
// turned into underscores to build the CHAIN_<NAME>_* lookups.
func FromEnv(env *util.Env) (Registry, error) {
	names := env.StringSlice("CHAINS")
	chains := make([]ChainDescriptor, 0, len(names))

	for _, name := range names {
		key := envKey(name)

		idStr, ok := env.String(fmt.Sprintf("CHAIN_%s_ID", key))
		if !ok {
			return nil, fmt.Errorf("chainregistry: CHAIN_%s_ID is not set", key)
		}
		chainID, ok := new(big.Int).SetString(idStr, 10)
		if !ok {
			return nil, fmt.Errorf("chainregistry: CHAIN_%s_ID %q is not a valid integer", key, idStr)
		}

		urls := env.StringSlice(fmt.Sprintf("CHAIN_%s_RPC_URLS", key))
		if len(urls) == 0 {
			return nil, fmt.Errorf("chainregistry: CHAIN_%s_RPC_URLS is empty", key)
		}

		chains = append(chains, ChainDescriptor{
			ChainID:      chainID,
			Name:         name,
			RPCEndpoints: urls,
		})
	}

	return NewStatic(chains...), nil
}

func envKey(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r-('a'-'A'))
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
