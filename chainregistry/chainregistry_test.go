package chainregistry_test

import (
	"math/big"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcifyeth/chain-monitor/chainregistry"
	"github.com/sourcifyeth/chain-monitor/util"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		require.NoError(t, os.Setenv(k, v))
		t.Cleanup(func(k string) func() {
			return func() { os.Unsetenv(k) }
		}(k))
	}
}

func TestFromEnv_BuildsDescriptors(t *testing.T) {
	setEnv(t, map[string]string{
		"CHAINS":                  "mainnet,op-sepolia",
		"CHAIN_MAINNET_ID":        "1",
		"CHAIN_MAINNET_RPC_URLS":  "https://rpc1, wss://rpc2",
		"CHAIN_OP_SEPOLIA_ID":     "11155420",
		"CHAIN_OP_SEPOLIA_RPC_URLS": "https://op-rpc",
	})

	env, err := util.LoadEnv()
	require.NoError(t, err)

	registry, err := chainregistry.FromEnv(env)
	require.NoError(t, err)

	chains := registry.Chains()
	require.Len(t, chains, 2)

	byName := make(map[string]chainregistry.ChainDescriptor)
	for _, c := range chains {
		byName[c.Name] = c
	}

	mainnet, ok := byName["mainnet"]
	require.True(t, ok)
	assert.Equal(t, big.NewInt(1), mainnet.ChainID)
	assert.Equal(t, []string{"https://rpc1", "wss://rpc2"}, mainnet.RPCEndpoints)

	opSepolia, ok := byName["op-sepolia"]
	require.True(t, ok)
	assert.Equal(t, big.NewInt(11155420), opSepolia.ChainID)
}

func TestFromEnv_MissingChainID(t *testing.T) {
	setEnv(t, map[string]string{
		"CHAINS":                 "mainnet",
		"CHAIN_MAINNET_RPC_URLS": "https://rpc1",
	})
	os.Unsetenv("CHAIN_MAINNET_ID")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	_, err = chainregistry.FromEnv(env)
	assert.Error(t, err)
}

func TestFromEnv_EmptyChainsIsEmptyRegistry(t *testing.T) {
	os.Unsetenv("CHAINS")

	env, err := util.LoadEnv()
	require.NoError(t, err)

	registry, err := chainregistry.FromEnv(env)
	require.NoError(t, err)
	assert.Empty(t, registry.Chains())
}

func TestNewStatic(t *testing.T) {
	registry := chainregistry.NewStatic(chainregistry.ChainDescriptor{
		ChainID: big.NewInt(137),
		Name:    "polygon",
	})
	assert.Len(t, registry.Chains(), 1)
}
