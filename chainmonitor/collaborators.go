package chainmonitor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sourcifyeth/chain-monitor/metadata"
)

// CheckedContract is the reconstituted contract a SourceFetcher hands back,
// opaque to ChainMonitor beyond the identifying fields it needs to pass
// along to VerificationService and RepositoryService.
type CheckedContract struct {
	ChainID       *big.Int
	Address       common.Address
	CreatorTxHash common.Hash

	// Payload carries whatever the fetcher assembled (source files,
	// compiler settings, ...). Its shape is entirely the SourceFetcher's
	// and VerificationService's business; this core never inspects it.
	Payload any
}

// VerificationOutcome is produced by VerificationService and consumed by
// RepositoryService.
type VerificationOutcome struct {
	Matched bool
	Receipt any
}

// SourceFetcher retrieves source files from content-addressed locations and
// assembles a CheckedContract. An external collaborator injected at
// construction; the callback fires exactly once, successfully or not.
type SourceFetcher interface {
	Assemble(ctx context.Context, addr metadata.SourceAddress, callback func(CheckedContract, error))
	Stop()
}

// VerificationService checks a reconstituted contract against on-chain
// bytecode. An external collaborator injected at construction.
type VerificationService interface {
	VerifyDeployed(ctx context.Context, contract CheckedContract, chainID *big.Int, address common.Address, creatorTxHash common.Hash) (VerificationOutcome, error)
}

// RepositoryService persists verified matches and answers "already
// verified?". An external collaborator injected at construction.
type RepositoryService interface {
	CheckByChainAndAddress(ctx context.Context, address common.Address, chainID *big.Int) (bool, error)
	StoreMatch(ctx context.Context, contract CheckedContract, outcome VerificationOutcome) error
}
