package chainmonitor

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// scheduleProcessBlock arranges for processBlock to run after delay, guarded
// by epoch: if Stop() (or a later Start()) has moved the monitor off epoch by
// the time the timer fires, the callback is a no-op. This is the same
// "running flag gates every reschedule" discipline ethmonitor.go's monitor()
// loop uses, expressed with timers instead of a blocking select loop since
// this monitor has no continuous streaming subscription to select against.
func (m *ChainMonitor) scheduleProcessBlock(epoch int64, blockNumber *big.Int, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if !m.isRunningEpoch(epoch) {
			return
		}
		m.processBlock(epoch, blockNumber)
	})
}

// processBlock implements the per-tick algorithm: fetch the block, branch on
// null-vs-non-null, scan transactions for contract creations on success, and
// unconditionally reschedule the next tick at the (possibly just-adapted)
// pause.
func (m *ChainMonitor) processBlock(epoch int64, blockNumber *big.Int) {
	provider := m.getProvider()
	if provider == nil {
		// Invariant violation: processBlock must never run without a
		// retained provider. Surface loudly and stop this tick's work; the
		// monitor is left running but idle, which the operator alert makes
		// visible.
		m.alert.Alert(context.Background(), "chainmonitor: chain %s: %v", m.descriptor.Name, ErrNoProvider)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.options.ProviderTimeout)
	block, err := provider.BlockByNumber(ctx, blockNumber)
	cancel()

	nextBlockNumber := blockNumber

	switch {
	case err != nil:
		m.emitEvent(EventErrorProcessingBlock, map[string]any{
			"chainId":     m.descriptor.ChainID.String(),
			"blockNumber": blockNumber.String(),
			"error":       err.Error(),
		})
		// No cursor advance; retry the same block number next tick.

	case block == nil:
		m.adaptBlockPause("increase")
		// No cursor advance; this is "not yet mined", not a failure.

	default:
		m.adaptBlockPause("decrease")
		m.emitEvent(EventProcessingBlock, map[string]any{
			"chainId":     m.descriptor.ChainID.String(),
			"blockNumber": blockNumber.String(),
			"numTxs":      len(block.Transactions()),
		})

		for _, tx := range block.Transactions() {
			if tx.To() != nil {
				continue
			}
			m.handleContractCreation(epoch, tx)
		}

		nextBlockNumber = new(big.Int).Add(blockNumber, big.NewInt(1))
		m.setNextBlockNumber(nextBlockNumber)
	}

	m.scheduleProcessBlock(epoch, nextBlockNumber, m.currentPause())
}

func (m *ChainMonitor) handleContractCreation(epoch int64, tx *types.Transaction) {
	addr, err := deriveDeployedAddress(m.descriptor.ChainID, tx)
	if err != nil {
		m.log.Warn(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.options.ProviderTimeout)
	alreadyVerified, err := m.repository.CheckByChainAndAddress(ctx, addr, m.descriptor.ChainID)
	cancel()
	if err != nil {
		// The repository lookup is a best-effort dedup check, not a gate on
		// correctness: proceed as if unverified rather than silently
		// dropping a genuinely new contract.
		m.log.Warn("chainmonitor: repository check failed, proceeding as unverified: " + err.Error())
		alreadyVerified = false
	}

	if alreadyVerified {
		m.emitEvent(EventAlreadyVerified, map[string]any{
			"chainId": m.descriptor.ChainID.String(),
			"address": addr.Hex(),
		})
		m.emitSignal(Signal{Name: SignalContractAlreadyVerified, ChainID: m.descriptor.ChainID, Address: addr})
		return
	}

	m.emitEvent(EventNewContract, map[string]any{
		"chainId":       m.descriptor.ChainID.String(),
		"address":       addr.Hex(),
		"creatorTxHash": tx.Hash().Hex(),
	})

	m.startBytecodeTask(epoch, BytecodeTask{
		CreatorTxHash: tx.Hash(),
		Address:       addr,
		RetriesLeft:   m.options.InitialGetBytecodeTries,
	})
}
