package chainmonitor

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BytecodeTask tracks one contract's bytecode-retrieval retry budget.
type BytecodeTask struct {
	CreatorTxHash common.Hash
	Address       common.Address
	RetriesLeft   int
}

// startBytecodeTask acquires a slot in the per-chain concurrency bound and
// runs the task in its own goroutine. The slot is held for the task's full
// lifetime, including retry waits, so MaxConcurrentBytecodeTasks bounds
// outstanding tasks rather than just in-flight RPC calls.
func (m *ChainMonitor) startBytecodeTask(epoch int64, task BytecodeTask) {
	go func() {
		m.bytecodeSem <- struct{}{}
		released := false
		release := func() {
			if !released {
				released = true
				<-m.bytecodeSem
			}
		}
		m.processBytecode(epoch, task, release)
	}()
}

// processBytecode implements the bytecode retry machine: retries are
// pre-decremented before each attempt, an empty ("0x") result reschedules
// without consuming from the decode-failure path, and the budget runs out
// silently (no final error event) once RetriesLeft goes negative.
func (m *ChainMonitor) processBytecode(epoch int64, task BytecodeTask, release func()) {
	if !m.isRunningEpoch(epoch) {
		release()
		return
	}

	task.RetriesLeft--
	if task.RetriesLeft < 0 {
		release()
		return
	}

	provider := m.getProvider()
	if provider == nil {
		release()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.options.ProviderTimeout)
	code, err := provider.CodeAt(ctx, task.Address)
	cancel()

	if err != nil {
		m.emitEvent(EventErrorGettingBytecode, map[string]any{
			"chainId": m.descriptor.ChainID.String(),
			"address": task.Address.Hex(),
			"error":   err.Error(),
		})
		m.scheduleBytecodeRetry(epoch, task, release)
		return
	}

	if len(code) == 0 {
		m.scheduleBytecodeRetry(epoch, task, release)
		return
	}

	data, err := m.decoder.Decode(code)
	if err != nil {
		m.emitEvent(EventErrorProcessingBytecode, map[string]any{
			"chainId": m.descriptor.ChainID.String(),
			"address": task.Address.Hex(),
			"error":   err.Error(),
			"code":    hexutil.Encode(code),
		})
		release()
		return
	}

	srcAddr, err := m.addrFactory.FromCBORData(data)
	if err != nil {
		m.emitEvent(EventErrorProcessingBytecode, map[string]any{
			"chainId": m.descriptor.ChainID.String(),
			"address": task.Address.Hex(),
			"error":   err.Error(),
		})
		release()
		return
	}

	m.sourceFetcher.Assemble(context.Background(), srcAddr, func(contract CheckedContract, err error) {
		defer release()

		if err != nil {
			// Source assembly failure is the fetcher's concern; this monitor
			// has no retry obligation once bytecode has been handed off.
			return
		}
		if !m.isRunningEpoch(epoch) {
			return
		}
		m.verifyAndStore(task, contract)
	})
}

func (m *ChainMonitor) scheduleBytecodeRetry(epoch int64, task BytecodeTask, release func()) {
	m.scheduleAfter(m.options.GetBytecodeRetryPause, func() {
		if !m.isRunningEpoch(epoch) {
			release()
			return
		}
		m.processBytecode(epoch, task, release)
	})
}

// verifyAndStore delegates verification and persistence to the injected
// collaborators and raises the success signal on a match. Neither step is
// retried: both are external services with their own retry policies.
func (m *ChainMonitor) verifyAndStore(task BytecodeTask, contract CheckedContract) {
	ctx := context.Background()

	outcome, err := m.verification.VerifyDeployed(ctx, contract, m.descriptor.ChainID, task.Address, task.CreatorTxHash)
	if err != nil {
		m.emitEvent(EventErrorVerifyError, map[string]any{
			"chainId": m.descriptor.ChainID.String(),
			"address": task.Address.Hex(),
			"error":   err.Error(),
		})
		return
	}

	if err := m.repository.StoreMatch(ctx, contract, outcome); err != nil {
		m.emitEvent(EventErrorVerifyError, map[string]any{
			"chainId": m.descriptor.ChainID.String(),
			"address": task.Address.Hex(),
			"error":   err.Error(),
		})
		return
	}

	m.emitSignal(Signal{
		Name:    SignalContractVerifiedSuccessfully,
		ChainID: m.descriptor.ChainID,
		Address: task.Address,
	})
}
