// Package supervisor fans a chain registry out into one ChainMonitor per
// chain and re-emits their upward signals unchanged.
//
// Grounded on ethmonitor's own subscriber fan-out (one goroutine per
// subscription reading an unbounded channel), reused here the other way
// around: one goroutine per monitor, reading its Signal channel and
// forwarding to a single aggregate stream.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcifyeth/chain-monitor/chainmonitor"
	"github.com/sourcifyeth/chain-monitor/chainregistry"
)

// SharedFetcher is the subset of chainmonitor.SourceFetcher the supervisor
// needs to own: every ChainMonitor it builds is wired to the same fetcher
// instance, and Stop drains it only after every monitor has stopped.
type SharedFetcher interface {
	Stop()
}

// MonitorFactory builds a ChainMonitor for one chain descriptor. Supplied by
// the caller so MonitorSupervisor never has to know how SourceFetcher,
// VerificationService and RepositoryService are constructed or whether they
// are shared across chains.
type MonitorFactory func(descriptor chainregistry.ChainDescriptor) (*chainmonitor.ChainMonitor, error)

// MonitorSupervisor owns the lifecycle of one ChainMonitor per configured
// chain and aggregates their Signal streams into one.
type MonitorSupervisor struct {
	log     *slog.Logger
	factory MonitorFactory
	fetcher SharedFetcher

	mu       sync.Mutex
	monitors map[string]*chainmonitor.ChainMonitor

	signals chan chainmonitor.Signal

	wg sync.WaitGroup
}

// New builds a MonitorSupervisor for the chains registry currently lists.
// fetcher is the SourceFetcher shared across every ChainMonitor it builds;
// Stop tells it to drain only once every monitor has stopped, so no new
// fetch can be enqueued after the fetcher is told to wind down.
func New(log *slog.Logger, registry chainregistry.Registry, fetcher SharedFetcher, factory MonitorFactory) (*MonitorSupervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &MonitorSupervisor{
		log:      log,
		factory:  factory,
		fetcher:  fetcher,
		monitors: make(map[string]*chainmonitor.ChainMonitor),
		signals:  make(chan chainmonitor.Signal, 256),
	}

	for _, desc := range registry.Chains() {
		mon, err := factory(desc)
		if err != nil {
			return nil, fmt.Errorf("supervisor: building monitor for chain %s: %w", desc.Name, err)
		}
		s.monitors[desc.Name] = mon
	}

	return s, nil
}

// Signals returns the aggregate stream of upward signals from every
// monitor this supervisor owns.
func (s *MonitorSupervisor) Signals() <-chan chainmonitor.Signal {
	return s.signals
}

// Start starts every monitor concurrently and begins forwarding each one's
// signals onto the aggregate stream.
func (s *MonitorSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	monitors := make([]*chainmonitor.ChainMonitor, 0, len(s.monitors))
	for _, mon := range s.monitors {
		monitors = append(monitors, mon)
	}
	s.mu.Unlock()

	var startErr error
	var startErrMu sync.Mutex

	var startWg sync.WaitGroup
	for _, mon := range monitors {
		mon := mon
		startWg.Add(1)
		go func() {
			defer startWg.Done()
			if err := mon.Start(ctx); err != nil {
				startErrMu.Lock()
				startErr = fmt.Errorf("supervisor: chain %s: %w", mon.ChainID().String(), err)
				startErrMu.Unlock()
				s.log.Error(fmt.Sprintf("supervisor: chain %s failed to start: %v", mon.ChainID().String(), err))
				return
			}

			s.wg.Add(1)
			go s.forward(mon)
		}()
	}
	startWg.Wait()

	return startErr
}

func (s *MonitorSupervisor) forward(mon *chainmonitor.ChainMonitor) {
	defer s.wg.Done()
	for sig := range mon.Signals() {
		s.signals <- sig
	}
}

// Stop stops every monitor, then the shared SourceFetcher: monitors first,
// fetcher last, so no new fetch is enqueued after the fetcher is told to
// drain.
func (s *MonitorSupervisor) Stop() {
	s.mu.Lock()
	monitors := make([]*chainmonitor.ChainMonitor, 0, len(s.monitors))
	for _, mon := range s.monitors {
		monitors = append(monitors, mon)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, mon := range monitors {
		mon := mon
		wg.Add(1)
		go func() {
			defer wg.Done()
			mon.Stop()
		}()
	}
	wg.Wait()

	if s.fetcher != nil {
		s.fetcher.Stop()
	}
}
