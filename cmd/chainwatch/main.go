// Command chainwatch instantiates the supervisor with the configured chain
// set and runs it until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcifyeth/chain-monitor/chainmonitor"
	"github.com/sourcifyeth/chain-monitor/chainregistry"
	"github.com/sourcifyeth/chain-monitor/eventbus"
	"github.com/sourcifyeth/chain-monitor/supervisor"
	"github.com/sourcifyeth/chain-monitor/util"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(log); err != nil {
		log.Error("chainwatch: fatal: " + err.Error())
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	env, err := util.LoadEnv()
	if err != nil {
		return err
	}

	registry, err := chainregistry.FromEnv(env)
	if err != nil {
		return err
	}
	if len(registry.Chains()) == 0 {
		log.Warn("chainwatch: CHAINS is empty, nothing to monitor")
	}

	bus, err := newEventBus(env, log)
	if err != nil {
		return err
	}

	svcs := newHTTPServices(
		env.MustString("SOURCE_FETCHER_URL", "http://localhost:8081"),
		env.MustString("VERIFICATION_SERVICE_URL", "http://localhost:8082"),
		env.MustString("REPOSITORY_SERVICE_URL", "http://localhost:8083"),
		env.Duration("PROVIDER_TIMEOUT", 3000)+2*time.Second,
	)

	sup, err := supervisor.New(log, registry, svcs, func(desc chainregistry.ChainDescriptor) (*chainmonitor.ChainMonitor, error) {
		return chainmonitor.New(chainmonitor.Config{
			Descriptor:          desc,
			SourceFetcher:       svcs,
			VerificationService: svcs,
			RepositoryService:   svcs,
			EventBus:            bus,
			Options:             chainmonitor.LoadOptionsFromEnv(env, desc.ChainID),
		})
	})
	if err != nil {
		return err
	}

	go logSignals(log, sup.Signals())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		log.Error("chainwatch: one or more chains failed to start: " + err.Error())
	}

	<-ctx.Done()
	log.Info("chainwatch: shutting down")
	sup.Stop()

	return nil
}

func logSignals(log *slog.Logger, signals <-chan chainmonitor.Signal) {
	for sig := range signals {
		log.Info("chainwatch: " + sig.Name + " chain=" + sig.ChainID.String() + " address=" + sig.Address.Hex())
	}
}

func newEventBus(env *util.Env, log *slog.Logger) (eventbus.Bus, error) {
	natsURL, ok := env.String("NATS_URL")
	if !ok {
		return eventbus.NewNoop(), nil
	}

	prefix := env.MustString("NATS_SUBJECT_PREFIX", "chain-monitor")
	retention := env.Duration("NATS_RETENTION", (7 * 24 * time.Hour).Milliseconds())

	return eventbus.NewNatsBus(natsURL, prefix, retention, log)
}
