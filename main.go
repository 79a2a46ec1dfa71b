package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rustchain-node/anchor"
	"rustchain-node/epochs"
	"rustchain-node/fingerprint"
	"rustchain-node/internal/server/admin"
	"rustchain-node/internal/server/public"
	"rustchain-node/internal/store"
	"rustchain-node/ledger"
	"rustchain-node/logging"
	"rustchain-node/multiplier"
	"rustchain-node/nodeconfig"
	"rustchain-node/registry"
	"rustchain-node/settlement"
	"rustchain-node/types"
)

const version = "2.1.0"

func main() {
	config, err := nodeconfig.ReadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	chainParams, err := config.Chain.Params()
	if err != nil {
		log.Fatalf("Error in chain config: %v", err)
	}
	trustParams, err := config.Attestation.Params()
	if err != nil {
		log.Fatalf("Error in attestation config: %v", err)
	}

	logging.Info("starting rustchain node", types.System,
		"version", version, "chain_id", chainParams.ChainId)

	ledgerStore := store.New(config.State.LedgerPath)
	registryStore := store.New(config.State.RegistryPath)

	ldg, err := ledger.NewLedger(ledgerStore)
	if err != nil {
		log.Fatalf("Error restoring ledger: %v", err)
	}
	reg, err := registry.NewRegistry(trustParams, config.Attestation, registryStore)
	if err != nil {
		log.Fatalf("Error restoring registry: %v", err)
	}

	evaluator := fingerprint.NewEvaluator(trustParams.AdmissionThreshold)
	table := multiplier.NewTable(chainParams.SlotSeconds * chainParams.SlotsPerEpoch)

	engine := settlement.NewEngine(chainParams.EpochPot, chainParams.EmissionCap)
	scheduler := epochs.NewScheduler(chainParams, engine, ldg,
		config.Attestation.QueueLateVotes, nil)
	scheduler.Start()

	var anchorClient anchor.Client
	if config.Anchor.Enabled && config.Anchor.Url != "" {
		anchorClient = anchor.NewHTTPClient(config.Anchor.Url)
	}
	committer := anchor.NewCommitter(config.Anchor, ldg, anchorClient)
	committer.Start()

	publicServer := public.NewServer(version, chainParams, config.Attestation,
		config.Anchor, config.State.LedgerPath, scheduler, reg, evaluator, table, ldg, committer)
	publicServer.Start(fmt.Sprintf(":%d", config.Api.PublicPort))
	logging.Info("public server listening", types.Server, "port", config.Api.PublicPort)

	adminServer := admin.NewServer(config.Api.AdminKey, ldg, scheduler)
	adminServer.Start(fmt.Sprintf(":%d", config.Api.AdminPort))
	logging.Info("admin server listening", types.Server, "port", config.Api.AdminPort)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	logging.Info("shutting down", types.System, "signal", sig.String())
	committer.Stop()
	scheduler.Stop()
}
