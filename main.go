// Command relayer is the cross-chain message relayer's entrypoint: it
// loads the agent's own operating configuration, opens its persistent
// log store, builds every configured chain's clients through whatever
// pkg/relayer.Factory a chain-client package has registered for that
// chain's family, assembles the origin/destination mesh, and runs it
// until interrupted. Concrete chain clients (Ethereum, Cosmos, Solana,
// Starknet RPC implementations) are external collaborators — this
// binary only wires them in by family name; none are linked here.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/chainmetrics"
	"github.com/nexusbridge/relayer/pkg/config"
	"github.com/nexusbridge/relayer/pkg/gaspolicy"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/relayer"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var showHelp = flag.Bool("help", false, "Show help message")
	flag.Parse()
	if *showHelp {
		printHelp()
		return
	}

	log.Println("[relayer] starting")

	cfg, err := config.Load("relayer")
	if err != nil {
		log.Fatalf("[relayer] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[relayer] invalid config: %v", err)
	}

	store, err := openStore(cfg.DB)
	if err != nil {
		log.Fatalf("[relayer] open log store: %v", err)
	}

	metrics, err := startMetrics(cfg.MetricsPort)
	if err != nil {
		log.Fatalf("[relayer] start metrics: %v", err)
	}

	chains, err := buildChains(cfg)
	if err != nil {
		log.Fatalf("[relayer] build chains: %v", err)
	}

	whitelist, err := config.ToMatchingList(cfg.Whitelist)
	if err != nil {
		log.Fatalf("[relayer] whitelist: %v", err)
	}
	blacklist, err := config.ToMatchingList(cfg.Blacklist)
	if err != nil {
		log.Fatalf("[relayer] blacklist: %v", err)
	}

	oracles := make(map[uint32]chainclient.GasOracle, len(chains))
	for id, chain := range chains {
		if chain.GasOracle != nil {
			oracles[id] = chain.GasOracle
		}
	}
	enforcer, err := config.BuildGasPaymentEnforcement(cfg.GasPaymentEnforcement, store, oracles)
	if err != nil {
		log.Fatalf("[relayer] gas payment enforcement: %v", err)
	}

	relayerCfg := relayer.Config{
		Store:                       store,
		Metrics:                     metrics,
		Chains:                      chains,
		Whitelist:                   whitelist,
		Blacklist:                   blacklist,
		NoncesToSkip:                cfg.NoncesToSkip,
		GasPaymentEnforcement:       gasEnforcementForEveryDestination(chains, enforcer),
		TransactionGasLimit:         transactionGasLimitForEveryDestination(chains, cfg),
		AllowLocalCheckpointSyncers: cfg.AllowLocalCheckpointSyncers,
	}

	agent, err := relayer.New(relayerCfg)
	if err != nil {
		log.Fatalf("[relayer] assemble agent: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("[relayer] running %d chain(s)", len(chains))
	if err := agent.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("[relayer] terminated: %v", err)
	}
	log.Println("[relayer] shut down")
}

// openStore opens the persistent log store at path, a directory
// holding a cometbft-db goleveldb instance named "relayer".
func openStore(path string) (*logstore.Store, error) {
	dir := filepath.Dir(filepath.Join(path, "relayer.db"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir %s: %w", dir, err)
	}
	db, err := dbm.NewGoLevelDB("relayer", dir)
	if err != nil {
		return nil, fmt.Errorf("open goleveldb at %s: %w", dir, err)
	}
	return logstore.New(logstore.NewDBAdapter(db)), nil
}

// startMetrics registers the prometheus collectors and serves them on
// port if non-zero; otherwise every component is handed the no-op
// implementation. The HTTP exposition itself is the only piece of
// "prometheus wiring" this binary does — scrape-interval, alerting and
// registry lifecycle policy are deployment concerns outside this
// module (§1).
func startMetrics(port int) (chainmetrics.Metrics, error) {
	if port <= 0 {
		return chainmetrics.Noop{}, nil
	}
	reg := prometheus.NewRegistry()
	m, err := chainmetrics.NewProm(reg)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[relayer] metrics server stopped: %v", err)
		}
	}()
	log.Printf("[relayer] metrics listening on %s", addr)
	return m, nil
}

// buildChains constructs a relayer.ChainConfig for every chain name
// appearing in cfg's origin or destination lists, via the
// pkg/relayer.Factory registered for that chain's configured family.
func buildChains(cfg *config.Config) (map[uint32]relayer.ChainConfig, error) {
	names := make(map[string]struct{})
	for _, n := range cfg.OriginChainNames {
		names[n] = struct{}{}
	}
	for _, n := range cfg.DestinationChainNames {
		names[n] = struct{}{}
	}

	chains := make(map[uint32]relayer.ChainConfig, len(names))
	for name := range names {
		settings, ok := cfg.Chains[name]
		if !ok {
			return nil, fmt.Errorf("chain %q: no chains.%s settings entry", name, name)
		}
		chain, err := relayer.Build(settings.Family, name, settings.Settings)
		if err != nil {
			return nil, fmt.Errorf("chain %q: %w", name, err)
		}
		chains[chain.Domain.ID] = chain
	}
	return chains, nil
}

// gasEnforcementForEveryDestination shares one declarative Enforcer
// across every destination-capable chain: the Enforcer's own policies
// already discriminate by message whitelist (which can name a
// destinationDomain), so one instance safely serves every destination.
func gasEnforcementForEveryDestination(chains map[uint32]relayer.ChainConfig, enforcer *gaspolicy.Enforcer) map[uint32]*gaspolicy.Enforcer {
	out := make(map[uint32]*gaspolicy.Enforcer, len(chains))
	for id, chain := range chains {
		if chain.Mailbox == nil {
			continue
		}
		out[id] = enforcer
	}
	return out
}

// transactionGasLimitForEveryDestination applies cfg's global
// transactionGasLimit to every destination-capable chain except those
// named in skipTransactionGasLimitFor.
func transactionGasLimitForEveryDestination(chains map[uint32]relayer.ChainConfig, cfg *config.Config) map[uint32]*uint64 {
	skip := make(map[uint32]bool, len(cfg.SkipTransactionGasLimitFor))
	for _, id := range cfg.SkipTransactionGasLimitFor {
		skip[id] = true
	}
	out := make(map[uint32]*uint64, len(chains))
	for id, chain := range chains {
		if chain.Mailbox == nil || skip[id] {
			continue
		}
		out[id] = cfg.TransactionGasLimit
	}
	return out
}

func printHelp() {
	fmt.Println(`relayer - cross-chain message relayer

Usage: relayer [flags]

Reads its configuration from ./config/<RUN_ENV>/<BASE_CONFIG>.json,
layered with HYP_BASE_<KEY> and HYP_RELAYER_<KEY> environment
overrides. See pkg/config for the full settings surface.

Flags:
  -help   Show this message.`)
}
