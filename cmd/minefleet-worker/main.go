// Package main is the minefleet-worker boot entrypoint (spec.md §5's
// "independent fleet processes" tier): it wires every capability and
// component into one worker's goroutine-per-subsystem event loop and
// drives it until SIGINT/SIGTERM, following the teacher's
// cmd/berith/config.go dumpconfig/flag-merge idiom.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"berith-chain/minefleet/allocator"
	"berith-chain/minefleet/cache"
	"berith-chain/minefleet/compute"
	"berith-chain/minefleet/donation"
	"berith-chain/minefleet/heartbeat"
	"berith-chain/minefleet/internal/config"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/ipc"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/metadata"
	"berith-chain/minefleet/mineapi"
	"berith-chain/minefleet/miner"
	"berith-chain/minefleet/objectstore"
	"berith-chain/minefleet/objectstore/azureblob"
	"berith-chain/minefleet/objectstore/memstore"
	"berith-chain/minefleet/orchestrator"
	"berith-chain/minefleet/reclaim"
	"berith-chain/minefleet/registry"
	"berith-chain/minefleet/signer"
	"berith-chain/minefleet/stats"
	"berith-chain/minefleet/submit"
)

const gracefulShutdownWait = 10 * time.Second

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	workerIDFlag = cli.StringFlag{
		Name:  "worker.id",
		Usage: "worker identity; defaults to the instance metadata provider",
	}
	logLevelFlag = cli.IntFlag{
		Name:  "loglevel",
		Usage: "log verbosity (0=error .. 4=trace)",
		Value: int(log.LvlInfo),
	}

	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "",
		Flags:       []cli.Flag{configFileFlag},
		Category:    "MISCELLANEOUS COMMANDS",
		Description: `The dumpconfig command shows configuration values.`,
	}
)

func loadWorkerConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := config.Load(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if id := ctx.GlobalString(workerIDFlag.Name); id != "" {
		cfg.WorkerID = id
	}
	if cfg.Orchestrator.Workers == 0 {
		cfg.Orchestrator.Workers = orchestrator.DefaultWidth()
	}
	return cfg, nil
}

// dumpConfig is the dumpconfig command, the teacher's own pattern for
// letting an operator inspect the effective configuration before boot.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := loadWorkerConfig(ctx)
	if err != nil {
		return err
	}
	return config.Dump(os.Stdout, &cfg)
}

func buildObjectStore(cfg config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore.Backend {
	case "", "memory":
		return memstore.New(), nil
	case "azure":
		key := os.Getenv("MINEFLEET_AZURE_ACCOUNT_KEY")
		if key == "" {
			return nil, fmt.Errorf("minefleet-worker: MINEFLEET_AZURE_ACCOUNT_KEY not set for azure object store backend")
		}
		bucket := cfg.ObjectStore.Bucket
		if bucket == "" {
			bucket = fmt.Sprintf("%s-%s-%s", cfg.Registry.Prefix, cfg.Registry.Account, cfg.Registry.Region)
		}
		return azureblob.New(cfg.ObjectStore.AccountName, key, bucket)
	default:
		return nil, fmt.Errorf("minefleet-worker: unknown objectstore backend %q", cfg.ObjectStore.Backend)
	}
}

func buildMinerRunner(cfg config.Config) (miner.Runner, error) {
	switch cfg.Miner.Backend {
	case "", "exec":
		return miner.NewExecRunner(cfg.Miner.BinaryPath), nil
	case "docker":
		return nil, fmt.Errorf("minefleet-worker: docker miner backend requires a *client.Client; wire one via a custom build, not the default entrypoint")
	default:
		return nil, fmt.Errorf("minefleet-worker: unknown miner backend %q", cfg.Miner.Backend)
	}
}

// registerAddresses signs and submits each owned address's T&C
// acceptance once at boot (spec.md §4.8); failures are logged and
// skipped per-address rather than aborting the whole worker, since an
// address already registered from a previous run is expected to 409 or
// no-op server-side.
func registerAddresses(ctx context.Context, api mineapi.API, sgn signer.Provider, addresses []string, logger log.Logger) {
	if sgn == nil {
		return
	}
	tandc, err := api.GetTandC(ctx, "latest")
	if err != nil {
		logger.Warn("worker: fetch T&C failed, skipping registration", "err", err)
		return
	}
	sig, err := sgn.Sign([]byte(tandc.Message))
	if err != nil {
		logger.Warn("worker: sign T&C failed, skipping registration", "err", err)
		return
	}
	for _, addr := range addresses {
		if _, err := api.Register(ctx, addr, sig, sgn.PublicKey()); err != nil {
			logger.Warn("worker: register address failed", "address", addr, "err", err)
		}
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := loadWorkerConfig(cliCtx)
	if err != nil {
		return err
	}
	logger := log.New(log.Level(cliCtx.GlobalInt(logLevelFlag.Name)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metaProvider := metadata.NewIMDSProvider(cfg.Metadata.BaseURL)
	workerID := cfg.WorkerID
	if workerID == "" {
		if id, err := metaProvider.WorkerID(ctx); err == nil {
			workerID = id
		} else {
			logger.Warn("worker: metadata worker id lookup failed, generating fallback", "err", err)
			workerID = fmt.Sprintf("worker-%d", os.Getpid())
		}
	}
	region := cfg.Registry.Region
	if region == "" {
		if r, err := metaProvider.Region(ctx); err == nil {
			region = r
		}
	}
	publicEndpoint, err := metaProvider.PublicEndpoint(ctx)
	if err != nil {
		logger.Warn("worker: public endpoint discovery failed", "err", err)
	}
	logger.Info("worker: identity resolved", "workerId", workerID, "region", region)

	store, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}

	diskCache, err := cache.Open(cfg.Cache.Dir)
	if err != nil {
		return fmt.Errorf("minefleet-worker: open cache: %w", err)
	}
	defer diskCache.Close()

	reg := registry.New(store, nil, logger)
	alloc := allocator.New(reg, diskCache, nil, logger, allocator.Config{
		StaleThreshold:  cfg.Allocator.StaleThreshold,
		ReserveAttempts: cfg.Allocator.ReserveAttempts,
		SeedWaitRetries: cfg.Allocator.SeedWaitRetries,
		SeedWaitDelay:   5 * time.Second,
	})
	addresses, err := alloc.Acquire(ctx, workerID, publicEndpoint)
	if err != nil {
		return fmt.Errorf("minefleet-worker: acquire addresses: %w", err)
	}
	logger.Info("worker: addresses acquired", "count", len(addresses))

	hbWriter := heartbeat.NewWriter(store, nil, logger, workerID, publicEndpoint, cfg.Allocator.StaleThreshold/3)
	go hbWriter.Run(ctx)

	cp := compute.NewFake()
	reclaimer := reclaim.New(reg, store, cp, nil, logger, reclaim.Config{
		Region:         region,
		WorkerID:       workerID,
		Interval:       cfg.Reclaimer.Interval,
		StaleThreshold: cfg.Reclaimer.StaleThreshold,
		CASAttempts:    cfg.Reclaimer.CASAttempts,
	})
	go reclaimer.Run(ctx)

	api := mineapi.New(cfg.MineAPI.BaseURL, &http.Client{Timeout: cfg.MineAPI.Timeout})

	var sgn signer.Provider
	if cfg.Signer.PrivateKeyHex != "" {
		s, err := signer.NewECDSASignerFromHex(cfg.Signer.PrivateKeyHex)
		if err != nil {
			return fmt.Errorf("minefleet-worker: parse signing key: %w", err)
		}
		sgn = s
	}
	registerAddresses(ctx, api, sgn, addresses, logger)

	challenges := ledger.NewChallengeStore(store)
	solutions := ledger.NewSolutionsStore(store)
	statsStore := ledger.NewStatsStore(store)
	if err := solutions.WarmBloomFilters(ctx, addresses); err != nil {
		logger.Warn("worker: bloom filter warm-up failed, dedup will fall back to object store reads", "err", err)
	}

	runner, err := buildMinerRunner(cfg)
	if err != nil {
		return err
	}

	puller := orchestrator.NewPuller(api, challenges, nil, logger, region)
	pool := orchestrator.NewPool(cfg.Orchestrator.Workers, runner, cfg.Miner.GraceWait, nil, logger)
	interleaver := donation.NewInterleaver(cfg.Orchestrator.DonationEvery)
	donationProv := donation.StaticProvider{Address: cfg.Donation.Endpoint}
	submitter := submit.New(api, solutions, statsStore, nil, logger)

	engine := orchestrator.NewEngine(puller, challenges, solutions, pool, interleaver, donationProv, submitter, workerID, nil, logger, orchestrator.Config{
		WorkCheckInterval:      cfg.Orchestrator.WorkCheckInterval,
		ChallengeFetchInterval: cfg.Orchestrator.ChallengeFetchInterval,
		ExpiryScanInterval:     cfg.Orchestrator.ExpiryScanInterval,
		DonationEvery:          cfg.Orchestrator.DonationEvery,
		GraceWait:              cfg.Miner.GraceWait,
	})

	metrics := stats.New()
	go metrics.PollLoop(ctx, statsStore, 5*time.Second)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker: metrics server stopped", "err", err)
		}
	}()

	ipcListener, err := ipc.Listen(cfg.IPCPath)
	if err != nil {
		logger.Warn("worker: ipc listen failed, operator status queries unavailable", "err", err)
	} else {
		ipcServer := ipc.NewServer(engine, logger)
		go ipcServer.Serve(ctx, ipcListener)
		defer ipcListener.Close()
	}

	go engine.Run(ctx, func() []string { return addresses })

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("worker: shutdown signal received, draining in-flight work", "grace", gracefulShutdownWait)
	cancel()
	time.Sleep(gracefulShutdownWait)
	metricsServer.Close()
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "minefleet-worker"
	app.Usage = "cloud mining fleet worker"
	app.Flags = []cli.Flag{configFileFlag, workerIDFlag, logLevelFlag}
	app.Commands = []cli.Command{dumpConfigCommand}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		// spec.md §6: exit 2 on exhausted allocator retries, operator
		// action required; exit 1 for every other startup/runtime error.
		if errors.Is(err, registry.ErrRegistryExhausted) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
