// Package main is the minefleet-controller operator entrypoint (spec.md
// §4.9): registry seeding, the leader-only reclaimer running
// standalone against the shared object store, and the operator-facing
// console/tui surfaces. It never mines; it administers the fleet the
// worker binaries join.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"berith-chain/minefleet/compute"
	"berith-chain/minefleet/console"
	"berith-chain/minefleet/internal/config"
	"berith-chain/minefleet/internal/log"
	"berith-chain/minefleet/ledger"
	"berith-chain/minefleet/objectstore"
	"berith-chain/minefleet/objectstore/azureblob"
	"berith-chain/minefleet/objectstore/memstore"
	"berith-chain/minefleet/reclaim"
	"berith-chain/minefleet/registry"
	"berith-chain/minefleet/stats"
	"berith-chain/minefleet/tui"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	logLevelFlag = cli.IntFlag{
		Name:  "loglevel",
		Usage: "log verbosity (0=error .. 4=trace)",
		Value: int(log.LvlInfo),
	}

	seedCommand = cli.Command{
		Action:    seedRegistry,
		Name:      "seed",
		Usage:     "Seed the registry with the fleet's mining addresses",
		ArgsUsage: "<comma-separated addresses>",
		Flags: []cli.Flag{
			configFileFlag,
			cli.IntFlag{Name: "per-instance", Usage: "addresses per worker instance", Value: 1},
		},
	}
	statusCommand = cli.Command{
		Action: showStatus,
		Name:   "status",
		Usage:  "Print the registry assignment snapshot and fleet stats",
		Flags:  []cli.Flag{configFileFlag},
	}
	consoleCommand = cli.Command{
		Action: runConsole,
		Name:   "console",
		Usage:  "Start an interactive JS-scriptable operator console",
		Flags:  []cli.Flag{configFileFlag},
	}
	dashboardCommand = cli.Command{
		Action: runDashboard,
		Name:   "dashboard",
		Usage:  "Start the termui fleet dashboard",
		Flags:  []cli.Flag{configFileFlag},
	}
	reclaimCommand = cli.Command{
		Action: runReclaimer,
		Name:   "reclaim",
		Usage:  "Run the standalone periodic reclaimer until interrupted",
		Flags:  []cli.Flag{configFileFlag},
	}
)

func loadControllerConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := config.Load(file, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func buildObjectStore(cfg config.Config) (objectstore.Store, error) {
	switch cfg.ObjectStore.Backend {
	case "", "memory":
		return memstore.New(), nil
	case "azure":
		key := os.Getenv("MINEFLEET_AZURE_ACCOUNT_KEY")
		if key == "" {
			return nil, fmt.Errorf("minefleet-controller: MINEFLEET_AZURE_ACCOUNT_KEY not set for azure object store backend")
		}
		bucket := cfg.ObjectStore.Bucket
		if bucket == "" {
			bucket = fmt.Sprintf("%s-%s-%s", cfg.Registry.Prefix, cfg.Registry.Account, cfg.Registry.Region)
		}
		return azureblob.New(cfg.ObjectStore.AccountName, key, bucket)
	default:
		return nil, fmt.Errorf("minefleet-controller: unknown objectstore backend %q", cfg.ObjectStore.Backend)
	}
}

func seedRegistry(ctx *cli.Context) error {
	cfg, err := loadControllerConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.NArg() != 1 {
		return fmt.Errorf("seed: expected exactly one comma-separated address list argument")
	}
	addresses := strings.Split(ctx.Args().Get(0), ",")
	for i := range addresses {
		addresses[i] = strings.TrimSpace(addresses[i])
	}

	store, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}
	logger := log.New(log.Level(ctx.GlobalInt(logLevelFlag.Name)))
	reg := registry.New(store, nil, logger)

	perInstance := ctx.Int("per-instance")
	if perInstance <= 0 {
		perInstance = cfg.Registry.AddressesPerInstance
	}
	if err := reg.Seed(context.Background(), addresses, perInstance); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fmt.Fprintf(os.Stdout, "seeded %d addresses, %d per instance\n", len(addresses), perInstance)
	return nil
}

func showStatus(ctx *cli.Context) error {
	cfg, err := loadControllerConfig(ctx)
	if err != nil {
		return err
	}
	store, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}
	background := context.Background()
	reg := registry.New(store, nil, nil)
	doc, err := reg.Snapshot(background)
	if err != nil {
		return fmt.Errorf("status: registry snapshot: %w", err)
	}
	fmt.Fprintf(os.Stdout, "assignments: %d\n", len(doc.Assignments))
	for workerID, a := range doc.Assignments {
		fmt.Fprintf(os.Stdout, "  %s: %v\n", workerID, a.Addresses)
	}

	statsStore := ledger.NewStatsStore(store)
	snap, err := statsStore.Snapshot(background)
	if err != nil {
		return fmt.Errorf("status: stats snapshot: %w", err)
	}
	fmt.Fprintf(os.Stdout, "total solutions: %d (donation: %d), total errors: %d\n",
		snap.TotalSolutions, snap.DonationSolutions, snap.TotalErrors)
	return nil
}

func runConsole(ctx *cli.Context) error {
	cfg, err := loadControllerConfig(ctx)
	if err != nil {
		return err
	}
	store, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}
	background := context.Background()
	reg := registry.New(store, nil, nil)
	statsStore := ledger.NewStatsStore(store)

	c, err := console.New(background, console.Config{
		DataDir:  cfg.Cache.Dir,
		Registry: reg,
		Stats:    statsStore,
	})
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	defer c.Stop()
	c.Interactive()
	return nil
}

func runDashboard(ctx *cli.Context) error {
	cfg, err := loadControllerConfig(ctx)
	if err != nil {
		return err
	}
	store, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}
	statsStore := ledger.NewStatsStore(store)
	dash := tui.New(statsStore, time.Second)
	return dash.Run(context.Background())
}

func runReclaimer(ctx *cli.Context) error {
	cfg, err := loadControllerConfig(ctx)
	if err != nil {
		return err
	}
	store, err := buildObjectStore(cfg)
	if err != nil {
		return err
	}
	logger := log.New(log.Level(ctx.GlobalInt(logLevelFlag.Name)))
	reg := registry.New(store, nil, logger)
	cp := compute.NewFake()

	reclaimer := reclaim.New(reg, store, cp, nil, logger, reclaim.Config{
		Region:         cfg.Registry.Region,
		WorkerID:       "controller-" + strconv.Itoa(os.Getpid()),
		Interval:       cfg.Reclaimer.Interval,
		StaleThreshold: cfg.Reclaimer.StaleThreshold,
		CASAttempts:    cfg.Reclaimer.CASAttempts,
	})

	background, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := stats.New()
	go metrics.PollLoop(background, ledger.NewStatsStore(store), 5*time.Second)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("controller: metrics server stopped", "err", err)
		}
	}()

	go reclaimer.Run(background)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	metricsServer.Close()
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "minefleet-controller"
	app.Usage = "cloud mining fleet operator controller"
	app.Flags = []cli.Flag{configFileFlag, logLevelFlag}
	app.Commands = []cli.Command{seedCommand, statusCommand, consoleCommand, dashboardCommand, reclaimCommand}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		// spec.md §6: exit 2 on exhausted allocator retries, operator
		// action required; exit 1 for every other error.
		if errors.Is(err, registry.ErrRegistryExhausted) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
