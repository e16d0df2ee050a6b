// Copyright (C) 2024, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/usdrise/receiver"
	"github.com/usdrise/receiver/api"
	"github.com/usdrise/receiver/backend"
	"github.com/usdrise/receiver/bridge"
	"github.com/usdrise/receiver/config"
	"github.com/usdrise/receiver/healthcheck"
	"github.com/usdrise/receiver/metrics"
	"github.com/usdrise/receiver/payload"
	"github.com/usdrise/receiver/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var version = "v0.0.0-dev"

const (
	healthCheckPath    = "/health"
	backendOpenTimeout = 30 * time.Second
)

func main() {
	cfg := buildConfig()

	logLevel, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("error reading log level from config: %s", err)
	}
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(logLevel)
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to build logger: %s", err)
	}
	logger = logger.Named("receiverd")
	defer func() { _ = logger.Sync() }()

	logger.Info("Initializing receiverd", zap.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("Failed to open backend", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close backend", zap.Error(err))
		}
	}()

	denoms, err := cfg.GetDenominations()
	if err != nil {
		logger.Fatal("Invalid denominations", zap.Error(err))
	}
	decoder, err := payload.NewDecoder(cfg.Bech32Prefix, denoms)
	if err != nil {
		logger.Fatal("Failed to create payload decoder", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r, err := bridge.NewReceiver(bridge.Config{
		Decoder:          decoder,
		Backend:          store,
		Logger:           logger,
		Metrics:          metrics.NewReceiverMetrics(registry),
		SettledCacheSize: cfg.SettledCacheSize,
	})
	if err != nil {
		logger.Fatal("Failed to create receiver", zap.Error(err))
	}

	if err := initializeReceiver(ctx, logger, r, cfg); err != nil {
		logger.Fatal("Failed to initialize receiver", zap.Error(err))
	}

	router := api.NewRouter(logger, r)
	router.Method(http.MethodGet, healthCheckPath, healthcheck.NewHandler(store.Ping))

	logger.Info("Initialization complete")

	errGroup, ctx := errgroup.WithContext(ctx)
	errGroup.Go(func() error {
		apiServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.APIPort),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return metrics.Serve(ctx, logger, "api", apiServer)
	})
	errGroup.Go(func() error {
		return metrics.Serve(ctx, logger, "metrics", metrics.NewMetricsServer(cfg.MetricsPort, registry))
	})

	if err := errGroup.Wait(); err != nil {
		logger.Fatal("Exited with error", zap.Error(err))
	}
	logger.Info("Shut down")
}

// openBackend opens the configured store. SQLite is retried since the
// database file may sit on a volume that is still being mounted.
func openBackend(ctx context.Context, logger *zap.Logger, cfg config.Config) (backend.Backend, error) {
	switch cfg.StorageType {
	case config.StorageTypeMemory:
		logger.Warn("Using in-memory storage, settlements will not survive a restart")
		return backend.NewMemoryBackend(), nil
	case config.StorageTypeSQLite:
		var store *backend.SQLBackend
		err := utils.WithRetriesTimeout(logger, func() error {
			var err error
			store, err = backend.NewSQLBackend(ctx, cfg.StorageLocation)
			return err
		}, backendOpenTimeout)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened sqlite backend", zap.String("location", cfg.StorageLocation))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.StorageType)
	}
}

// initializeReceiver stores the gateway config on first start and funds the
// escrow in the same transaction. Both are skipped when the backend already
// holds a config.
func initializeReceiver(ctx context.Context, logger *zap.Logger, r *bridge.Receiver, cfg config.Config) error {
	initialized, err := r.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if initialized {
		logger.Info("Receiver already initialized, ignoring gateway settings from config")
		return nil
	}
	if cfg.TrustedGateway == "" {
		return errors.New("store is not initialized and no trusted-gateway is configured")
	}

	funding, err := cfg.GetEscrowFunding()
	if err != nil {
		return err
	}
	credits := make([]bridge.EscrowCredit, 0, len(funding))
	for _, denom := range slices.Sorted(maps.Keys(funding)) {
		credits = append(credits, bridge.EscrowCredit{Denom: denom, Amount: funding[denom]})
	}

	_, err = r.Initialize(ctx, receiver.Identity(cfg.Admin), bridge.InitMsg{
		TrustedGateway: cfg.TrustedGateway,
		GatewayKey:     cfg.GatewayPublicKey,
		Admin:          cfg.Admin,
		AdminKey:       cfg.AdminPublicKey,
		AllowedSenders: cfg.GetAllowedSenders(),
		EscrowFunding:  credits,
	})
	return err
}

// buildConfig parses the flags and builds the config
// Errors here should call log.Fatalf to exit the program
// since these errors are prior to building the logger struct
func buildConfig() config.Config {
	fs := config.BuildFlagSet()
	if err := fs.Parse(os.Args[1:]); err != nil {
		config.DisplayUsageText()
		log.Fatalf("Failed to parse flags: %s", err)
	}

	displayVersion, err := fs.GetBool(config.VersionKey)
	if err != nil {
		log.Fatalf("error reading %s flag: %s", config.VersionKey, err)
	}
	if displayVersion {
		fmt.Printf("%s\n", version)
		os.Exit(0)
	}

	help, err := fs.GetBool(config.HelpKey)
	if err != nil {
		log.Fatalf("error reading %s flag value: %s", config.HelpKey, err)
	}
	if help {
		config.DisplayUsageText()
		os.Exit(0)
	}
	v, err := config.BuildViper(fs)
	if err != nil {
		log.Fatalf("couldn't configure flags: %s", err)
	}

	cfg, err := config.NewConfig(v)
	if err != nil {
		log.Fatalf("couldn't build config: %s", err)
	}
	return cfg
}
