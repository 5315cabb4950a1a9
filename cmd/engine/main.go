// Package main is the entry point for the rewards platform engine.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"earn-platform/internal/config"
	"earn-platform/internal/pkg/db"
	"earn-platform/internal/pkg/lock"
	"earn-platform/internal/provider"
	"earn-platform/internal/repository/postgres"
	"earn-platform/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	params, err := service.ParamsFromConfig(cfg.Engine)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid engine parameters")
	}

	log.Info().
		Str("base_currency", params.BaseCurrency).
		Str("activation_threshold", params.ActivationThreshold.String()).
		Int("commission_levels", len(params.CommissionSchedule)).
		Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := postgres.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize the store and services
	store := postgres.New(dbPool.Pool)
	notifier := service.NewStoreNotifier(store)
	fx, err := service.NewStaticConverter(params.BaseCurrency, cfg.Fx.RatesToBase)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid fx rate table")
	}

	ledger := service.NewLedgerService(store)
	tree := service.NewTreeService(store)
	reward := service.NewRewardService(store, ledger, params, notifier)
	commission := service.NewCommissionService(store, ledger, params)
	activation := service.NewActivationService(store, ledger, commission, params, notifier)
	registration := service.NewRegistrationService(store, tree, reward, params, notifier)
	reconciler := service.NewReconciler(store, ledger, activation, params, notifier)

	// Initialize provider adapter registry
	registry := provider.NewRegistry()
	if cfg.Providers.Sandbox.Enabled {
		sandbox := provider.NewSandbox(cfg.Providers.Sandbox.SettleAfter)
		if err := registry.Register(sandbox); err != nil {
			log.Fatal().Err(err).Msg("Failed to register sandbox provider")
		}
		log.Info().Msg("Sandbox provider registered")
	}

	deposit := service.NewDepositService(store, ledger, registry, fx, params, cfg.Providers.PollTimeout)
	withdrawal := service.NewWithdrawalService(store, ledger, registry, fx, params, notifier, cfg.Providers.PollTimeout)
	poller := service.NewStatusPoller(
		store, reconciler, registry, lock.NewKeyLock(),
		cfg.Providers.PollInterval, cfg.Providers.PollTimeout, cfg.Providers.StaleAfter,
	)

	// The engine handle is what an API layer embeds; the binary itself only
	// drives the poller.
	engine := &service.Engine{
		Registration: registration,
		Deposit:      deposit,
		Withdrawal:   withdrawal,
		Reward:       reward,
		Activation:   activation,
		Reconciler:   reconciler,
		Ledger:       ledger,
		Tree:         tree,
		Poller:       poller,
	}

	// Start the status poller for stuck provider transactions
	go engine.Poller.Run(ctx)

	log.Info().Msg("Engine is running")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	cancel()
	log.Info().Msg("Engine stopped gracefully")
}
