package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"earn-platform/internal/model"
	"earn-platform/internal/pkg/lock"
	"earn-platform/internal/provider"
	"earn-platform/internal/repository"
)

// StatusPoller resolves provider transactions whose webhook never arrived.
// It periodically asks each provider for the state of stale pending records
// and feeds the answers through the reconciler, the same path webhooks take.
type StatusPoller struct {
	store      repository.Store
	reconciler *Reconciler
	registry   *provider.Registry
	locks      *lock.KeyLock

	interval    time.Duration
	pollTimeout time.Duration
	staleAfter  time.Duration
}

// NewStatusPoller creates a new StatusPoller instance.
func NewStatusPoller(
	store repository.Store,
	reconciler *Reconciler,
	registry *provider.Registry,
	locks *lock.KeyLock,
	interval, pollTimeout, staleAfter time.Duration,
) *StatusPoller {
	return &StatusPoller{
		store:       store,
		reconciler:  reconciler,
		registry:    registry,
		locks:       locks,
		interval:    interval,
		pollTimeout: pollTimeout,
		staleAfter:  staleAfter,
	}
}

// Run polls until ctx is cancelled.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", p.interval).
		Dur("stale_after", p.staleAfter).
		Msg("Status poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Status poller stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep checks every stale pending transaction once. The per-transaction
// lock keeps overlapping sweeps and a racing webhook handler from polling
// the same record twice at once; the reconciler stays the sole authority on
// state changes either way.
func (p *StatusPoller) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.staleAfter)
	stale, err := p.store.Transactions().ListStalePending(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list stale pending transactions")
		return
	}
	for _, tx := range stale {
		if !p.locks.TryLock(tx.ID) {
			continue
		}
		p.check(ctx, tx.ID, string(tx.Provider), *tx.ExternalReference)
		p.locks.Unlock(tx.ID)
	}
}

func (p *StatusPoller) check(ctx context.Context, txID, providerName, reference string) {
	adapter, ok := p.registry.Get(model.Provider(providerName))
	if !ok {
		log.Warn().
			Str("transaction_id", txID).
			Str("provider", providerName).
			Msg("No adapter for stale transaction's provider")
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()
	ev, err := adapter.CheckStatus(pollCtx, reference)
	if err != nil {
		log.Warn().
			Err(err).
			Str("transaction_id", txID).
			Str("provider", providerName).
			Msg("Status check failed")
		return
	}

	result, err := p.reconciler.Ingest(ctx, ev)
	if err != nil {
		log.Error().Err(err).Str("transaction_id", txID).Msg("Failed to reconcile polled status")
		return
	}
	log.Debug().
		Str("transaction_id", txID).
		Str("result", string(result)).
		Msg("Polled status reconciled")
}
