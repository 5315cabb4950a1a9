package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Migrate creates the schema. Statements are idempotent so the engine can
// run them on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: accounts, with the wallet projection, cumulative earnings
	// counters and the binary-tree placement columns. All monetary columns
	// hold minor units.
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL UNIQUE,
			full_name TEXT NOT NULL DEFAULT '',
			referral_code TEXT NOT NULL UNIQUE,
			sponsor_id TEXT REFERENCES accounts(id),
			currency TEXT NOT NULL DEFAULT 'KES',
			balance BIGINT NOT NULL DEFAULT 0,
			activated BOOLEAN NOT NULL DEFAULT FALSE,
			activation_threshold BIGINT NOT NULL DEFAULT 0,
			referral_earnings BIGINT NOT NULL DEFAULT 0,
			binary_earnings BIGINT NOT NULL DEFAULT 0,
			task_earnings BIGINT NOT NULL DEFAULT 0,
			team_earnings BIGINT NOT NULL DEFAULT 0,
			total_earned BIGINT NOT NULL DEFAULT 0,
			total_withdrawn BIGINT NOT NULL DEFAULT 0,
			parent_id TEXT REFERENCES accounts(id),
			position TEXT NOT NULL DEFAULT '',
			left_child_id TEXT REFERENCES accounts(id),
			right_child_id TEXT REFERENCES accounts(id),
			left_leg_size INT NOT NULL DEFAULT 0,
			right_leg_size INT NOT NULL DEFAULT 0,
			has_spun_once BOOLEAN NOT NULL DEFAULT FALSE,
			team_reward_claimed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_parent ON accounts(parent_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: the append-only ledger. The partial unique index is the
	// duplicate-intent guard: one live record per (provider, reference), with
	// failed attempts retryable under the same reference.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			type TEXT NOT NULL,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'KES',
			provider TEXT NOT NULL DEFAULT '',
			external_reference TEXT,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS transactions_live_reference_key
			ON transactions(provider, external_reference)
			WHERE status <> 'failed' AND external_reference IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_transactions_account_time
			ON transactions(account_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_stale_pending
			ON transactions(created_at)
			WHERE status = 'pending';
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: referrals, one per referred account.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS referrals (
			id TEXT PRIMARY KEY,
			referrer_id TEXT NOT NULL REFERENCES accounts(id),
			referred_id TEXT NOT NULL REFERENCES accounts(id),
			status TEXT NOT NULL DEFAULT 'pending',
			reward BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'KES',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			CONSTRAINT referrals_referred_key UNIQUE (referred_id)
		);
		CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: referrals table created")

	// Migration 4: notifications. NULL account_id means broadcast.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			account_id TEXT REFERENCES accounts(id),
			title TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'system',
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_account_time
			ON notifications(account_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: notifications table created")

	// Migration 5: tasks and completions, one completion per (account, task).
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			reward BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'KES',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS task_completions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			task_id TEXT NOT NULL REFERENCES tasks(id),
			status TEXT NOT NULL DEFAULT 'completed',
			reward BIGINT NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'KES',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT task_completions_account_task_key UNIQUE (account_id, task_id)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: tasks tables created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
