// Package repository defines the persistence contract for the engine.
//
// Two implementations exist: repository/postgres over pgx, and
// repository/memory as an in-process fake for tests. Services receive the
// Store interface and never touch a database handle directly.
package repository

import (
	"context"
	"errors"
	"time"

	"earn-platform/internal/model"
	"earn-platform/internal/money"
)

// Common errors for store operations.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrReferralNotFound    = errors.New("referral not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrCompletionNotFound  = errors.New("task completion not found")

	// ErrDuplicateAccount signals a unique-constraint hit on
	// email, phone or referral code.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrDuplicateReference signals that a non-failed transaction already
	// carries the same (provider, external reference) pair. It is the
	// duplicate-intent guard and the idempotency backstop for awards.
	ErrDuplicateReference = errors.New("duplicate external reference")

	// ErrDuplicateReferral signals that the referred account already has a
	// referral record; a user has exactly one referrer.
	ErrDuplicateReferral = errors.New("referral already exists")

	// ErrDuplicateCompletion signals that the account already completed
	// the task.
	ErrDuplicateCompletion = errors.New("task already completed")

	// ErrConflict is returned when an atomic unit of work exhausted its
	// retries against concurrent writers.
	ErrConflict = errors.New("store conflict")
)

// AccountStore persists accounts and performs the single-row atomic updates
// the engine's invariants depend on. Every conditional method reports via
// its bool result whether this caller won the transition.
type AccountStore interface {
	Create(ctx context.Context, acct *model.Account) error
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*model.Account, error)

	// ApplyBalanceDelta atomically adds delta to the wallet projection and
	// accrues the cumulative counters: positive deltas add to total earned
	// (and to the bucket, when given); negative deltas with no bucket add
	// to total withdrawn; negative deltas with a bucket reverse that
	// bucket's earnings.
	ApplyBalanceDelta(ctx context.Context, id string, delta money.Money, bucket model.EarningsBucket) error

	// Activate flips the activation flag if, and only if, the account is
	// not yet activated and its balance has reached its threshold.
	Activate(ctx context.Context, id string) (bool, error)

	// AttachChild occupies the parent's child slot for the given leg if it
	// is still empty. Competing placements for the same slot serialize
	// here; the loser re-reads and descends.
	AttachChild(ctx context.Context, parentID string, pos model.Position, childID string) (bool, error)

	// SetPlacement records the child side of the placement edge.
	SetPlacement(ctx context.Context, id, parentID string, pos model.Position) error

	// IncrementLegSize atomically adds delta to one leg-size counter.
	// Each call is its own atomic step of the upward propagation walk.
	IncrementLegSize(ctx context.Context, id string, pos model.Position, delta int) error

	// MarkSpun claims the one-time spin bonus flag.
	MarkSpun(ctx context.Context, id string) (bool, error)

	// ClaimTeamReward claims the one-time team milestone flag.
	ClaimTeamReward(ctx context.Context, id string) (bool, error)
}

// TransactionStore persists the append-only ledger.
type TransactionStore interface {
	// Create inserts a new transaction. When an external reference is set,
	// it enforces the duplicate-intent guard and returns
	// ErrDuplicateReference if a non-failed record already carries it.
	Create(ctx context.Context, tx *model.Transaction) error

	GetByID(ctx context.Context, id string) (*model.Transaction, error)

	// GetByReference looks up the transaction for a provider's external
	// reference, ignoring failed records (a failed attempt may be retried
	// under the same reference).
	GetByReference(ctx context.Context, provider model.Provider, ref string) (*model.Transaction, error)

	// Transition moves the transaction from one of the given statuses to
	// the target status, setting completed_at on terminal targets and
	// recording reason. Returns false if the transaction was not in any
	// of the from statuses (somebody else already moved it).
	Transition(ctx context.Context, id string, from []model.TxStatus, to model.TxStatus, reason string) (bool, error)

	// SetMetadata attaches provider detail to a not-yet-terminal record.
	SetMetadata(ctx context.Context, id, key, value string) error

	ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Transaction, error)

	// ListStalePending returns pending provider transactions created before
	// the cutoff, for the status poller.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*model.Transaction, error)

	// SumCompleted returns the signed sum, in minor units, of the
	// account's completed transactions. Replaying this against the wallet
	// projection is the balance integrity check.
	SumCompleted(ctx context.Context, accountID string) (int64, error)
}

// ReferralStore persists referral relationships.
type ReferralStore interface {
	Create(ctx context.Context, ref *model.Referral) error
	GetByReferred(ctx context.Context, referredID string) (*model.Referral, error)

	// Complete moves the referred account's referral from pending to
	// completed. Returns the record and false when it was not pending,
	// which is how a second concurrent activation loses the payout race.
	Complete(ctx context.Context, referredID string) (*model.Referral, bool, error)
}

// NotificationStore persists outbound notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*model.Notification, error)
}

// TaskStore persists tasks and completions.
type TaskStore interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListActiveTasks(ctx context.Context) ([]*model.Task, error)

	// CreateCompletion inserts a completion, enforcing one per
	// (account, task).
	CreateCompletion(ctx context.Context, c *model.TaskCompletion) error
	GetCompletion(ctx context.Context, id string) (*model.TaskCompletion, error)

	// RejectCompletion moves a completion from completed to rejected.
	RejectCompletion(ctx context.Context, id, notes string) (bool, error)
}

// Store aggregates the per-entity stores and provides the atomic unit of
// work every multi-record mutation runs in.
type Store interface {
	Accounts() AccountStore
	Transactions() TransactionStore
	Referrals() ReferralStore
	Notifications() NotificationStore
	Tasks() TaskStore

	// Atomic runs fn inside one isolated unit of work scoped to the records
	// fn touches. The store passed to fn is bound to that unit; either all
	// of fn's writes commit or none do. Conflicting concurrent writers are
	// retried from a fresh read before ErrConflict is reported.
	Atomic(ctx context.Context, fn func(Store) error) error
}
