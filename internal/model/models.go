// Package model defines the data models for the rewards platform engine.
package model

import (
	"time"

	"earn-platform/internal/money"
)

// Position identifies a leg of the binary placement tree.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
	PositionNone  Position = ""
)

// Account represents a platform member: wallet projection, activation state
// and binary-tree placement fields. Parent/child links are stored as account
// ids, never pointers; the tree is rooted at any account with a nil parent.
type Account struct {
	ID           string
	Email        string
	Phone        string
	FullName     string
	ReferralCode string

	// SponsorID is the account whose referral code was used at registration.
	// It may differ from ParentID: commissions follow the tree parent chain,
	// the referral reward follows the sponsor.
	SponsorID *string

	Balance             money.Money
	Activated           bool
	ActivationThreshold money.Money

	ReferralEarnings money.Money
	BinaryEarnings   money.Money
	TaskEarnings     money.Money
	TeamEarnings     money.Money
	TotalEarned      money.Money
	TotalWithdrawn   money.Money

	ParentID     *string
	Position     Position
	LeftChildID  *string
	RightChildID *string
	LeftLegSize  int
	RightLegSize int

	HasSpunOnce       bool
	TeamRewardClaimed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TeamSize returns the total number of placed descendants.
func (a *Account) TeamSize() int {
	return a.LeftLegSize + a.RightLegSize
}

// ChildID returns the child id occupying the given leg, or nil.
func (a *Account) ChildID(pos Position) *string {
	if pos == PositionLeft {
		return a.LeftChildID
	}
	return a.RightChildID
}

// TxStatus is a transaction's lifecycle state.
type TxStatus string

const (
	TxStatusPending       TxStatus = "pending"
	TxStatusAdminApproval TxStatus = "pending_admin_approval"
	TxStatusProcessing    TxStatus = "processing"
	TxStatusCompleted     TxStatus = "completed"
	TxStatusFailed        TxStatus = "failed"
	TxStatusRejected      TxStatus = "rejected"
)

// Terminal reports whether no further transition is legal from s.
func (s TxStatus) Terminal() bool {
	return s == TxStatusCompleted || s == TxStatusFailed || s == TxStatusRejected
}

// TxType categorizes ledger transactions.
type TxType string

const (
	TxTypeDeposit          TxType = "deposit"
	TxTypeWithdrawal       TxType = "withdrawal"
	TxTypeReferralReward   TxType = "referral_reward"
	TxTypeBinaryCommission TxType = "binary_commission"
	TxTypeTask             TxType = "task"
	TxTypeTaskRefund       TxType = "task_refund"
	TxTypeTeamReward       TxType = "team_reward"
	TxTypeSpinAndWin       TxType = "spin_and_win"
	TxTypeAccountCreation  TxType = "account_creation"
)

// Provider names the payment rail a transaction moved through.
type Provider string

const (
	ProviderMpesa    Provider = "mpesa"
	ProviderPaypal   Provider = "paypal"
	ProviderPesapal  Provider = "pesapal"
	ProviderPaystack Provider = "paystack"
	ProviderSandbox  Provider = "sandbox"

	// ProviderInternal marks engine-generated awards. Their external
	// references double as idempotency keys for exactly-once payouts.
	ProviderInternal Provider = "internal"
)

// Transaction is one append-only ledger record. Amount is signed: credits
// positive, debits negative. An account's balance equals the signed sum of
// its completed transactions.
type Transaction struct {
	ID        string
	AccountID string
	Type      TxType
	Amount    money.Money

	Provider          Provider
	ExternalReference *string

	Status      TxStatus
	Reason      string
	Description string
	Metadata    map[string]string

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Terminal reports whether the transaction reached a terminal status.
func (t *Transaction) Terminal() bool {
	return t.Status.Terminal()
}

// ReferralStatus is a referral record's lifecycle state.
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
)

// Referral records one referred relationship. At most one exists per
// referred account; it completes exactly once, when the referred activates.
type Referral struct {
	ID          string
	ReferrerID  string
	ReferredID  string
	Status      ReferralStatus
	Reward      money.Money
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// NotificationKind categorizes notifications.
type NotificationKind string

const (
	NotifyPayment NotificationKind = "payment"
	NotifyReward  NotificationKind = "reward"
	NotifySystem  NotificationKind = "system"
)

// Notification is a stored message for one account, or a broadcast when
// AccountID is nil.
type Notification struct {
	ID        string
	AccountID *string
	Title     string
	Message   string
	Kind      NotificationKind
	Read      bool
	CreatedAt time.Time
}

// Task is an admin-defined earning task.
type Task struct {
	ID        string
	Title     string
	Reward    money.Money
	Active    bool
	CreatedAt time.Time
}

// CompletionStatus is a task completion's lifecycle state.
type CompletionStatus string

const (
	CompletionCompleted CompletionStatus = "completed"
	CompletionRejected  CompletionStatus = "rejected"
)

// TaskCompletion records one account finishing one task. Rejection by an
// admin reverses the award through a compensating task_refund transaction.
type TaskCompletion struct {
	ID        string
	AccountID string
	TaskID    string
	Status    CompletionStatus
	Reward    money.Money
	Notes     string
	CreatedAt time.Time
}

// EarningsBucket selects which cumulative earnings field a balance delta
// also accrues to.
type EarningsBucket string

const (
	BucketNone     EarningsBucket = ""
	BucketReferral EarningsBucket = "referral"
	BucketBinary   EarningsBucket = "binary"
	BucketTask     EarningsBucket = "task"
	BucketTeam     EarningsBucket = "team"
)
