package service

// Engine bundles the platform's operations behind a single handle for
// embedding callers: an API layer, admin tooling, scheduled jobs.
type Engine struct {
	Registration *RegistrationService
	Deposit      *DepositService
	Withdrawal   *WithdrawalService
	Reward       *RewardService
	Activation   *ActivationService
	Reconciler   *Reconciler
	Ledger       *LedgerService
	Tree         *TreeService
	Poller       *StatusPoller
}
